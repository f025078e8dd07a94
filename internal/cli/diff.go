package cli

import (
	"context"
	"errors"
	"fmt"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/auxin/internal/ioutil"
	"github.com/calvinalkan/auxin/internal/metadata"
)

var errTwoRevisionsRequired = errors.New("two revisions are required: diff <old> <new>")

// DiffCmd returns the diff command.
func DiffCmd(app *App) *Command {
	flags := flag.NewFlagSet("diff", flag.ContinueOnError)
	format := flags.String("format", "plain", "Output format: plain, colored, compact, or json")

	return &Command{
		Flags: flags,
		Usage: "diff <old> <new> [flags]",
		Short: "Show changed domain metadata between two commits",
		Long:  "Decodes the commit-metadata block of each commit message and renders a structural diff of changed fields and added/removed tags.",
		Exec: func(ctx context.Context, o *ioutil.IO, args []string) error {
			if len(args) < 2 {
				return errTwoRevisionsRequired
			}

			before, err := findCommitMetadata(ctx, app, args[0])
			if err != nil {
				return err
			}

			after, err := findCommitMetadata(ctx, app, args[1])
			if err != nil {
				return err
			}

			d := metadata.Compare(before, after)

			switch *format {
			case "colored":
				o.Println(d.RenderColored())
			case "compact":
				o.Println(d.RenderCompact())
			case "json":
				data, err := metadata.DiffJSON(before, after)
				if err != nil {
					return err
				}
				o.Println(string(data))
			default:
				o.Println(d.RenderPlain())
			}

			if !d.HasChanges() {
				o.Println("(no metadata changes)")
			}

			return nil
		},
	}
}

func findCommitMetadata(ctx context.Context, app *App, revision string) (metadata.Metadata, error) {
	records, err := app.Facade.Log(ctx, app.Config.RepoDir, 0)
	if err != nil {
		return metadata.Metadata{}, err
	}

	for _, rec := range records {
		if rec.ID == revision || (len(revision) >= 7 && len(rec.ID) >= len(revision) && rec.ID[:len(revision)] == revision) {
			return metadata.Decode(rec.Message), nil
		}
	}

	return metadata.Metadata{}, fmt.Errorf("no commit matching revision %q", revision)
}
