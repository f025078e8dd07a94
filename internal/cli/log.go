package cli

import (
	"context"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/auxin/internal/ioutil"
	"github.com/calvinalkan/auxin/internal/metadata"
)

// LogCmd returns the log command.
func LogCmd(app *App) *Command {
	flags := flag.NewFlagSet("log", flag.ContinueOnError)
	limit := flags.IntP("limit", "n", 20, "Maximum number of commits to show")

	return &Command{
		Flags: flags,
		Usage: "log [flags]",
		Short: "Show commit history with decoded metadata",
		Exec: func(ctx context.Context, o *ioutil.IO, _ []string) error {
			records, err := app.Facade.Log(ctx, app.Config.RepoDir, *limit)
			if err != nil {
				return err
			}

			for _, rec := range records {
				md := metadata.Decode(rec.Message)

				o.Println("commit", rec.ID)
				o.Println("   ", md.Message)

				if md.BPM != nil {
					o.Println("    BPM:", strconv.FormatFloat(float64(*md.BPM), 'f', -1, 32))
				}
				if md.KeySignature != nil {
					o.Println("    Key:", *md.KeySignature)
				}

				o.Println()
			}

			return nil
		},
	}
}
