package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/auxin/internal/ioutil"
)

// StatusCmd returns the status command.
func StatusCmd(app *App) *Command {
	return &Command{
		Flags: flag.NewFlagSet("status", flag.ContinueOnError),
		Usage: "status",
		Short: "Show staged and modified files",
		Exec: func(ctx context.Context, o *ioutil.IO, _ []string) error {
			result, err := app.Facade.Status(ctx, app.Config.RepoDir)
			if err != nil {
				return err
			}

			if len(result.Staged) == 0 && len(result.Modified) == 0 && len(result.Untracked) == 0 {
				o.Println("Nothing to commit, working tree clean")
				return nil
			}

			printGroup(o, "Staged", result.Staged)
			printGroup(o, "Modified", result.Modified)
			printGroup(o, "Untracked", result.Untracked)

			return nil
		},
	}
}

func printGroup(o *ioutil.IO, label string, paths []string) {
	if len(paths) == 0 {
		return
	}

	o.Println(label + ":")
	for _, p := range paths {
		o.Println("  " + p)
	}
}
