package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/auxin/internal/ioutil"
)

// AddCmd returns the add command.
func AddCmd(app *App) *Command {
	return &Command{
		Flags: flag.NewFlagSet("add", flag.ContinueOnError),
		Usage: "add [paths...]",
		Short: "Stage files for the next commit",
		Long:  "Stage the given paths, or everything if none are given.",
		Exec: func(ctx context.Context, o *ioutil.IO, args []string) error {
			if err := app.Facade.Add(ctx, app.Config.RepoDir, args); err != nil {
				return err
			}

			if len(args) == 0 {
				o.Println("Staged all changes")
			} else {
				o.Println("Staged", len(args), "path(s)")
			}

			return nil
		},
	}
}
