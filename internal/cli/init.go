package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/auxin/internal/ioutil"
)

// InitCmd returns the init command.
func InitCmd(app *App) *Command {
	return &Command{
		Flags: flag.NewFlagSet("init", flag.ContinueOnError),
		Usage: "init",
		Short: "Initialize a new project",
		Long:  "Initialize the backend repository, write the default ignore file, create the initial commit, and create the draft branch.",
		Exec: func(ctx context.Context, o *ioutil.IO, _ []string) error {
			if err := app.Facade.Init(ctx, app.Config.RepoDir); err != nil {
				return err
			}

			o.Println("Initialized project in", app.Config.RepoDir)

			return nil
		},
	}
}
