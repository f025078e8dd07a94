package cli

import (
	"context"
	"errors"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/auxin/internal/ioutil"
)

var errRevisionRequired = errors.New("revision is required")

// RestoreCmd returns the restore command.
func RestoreCmd(app *App) *Command {
	return &Command{
		Flags: flag.NewFlagSet("restore", flag.ContinueOnError),
		Usage: "restore <revision>",
		Short: "Check out a commit by full id or unambiguous prefix",
		Exec: func(ctx context.Context, o *ioutil.IO, args []string) error {
			if len(args) == 0 {
				return errRevisionRequired
			}

			if err := app.Facade.Restore(ctx, app.Config.RepoDir, args[0]); err != nil {
				return err
			}

			o.Println("Restored", args[0])

			return nil
		},
	}
}
