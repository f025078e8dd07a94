package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/auxin/internal/config"
	"github.com/calvinalkan/auxin/internal/ioutil"
)

// ConfigGroup returns the "config" subcommand group.
func ConfigGroup(app *App) *Group {
	return &Group{
		GroupName: "config",
		Short:     "Inspect the resolved configuration",
		Commands: []*Command{
			configPrintCmd(app),
		},
	}
}

func configPrintCmd(app *App) *Command {
	return &Command{
		Flags: flag.NewFlagSet("print", flag.ContinueOnError),
		Usage: "print",
		Short: "Show the effective configuration and which files it was loaded from",
		Exec: func(_ context.Context, o *ioutil.IO, _ []string) error {
			out, err := config.Format(app.Config)
			if err != nil {
				return err
			}

			o.Println(out)
			o.Println()
			o.Println("# sources")

			if app.Sources.Global == "" && app.Sources.Project == "" {
				o.Println("(defaults only)")
				return nil
			}

			if app.Sources.Global != "" {
				o.Println("global_config=" + app.Sources.Global)
			}
			if app.Sources.Project != "" {
				o.Println("project_config=" + app.Sources.Project)
			}

			return nil
		},
	}
}
