package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/auxin/internal/ioutil"
	"github.com/calvinalkan/auxin/internal/upload"
)

// PushCmd returns the push command.
func PushCmd(app *App) *Command {
	flags := flag.NewFlagSet("push", flag.ContinueOnError)
	remote := flags.String("remote", "", "Remote name (defaults to the configured default remote)")
	branch := flags.String("branch", "main", "Branch to push")

	return &Command{
		Flags: flags,
		Usage: "push [flags]",
		Short: "Upload staged changes with a resumable progress session",
		Long:  "Scans modified/staged files into an upload session (resuming one already in progress for this remote/branch) and pushes, reporting bandwidth and ETA as it goes.",
		Exec: func(ctx context.Context, o *ioutil.IO, _ []string) error {
			r := *remote
			if r == "" {
				r = app.Config.DefaultRemote
			}

			result, err := app.Facade.Uploads.UploadWithProgress(ctx, app.Config.RepoDir, r, *branch, func(p upload.Progress) {
				o.Printf("%s/%s  %5.1f%%  %s  ETA %s\n",
					upload.BytesString(p.BytesUploaded), upload.BytesString(p.TotalBytes),
					p.Percentage, p.BandwidthString(), p.ETAString())
			})
			if err != nil {
				return err
			}

			if !result.Success {
				o.Warn("push did not complete", "run `auxin push` again to resume from the last uploaded file")
				o.Println("Push failed:", result.Error)

				return nil
			}

			o.Println("Pushed", result.FilesUploaded, "file(s),", upload.BytesString(result.BytesUploaded))

			return nil
		},
	}
}
