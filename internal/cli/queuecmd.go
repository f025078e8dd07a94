package cli

import (
	"context"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/auxin/internal/ioutil"
	"github.com/calvinalkan/auxin/internal/repo"
)

// QueueGroup returns the "queue" subcommand group.
func QueueGroup(app *App) *Group {
	return &Group{
		GroupName: "queue",
		Short:     "Inspect or drain the offline operation queue",
		Commands: []*Command{
			queueListCmd(app),
			queueSyncCmd(app),
		},
	}
}

func queueListCmd(app *App) *Command {
	return &Command{
		Flags: flag.NewFlagSet("list", flag.ContinueOnError),
		Usage: "list",
		Short: "List operations deferred while offline",
		Exec: func(_ context.Context, o *ioutil.IO, _ []string) error {
			pending, err := app.Queue.Pending()
			if err != nil {
				return err
			}

			if len(pending) == 0 {
				o.Println("Queue is empty")
				return nil
			}

			for _, e := range pending {
				o.Println(e.ID, e.Operation.Kind(), "priority="+strconv.Itoa(e.Priority), "attempts="+strconv.Itoa(e.Attempts))
			}

			return nil
		},
	}
}

func queueSyncCmd(app *App) *Command {
	return &Command{
		Flags: flag.NewFlagSet("sync", flag.ContinueOnError),
		Usage: "sync",
		Short: "Drain the queue now that connectivity has returned",
		Exec: func(ctx context.Context, o *ioutil.IO, _ []string) error {
			executor := repo.NewQueueExecutor(app.Facade)

			report, err := app.Queue.SyncAll(ctx, executor)
			if err != nil {
				return err
			}

			o.Println("Synced", len(report.Succeeded), "operation(s)")

			for _, f := range report.Failed {
				o.Warn("queued operation "+f.ID+" failed", f.Err)
			}

			return nil
		},
	}
}
