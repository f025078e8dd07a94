package cli

import (
	"context"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/auxin/internal/ioutil"
	"github.com/calvinalkan/auxin/internal/repo"
)

// WALGroup returns the "wal" subcommand group.
func WALGroup(app *App) *Group {
	return &Group{
		GroupName: "wal",
		Short:     "Inspect or recover the write-ahead log",
		Commands: []*Command{
			walStatusCmd(app),
			walRecoverCmd(app),
		},
	}
}

func walStatusCmd(app *App) *Command {
	return &Command{
		Flags: flag.NewFlagSet("status", flag.ContinueOnError),
		Usage: "status",
		Short: "Summarize write-ahead log entries by status",
		Exec: func(_ context.Context, o *ioutil.IO, _ []string) error {
			stats, err := app.WAL.Stats()
			if err != nil {
				return err
			}

			o.Println("total=" + strconv.Itoa(stats.Total))
			o.Println("pending=" + strconv.Itoa(stats.Pending))
			o.Println("in_progress=" + strconv.Itoa(stats.InProgress))
			o.Println("completed=" + strconv.Itoa(stats.Completed))
			o.Println("failed=" + strconv.Itoa(stats.Failed))
			o.Println("recovered=" + strconv.Itoa(stats.Recovered))

			if stats.InProgress > 0 {
				o.Warn("entries stuck in_progress", "run `auxin wal recover` to attempt automatic recovery")
			}

			return nil
		},
	}
}

func walRecoverCmd(app *App) *Command {
	return &Command{
		Flags: flag.NewFlagSet("recover", flag.ContinueOnError),
		Usage: "recover",
		Short: "Replay incomplete write-ahead log entries",
		Long:  "Attempts to confirm whether each incomplete entry's intent actually completed (e.g. a commit that landed despite a crash before the WAL was marked done), recovering what it can and leaving the rest for a future attempt or manual intervention.",
		Exec: func(ctx context.Context, o *ioutil.IO, _ []string) error {
			recovery := repo.NewRecoveryManager(app.Facade)

			report, err := recovery.CheckAndRecover(ctx)
			if err != nil {
				return err
			}

			o.Println("found="+strconv.Itoa(report.EntriesFound),
				"recovered="+strconv.Itoa(report.Recovered),
				"failed="+strconv.Itoa(report.Failed),
				"skipped="+strconv.Itoa(report.Skipped))

			if report.Failed > 0 {
				o.Warn("some WAL entries could not be recovered", "inspect `auxin wal status` and resolve manually")
			}

			return nil
		},
	}
}
