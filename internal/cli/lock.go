package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/auxin/internal/identity"
	"github.com/calvinalkan/auxin/internal/ioutil"
)

var errLockIDRequired = errors.New("lock id is required")

// LockGroup returns the "lock" subcommand group.
func LockGroup(app *App) *Group {
	return &Group{
		GroupName: "lock",
		Short:     "Acquire, release, renew, or inspect the project lock",
		Commands: []*Command{
			lockAcquireCmd(app),
			lockReleaseCmd(app),
			lockRenewCmd(app),
			lockStatusCmd(app),
			lockBreakCmd(app),
		},
	}
}

func lockAcquireCmd(app *App) *Command {
	flags := flag.NewFlagSet("acquire", flag.ContinueOnError)
	timeout := flags.Int("timeout", app.Config.LockTimeoutHours, "Lock timeout in hours")

	return &Command{
		Flags: flags,
		Usage: "acquire [flags]",
		Short: "Acquire the project lock",
		Exec: func(ctx context.Context, o *ioutil.IO, _ []string) error {
			result, err := app.Facade.AcquireLock(ctx, app.Config.RepoDir, identity.User(), *timeout)
			if err != nil {
				return err
			}

			if result.Queued {
				o.Println("Offline: queued lock acquisition as", result.QueueEntryID)
				return nil
			}

			o.Println("Lock acquired:", result.Lock.LockID, "(expires in", *timeout, "hours)")

			return nil
		},
	}
}

func lockReleaseCmd(app *App) *Command {
	return &Command{
		Flags: flag.NewFlagSet("release", flag.ContinueOnError),
		Usage: "release <lock-id>",
		Short: "Release the project lock",
		Exec: func(ctx context.Context, o *ioutil.IO, args []string) error {
			if len(args) == 0 {
				return errLockIDRequired
			}

			result, err := app.Facade.ReleaseLock(ctx, app.Config.RepoDir, args[0])
			if err != nil {
				return err
			}

			if result.Queued {
				o.Println("Offline: queued lock release as", result.QueueEntryID)
				return nil
			}

			o.Println("Lock released")

			return nil
		},
	}
}

func lockRenewCmd(app *App) *Command {
	flags := flag.NewFlagSet("renew", flag.ContinueOnError)
	hours := flags.Int("hours", app.Config.LockTimeoutHours, "Additional hours to extend the lock")

	return &Command{
		Flags: flags,
		Usage: "renew <lock-id> [flags]",
		Short: "Extend the project lock's expiry",
		Exec: func(ctx context.Context, o *ioutil.IO, args []string) error {
			if len(args) == 0 {
				return errLockIDRequired
			}

			lock, err := app.Locks.Renew(ctx, app.Config.RepoDir, args[0], *hours)
			if err != nil {
				return err
			}

			o.Println("Lock renewed, now expires", lock.ExpiresAt.Format("2006-01-02 15:04:05"))

			return nil
		},
	}
}

func lockStatusCmd(app *App) *Command {
	return &Command{
		Flags: flag.NewFlagSet("status", flag.ContinueOnError),
		Usage: "status",
		Short: "Show the current project lock, if any",
		Exec: func(_ context.Context, o *ioutil.IO, _ []string) error {
			lock, ok, err := app.Locks.CurrentLock(app.Config.RepoDir)
			if err != nil {
				return err
			}

			if !ok {
				o.Println("No lock held")
				return nil
			}

			now := time.Now()

			o.Println(fmt.Sprintf("Locked by %s@%s, expires in %d minutes",
				lock.LockedBy, lock.MachineID, lock.MinutesUntilExpiry(now)))

			if lock.IsExpiringSoon(now, 30) {
				o.Warn("lock expires within 30 minutes", "run `auxin lock renew` if still working")
			}

			return nil
		},
	}
}

func lockBreakCmd(app *App) *Command {
	return &Command{
		Flags: flag.NewFlagSet("break", flag.ContinueOnError),
		Usage: "break",
		Short: "Forcibly remove the current lock regardless of owner",
		Long:  "Forcibly removes the project lock even if held by another user or machine. Use only when the original holder can no longer release it themselves.",
		Exec: func(ctx context.Context, o *ioutil.IO, _ []string) error {
			if err := app.Locks.ForceBreak(ctx, app.Config.RepoDir); err != nil {
				return err
			}

			o.Println("Lock forcibly removed")

			return nil
		},
	}
}
