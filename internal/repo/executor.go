package repo

import (
	"context"
	"fmt"

	"github.com/calvinalkan/auxin/internal/queue"
	"github.com/calvinalkan/auxin/internal/wal"
)

// QueueExecutor drains queue.Entry values produced by the facade's
// offline-deferred operations, resolving queue.PendingLockID against the
// current lock file when a queued release didn't know the real id.
type QueueExecutor struct {
	facade *Facade
}

// NewQueueExecutor builds a QueueExecutor bound to f's backend/lock
// manager, for use with f.Queue.SyncAll.
func NewQueueExecutor(f *Facade) *QueueExecutor {
	return &QueueExecutor{facade: f}
}

// Execute runs one queued operation against the live backend/lock
// manager.
func (e *QueueExecutor) Execute(ctx context.Context, entry queue.Entry) error {
	switch op := entry.Operation.(type) {
	case wal.Commit:
		_, err := e.facade.Backend.Commit(ctx, op.RepoPath, op.Message)
		return err
	case wal.Push:
		return e.facade.Backend.Push(ctx, op.RepoPath, op.Remote, op.Branch)
	case wal.StageFiles:
		return e.facade.Backend.Add(ctx, op.RepoPath, op.Files)
	case wal.LockAcquire:
		_, err := e.facade.Locks.Acquire(ctx, op.RepoPath, op.UserID, op.TimeoutHours)
		return err
	case wal.LockRelease:
		lockID := op.LockID
		if lockID == queue.PendingLockID {
			current, ok, err := e.facade.Locks.CurrentLock(op.RepoPath)
			if err != nil {
				return err
			}
			if !ok {
				// Nothing to release; treat as already-done.
				return nil
			}
			lockID = current.LockID
		}
		return e.facade.Locks.Release(ctx, op.RepoPath, lockID)
	default:
		return fmt.Errorf("repo: no executor for queued operation %q", entry.Operation.Kind())
	}
}

// backendStatusChecker adapts *backendproc.Adapter's richer StatusResult
// to wal.StatusChecker's narrower (staged, modified) shape.
type backendStatusChecker struct {
	facade *Facade
}

func (c backendStatusChecker) Status(ctx context.Context, repoPath string) ([]string, []string, error) {
	result, err := c.facade.Backend.Status(ctx, repoPath)
	if err != nil {
		return nil, nil, err
	}
	return result.Staged, result.Modified, nil
}

// NewRecoveryManager builds a wal.RecoveryManager wired to f's backend
// (for Commit verification) and lock manager (for LockAcquire/Release
// verification), without wal importing either package directly.
func NewRecoveryManager(f *Facade) *wal.RecoveryManager {
	return wal.NewRecoveryManager(f.WAL, backendStatusChecker{facade: f}, f.Locks)
}
