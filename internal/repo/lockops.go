package repo

import (
	"context"

	"github.com/calvinalkan/auxin/internal/identity"
	"github.com/calvinalkan/auxin/internal/lockmgr"
	"github.com/calvinalkan/auxin/internal/queue"
	"github.com/calvinalkan/auxin/internal/wal"
)

func (f *Facade) machine() string {
	if f.currentMachine != nil {
		return f.currentMachine()
	}
	return identity.Machine()
}

// AcquireLockResult reports either a live Lock, or that the request was
// deferred to the offline queue.
type AcquireLockResult struct {
	Lock         lockmgr.Lock
	Queued       bool
	QueueEntryID string
}

// AcquireLock wraps lockmgr.Manager.Acquire with WAL crash-safety and
// offline deferral: when connectivity is Offline, the request is
// persisted to the queue at LockPriority and returns Queued=true instead
// of attempting the backend round-trip.
func (f *Facade) AcquireLock(ctx context.Context, repoPath, userID string, timeoutHours int) (AcquireLockResult, error) {
	op := wal.LockAcquire{RepoPath: repoPath, UserID: userID, TimeoutHours: timeoutHours}

	if f.isOffline(ctx) {
		id, err := f.Queue.Enqueue(op, queue.LockPriority)
		if err != nil {
			return AcquireLockResult{}, err
		}
		return AcquireLockResult{Queued: true, QueueEntryID: id}, nil
	}

	walID, err := f.WAL.LogIntent(op, userID, f.machine())
	if err != nil {
		return AcquireLockResult{}, err
	}
	if err := f.WAL.MarkInProgress(walID); err != nil {
		return AcquireLockResult{}, err
	}

	lock, err := f.Locks.Acquire(ctx, repoPath, userID, timeoutHours)
	if err != nil {
		_ = f.WAL.MarkFailed(walID, err.Error())
		return AcquireLockResult{}, err
	}

	if err := f.WAL.MarkCompleted(walID); err != nil {
		return AcquireLockResult{}, err
	}

	return AcquireLockResult{Lock: lock}, nil
}

// ReleaseLockResult mirrors AcquireLockResult for Release.
type ReleaseLockResult struct {
	Queued       bool
	QueueEntryID string
}

// ReleaseLock wraps lockmgr.Manager.Release the same way AcquireLock
// wraps Acquire. When offline and lockID is unknown to the caller, pass
// queue.PendingLockID; the executor resolves it against the current lock
// file at sync time.
func (f *Facade) ReleaseLock(ctx context.Context, repoPath, lockID string) (ReleaseLockResult, error) {
	op := wal.LockRelease{RepoPath: repoPath, LockID: lockID}

	if f.isOffline(ctx) {
		id, err := f.Queue.Enqueue(op, queue.LockPriority)
		if err != nil {
			return ReleaseLockResult{}, err
		}
		return ReleaseLockResult{Queued: true, QueueEntryID: id}, nil
	}

	walID, err := f.WAL.LogIntent(op, f.userID(), f.machine())
	if err != nil {
		return ReleaseLockResult{}, err
	}
	if err := f.WAL.MarkInProgress(walID); err != nil {
		return ReleaseLockResult{}, err
	}

	if err := f.Locks.Release(ctx, repoPath, lockID); err != nil {
		_ = f.WAL.MarkFailed(walID, err.Error())
		return ReleaseLockResult{}, err
	}

	if err := f.WAL.MarkCompleted(walID); err != nil {
		return ReleaseLockResult{}, err
	}

	return ReleaseLockResult{}, nil
}

func (f *Facade) userID() string {
	return identity.User()
}
