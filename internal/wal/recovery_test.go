package wal

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

type fakeStatusChecker struct {
	staged, modified []string
	err              error
}

func (f fakeStatusChecker) Status(_ context.Context, _ string) ([]string, []string, error) {
	return f.staged, f.modified, f.err
}

type fakeLockChecker struct {
	owner  string
	exists bool
	err    error
}

func (f fakeLockChecker) CurrentLockOwner(_ context.Context, _ string) (string, bool, error) {
	return f.owner, f.exists, f.err
}

func TestRecovery_NoIncompleteEntriesIsNoop(t *testing.T) {
	l := newTestLog(t)
	rm := NewRecoveryManager(l, nil, nil)

	report, err := rm.CheckAndRecover(context.Background())
	require.NoError(t, err)
	require.Equal(t, Report{}, report)
}

func TestRecovery_CommitRecoversWhenNoUncommittedChanges(t *testing.T) {
	l := newTestLog(t)
	id, err := l.LogIntent(Commit{RepoPath: "/repo", Message: "m"}, "alice@host", "host")
	require.NoError(t, err)

	rm := NewRecoveryManager(l, fakeStatusChecker{}, nil)

	report, err := rm.CheckAndRecover(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Recovered)

	entry, _, err := l.Entry(id)
	require.NoError(t, err)
	require.Equal(t, StatusRecovered, entry.Status)
}

func TestRecovery_CommitLeftIncompleteWhenChangesRemain(t *testing.T) {
	l := newTestLog(t)
	id, err := l.LogIntent(Commit{RepoPath: "/repo", Message: "m"}, "alice@host", "host")
	require.NoError(t, err)

	rm := NewRecoveryManager(l, fakeStatusChecker{modified: []string{"a.txt"}}, nil)

	report, err := rm.CheckAndRecover(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped)

	entry, _, err := l.Entry(id)
	require.NoError(t, err)
	require.Equal(t, StatusPending, entry.Status)
	require.Equal(t, 1, entry.RecoveryAttempts)
}

func TestRecovery_LockAcquireRecoversWhenOwnedByEntryUser(t *testing.T) {
	l := newTestLog(t)
	id, err := l.LogIntent(LockAcquire{RepoPath: "/repo", UserID: "alice@host", TimeoutHours: 8}, "alice@host", "host")
	require.NoError(t, err)

	rm := NewRecoveryManager(l, nil, fakeLockChecker{owner: "alice@host", exists: true})

	report, err := rm.CheckAndRecover(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Recovered)

	entry, _, err := l.Entry(id)
	require.NoError(t, err)
	require.Equal(t, StatusRecovered, entry.Status)
}

func TestRecovery_LockAcquireSkippedWhenNotOwned(t *testing.T) {
	l := newTestLog(t)
	_, err := l.LogIntent(LockAcquire{RepoPath: "/repo", UserID: "alice@host", TimeoutHours: 8}, "alice@host", "host")
	require.NoError(t, err)

	rm := NewRecoveryManager(l, nil, fakeLockChecker{owner: "bob@host", exists: true})

	report, err := rm.CheckAndRecover(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped)
}

func TestRecovery_LockReleaseRecoversWhenLockGone(t *testing.T) {
	l := newTestLog(t)
	id, err := l.LogIntent(LockRelease{RepoPath: "/repo", LockID: "l1"}, "alice@host", "host")
	require.NoError(t, err)

	rm := NewRecoveryManager(l, nil, fakeLockChecker{exists: false})

	report, err := rm.CheckAndRecover(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Recovered)

	entry, _, err := l.Entry(id)
	require.NoError(t, err)
	require.Equal(t, StatusRecovered, entry.Status)
}

func TestRecovery_PushAndStageFilesAlwaysLeftIncomplete(t *testing.T) {
	l := newTestLog(t)
	_, err := l.LogIntent(Push{RepoPath: "/repo", Remote: "origin", Branch: "main"}, "alice@host", "host")
	require.NoError(t, err)
	_, err = l.LogIntent(StageFiles{RepoPath: "/repo", Files: []string{"a.txt"}}, "alice@host", "host")
	require.NoError(t, err)

	rm := NewRecoveryManager(l, nil, nil)

	report, err := rm.CheckAndRecover(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, report.Skipped)
}

func TestRecovery_ExceedingMaxAttemptsMarksFailed(t *testing.T) {
	l := newTestLog(t)
	id, err := l.LogIntent(Push{RepoPath: "/repo", Remote: "origin", Branch: "main"}, "alice@host", "host")
	require.NoError(t, err)

	rm := NewRecoveryManager(l, nil, nil)
	rm.MaxAttempts = 2

	for i := 0; i < 2; i++ {
		_, err := rm.CheckAndRecover(context.Background())
		require.NoError(t, err)
	}

	report, err := rm.CheckAndRecover(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Skipped)

	entry, _, err := l.Entry(id)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, entry.Status)
	require.Equal(t, "Max recovery attempts exceeded", entry.FailureReason)
}

func TestRecovery_StatusErrorMarksEntryFailed(t *testing.T) {
	l := newTestLog(t)
	id, err := l.LogIntent(Commit{RepoPath: "/repo", Message: "m"}, "alice@host", "host")
	require.NoError(t, err)

	rm := NewRecoveryManager(l, fakeStatusChecker{err: errBoom}, nil)

	report, err := rm.CheckAndRecover(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)

	entry, _, err := l.Entry(id)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, entry.Status)
}
