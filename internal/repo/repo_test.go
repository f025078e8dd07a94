package repo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/auxin/internal/backendproc"
	"github.com/calvinalkan/auxin/internal/fsx"
	"github.com/calvinalkan/auxin/internal/lockmgr"
	"github.com/calvinalkan/auxin/internal/metadata"
	"github.com/calvinalkan/auxin/internal/queue"
	"github.com/calvinalkan/auxin/internal/upload"
	"github.com/calvinalkan/auxin/internal/wal"
)

const fixedLogOutput = `commit abcdef12000000000000000000000001
Author: alice
Date: today

    first

commit abcdef13000000000000000000000002
Author: alice
Date: today

    second

commit 1234567000000000000000000000003
Author: alice
Date: today

    third
`

// writeStubBackend writes a shell "oxen" stub sufficient to exercise
// Init/Add/Commit/Status/Log/Checkout/CreateBranch/CurrentBranch, tracking
// current branch and checkout targets via dotfiles in the repo dir.
func writeStubBackend(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "oxen")

	script := "#!/bin/sh\ncase \"$1\" in\n" +
		"  --version) echo \"oxen 0.19.5\" ;;\n" +
		"  init) : ;;\n" +
		"  add) : ;;\n" +
		"  commit) echo \"Commit abc1234 created\" ;;\n" +
		"  log) cat <<'EOF'\n" + fixedLogOutput + "EOF\n" +
		"    ;;\n" +
		"  status) echo \"On branch main\" ;;\n" +
		"  checkout)\n" +
		"    if [ \"$2\" = \"-b\" ]; then\n" +
		"      echo \"$3\" > .oxen_test_branch\n" +
		"    else\n" +
		"      echo \"$2\" > .oxen_test_branch\n" +
		"      echo \"$2\" >> .oxen_test_checkouts\n" +
		"    fi\n" +
		"    ;;\n" +
		"  branch)\n" +
		"    if [ \"$2\" = \"--show-current\" ]; then\n" +
		"      cat .oxen_test_branch 2>/dev/null || echo main\n" +
		"    fi\n" +
		"    ;;\n" +
		"  push|pull) : ;;\n" +
		"esac\nexit 0\n"

	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	return path
}

var fixedNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestFacade(t *testing.T) (*Facade, string) {
	t.Helper()

	repoDir := t.TempDir()
	bin := writeStubBackend(t)
	real := fsx.NewReal()
	adapter := backendproc.New(bin, real)

	stateDir := t.TempDir()
	walLog := wal.New(real, filepath.Join(stateDir, "wal.json"))
	q := queue.New(real, filepath.Join(stateDir, "queue.json"))
	locks := lockmgr.New(adapter, real)
	locks.Now = func() time.Time { return fixedNow }
	uploads := upload.New(adapter, real, filepath.Join(stateDir, "uploads"))

	f := New(adapter, real, walLog, q, locks, uploads, Config{DefaultRemote: "origin"})

	return f, repoDir
}

func TestFacade_InitStagesAndCommitsThenCreatesDraftBranch(t *testing.T) {
	f, repoDir := newTestFacade(t)
	ctx := context.Background()

	require.NoError(t, f.Init(ctx, repoDir))

	data, err := os.ReadFile(filepath.Join(repoDir, ".oxenignore"))
	require.NoError(t, err)
	require.Contains(t, string(data), ".DS_Store")

	current, err := f.Backend.CurrentBranch(ctx, repoDir)
	require.NoError(t, err)
	require.Equal(t, DraftBranch, current)
}

func TestFacade_InitFailsWhenProjectMissing(t *testing.T) {
	f, repoDir := newTestFacade(t)
	err := f.Init(context.Background(), filepath.Join(repoDir, "does-not-exist"))
	require.Error(t, err)
}

func TestFacade_CommitEncodesMetadata(t *testing.T) {
	f, repoDir := newTestFacade(t)
	ctx := context.Background()

	md := metadata.New("Final mix").WithBPM(128.0)
	record, err := f.Commit(ctx, repoDir, md)
	require.NoError(t, err)
	require.NotEmpty(t, record.ID)
	require.Contains(t, record.Message, "BPM: 128")
}

func TestFacade_RestoreFullID(t *testing.T) {
	f, repoDir := newTestFacade(t)
	ctx := context.Background()

	fullID := "abcdef12000000000000000000000001extra"
	require.GreaterOrEqual(t, len(fullID), minFullRevisionLen)
	require.NoError(t, f.Restore(ctx, repoDir, fullID))

	checkouts, err := os.ReadFile(filepath.Join(repoDir, ".oxen_test_checkouts"))
	require.NoError(t, err)
	require.Contains(t, string(checkouts), fullID)
}

func TestFacade_RestoreUniquePrefix(t *testing.T) {
	f, repoDir := newTestFacade(t)
	ctx := context.Background()

	require.NoError(t, f.Restore(ctx, repoDir, "1234567"))

	checkouts, err := os.ReadFile(filepath.Join(repoDir, ".oxen_test_checkouts"))
	require.NoError(t, err)
	require.Contains(t, string(checkouts), "1234567000000000000000000000003")
}

func TestFacade_RestoreAmbiguousPrefix(t *testing.T) {
	f, repoDir := newTestFacade(t)
	ctx := context.Background()

	err := f.Restore(ctx, repoDir, "abcdef1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "ambiguous")
	require.Contains(t, err.Error(), "matches 2 commits")
}

func TestFacade_RestoreNoMatch(t *testing.T) {
	f, repoDir := newTestFacade(t)
	ctx := context.Background()

	err := f.Restore(ctx, repoDir, "zzzzzzz")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no commit matching prefix")
}

func TestFacade_RestoreRejectsTooShortRevision(t *testing.T) {
	f, repoDir := newTestFacade(t)
	err := f.Restore(context.Background(), repoDir, "abc12")
	require.ErrorIs(t, err, ErrInvalidRevision)
}

func TestFacade_AutoCommitSwitchesToDraftAndCommits(t *testing.T) {
	f, repoDir := newTestFacade(t)
	ctx := context.Background()

	record, err := f.AutoCommit(ctx, repoDir, metadata.New("autosave"))
	require.NoError(t, err)
	require.NotEmpty(t, record.ID)

	current, err := f.Backend.CurrentBranch(ctx, repoDir)
	require.NoError(t, err)
	require.Equal(t, DraftBranch, current)
}

type alwaysOffline struct{}

func (alwaysOffline) Check(ctx context.Context) Connectivity { return ConnectivityOffline }

func TestFacade_AcquireLockOfflineDefersToQueue(t *testing.T) {
	f, repoDir := newTestFacade(t)
	f.Connectivity = alwaysOffline{}

	result, err := f.AcquireLock(context.Background(), repoDir, "alice@host", 4)
	require.NoError(t, err)
	require.True(t, result.Queued)
	require.NotEmpty(t, result.QueueEntryID)

	_, ok, err := f.Locks.CurrentLock(repoDir)
	require.NoError(t, err)
	require.False(t, ok)

	pending, err := f.Queue.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, queue.LockPriority, pending[0].Priority)
}

func TestQueueExecutor_ResolvesPendingLockIDAgainstCurrentLock(t *testing.T) {
	f, repoDir := newTestFacade(t)
	ctx := context.Background()

	_, err := f.Locks.Acquire(ctx, repoDir, "alice@host", 4)
	require.NoError(t, err)

	_, err = f.Queue.Enqueue(wal.LockRelease{RepoPath: repoDir, LockID: queue.PendingLockID}, queue.LockPriority)
	require.NoError(t, err)

	executor := NewQueueExecutor(f)
	report, err := f.Queue.SyncAll(ctx, executor)
	require.NoError(t, err)
	require.Len(t, report.Succeeded, 1)
	require.Empty(t, report.Failed)

	_, ok, err := f.Locks.CurrentLock(repoDir)
	require.NoError(t, err)
	require.False(t, ok)
}
