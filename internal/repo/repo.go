// Package repo implements C8, the draft-branch repository facade: the
// component application code actually talks to. It composes the backend
// adapter (C1), commit-metadata codec (C2), write-ahead log (C4), offline
// queue (C5), lock manager (C6), and upload manager (C7) into init, add,
// commit, status, log, restore, and draft-branch auto-commit operations.
package repo

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/calvinalkan/auxin/internal/backendproc"
	"github.com/calvinalkan/auxin/internal/fsx"
	"github.com/calvinalkan/auxin/internal/lockmgr"
	"github.com/calvinalkan/auxin/internal/metadata"
	"github.com/calvinalkan/auxin/internal/queue"
	"github.com/calvinalkan/auxin/internal/upload"
	"github.com/calvinalkan/auxin/internal/wal"
)

// DraftBranch is the branch auto-commit workflows operate on.
const DraftBranch = "draft"

// initialCommitMessage is the fixed message for a project's first commit.
const initialCommitMessage = "Initial commit"

// minFullRevisionLen/minPrefixLen bound Restore's id-vs-prefix heuristic.
const (
	minFullRevisionLen = 32
	minPrefixLen       = 7
)

// ErrInvalidRevision is returned by Restore when the given string is
// shorter than the minimum accepted prefix length.
var ErrInvalidRevision = errors.New("revision must be a full id (>=32 chars) or a prefix (>=7 chars)")

// MetadataMirror best-effort mirrors commit metadata to an external
// server collaborator. Failures are logged by the caller, never fatal to
// Commit.
type MetadataMirror interface {
	MirrorCommit(ctx context.Context, repoPath, commitID string, md metadata.Metadata) error
}

// Facade composes C1-C7 into the operations a caller actually invokes.
type Facade struct {
	Backend *backendproc.Adapter
	WAL     *wal.Log
	Queue   *queue.Queue
	Locks   *lockmgr.Manager
	Uploads *upload.Manager
	Config  Config

	// Mirror, if set, is invoked best-effort after each Commit that
	// carries metadata. A failure is passed to OnMirrorError rather than
	// returned from Commit.
	Mirror        MetadataMirror
	OnMirrorError func(err error)

	// Connectivity, if set, gates AcquireLock/ReleaseLock: an Offline
	// result defers the operation to the offline queue instead of
	// attempting it directly. Nil always attempts directly.
	Connectivity ConnectivityProbe

	// currentMachine overrides identity.Machine() for tests.
	currentMachine func() string

	fs fsx.FS
}

// Config carries the facade's tunables; see internal/config for where
// these are sourced from on disk/env/flags.
type Config struct {
	DefaultRemote string
}

// New builds a Facade over an already-constructed backend adapter and
// fs. WAL/Queue/Locks/Uploads must be supplied by the caller (typically
// wired in cmd/auxin from internal/config-resolved paths).
func New(backend *backendproc.Adapter, fs fsx.FS, walLog *wal.Log, q *queue.Queue, locks *lockmgr.Manager, uploads *upload.Manager, cfg Config) *Facade {
	return &Facade{
		Backend: backend,
		WAL:     walLog,
		Queue:   q,
		Locks:   locks,
		Uploads: uploads,
		Config:  cfg,
		fs:      fs,
	}
}

// oxenignoreContents is the .oxenignore seeded by Init. Creative-app
// projects routinely contain OS cruft and editor lockfiles that should
// never be versioned.
const oxenignoreContents = `.DS_Store
Thumbs.db
*.tmp
*~.lock
`

// Init brings an existing project directory under version control:
// backend init, write .oxenignore, stage and commit everything, then
// create and check out the draft branch.
func (f *Facade) Init(ctx context.Context, repoPath string) error {
	exists, err := f.fs.Exists(repoPath)
	if err != nil {
		return fmt.Errorf("repo: stat project path: %w", err)
	}
	if !exists {
		return fmt.Errorf("repo: project path does not exist: %s", repoPath)
	}

	if err := f.Backend.Init(ctx, repoPath); err != nil {
		return err
	}

	oxenignorePath := filepath.Join(repoPath, ".oxenignore")
	if err := f.fs.WriteFileAtomic(oxenignorePath, []byte(oxenignoreContents), 0o644); err != nil {
		return fmt.Errorf("repo: write .oxenignore: %w", err)
	}

	if err := f.Backend.Add(ctx, repoPath, []string{".oxenignore"}); err != nil {
		return err
	}
	if err := f.Backend.AddAll(ctx, repoPath); err != nil {
		return err
	}
	if _, err := f.Backend.Commit(ctx, repoPath, initialCommitMessage); err != nil {
		return err
	}

	return f.Backend.CreateBranch(ctx, repoPath, DraftBranch)
}

// Add stages paths in repoPath.
func (f *Facade) Add(ctx context.Context, repoPath string, paths []string) error {
	if len(paths) == 0 {
		return f.Backend.AddAll(ctx, repoPath)
	}
	return f.Backend.Add(ctx, repoPath, paths)
}

// Commit composes md into the commit message (when md carries fields
// beyond the bare message) and commits, then best-effort mirrors the
// metadata to an external collaborator if one is configured.
func (f *Facade) Commit(ctx context.Context, repoPath string, md metadata.Metadata) (backendproc.CommitRecord, error) {
	record, err := f.Backend.Commit(ctx, repoPath, md.Encode())
	if err != nil {
		return backendproc.CommitRecord{}, err
	}

	if f.Mirror != nil {
		if err := f.Mirror.MirrorCommit(ctx, repoPath, record.ID, md); err != nil && f.OnMirrorError != nil {
			f.OnMirrorError(err)
		}
	}

	return record, nil
}

// Status returns the working tree's staged/modified/untracked buckets.
func (f *Facade) Status(ctx context.Context, repoPath string) (backendproc.StatusResult, error) {
	return f.Backend.Status(ctx, repoPath)
}

// Log returns the most recent commits, newest first.
func (f *Facade) Log(ctx context.Context, repoPath string, limit int) ([]backendproc.CommitRecord, error) {
	return f.Backend.Log(ctx, repoPath, limit)
}

// Restore checks out the commit identified by revision, which may be a
// full id (>=32 chars) or a prefix (>=7 chars) matched against the full
// log history.
func (f *Facade) Restore(ctx context.Context, repoPath, revision string) error {
	if len(revision) >= minFullRevisionLen {
		return f.Backend.Checkout(ctx, repoPath, revision)
	}

	if len(revision) < minPrefixLen {
		return ErrInvalidRevision
	}

	commits, err := f.Backend.Log(ctx, repoPath, 0)
	if err != nil {
		return err
	}

	var matches []backendproc.CommitRecord
	for _, c := range commits {
		if strings.HasPrefix(c.ID, revision) {
			matches = append(matches, c)
		}
	}

	switch len(matches) {
	case 0:
		return fmt.Errorf("no commit matching prefix %q", revision)
	case 1:
		return f.Backend.Checkout(ctx, repoPath, matches[0].ID)
	default:
		return fmt.Errorf("ambiguous prefix %q: matches %d commits", revision, len(matches))
	}
}

// AutoCommit is the draft-branch workflow: ensure draft is checked out,
// stage every change, and commit with md's encoded message. Intended to
// be driven by a background file-watcher collaborator, not a user
// keystroke.
func (f *Facade) AutoCommit(ctx context.Context, repoPath string, md metadata.Metadata) (backendproc.CommitRecord, error) {
	current, err := f.Backend.CurrentBranch(ctx, repoPath)
	if err != nil {
		return backendproc.CommitRecord{}, err
	}

	if current != DraftBranch {
		if err := f.Backend.Checkout(ctx, repoPath, DraftBranch); err != nil {
			return backendproc.CommitRecord{}, err
		}
	}

	if err := f.Backend.AddAll(ctx, repoPath); err != nil {
		return backendproc.CommitRecord{}, err
	}

	return f.Commit(ctx, repoPath, md)
}
