// Package queue implements C5, the offline operation queue: a durable,
// priority-ordered backlog of operations deferred while a repo is
// disconnected from its remote, drained by SyncAll once connectivity
// returns.
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/calvinalkan/auxin/internal/fsx"
	"github.com/calvinalkan/auxin/internal/wal"
)

// PendingLockID is the sentinel carried by a queued lock-release entry
// whose real lock id wasn't known at enqueue time (the release was
// requested while offline, before a lock id could be confirmed). The
// executor resolves it at sync time by inspecting the current lock file.
const PendingLockID = "pending"

// LockPriority is the priority assigned to lock operations, kept above any
// ordinary default so they always sync first.
const LockPriority = 100

// DefaultPriority is used for entries that don't specify one.
const DefaultPriority = 0

// Entry is one deferred operation.
type Entry struct {
	ID           string
	Operation    wal.Operation
	Priority     int
	QueuedAt     time.Time
	InsertionSeq uint64
	Attempts     int
	LastError    string
	Completed    bool
}

type entryJSON struct {
	ID           string          `json:"id"`
	Operation    json.RawMessage `json:"operation"`
	Priority     int             `json:"priority"`
	QueuedAt     time.Time       `json:"queued_at"`
	InsertionSeq uint64          `json:"insertion_seq"`
	Attempts     int             `json:"attempts"`
	LastError    string          `json:"last_error,omitempty"`
	Completed    bool            `json:"completed"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	opData, err := wal.MarshalOperation(e.Operation)
	if err != nil {
		return nil, err
	}

	return json.Marshal(entryJSON{
		ID:           e.ID,
		Operation:    opData,
		Priority:     e.Priority,
		QueuedAt:     e.QueuedAt,
		InsertionSeq: e.InsertionSeq,
		Attempts:     e.Attempts,
		LastError:    e.LastError,
		Completed:    e.Completed,
	})
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	op, err := wal.UnmarshalOperation(raw.Operation)
	if err != nil {
		return err
	}

	*e = Entry{
		ID:           raw.ID,
		Operation:    op,
		Priority:     raw.Priority,
		QueuedAt:     raw.QueuedAt,
		InsertionSeq: raw.InsertionSeq,
		Attempts:     raw.Attempts,
		LastError:    raw.LastError,
		Completed:    raw.Completed,
	}

	return nil
}

// DefaultPath returns the default queue location, ~/.auxin/queue.json.
func DefaultPath(home string) string {
	return filepath.Join(home, ".auxin", "queue.json")
}

// Queue persists Entry records to a single JSON file, guarded by an flock
// so concurrent auxin processes don't interleave read-modify-write cycles.
type Queue struct {
	path   string
	fs     fsx.FS
	writer *fsx.AtomicWriter
	locker *fsx.Locker
}

// New creates a Queue backed by fs, persisting to path.
func New(fs fsx.FS, path string) *Queue {
	return &Queue{
		path:   path,
		fs:     fs,
		writer: fsx.NewAtomicWriter(fs),
		locker: fsx.NewLocker(fs),
	}
}

func (q *Queue) lockPath() string {
	return q.path + ".lock"
}

func (q *Queue) withLock(fn func() error) error {
	if err := q.fs.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return fmt.Errorf("queue: create queue dir: %w", err)
	}

	lock, err := q.locker.Lock(q.lockPath())
	if err != nil {
		return fmt.Errorf("queue: acquire lock: %w", err)
	}
	defer lock.Close()

	return fn()
}

func (q *Queue) load() ([]Entry, error) {
	exists, err := q.fs.Exists(q.path)
	if err != nil {
		return nil, fmt.Errorf("queue: stat queue file: %w", err)
	}
	if !exists {
		return nil, nil
	}

	data, err := q.fs.ReadFile(q.path)
	if err != nil {
		return nil, fmt.Errorf("queue: read queue file: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("queue: parse queue file: %w", err)
	}

	return entries, nil
}

func (q *Queue) save(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("queue: encode queue entries: %w", err)
	}

	opts := q.writer.DefaultOptions()
	opts.Perm = 0o644

	return q.writer.Write(q.path, bytes.NewReader(data), opts)
}

// Enqueue appends op with the given priority, stamping QueuedAt and an
// insertion sequence number used to break exact-timestamp ties
// deterministically. Returns the new entry's id.
func (q *Queue) Enqueue(op wal.Operation, priority int) (string, error) {
	var id string

	err := q.withLock(func() error {
		entries, err := q.load()
		if err != nil {
			return err
		}

		id = uuid.NewString()
		entries = append(entries, Entry{
			ID:           id,
			Operation:    op,
			Priority:     priority,
			QueuedAt:     time.Now(),
			InsertionSeq: nextInsertionSeq(entries),
		})

		return q.save(entries)
	})

	return id, err
}

func nextInsertionSeq(entries []Entry) uint64 {
	var max uint64
	for _, e := range entries {
		if e.InsertionSeq > max {
			max = e.InsertionSeq
		}
	}

	return max + 1
}

// Pending returns entries not yet Completed, ordered by (-Priority,
// QueuedAt, InsertionSeq) — highest priority first, oldest first within a
// priority tier, insertion order as the final tiebreak.
func (q *Queue) Pending() ([]Entry, error) {
	entries, err := q.load()
	if err != nil {
		return nil, err
	}

	var pending []Entry
	for _, e := range entries {
		if !e.Completed {
			pending = append(pending, e)
		}
	}

	sortByScheduleOrder(pending)

	return pending, nil
}

func sortByScheduleOrder(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]

		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}

		if !a.QueuedAt.Equal(b.QueuedAt) {
			return a.QueuedAt.Before(b.QueuedAt)
		}

		return a.InsertionSeq < b.InsertionSeq
	})
}

// Executor runs one queued operation, resolving the PendingLockID sentinel
// for lock-release entries against currently-known lock ids as needed.
type Executor interface {
	Execute(ctx context.Context, entry Entry) error
}

// FailedEntry is one entry that failed during a SyncAll pass.
type FailedEntry struct {
	ID  string
	Err string
}

// Report summarizes one SyncAll pass.
type Report struct {
	Succeeded []string
	Failed    []FailedEntry
}

// SyncAll drains Pending entries in schedule order, running each through
// executor. Succeeded entries are removed from the queue; failed entries
// remain queued with Attempts incremented and LastError set — no maximum
// attempt limit is enforced here, that policy belongs to the caller.
func (q *Queue) SyncAll(ctx context.Context, executor Executor) (Report, error) {
	var report Report

	err := q.withLock(func() error {
		entries, err := q.load()
		if err != nil {
			return err
		}

		pending := make([]Entry, 0, len(entries))
		for _, e := range entries {
			if !e.Completed {
				pending = append(pending, e)
			}
		}
		sortByScheduleOrder(pending)

		byID := make(map[string]*Entry, len(entries))
		for i := range entries {
			byID[entries[i].ID] = &entries[i]
		}

		for _, e := range pending {
			execErr := executor.Execute(ctx, e)

			stored := byID[e.ID]
			if execErr == nil {
				stored.Completed = true
				report.Succeeded = append(report.Succeeded, e.ID)
				continue
			}

			stored.Attempts++
			stored.LastError = execErr.Error()
			report.Failed = append(report.Failed, FailedEntry{ID: e.ID, Err: execErr.Error()})
		}

		kept := entries[:0]
		for _, e := range entries {
			if !e.Completed {
				kept = append(kept, e)
			}
		}

		return q.save(kept)
	})

	return report, err
}

// Remove deletes entryID from the queue unconditionally, used to archive a
// completed entry or drop one the caller decided to abandon.
func (q *Queue) Remove(entryID string) error {
	return q.withLock(func() error {
		entries, err := q.load()
		if err != nil {
			return err
		}

		kept := entries[:0]
		for _, e := range entries {
			if e.ID != entryID {
				kept = append(kept, e)
			}
		}

		return q.save(kept)
	})
}
