// Package wal implements C4, the write-ahead log: crash-recoverable intent
// tracking for operations that straddle a local state change and a remote
// one (commit, push, lock acquire/release, file staging). Every such
// operation is logged as Pending before it executes, flipped to InProgress
// once underway, and driven to a terminal state (Completed/Failed/Recovered)
// afterward — so a crash between "decided to do X" and "X finished" leaves a
// durable record a later run can reconcile.
package wal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/calvinalkan/auxin/internal/fsx"
)

// Log persists Entry records to a single JSON file, guarded by an flock so
// concurrent auxin processes on the same host don't interleave
// read-modify-write cycles.
type Log struct {
	path   string
	fs     fsx.FS
	writer *fsx.AtomicWriter
	locker *fsx.Locker
}

// DefaultPath returns the default WAL location, ~/.auxin/wal.json, falling
// back to "." when HOME is unset.
func DefaultPath(home string) string {
	return filepath.Join(home, ".auxin", "wal.json")
}

// New creates a Log backed by fs, persisting to path.
func New(fs fsx.FS, path string) *Log {
	return &Log{
		path:   path,
		fs:     fs,
		writer: fsx.NewAtomicWriter(fs),
		locker: fsx.NewLocker(fs),
	}
}

func (l *Log) lockPath() string {
	return l.path + ".lock"
}

// withLock runs fn while holding an exclusive lock on the WAL file,
// guaranteeing load-modify-save is atomic with respect to other processes.
func (l *Log) withLock(fn func() error) error {
	if err := l.fs.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("wal: create wal dir: %w", err)
	}

	lock, err := l.locker.Lock(l.lockPath())
	if err != nil {
		return fmt.Errorf("wal: acquire lock: %w", err)
	}
	defer lock.Close()

	return fn()
}

func (l *Log) load() ([]Entry, error) {
	exists, err := l.fs.Exists(l.path)
	if err != nil {
		return nil, fmt.Errorf("wal: stat wal file: %w", err)
	}
	if !exists {
		return nil, nil
	}

	data, err := l.fs.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("wal: read wal file: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("wal: parse wal file: %w", err)
	}

	return entries, nil
}

func (l *Log) save(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("wal: encode wal entries: %w", err)
	}

	opts := l.writer.DefaultOptions()
	opts.Perm = 0o644

	return l.writer.Write(l.path, bytes.NewReader(data), opts)
}

// LogIntent records op as Pending and returns its entry id. Call this
// before executing the operation.
func (l *Log) LogIntent(op Operation, user, machineID string) (string, error) {
	var id string

	err := l.withLock(func() error {
		entries, err := l.load()
		if err != nil {
			return err
		}

		entry := NewEntry(op, user, machineID, time.Now())
		id = entry.ID

		entries = append(entries, entry)
		return l.save(entries)
	})

	return id, err
}

// MarkInProgress transitions entryID to InProgress.
func (l *Log) MarkInProgress(entryID string) error {
	return l.update(entryID, func(e *Entry) {
		e.Status = StatusInProgress
	})
}

// MarkCompleted transitions entryID to Completed.
func (l *Log) MarkCompleted(entryID string) error {
	return l.update(entryID, func(e *Entry) {
		e.Status = StatusCompleted
	})
}

// MarkFailed transitions entryID to Failed, recording reason.
func (l *Log) MarkFailed(entryID, reason string) error {
	return l.update(entryID, func(e *Entry) {
		e.Status = StatusFailed
		e.FailureReason = reason
	})
}

// MarkRecovered transitions entryID to Recovered and increments its
// recovery-attempt counter.
func (l *Log) MarkRecovered(entryID string) error {
	return l.update(entryID, func(e *Entry) {
		e.Status = StatusRecovered
		e.RecoveryAttempts++
	})
}

// IncrementRecoveryAttempts bumps entryID's recovery-attempt counter
// without changing its status, returning the new count. Returns 0 with no
// error if entryID is not found (matching the original's lenient behavior).
func (l *Log) IncrementRecoveryAttempts(entryID string) (int, error) {
	var attempts int

	err := l.withLock(func() error {
		entries, err := l.load()
		if err != nil {
			return err
		}

		for i := range entries {
			if entries[i].ID == entryID {
				entries[i].RecoveryAttempts++
				entries[i].UpdatedAt = time.Now()
				attempts = entries[i].RecoveryAttempts
				break
			}
		}

		return l.save(entries)
	})

	return attempts, err
}

func (l *Log) update(entryID string, mutate func(*Entry)) error {
	return l.withLock(func() error {
		entries, err := l.load()
		if err != nil {
			return err
		}

		for i := range entries {
			if entries[i].ID == entryID {
				mutate(&entries[i])
				entries[i].UpdatedAt = time.Now()
				break
			}
		}

		return l.save(entries)
	})
}

// Entry returns the entry with the given id, if present.
func (l *Log) Entry(entryID string) (Entry, bool, error) {
	entries, err := l.load()
	if err != nil {
		return Entry{}, false, err
	}

	for _, e := range entries {
		if e.ID == entryID {
			return e, true, nil
		}
	}

	return Entry{}, false, nil
}

// Incomplete returns all Pending/InProgress entries.
func (l *Log) Incomplete() ([]Entry, error) {
	entries, err := l.load()
	if err != nil {
		return nil, err
	}

	var out []Entry
	for _, e := range entries {
		if e.IsIncomplete() {
			out = append(out, e)
		}
	}

	return out, nil
}

// NeedsRecovery reports whether any entry is Pending or InProgress.
func (l *Log) NeedsRecovery() (bool, error) {
	incomplete, err := l.Incomplete()
	if err != nil {
		return false, err
	}

	return len(incomplete) > 0, nil
}

// Cleanup removes terminal entries older than 24h, keeping every
// incomplete entry regardless of age. Returns the number removed.
func (l *Log) Cleanup() (int, error) {
	var removed int

	err := l.withLock(func() error {
		entries, err := l.load()
		if err != nil {
			return err
		}

		now := time.Now()
		kept := entries[:0]
		for _, e := range entries {
			if e.IsIncomplete() || !e.IsStale(now) {
				kept = append(kept, e)
			}
		}

		removed = len(entries) - len(kept)
		return l.save(kept)
	})

	return removed, err
}

// Clear deletes the WAL file entirely. Use with caution — this discards
// all recovery history, not just terminal entries.
func (l *Log) Clear() error {
	exists, err := l.fs.Exists(l.path)
	if err != nil {
		return fmt.Errorf("wal: stat wal file: %w", err)
	}
	if !exists {
		return nil
	}

	if err := l.fs.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("wal: remove wal file: %w", err)
	}

	return nil
}

// Stats summarizes the log's entries by status.
func (l *Log) Stats() (Stats, error) {
	entries, err := l.load()
	if err != nil {
		return Stats{}, err
	}

	var s Stats
	s.Total = len(entries)
	for _, e := range entries {
		switch e.Status {
		case StatusPending:
			s.Pending++
		case StatusInProgress:
			s.InProgress++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusRecovered:
			s.Recovered++
		}
	}

	return s, nil
}
