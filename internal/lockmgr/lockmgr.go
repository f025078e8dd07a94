// Package lockmgr implements C6, the distributed pessimistic lock manager:
// one live lock per project, brokered through a dedicated "locks" branch in
// the backend repository rather than a central lock server. Acquiring a
// lock means racing another client to push a commit to that branch and
// verifying afterward that the push wasn't immediately overwritten.
package lockmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calvinalkan/auxin/internal/backendproc"
	"github.com/calvinalkan/auxin/internal/fsx"
	"github.com/calvinalkan/auxin/internal/identity"
	"github.com/calvinalkan/auxin/internal/retry"
)

// LocksBranch is the dedicated backend branch locks live on.
const LocksBranch = "locks"

// LocksDir is the directory within the backend repo (on LocksBranch) that
// holds one JSON file per project.
const LocksDir = ".oxen/locks"

// StaleThreshold is how long without a heartbeat before a lock is
// considered stale, independent of its expiry.
const StaleThreshold = time.Hour

// ErrLocked is returned by Acquire when the project is already locked by
// someone else and that lock is neither expired nor stale.
var ErrLocked = errors.New("project is locked")

// ErrNoLock is returned by Release/Renew when no lock exists to operate on.
var ErrNoLock = errors.New("no lock exists for this project")

// ErrLockMismatch is returned by Release/Renew when the caller's lock id
// doesn't match the currently held lock.
var ErrLockMismatch = errors.New("lock id mismatch")

// ErrNotOwner is returned by Release/Renew when the current identity
// doesn't own the existing lock.
var ErrNotOwner = errors.New("lock owned by a different user")

// ErrRaceDetected is returned by Acquire when a concurrent acquirer won
// the race after this process's push (or the lock vanished outright).
var ErrRaceDetected = errors.New("lock race condition detected")

// Lock is a distributed lock on one project.
type Lock struct {
	LockID        string    `json:"lock_id"`
	ProjectPath   string    `json:"project_path"`
	LockedBy      string    `json:"locked_by"`
	MachineID     string    `json:"machine_id"`
	AcquiredAt    time.Time `json:"acquired_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

func newLock(projectPath, lockedBy, machineID string, timeoutHours int, now time.Time) Lock {
	return Lock{
		LockID:        uuid.NewString(),
		ProjectPath:   projectPath,
		LockedBy:      lockedBy,
		MachineID:     machineID,
		AcquiredAt:    now,
		ExpiresAt:     now.Add(time.Duration(timeoutHours) * time.Hour),
		LastHeartbeat: now,
	}
}

// IsExpired reports whether the lock has passed its expiry time.
func (l Lock) IsExpired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}

// IsStale reports whether the lock hasn't seen a heartbeat for over an
// hour, independent of its nominal expiry.
func (l Lock) IsStale(now time.Time) bool {
	return l.LastHeartbeat.Before(now.Add(-StaleThreshold))
}

// IsOwnedBy reports whether userID/machineID matches this lock's holder.
func (l Lock) IsOwnedBy(userID, machineID string) bool {
	return l.LockedBy == userID && l.MachineID == machineID
}

// MinutesUntilExpiry returns the minutes remaining before expiry, negative
// if already expired.
func (l Lock) MinutesUntilExpiry(now time.Time) int64 {
	return int64(l.ExpiresAt.Sub(now).Minutes())
}

// IsExpiringSoon reports whether fewer than thresholdMinutes remain.
func (l Lock) IsExpiringSoon(now time.Time, thresholdMinutes int64) bool {
	return l.MinutesUntilExpiry(now) < thresholdMinutes
}

func (l *Lock) renew(additionalHours int, now time.Time) {
	l.LastHeartbeat = now
	l.ExpiresAt = now.Add(time.Duration(additionalHours) * time.Hour)
}

// Manager acquires, renews, releases, and force-breaks locks against a
// backend repository's locks branch.
type Manager struct {
	Backend *backendproc.Adapter
	Fetch   *retry.Policy
	Push    *retry.Policy

	fs fsx.FS

	// Now is the clock used throughout; defaults to time.Now when nil.
	Now func() time.Time

	// currentUser/currentMachine override identity.User()/identity.Machine()
	// for tests; nil means use the real environment.
	currentUser    func() string
	currentMachine func() string
}

// New builds a Manager whose fetch and push retry policies are the
// original's (3, 1s, 10s) and (5, 1s, 15s) respectively.
func New(backend *backendproc.Adapter, fs fsx.FS) *Manager {
	return &Manager{
		Backend: backend,
		Fetch:   retry.New(3, time.Second, 10*time.Second),
		Push:    retry.New(5, time.Second, 15*time.Second),
		fs:      fs,
	}
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

func (m *Manager) user() string {
	if m.currentUser != nil {
		return m.currentUser()
	}
	return identity.User()
}

func (m *Manager) machine() string {
	if m.currentMachine != nil {
		return m.currentMachine()
	}
	return identity.Machine()
}

// sanitizeProjectName maps any character outside [A-Za-z0-9_-] to '_'.
func sanitizeProjectName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func (m *Manager) lockFilePath(repoPath string) string {
	projectName := sanitizeProjectName(path.Base(repoPath))
	return path.Join(repoPath, LocksDir, projectName+".json")
}

// CurrentLock returns the lock presently recorded for repoPath, if any.
// This reads whatever is checked out locally; callers that need the
// authoritative remote state should Fetch first.
func (m *Manager) CurrentLock(repoPath string) (Lock, bool, error) {
	lockFile := m.lockFilePath(repoPath)

	exists, err := m.fs.Exists(lockFile)
	if err != nil {
		return Lock{}, false, fmt.Errorf("lockmgr: stat lock file: %w", err)
	}
	if !exists {
		return Lock{}, false, nil
	}

	data, err := m.fs.ReadFile(lockFile)
	if err != nil {
		return Lock{}, false, fmt.Errorf("lockmgr: read lock file: %w", err)
	}

	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return Lock{}, false, fmt.Errorf("lockmgr: parse lock file: %w", err)
	}

	return lock, true, nil
}

// CurrentLockOwner satisfies wal.LockChecker: it fetches the locks branch
// first so recovery checks see the authoritative remote state.
func (m *Manager) CurrentLockOwner(ctx context.Context, repoPath string) (string, bool, error) {
	if err := m.fetchLocksBranch(ctx, repoPath); err != nil {
		return "", false, err
	}

	lock, ok, err := m.CurrentLock(repoPath)
	if err != nil || !ok {
		return "", ok, err
	}

	return lock.LockedBy, true, nil
}

// Acquire runs the 9-step acquisition protocol: ensure the locks branch
// exists, fetch it, check for an existing live lock, write+commit+
// force-push a new lock, then sleep 2s and re-verify ownership to catch a
// concurrent acquirer that won the race.
func (m *Manager) Acquire(ctx context.Context, repoPath, userID string, timeoutHours int) (Lock, error) {
	if err := m.ensureLocksBranch(ctx, repoPath); err != nil {
		return Lock{}, err
	}

	if err := m.fetchLocksBranch(ctx, repoPath); err != nil {
		return Lock{}, err
	}

	now := m.now()
	if existing, ok, err := m.CurrentLock(repoPath); err != nil {
		return Lock{}, err
	} else if ok && !existing.IsExpired(now) && !existing.IsStale(now) {
		return Lock{}, fmt.Errorf("%w: project locked by %s until %s", ErrLocked, existing.LockedBy, existing.ExpiresAt.Format(time.RFC3339))
	}

	lock := newLock(repoPath, userID, m.machine(), timeoutHours, now)

	if err := m.writeLockFile(repoPath, lock); err != nil {
		return Lock{}, err
	}

	if err := m.commitLock(ctx, repoPath, lock, "Acquire lock"); err != nil {
		return Lock{}, err
	}

	if err := m.pushLocksBranch(ctx, repoPath, true); err != nil {
		return Lock{}, err
	}

	m.settle()

	if err := m.verifyOwnership(ctx, repoPath, lock); err != nil {
		return Lock{}, err
	}

	return lock, nil
}

// settle gives the remote time to propagate before Acquire re-verifies
// ownership, matching the original's fixed 2-second window.
func (m *Manager) settle() {
	if m.Now != nil {
		// A deterministic clock is in play (tests); skip the real sleep.
		return
	}
	time.Sleep(2 * time.Second)
}

// Release removes lockID's lock after verifying ownership.
func (m *Manager) Release(ctx context.Context, repoPath, lockID string) error {
	if err := m.fetchLocksBranch(ctx, repoPath); err != nil {
		return err
	}

	current, ok, err := m.CurrentLock(repoPath)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoLock
	}

	if current.LockID != lockID {
		return fmt.Errorf("%w: expected %s, found %s", ErrLockMismatch, lockID, current.LockID)
	}

	if !current.IsOwnedBy(m.user(), m.machine()) {
		return fmt.Errorf("%w: %s", ErrNotOwner, current.LockedBy)
	}

	if err := m.removeLockFile(repoPath); err != nil {
		return err
	}

	if err := m.commitLockDeletion(ctx, repoPath); err != nil {
		return err
	}

	return m.pushLocksBranch(ctx, repoPath, false)
}

// Renew extends lockID's expiry and bumps its heartbeat, after verifying
// ownership.
func (m *Manager) Renew(ctx context.Context, repoPath, lockID string, additionalHours int) (Lock, error) {
	if err := m.fetchLocksBranch(ctx, repoPath); err != nil {
		return Lock{}, err
	}

	lock, ok, err := m.CurrentLock(repoPath)
	if err != nil {
		return Lock{}, err
	}
	if !ok {
		return Lock{}, ErrNoLock
	}

	if lock.LockID != lockID {
		return Lock{}, ErrLockMismatch
	}

	if !lock.IsOwnedBy(m.user(), m.machine()) {
		return Lock{}, fmt.Errorf("%w: %s", ErrNotOwner, lock.LockedBy)
	}

	lock.renew(additionalHours, m.now())

	if err := m.writeLockFile(repoPath, lock); err != nil {
		return Lock{}, err
	}

	if err := m.commitLock(ctx, repoPath, lock, "Renew lock (heartbeat)"); err != nil {
		return Lock{}, err
	}

	if err := m.pushLocksBranch(ctx, repoPath, false); err != nil {
		return Lock{}, err
	}

	return lock, nil
}

// ForceBreak removes any lock on repoPath unconditionally (an
// administrative override — no ownership check).
func (m *Manager) ForceBreak(ctx context.Context, repoPath string) error {
	if err := m.fetchLocksBranch(ctx, repoPath); err != nil {
		return err
	}

	if err := m.removeLockFile(repoPath); err != nil {
		return err
	}

	if err := m.commitLockDeletion(ctx, repoPath); err != nil {
		return err
	}

	return m.pushLocksBranch(ctx, repoPath, true)
}

// EmergencyUnlockIfExpired force-breaks the lock iff it is expired or
// stale, reporting whether it did so.
func (m *Manager) EmergencyUnlockIfExpired(ctx context.Context, repoPath string) (bool, error) {
	lock, ok, err := m.CurrentLock(repoPath)
	if err != nil || !ok {
		return false, err
	}

	now := m.now()
	if !lock.IsExpired(now) && !lock.IsStale(now) {
		return false, nil
	}

	if err := m.ForceBreak(ctx, repoPath); err != nil {
		return false, err
	}

	return true, nil
}

// CanEmergencyUnlock reports whether the current lock (if any) is expired
// or stale, without changing anything.
func (m *Manager) CanEmergencyUnlock(repoPath string) (bool, error) {
	lock, ok, err := m.CurrentLock(repoPath)
	if err != nil || !ok {
		return false, err
	}

	now := m.now()
	return lock.IsExpired(now) || lock.IsStale(now), nil
}

// LockAge returns the lock's age, if one exists.
func (m *Manager) LockAge(repoPath string) (time.Duration, bool, error) {
	lock, ok, err := m.CurrentLock(repoPath)
	if err != nil || !ok {
		return 0, false, err
	}

	return m.now().Sub(lock.AcquiredAt), true, nil
}

// ---- branch plumbing, mirroring remote_lock.rs's private helpers ----

// ensureLocksBranch creates the locks branch and seeds it with a .gitkeep
// if it doesn't already exist. CreateBranch itself checks the new branch
// out, so every exit after that point — success or failure — must restore
// the branch the caller was on before this ran.
func (m *Manager) ensureLocksBranch(ctx context.Context, repoPath string) error {
	branches, err := m.Backend.ListBranches(ctx, repoPath)
	if err != nil {
		return fmt.Errorf("lockmgr: list branches: %w", err)
	}

	for _, b := range branches {
		if b.Name == LocksBranch {
			return nil
		}
	}

	original, err := m.Backend.CurrentBranch(ctx, repoPath)
	if err != nil {
		return fmt.Errorf("lockmgr: read current branch: %w", err)
	}

	if err := m.Backend.CreateBranch(ctx, repoPath, LocksBranch); err != nil {
		return fmt.Errorf("lockmgr: create locks branch: %w", err)
	}

	seedErr := m.seedLocksBranch(ctx, repoPath)

	checkoutErr := m.Backend.Checkout(ctx, repoPath, original)

	if seedErr != nil {
		return seedErr
	}

	if checkoutErr != nil {
		return fmt.Errorf("lockmgr: restore branch %s: %w", original, checkoutErr)
	}

	return nil
}

// seedLocksBranch writes and commits the .gitkeep that keeps the locks
// branch non-empty. Must only be called while already checked out onto
// [LocksBranch].
func (m *Manager) seedLocksBranch(ctx context.Context, repoPath string) error {
	if err := m.fs.MkdirAll(path.Join(repoPath, LocksDir), 0o755); err != nil {
		return fmt.Errorf("lockmgr: create locks dir: %w", err)
	}

	gitkeep := path.Join(repoPath, LocksDir, ".gitkeep")
	if err := m.fs.WriteFile(gitkeep, nil, 0o644); err != nil {
		return fmt.Errorf("lockmgr: write .gitkeep: %w", err)
	}

	if err := m.Backend.Add(ctx, repoPath, []string{gitkeep}); err != nil {
		return fmt.Errorf("lockmgr: stage .gitkeep: %w", err)
	}

	if _, err := m.Backend.Commit(ctx, repoPath, "Initialize locks branch"); err != nil {
		return fmt.Errorf("lockmgr: commit locks branch init: %w", err)
	}

	return nil
}

// fetchLocksBranch checks out locks, pulls (tolerating "branch doesn't
// exist on remote yet" as success), and always restores the original
// branch — even when the pull ultimately fails.
func (m *Manager) fetchLocksBranch(ctx context.Context, repoPath string) error {
	original, err := m.Backend.CurrentBranch(ctx, repoPath)
	if err != nil {
		return fmt.Errorf("lockmgr: read current branch: %w", err)
	}

	if err := m.Backend.Checkout(ctx, repoPath, LocksBranch); err != nil {
		return fmt.Errorf("lockmgr: checkout locks branch: %w", err)
	}

	pullErr := m.Fetch.Execute(ctx, func() error {
		err := m.Backend.Pull(ctx, repoPath)
		if err == nil {
			return nil
		}

		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "not found") || strings.Contains(msg, "doesn't exist") {
			return nil
		}

		return err
	})

	checkoutErr := m.Backend.Checkout(ctx, repoPath, original)

	if pullErr != nil {
		return fmt.Errorf("lockmgr: fetch locks branch: %w", pullErr)
	}

	if checkoutErr != nil {
		return fmt.Errorf("lockmgr: restore branch %s: %w", original, checkoutErr)
	}

	return nil
}

// pushLocksBranch checks out locks, pushes (force or not), and always
// restores the original branch even when the push fails — matching the
// original's checkout_result handling: when the push fails its error is
// returned and a checkout error is dropped; the checkout error is returned
// only when the push succeeded.
func (m *Manager) pushLocksBranch(ctx context.Context, repoPath string, force bool) error {
	original, err := m.Backend.CurrentBranch(ctx, repoPath)
	if err != nil {
		return fmt.Errorf("lockmgr: read current branch: %w", err)
	}

	if err := m.Backend.Checkout(ctx, repoPath, LocksBranch); err != nil {
		return fmt.Errorf("lockmgr: checkout locks branch: %w", err)
	}

	pushErr := m.Push.Execute(ctx, func() error {
		if force {
			return m.Backend.PushForce(ctx, repoPath, "origin", LocksBranch)
		}
		return m.Backend.Push(ctx, repoPath, "origin", LocksBranch)
	})

	checkoutErr := m.Backend.Checkout(ctx, repoPath, original)

	if pushErr != nil {
		return fmt.Errorf("lockmgr: push locks branch: %w", pushErr)
	}

	if checkoutErr != nil {
		return fmt.Errorf("lockmgr: restore branch %s: %w", original, checkoutErr)
	}

	return nil
}

func (m *Manager) verifyOwnership(ctx context.Context, repoPath string, expected Lock) error {
	if err := m.fetchLocksBranch(ctx, repoPath); err != nil {
		return err
	}

	current, ok, err := m.CurrentLock(repoPath)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: lock disappeared after push", ErrRaceDetected)
	}

	if current.LockID != expected.LockID {
		return fmt.Errorf("%w: lock now owned by %s", ErrRaceDetected, current.LockedBy)
	}

	return nil
}

func (m *Manager) writeLockFile(repoPath string, lock Lock) error {
	lockFile := m.lockFilePath(repoPath)

	if err := m.fs.MkdirAll(path.Dir(lockFile), 0o755); err != nil {
		return fmt.Errorf("lockmgr: create lock dir: %w", err)
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return fmt.Errorf("lockmgr: encode lock: %w", err)
	}

	if err := m.fs.WriteFileAtomic(lockFile, data, 0o644); err != nil {
		return fmt.Errorf("lockmgr: write lock file: %w", err)
	}

	return nil
}

func (m *Manager) removeLockFile(repoPath string) error {
	lockFile := m.lockFilePath(repoPath)

	exists, err := m.fs.Exists(lockFile)
	if err != nil {
		return fmt.Errorf("lockmgr: stat lock file: %w", err)
	}
	if !exists {
		return nil
	}

	if err := m.fs.Remove(lockFile); err != nil {
		return fmt.Errorf("lockmgr: remove lock file: %w", err)
	}

	return nil
}

// commitLock stages and commits the lock file on the locks branch, always
// restoring the caller's original branch afterward — even when staging or
// committing fails — matching fetchLocksBranch/pushLocksBranch's
// checkout-result handling: when the primary operation fails its error is
// returned and a checkout error is dropped; the checkout error is returned
// only when the primary operation succeeded.
func (m *Manager) commitLock(ctx context.Context, repoPath string, lock Lock, message string) error {
	original, err := m.Backend.CurrentBranch(ctx, repoPath)
	if err != nil {
		return fmt.Errorf("lockmgr: read current branch: %w", err)
	}

	if err := m.Backend.Checkout(ctx, repoPath, LocksBranch); err != nil {
		return fmt.Errorf("lockmgr: checkout locks branch: %w", err)
	}

	commitErr := m.stageAndCommitLock(ctx, repoPath, lock, message)

	checkoutErr := m.Backend.Checkout(ctx, repoPath, original)

	if commitErr != nil {
		return commitErr
	}

	if checkoutErr != nil {
		return fmt.Errorf("lockmgr: restore branch %s: %w", original, checkoutErr)
	}

	return nil
}

// stageAndCommitLock must only be called while already checked out onto
// [LocksBranch].
func (m *Manager) stageAndCommitLock(ctx context.Context, repoPath string, lock Lock, message string) error {
	if err := m.Backend.Add(ctx, repoPath, []string{m.lockFilePath(repoPath)}); err != nil {
		return fmt.Errorf("lockmgr: stage lock file: %w", err)
	}

	if _, err := m.Backend.Commit(ctx, repoPath, fmt.Sprintf("%s - %s", message, lock.LockID)); err != nil {
		return fmt.Errorf("lockmgr: commit lock: %w", err)
	}

	return nil
}

// commitLockDeletion stages and commits the lock file's removal on the
// locks branch, always restoring the caller's original branch afterward —
// same checkout-result handling as commitLock.
func (m *Manager) commitLockDeletion(ctx context.Context, repoPath string) error {
	original, err := m.Backend.CurrentBranch(ctx, repoPath)
	if err != nil {
		return fmt.Errorf("lockmgr: read current branch: %w", err)
	}

	if err := m.Backend.Checkout(ctx, repoPath, LocksBranch); err != nil {
		return fmt.Errorf("lockmgr: checkout locks branch: %w", err)
	}

	commitErr := m.stageAndCommitLockDeletion(ctx, repoPath)

	checkoutErr := m.Backend.Checkout(ctx, repoPath, original)

	if commitErr != nil {
		return commitErr
	}

	if checkoutErr != nil {
		return fmt.Errorf("lockmgr: restore branch %s: %w", original, checkoutErr)
	}

	return nil
}

// stageAndCommitLockDeletion must only be called while already checked out
// onto [LocksBranch].
func (m *Manager) stageAndCommitLockDeletion(ctx context.Context, repoPath string) error {
	if err := m.Backend.AddAll(ctx, repoPath); err != nil {
		return fmt.Errorf("lockmgr: stage deletion: %w", err)
	}

	if _, err := m.Backend.Commit(ctx, repoPath, "Release lock"); err != nil {
		return fmt.Errorf("lockmgr: commit deletion: %w", err)
	}

	return nil
}
