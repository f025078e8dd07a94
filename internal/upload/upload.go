// Package upload implements C7, the upload session manager: resumable
// push tracking with per-file progress, a bounded bandwidth moving
// average, and ETA estimation. Sessions persist across process restarts
// so an interrupted push can be resumed rather than restarted.
package upload

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/calvinalkan/auxin/internal/backendproc"
	"github.com/calvinalkan/auxin/internal/fsx"
)

// maxBandwidthSamples bounds the moving-average window.
const maxBandwidthSamples = 10

// Status is a session or file's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusAborted    Status = "aborted"
)

// FileState tracks one file's upload progress within a Session.
type FileState struct {
	Path          string    `json:"path"`
	Size          uint64    `json:"size"`
	BytesUploaded uint64    `json:"bytes_uploaded"`
	Status        Status    `json:"status"`
	LastError     string    `json:"last_error,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	LastActivity  time.Time `json:"last_activity"`
}

// Session is the persisted state of one repo's upload to one
// remote/branch.
type Session struct {
	ID               string      `json:"id"`
	RepoPath         string      `json:"repo_path"`
	Remote           string      `json:"remote"`
	Branch           string      `json:"branch"`
	Files            []FileState `json:"files"`
	TotalBytes       uint64      `json:"total_bytes"`
	BytesUploaded    uint64      `json:"bytes_uploaded"`
	StartedAt        time.Time   `json:"started_at"`
	LastActivity     time.Time   `json:"last_activity"`
	Status           Status      `json:"status"`
	BandwidthSamples []float64   `json:"bandwidth_samples"`
}

func newSession(repoPath, remote, branch string, now time.Time) Session {
	return Session{
		ID:           uuid.NewString(),
		RepoPath:     repoPath,
		Remote:       remote,
		Branch:       branch,
		StartedAt:    now,
		LastActivity: now,
		Status:       StatusPending,
	}
}

// Percentage returns completion as 0-100, treating a zero-byte session as
// fully complete.
func (s Session) Percentage() float64 {
	if s.TotalBytes == 0 {
		return 100.0
	}
	return (float64(s.BytesUploaded) / float64(s.TotalBytes)) * 100.0
}

// AverageBandwidth returns the mean of the recorded samples, or (0, false)
// if none have been recorded yet.
func (s Session) AverageBandwidth() (float64, bool) {
	if len(s.BandwidthSamples) == 0 {
		return 0, false
	}

	var sum float64
	for _, v := range s.BandwidthSamples {
		sum += v
	}

	return sum / float64(len(s.BandwidthSamples)), true
}

// EstimatedRemainingSeconds estimates time-to-completion from the current
// average bandwidth, or (0, false) if there's no usable sample yet.
func (s Session) EstimatedRemainingSeconds() (uint64, bool) {
	bandwidth, ok := s.AverageBandwidth()
	if !ok || bandwidth <= 0 {
		return 0, false
	}

	var remaining uint64
	if s.TotalBytes > s.BytesUploaded {
		remaining = s.TotalBytes - s.BytesUploaded
	}

	return uint64(float64(remaining) / bandwidth), true
}

// addBandwidthSample appends a sample, dropping the oldest once the window
// exceeds maxBandwidthSamples (a FIFO of at most the last ten rates).
func (s *Session) addBandwidthSample(bytesPerSecond float64) {
	if len(s.BandwidthSamples) >= maxBandwidthSamples {
		s.BandwidthSamples = s.BandwidthSamples[1:]
	}
	s.BandwidthSamples = append(s.BandwidthSamples, bytesPerSecond)
}

// Progress is a point-in-time snapshot for progress callbacks.
type Progress struct {
	SessionID      string
	Percentage     float64
	BytesUploaded  uint64
	TotalBytes     uint64
	CurrentFile    string
	BandwidthBps   float64
	HasBandwidth   bool
	ETASeconds     uint64
	HasETA         bool
	FilesCompleted int
	TotalFiles     int
}

// BandwidthString formats Bps as a human-readable rate.
func (p Progress) BandwidthString() string {
	if !p.HasBandwidth {
		return "calculating..."
	}

	switch {
	case p.BandwidthBps >= 1_000_000:
		return fmt.Sprintf("%.1f MB/s", p.BandwidthBps/1_000_000)
	case p.BandwidthBps >= 1_000:
		return fmt.Sprintf("%.1f KB/s", p.BandwidthBps/1_000)
	default:
		return fmt.Sprintf("%.0f B/s", p.BandwidthBps)
	}
}

// ETAString formats the estimated remaining time as a human-readable
// duration.
func (p Progress) ETAString() string {
	if !p.HasETA {
		return "calculating..."
	}

	secs := p.ETASeconds
	switch {
	case secs >= 3600:
		return fmt.Sprintf("%dh %dm", secs/3600, (secs%3600)/60)
	case secs >= 60:
		return fmt.Sprintf("%dm %ds", secs/60, secs%60)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// BytesString formats a byte count as a human-readable size.
func BytesString(n uint64) string {
	switch {
	case n >= 1_000_000_000:
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	case n >= 1_000_000:
		return fmt.Sprintf("%.1f MB", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1f KB", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// Result summarizes a completed or failed upload attempt.
type Result struct {
	Success          bool
	FilesUploaded    int
	BytesUploaded    uint64
	Duration         time.Duration
	AverageBandwidth float64
	HasBandwidth     bool
	Error            string
}

// SessionInfo summarizes a resumable session for display.
type SessionInfo struct {
	ID            string
	Percentage    float64
	BytesUploaded uint64
	TotalBytes    uint64
	FilesCount    int
	StartedAt     time.Time
	LastActivity  time.Time
}

// Manager tracks upload sessions for repositories, one session file per
// repo keyed by a hash of its canonical path.
type Manager struct {
	Backend  *backendproc.Adapter
	StateDir string

	fs      fsx.FS
	writer  *fsx.AtomicWriter
	current *Session

	// Now is the clock used throughout; defaults to time.Now when nil.
	Now func() time.Time
}

// New builds a Manager persisting session files under stateDir (typically
// ~/.auxin/uploads).
func New(backend *backendproc.Adapter, fs fsx.FS, stateDir string) *Manager {
	return &Manager{
		Backend:  backend,
		StateDir: stateDir,
		fs:       fs,
		writer:   fsx.NewAtomicWriter(fs),
	}
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// sessionFilePath keys a session file by the MD5 hash of repoPath. This is
// content-addressing a local file name, not a security boundary — MD5 is
// kept here to match the original's own choice rather than swapped for a
// stronger hash nothing here depends on collision-resistance for.
func (m *Manager) sessionFilePath(repoPath string) string {
	sum := md5.Sum([]byte(repoPath))
	return filepath.Join(m.StateDir, fmt.Sprintf("%x.json", sum))
}

func (m *Manager) loadSession(repoPath string) (Session, bool, error) {
	path := m.sessionFilePath(repoPath)

	exists, err := m.fs.Exists(path)
	if err != nil {
		return Session{}, false, fmt.Errorf("upload: stat session file: %w", err)
	}
	if !exists {
		return Session{}, false, nil
	}

	data, err := m.fs.ReadFile(path)
	if err != nil {
		return Session{}, false, fmt.Errorf("upload: read session file: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return Session{}, false, fmt.Errorf("upload: parse session file: %w", err)
	}

	return session, true, nil
}

func (m *Manager) saveSession(repoPath string, session Session) error {
	if err := m.fs.MkdirAll(m.StateDir, 0o755); err != nil {
		return fmt.Errorf("upload: create state dir: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("upload: encode session: %w", err)
	}

	opts := m.writer.DefaultOptions()
	opts.Perm = 0o644

	return m.writer.Write(m.sessionFilePath(repoPath), bytes.NewReader(data), opts)
}

// GetOrCreateSession loads a resumable session matching remote/branch, or
// starts a fresh one. A session for a different remote/branch, or one
// already Completed, is not resumed.
func (m *Manager) GetOrCreateSession(repoPath, remote, branch string) (Session, error) {
	existing, ok, err := m.loadSession(repoPath)
	if err != nil {
		return Session{}, err
	}

	if ok && existing.Remote == remote && existing.Branch == branch && existing.Status != StatusCompleted {
		m.current = &existing
		return existing, nil
	}

	fresh := newSession(repoPath, remote, branch, m.now())
	m.current = &fresh

	return fresh, nil
}

// ScanFiles runs the backend `status` and turns its staged and modified
// paths into pending FileStates, sized via fs.Stat against repoPath. It
// does not pass `--staged`, so modified but unstaged files are included.
func (m *Manager) ScanFiles(ctx context.Context, repoPath string) ([]FileState, error) {
	status, err := m.Backend.Status(ctx, repoPath)
	if err != nil {
		return nil, err
	}

	now := m.now()

	paths := make([]string, 0, len(status.Staged)+len(status.Modified))
	paths = append(paths, status.Staged...)
	paths = append(paths, status.Modified...)

	var files []FileState
	for _, p := range paths {
		full := filepath.Join(repoPath, p)

		var size uint64
		if info, err := m.fs.Stat(full); err == nil {
			size = uint64(info.Size())
		}

		files = append(files, FileState{
			Path:         p,
			Size:         size,
			Status:       StatusPending,
			StartedAt:    now,
			LastActivity: now,
		})
	}

	return files, nil
}

// UploadWithProgress drives one push attempt: it resolves/creates the
// session, scans files if the session is new, pushes via the backend,
// records a bandwidth sample and marks every file Completed on success (or
// Failed on error), persists the outcome, and reports progress via
// onProgress both before and after the attempt.
func (m *Manager) UploadWithProgress(ctx context.Context, repoPath, remote, branch string, onProgress func(Progress)) (Result, error) {
	session, err := m.GetOrCreateSession(repoPath, remote, branch)
	if err != nil {
		return Result{}, err
	}

	if len(session.Files) == 0 {
		files, err := m.ScanFiles(ctx, repoPath)
		if err != nil {
			return Result{}, err
		}

		session.Files = files
		for _, f := range files {
			session.TotalBytes += f.Size
		}
	}

	if err := m.saveSession(repoPath, session); err != nil {
		return Result{}, err
	}

	session.Status = StatusInProgress
	for i := range session.Files {
		if session.Files[i].Status == StatusPending {
			session.Files[i].Status = StatusInProgress
		}
	}
	m.emitProgress(session, onProgress)

	start := m.now()
	pushErr := m.Backend.Push(ctx, repoPath, remote, branch)
	elapsed := m.now().Sub(start)

	if pushErr == nil {
		if elapsed.Seconds() > 0 {
			transferred := session.TotalBytes - session.BytesUploaded
			bandwidth := float64(transferred) / elapsed.Seconds()
			session.addBandwidthSample(bandwidth)
		}
		session.BytesUploaded = session.TotalBytes

		for i := range session.Files {
			session.Files[i].Status = StatusCompleted
			session.Files[i].BytesUploaded = session.Files[i].Size
			session.Files[i].LastActivity = m.now()
		}
	}

	if pushErr != nil {
		session.Status = StatusFailed
		session.LastActivity = m.now()

		for i := range session.Files {
			if session.Files[i].Status == StatusInProgress {
				session.Files[i].Status = StatusFailed
				session.Files[i].LastError = pushErr.Error()
			}
		}

		if err := m.saveSession(repoPath, session); err != nil {
			return Result{}, err
		}

		m.emitProgress(session, onProgress)

		avg, hasAvg := session.AverageBandwidth()
		return Result{
			Success:          false,
			BytesUploaded:    session.BytesUploaded,
			Duration:         elapsed,
			AverageBandwidth: avg,
			HasBandwidth:     hasAvg,
			Error:            pushErr.Error(),
		}, nil
	}

	session.Status = StatusCompleted
	session.LastActivity = m.now()
	m.emitProgress(session, onProgress)

	if err := m.fs.Remove(m.sessionFilePath(repoPath)); err != nil {
		if exists, statErr := m.fs.Exists(m.sessionFilePath(repoPath)); statErr == nil && exists {
			return Result{}, fmt.Errorf("upload: remove completed session file: %w", err)
		}
	}

	avg, hasAvg := session.AverageBandwidth()
	return Result{
		Success:          true,
		FilesUploaded:    len(session.Files),
		BytesUploaded:    session.BytesUploaded,
		Duration:         elapsed,
		AverageBandwidth: avg,
		HasBandwidth:     hasAvg,
	}, nil
}

func (m *Manager) emitProgress(session Session, onProgress func(Progress)) {
	if onProgress == nil {
		return
	}

	var filesCompleted int
	var currentFile string
	for _, f := range session.Files {
		if f.Status == StatusCompleted {
			filesCompleted++
		}
		if f.Status == StatusInProgress && currentFile == "" {
			currentFile = f.Path
		}
	}

	bandwidth, hasBandwidth := session.AverageBandwidth()
	eta, hasETA := session.EstimatedRemainingSeconds()

	onProgress(Progress{
		SessionID:      session.ID,
		Percentage:     session.Percentage(),
		BytesUploaded:  session.BytesUploaded,
		TotalBytes:     session.TotalBytes,
		CurrentFile:    currentFile,
		BandwidthBps:   bandwidth,
		HasBandwidth:   hasBandwidth,
		ETASeconds:     eta,
		HasETA:         hasETA,
		FilesCompleted: filesCompleted,
		TotalFiles:     len(session.Files),
	})
}

// Abort marks repoPath's current session Aborted (resumable later) and
// persists it.
func (m *Manager) Abort(repoPath string) error {
	session, ok, err := m.loadSession(repoPath)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	session.Status = StatusAborted
	session.LastActivity = m.now()

	for i := range session.Files {
		if session.Files[i].Status == StatusInProgress {
			session.Files[i].Status = StatusAborted
		}
	}

	return m.saveSession(repoPath, session)
}

// HasResumableSession reports whether repoPath has a session file whose
// status isn't Completed.
func (m *Manager) HasResumableSession(repoPath string) (bool, error) {
	session, ok, err := m.loadSession(repoPath)
	if err != nil || !ok {
		return false, err
	}

	return session.Status != StatusCompleted, nil
}

// ResumableSessionInfo summarizes repoPath's resumable session, if any.
func (m *Manager) ResumableSessionInfo(repoPath string) (SessionInfo, bool, error) {
	session, ok, err := m.loadSession(repoPath)
	if err != nil || !ok || session.Status == StatusCompleted {
		return SessionInfo{}, false, err
	}

	return SessionInfo{
		ID:            session.ID,
		Percentage:    session.Percentage(),
		BytesUploaded: session.BytesUploaded,
		TotalBytes:    session.TotalBytes,
		FilesCount:    len(session.Files),
		StartedAt:     session.StartedAt,
		LastActivity:  session.LastActivity,
	}, true, nil
}

// ClearSession removes repoPath's session file unconditionally.
func (m *Manager) ClearSession(repoPath string) error {
	path := m.sessionFilePath(repoPath)

	exists, err := m.fs.Exists(path)
	if err != nil {
		return fmt.Errorf("upload: stat session file: %w", err)
	}
	if !exists {
		return nil
	}

	if err := m.fs.Remove(path); err != nil {
		return fmt.Errorf("upload: remove session file: %w", err)
	}

	return nil
}
