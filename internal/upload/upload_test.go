package upload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/auxin/internal/backendproc"
	"github.com/calvinalkan/auxin/internal/fsx"
)

func TestSession_PercentageZeroTotalIsComplete(t *testing.T) {
	s := Session{}
	require.Equal(t, 100.0, s.Percentage())
}

func TestSession_PercentageHalfway(t *testing.T) {
	s := Session{TotalBytes: 200, BytesUploaded: 100}
	require.Equal(t, 50.0, s.Percentage())
}

func TestSession_AverageBandwidthEmpty(t *testing.T) {
	s := Session{}
	_, ok := s.AverageBandwidth()
	require.False(t, ok)
}

func TestSession_AddBandwidthSampleCapsAtTen(t *testing.T) {
	var s Session
	for i := 0; i < 15; i++ {
		s.addBandwidthSample(float64(i))
	}

	require.Len(t, s.BandwidthSamples, maxBandwidthSamples)
	require.Equal(t, float64(5), s.BandwidthSamples[0])
	require.Equal(t, float64(14), s.BandwidthSamples[len(s.BandwidthSamples)-1])
}

func TestSession_EstimatedRemainingSeconds(t *testing.T) {
	s := Session{TotalBytes: 1000, BytesUploaded: 500}
	s.addBandwidthSample(100)

	secs, ok := s.EstimatedRemainingSeconds()
	require.True(t, ok)
	require.Equal(t, uint64(5), secs)
}

func TestSession_EstimatedRemainingSecondsNoBandwidth(t *testing.T) {
	s := Session{TotalBytes: 1000, BytesUploaded: 500}
	_, ok := s.EstimatedRemainingSeconds()
	require.False(t, ok)
}

func TestProgress_BandwidthString(t *testing.T) {
	require.Equal(t, "calculating...", Progress{}.BandwidthString())
	require.Equal(t, "1.0 MB/s", Progress{HasBandwidth: true, BandwidthBps: 1_000_000}.BandwidthString())
	require.Equal(t, "2.0 KB/s", Progress{HasBandwidth: true, BandwidthBps: 2_000}.BandwidthString())
	require.Equal(t, "500 B/s", Progress{HasBandwidth: true, BandwidthBps: 500}.BandwidthString())
}

func TestProgress_ETAString(t *testing.T) {
	require.Equal(t, "calculating...", Progress{}.ETAString())
	require.Equal(t, "1h 1m", Progress{HasETA: true, ETASeconds: 3661}.ETAString())
	require.Equal(t, "2m 5s", Progress{HasETA: true, ETASeconds: 125}.ETAString())
	require.Equal(t, "30s", Progress{HasETA: true, ETASeconds: 30}.ETAString())
}

func TestBytesString(t *testing.T) {
	require.Equal(t, "1.50 GB", BytesString(1_500_000_000))
	require.Equal(t, "1.5 MB", BytesString(1_500_000))
	require.Equal(t, "1.5 KB", BytesString(1_500))
	require.Equal(t, "500 B", BytesString(500))
}

// writeStubBackend writes a shell "oxen" stub reporting a fixed staged-file
// status and accepting push unconditionally (or failing it, if failPush).
func writeStubBackend(t *testing.T, failPush bool) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "oxen")

	pushBody := ": "
	if failPush {
		pushBody = "echo 'error: push rejected' >&2; exit 1"
	}

	script := "#!/bin/sh\ncase \"$1\" in\n" +
		"  --version) echo \"oxen 0.19.5\" ;;\n" +
		"  status) echo \"new file:  a.txt\"; echo \"modified:  b.txt\" ;;\n" +
		"  push) " + pushBody + " ;;\n" +
		"  add|commit|pull|checkout|branch) : ;;\n" +
		"esac\nexit 0\n"

	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	return path
}

func newTestManager(t *testing.T, failPush bool, now time.Time) (*Manager, string) {
	t.Helper()

	repoDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "a.txt"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(repoDir, "b.txt"), []byte("world!!"), 0o644))

	bin := writeStubBackend(t, failPush)
	real := fsx.NewReal()
	adapter := backendproc.New(bin, real)

	stateDir := t.TempDir()
	m := New(adapter, real, stateDir)
	m.Now = func() time.Time { return now }

	return m, repoDir
}

func TestManager_GetOrCreateSessionFreshWhenNoneExists(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m, repoDir := newTestManager(t, false, now)

	session, err := m.GetOrCreateSession(repoDir, "origin", "main")
	require.NoError(t, err)
	require.Equal(t, StatusPending, session.Status)
	require.Empty(t, session.Files)
}

func TestManager_GetOrCreateSessionResumesMatchingRemoteBranch(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m, repoDir := newTestManager(t, false, now)

	first, err := m.GetOrCreateSession(repoDir, "origin", "main")
	require.NoError(t, err)
	require.NoError(t, m.saveSession(repoDir, first))

	second, err := m.GetOrCreateSession(repoDir, "origin", "main")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
}

func TestManager_GetOrCreateSessionFreshWhenRemoteDiffers(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m, repoDir := newTestManager(t, false, now)

	first, err := m.GetOrCreateSession(repoDir, "origin", "main")
	require.NoError(t, err)
	require.NoError(t, m.saveSession(repoDir, first))

	second, err := m.GetOrCreateSession(repoDir, "upstream", "main")
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
}

func TestManager_ScanFilesParsesStagedStatus(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m, repoDir := newTestManager(t, false, now)

	files, err := m.ScanFiles(context.Background(), repoDir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, "a.txt", files[0].Path)
	require.Equal(t, uint64(5), files[0].Size)
	require.Equal(t, "b.txt", files[1].Path)
	require.Equal(t, uint64(7), files[1].Size)
}

func TestManager_UploadWithProgressSuccessDeletesSessionFile(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m, repoDir := newTestManager(t, false, now)

	var snapshots []Progress
	result, err := m.UploadWithProgress(context.Background(), repoDir, "origin", "main", func(p Progress) {
		snapshots = append(snapshots, p)
	})

	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 2, result.FilesUploaded)
	require.Equal(t, uint64(12), result.BytesUploaded)
	require.NotEmpty(t, snapshots)
	require.Equal(t, 100.0, snapshots[len(snapshots)-1].Percentage)

	exists, err := m.fs.Exists(m.sessionFilePath(repoDir))
	require.NoError(t, err)
	require.False(t, exists)
}

func TestManager_UploadWithProgressFailureRetainsSessionAndMarksFilesFailed(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m, repoDir := newTestManager(t, true, now)

	result, err := m.UploadWithProgress(context.Background(), repoDir, "origin", "main", nil)
	require.NoError(t, err)
	require.False(t, result.Success)
	require.NotEmpty(t, result.Error)

	session, ok, err := m.loadSession(repoDir)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatusFailed, session.Status)
}

func TestManager_HasResumableSessionFalseAfterCompletion(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m, repoDir := newTestManager(t, false, now)

	_, err := m.UploadWithProgress(context.Background(), repoDir, "origin", "main", nil)
	require.NoError(t, err)

	has, err := m.HasResumableSession(repoDir)
	require.NoError(t, err)
	require.False(t, has)
}

func TestManager_HasResumableSessionTrueAfterFailure(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m, repoDir := newTestManager(t, true, now)

	_, err := m.UploadWithProgress(context.Background(), repoDir, "origin", "main", nil)
	require.NoError(t, err)

	has, err := m.HasResumableSession(repoDir)
	require.NoError(t, err)
	require.True(t, has)

	info, ok, err := m.ResumableSessionInfo(repoDir)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 2, info.FilesCount)
}

func TestManager_AbortMarksSessionAborted(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m, repoDir := newTestManager(t, false, now)

	_, err := m.GetOrCreateSession(repoDir, "origin", "main")
	require.NoError(t, err)
	require.NoError(t, m.saveSession(repoDir, *m.current))

	require.NoError(t, m.Abort(repoDir))

	session, ok, err := m.loadSession(repoDir)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, StatusAborted, session.Status)
}

func TestManager_ClearSessionRemovesFile(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m, repoDir := newTestManager(t, false, now)

	_, err := m.GetOrCreateSession(repoDir, "origin", "main")
	require.NoError(t, err)
	require.NoError(t, m.saveSession(repoDir, *m.current))

	require.NoError(t, m.ClearSession(repoDir))

	_, ok, err := m.loadSession(repoDir)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManager_SessionFilePathIsDeterministic(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m, _ := newTestManager(t, false, now)

	a := m.sessionFilePath("/repos/project-one")
	b := m.sessionFilePath("/repos/project-one")
	c := m.sessionFilePath("/repos/project-two")

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}
