package backendproc

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/auxin/internal/fsx"
)

// writeStubBackend writes an executable shell script named "oxen" that
// echoes a fixed response to stdout/stderr and exits with the given code,
// regardless of the arguments it receives. This lets tests exercise the
// dual-stream error-pattern scan without a real backend binary installed.
func writeStubBackend(t *testing.T, stdout, stderr string, exitCode int) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "oxen")

	script := "#!/bin/sh\n"
	if stdout != "" {
		script += "cat <<'AUXIN_EOF'\n" + stdout + "\nAUXIN_EOF\n"
	}
	if stderr != "" {
		script += "cat <<'AUXIN_EOF' >&2\n" + stderr + "\nAUXIN_EOF\n"
	}
	script += "exit " + itoa(exitCode) + "\n"

	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	return path
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := []byte{}
	neg := n < 0
	if neg {
		n = -n
	}
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

func TestAdapter_VersionSucceedsWithExitZero(t *testing.T) {
	bin := writeStubBackend(t, "oxen 0.19.5", "", 0)
	a := New(bin, fsx.NewReal())

	v, err := a.Version(context.Background())
	require.NoError(t, err)
	require.Equal(t, "oxen 0.19.5", v)
}

func TestAdapter_VerifyVersionAcceptsNewer(t *testing.T) {
	bin := writeStubBackend(t, "oxen 0.20.1", "", 0)
	a := New(bin, fsx.NewReal())

	require.NoError(t, a.VerifyVersion(context.Background()))
}

func TestAdapter_VerifyVersionRejectsOlder(t *testing.T) {
	bin := writeStubBackend(t, "oxen 0.10.0", "", 0)
	a := New(bin, fsx.NewReal())

	err := a.VerifyVersion(context.Background())
	require.ErrorIs(t, err, ErrBackendFailed)
}

func TestAdapter_DetectsErrorPatternInStdoutDespiteExitZero(t *testing.T) {
	bin := writeStubBackend(t, "Error: revision not found", "", 0)
	a := New(bin, fsx.NewReal())

	_, err := a.CurrentBranch(context.Background(), t.TempDir())
	require.ErrorIs(t, err, ErrBackendFailed)
}

func TestAdapter_NonZeroExitIsAlwaysAFailure(t *testing.T) {
	bin := writeStubBackend(t, "", "something broke", 1)
	a := New(bin, fsx.NewReal())

	_, err := a.CurrentBranch(context.Background(), t.TempDir())
	require.ErrorIs(t, err, ErrBackendFailed)
}

func TestAdapter_CommitParsesCommitID(t *testing.T) {
	bin := writeStubBackend(t, "Commit abc1234def created", "", 0)
	a := New(bin, fsx.NewReal())

	rec, err := a.Commit(context.Background(), t.TempDir(), "test commit")
	require.NoError(t, err)
	require.Equal(t, "abc1234def", rec.ID)
}

func TestAdapter_CommitRejectsOversizedMessage(t *testing.T) {
	bin := writeStubBackend(t, "Commit abc1234 created", "", 0)
	a := New(bin, fsx.NewReal())

	long := make([]byte, 10001)
	for i := range long {
		long[i] = 'x'
	}

	_, err := a.Commit(context.Background(), t.TempDir(), string(long))
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestAdapter_LogParsesMultipleCommits(t *testing.T) {
	bin := writeStubBackend(t, "commit abc1234\nAuthor: x\nDate: y\n\nfirst\n\ncommit def5678\nAuthor: x\nDate: y\n\nsecond", "", 0)
	a := New(bin, fsx.NewReal())

	commits, err := a.Log(context.Background(), t.TempDir(), 0)
	require.NoError(t, err)
	require.Len(t, commits, 2)
}
