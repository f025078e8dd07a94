package backendproc

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/auxin/internal/fsx"
)

func TestSanitizePath_RejectsNullByte(t *testing.T) {
	_, err := sanitizePath(fsx.NewReal(), "file\x00.txt", "")
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestSanitizePath_RejectsDangerousPatterns(t *testing.T) {
	cases := []string{
		"$(whoami)", "`whoami`", "a;b", "a&&b", "a||b", "a|b", "a>b", "a<b",
	}

	for _, p := range cases {
		_, err := sanitizePath(fsx.NewReal(), p, "")
		require.ErrorIs(t, err, ErrInvalidPath, p)
	}
}

func TestSanitizePath_RejectsTraversalForNonExistentPath(t *testing.T) {
	dir := t.TempDir()

	_, err := sanitizePath(fsx.NewReal(), "../escape.txt", dir)
	require.ErrorIs(t, err, ErrInvalidPath)
}

func TestSanitizePath_AllowsCleanRelativePath(t *testing.T) {
	got, err := sanitizePath(fsx.NewReal(), "project/file.txt", "")
	require.NoError(t, err)
	require.Equal(t, "project/file.txt", got)
}

func TestSanitizePath_ExistingPathMustBeInsideRoot(t *testing.T) {
	dir := t.TempDir()
	inside := filepath.Join(dir, "inside.txt")
	require.NoError(t, fsx.NewReal().WriteFile(inside, []byte("x"), 0o644))

	_, err := sanitizePath(fsx.NewReal(), inside, dir)
	require.NoError(t, err)
}

func TestSanitizeMessage_RejectsNullByte(t *testing.T) {
	_, err := sanitizeMessage("hello\x00world")
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestSanitizeMessage_RejectsTooLong(t *testing.T) {
	long := make([]byte, 10001)
	for i := range long {
		long[i] = 'a'
	}

	_, err := sanitizeMessage(string(long))
	require.ErrorIs(t, err, ErrInvalidMessage)
}

func TestSanitizeMessage_AllowsNormalMessage(t *testing.T) {
	got, err := sanitizeMessage("Final mix - ready for mastering")
	require.NoError(t, err)
	require.Equal(t, "Final mix - ready for mastering", got)
}
