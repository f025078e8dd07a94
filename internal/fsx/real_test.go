package fsx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReal_WriteReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "greeting.txt")

	r := NewReal()

	require.NoError(t, r.WriteFile(path, []byte("hello"), 0o644))

	got, err := r.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))
}

func TestReal_WriteFileAtomicCreatesAndOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lock.json")

	r := NewReal()

	require.NoError(t, r.WriteFileAtomic(path, []byte(`{"v":1}`), 0o644))
	got, err := r.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `{"v":1}`, string(got))

	require.NoError(t, r.WriteFileAtomic(path, []byte(`{"v":2}`), 0o644))
	got, err = r.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, `{"v":2}`, string(got))
}

func TestReal_Exists(t *testing.T) {
	dir := t.TempDir()
	r := NewReal()

	ok, err := r.Exists(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	require.False(t, ok)

	path := filepath.Join(dir, "present")
	require.NoError(t, r.WriteFile(path, []byte("x"), 0o644))

	ok, err = r.Exists(path)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestReal_MkdirAllThenStat(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b", "c")

	r := NewReal()
	require.NoError(t, r.MkdirAll(nested, 0o755))

	info, err := r.Stat(nested)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestReal_RemoveAll(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(nested, "f"), []byte("x"), 0o644))

	r := NewReal()
	require.NoError(t, r.RemoveAll(filepath.Join(dir, "a")))

	_, err := os.Stat(filepath.Join(dir, "a"))
	require.True(t, os.IsNotExist(err))
}

func TestReal_Rename(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "old")
	newPath := filepath.Join(dir, "new")

	r := NewReal()
	require.NoError(t, r.WriteFile(oldPath, []byte("content"), 0o644))
	require.NoError(t, r.Rename(oldPath, newPath))

	got, err := r.ReadFile(newPath)
	require.NoError(t, err)
	require.Equal(t, "content", string(got))

	_, err = r.Stat(oldPath)
	require.True(t, os.IsNotExist(err))
}
