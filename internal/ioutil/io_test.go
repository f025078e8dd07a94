package ioutil

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIO_PrintlnWritesToStdout(t *testing.T) {
	var out, errOut bytes.Buffer
	io := NewIO(&out, &errOut)

	io.Println("hello", "world")

	require.Equal(t, "hello world\n", out.String())
	require.Empty(t, errOut.String())
}

func TestIO_FinishReturnsZeroWithoutWarnings(t *testing.T) {
	var out, errOut bytes.Buffer
	io := NewIO(&out, &errOut)

	io.Println("ok")

	require.Equal(t, 0, io.Finish())
	require.Empty(t, errOut.String())
}

func TestIO_WarnFlushesAtStartAndEnd(t *testing.T) {
	var out, errOut bytes.Buffer
	io := NewIO(&out, &errOut)

	io.Warn("WAL entry stuck in_progress", "run `auxin wal recover`")
	io.Println("commit abc1234 created")

	code := io.Finish()
	require.Equal(t, 1, code)

	// printed once before the first stdout write, once again at Finish.
	require.Equal(t, 2, bytes.Count(errOut.Bytes(), []byte("WAL entry stuck in_progress")))
}

func TestIO_WarnWithoutOutputStillFlushesOnFinish(t *testing.T) {
	var out, errOut bytes.Buffer
	io := NewIO(&out, &errOut)

	io.Warn("lock nearing expiry", "renew with `auxin lock renew`")

	code := io.Finish()
	require.Equal(t, 1, code)
	require.Contains(t, errOut.String(), "lock nearing expiry")
}

func TestIO_ErrorlnBypassesWarningBuffer(t *testing.T) {
	var out, errOut bytes.Buffer
	io := NewIO(&out, &errOut)

	io.Errorln("fatal: backend executable not found")

	require.Contains(t, errOut.String(), "fatal: backend executable not found")
	require.Equal(t, 0, io.Finish())
}
