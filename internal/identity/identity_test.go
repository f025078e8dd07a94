package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUser_CombinesUsernameAndMachine(t *testing.T) {
	t.Setenv("USER", "peteA")

	got := User()
	require.Contains(t, got, "peteA@")
}

func TestUser_FallsBackToUsernameEnvVar(t *testing.T) {
	t.Setenv("USER", "")
	t.Setenv("USERNAME", "louisB")

	got := User()
	require.Contains(t, got, "louisB@")
}

func TestMachine_NeverEmpty(t *testing.T) {
	require.NotEmpty(t, Machine())
}

func TestHome_FallsBackToDot(t *testing.T) {
	t.Setenv("HOME", "")
	require.Equal(t, ".", Home())
}
