package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()

	cfg, sources, err := Load(dir, "", Config{}, false, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
	require.Empty(t, sources.Global)
	require.Empty(t, sources.Project)
}

func TestLoad_ProjectConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`{
		"backend_path": "custom-oxen",
		"lock_timeout_hours": 4
	}`), 0o600))

	cfg, sources, err := Load(dir, "", Config{}, false, nil)
	require.NoError(t, err)
	require.Equal(t, "custom-oxen", cfg.BackendPath)
	require.Equal(t, 4, cfg.LockTimeoutHours)
	require.Equal(t, "origin", cfg.DefaultRemote) // unset field retains default
	require.Equal(t, filepath.Join(dir, FileName), sources.Project)
}

func TestLoad_CLIOverrideWinsOverProjectConfig(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`{"repo_dir": "from-file"}`), 0o600))

	cfg, _, err := Load(dir, "", Config{RepoDir: "from-cli"}, true, nil)
	require.NoError(t, err)
	require.Equal(t, "from-cli", cfg.RepoDir)
}

func TestLoad_ExplicitConfigPathMustExist(t *testing.T) {
	dir := t.TempDir()

	_, _, err := Load(dir, "missing.json", Config{}, false, nil)
	require.ErrorIs(t, err, errConfigFileNotFound)
}

func TestLoad_JSONCCommentsAreAccepted(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`{
		// trailing commas and comments are fine
		"default_remote": "upstream",
	}`), 0o600))

	cfg, _, err := Load(dir, "", Config{}, false, nil)
	require.NoError(t, err)
	require.Equal(t, "upstream", cfg.DefaultRemote)
}

func TestLoad_ExplicitEmptyRepoDirIsInvalid(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`{"repo_dir": ""}`), 0o600))

	_, _, err := Load(dir, "", Config{}, false, nil)
	require.ErrorIs(t, err, errConfigInvalid)
}

func TestLoad_GlobalConfigUsesXDGConfigHome(t *testing.T) {
	dir := t.TempDir()
	xdg := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "auxin"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(xdg, "auxin", "config.json"), []byte(`{"editor": "vim"}`), 0o600))

	cfg, sources, err := Load(dir, "", Config{}, false, []string{"XDG_CONFIG_HOME=" + xdg})
	require.NoError(t, err)
	require.Equal(t, "vim", cfg.Editor)
	require.Equal(t, filepath.Join(xdg, "auxin", "config.json"), sources.Global)
}

func TestFormat_RoundTripsThroughJSON(t *testing.T) {
	cfg := DefaultConfig()
	out, err := Format(cfg)
	require.NoError(t, err)
	require.Contains(t, out, `"backend_path": "oxen"`)
}
