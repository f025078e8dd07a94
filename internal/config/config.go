// Package config loads auxin's configuration from a four-tier precedence
// chain (defaults, global user config, project config, CLI overrides),
// parsing JSONC via hujson the way the rest of the ambient stack does.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// Config holds all configuration options for a repository.
type Config struct {
	RepoDir                  string `json:"repo_dir,omitempty"`
	Editor                   string `json:"editor,omitempty"`
	BackendPath              string `json:"backend_path,omitempty"`
	DefaultRemote            string `json:"default_remote,omitempty"`
	LockTimeoutHours         int    `json:"lock_timeout_hours,omitempty"`
	HeartbeatIntervalMinutes int    `json:"heartbeat_interval_minutes,omitempty"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string
	Project string
}

// DefaultConfig returns auxin's built-in defaults.
func DefaultConfig() Config {
	return Config{
		RepoDir:                  ".",
		BackendPath:              "oxen",
		DefaultRemote:            "origin",
		LockTimeoutHours:         8,
		HeartbeatIntervalMinutes: 15,
	}
}

// FileName is the default project config file name.
const FileName = ".auxin.json"

// getGlobalConfigPath returns the path to the global config file: uses
// $XDG_CONFIG_HOME/auxin/config.json if set, otherwise
// ~/.config/auxin/config.json. Returns "" if no home directory can be
// determined.
func getGlobalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "auxin", "config.json")
		}
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "auxin", "config.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "auxin", "config.json")
	}

	return ""
}

// Load loads configuration with the following precedence (highest wins):
//  1. Defaults
//  2. Global user config (~/.config/auxin/config.json or $XDG_CONFIG_HOME/auxin/config.json)
//  3. Project config file: configPath if non-empty (it must then exist),
//     otherwise .auxin.json in workDir if present; only one of the two is read
//  4. CLI overrides: only RepoDir, and only when hasRepoDirOverride is set
func Load(workDir, configPath string, cliOverrides Config, hasRepoDirOverride bool, env []string) (Config, Sources, error) {
	cfg := DefaultConfig()

	var sources Sources

	globalCfg, globalPath, err := loadGlobalConfig(env)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Global = globalPath
	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, configPath)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Project = projectPath
	cfg = mergeConfig(cfg, projectCfg)

	if hasRepoDirOverride {
		cfg.RepoDir = cliOverrides.RepoDir
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, Sources{}, err
	}

	return cfg, sources, nil
}

func loadGlobalConfig(env []string) (Config, string, error) {
	path := getGlobalConfigPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, explicitEmpty, loaded, err := loadConfigFile(path, false)
	if err != nil {
		return Config{}, "", err
	}
	if !loaded {
		return Config{}, "", nil
	}

	if explicitEmpty["repo_dir"] {
		return Config{}, "", fmt.Errorf("%w %s: %w", errConfigInvalid, path, errRepoDirEmpty)
	}

	return cfg, path, nil
}

func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	var cfgFile string
	var mustExist bool

	if configPath != "" {
		cfgFile = configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}
		mustExist = true

		if _, err := os.Stat(cfgFile); err != nil {
			return Config{}, "", fmt.Errorf("%w: %s", errConfigFileNotFound, configPath)
		}
	} else {
		cfgFile = filepath.Join(workDir, FileName)
		mustExist = false
	}

	cfg, explicitEmpty, loaded, err := loadConfigFile(cfgFile, mustExist)
	if err != nil {
		return Config{}, "", err
	}
	if !loaded {
		return Config{}, "", nil
	}

	if explicitEmpty["repo_dir"] {
		return Config{}, "", fmt.Errorf("%w %s: %w", errConfigInvalid, cfgFile, errRepoDirEmpty)
	}

	return cfg, cfgFile, nil
}

// loadConfigFile reads and parses path. If mustExist is false, a missing
// file returns a zero Config with loaded=false rather than an error.
func loadConfigFile(path string, mustExist bool) (Config, map[string]bool, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally user-controlled
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, nil, false, nil
		}
		if mustExist {
			return Config{}, nil, false, fmt.Errorf("%w: %s", errConfigFileRead, path)
		}
		return Config{}, nil, false, nil
	}

	cfg, explicitEmpty, err := parseConfig(data)
	if err != nil {
		return Config{}, nil, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	return cfg, explicitEmpty, true, nil
}

func parseConfig(data []byte) (Config, map[string]bool, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSON: %w", err)
	}

	var raw map[string]any
	_ = json.Unmarshal(standardized, &raw)

	explicitEmpty := make(map[string]bool)
	if val, exists := raw["repo_dir"]; exists {
		if str, ok := val.(string); ok && str == "" {
			explicitEmpty["repo_dir"] = true
		}
	}

	return cfg, explicitEmpty, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.RepoDir != "" {
		base.RepoDir = overlay.RepoDir
	}
	if overlay.Editor != "" {
		base.Editor = overlay.Editor
	}
	if overlay.BackendPath != "" {
		base.BackendPath = overlay.BackendPath
	}
	if overlay.DefaultRemote != "" {
		base.DefaultRemote = overlay.DefaultRemote
	}
	if overlay.LockTimeoutHours != 0 {
		base.LockTimeoutHours = overlay.LockTimeoutHours
	}
	if overlay.HeartbeatIntervalMinutes != 0 {
		base.HeartbeatIntervalMinutes = overlay.HeartbeatIntervalMinutes
	}

	return base
}

func validateConfig(cfg Config) error {
	if cfg.RepoDir == "" {
		return errRepoDirEmpty
	}
	return nil
}

// Format returns cfg as pretty-printed JSON.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}
	return string(data), nil
}
