// Package config loads tg configuration from JSONC files and CLI overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// Error variables for config loading.
var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrConfigInvalid      = errors.New("invalid config file")
	ErrDBPathEmpty        = errors.New("db_path cannot be empty")
)

// DefaultNotifyWindowHours bounds how long a completed dependency keeps
// producing DependencyCompleted notifications.
const DefaultNotifyWindowHours = 24

// Config holds all configuration options.
type Config struct {
	// From config files (serialized)
	DBPath            string `json:"db_path"`
	NotifyWindowHours int    `json:"notify_window_hours,omitempty"`

	// Resolved paths (computed, not serialized)
	EffectiveCwd string `json:"-"` // Absolute working directory (from -C flag or os.Getwd)
	DBPathAbs    string `json:"-"` // Absolute path to the database file

	// Sources tracks which config files were loaded (for diagnostics)
	Sources Sources `json:"-"`
}

// Sources tracks which config files were loaded.
type Sources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		DBPath:            ".taskgate/taskgate.db",
		NotifyWindowHours: DefaultNotifyWindowHours,
	}
}

// FileName is the default project config file name.
const FileName = ".tg.json"

// globalPath returns the path to the global config file.
// Uses $XDG_CONFIG_HOME/tg/config.json if set, otherwise ~/.config/tg/config.json.
// Returns empty string if home directory cannot be determined.
func globalPath(env map[string]string) string {
	if xdgConfig := env["XDG_CONFIG_HOME"]; xdgConfig != "" {
		return filepath.Join(xdgConfig, "tg", "config.json")
	}

	if home := env["HOME"]; home != "" {
		return filepath.Join(home, ".config", "tg", "config.json")
	}

	return ""
}

// LoadInput holds the inputs for Load.
type LoadInput struct {
	WorkDirOverride string            // -C/--cwd flag value; if empty, os.Getwd() is used
	ConfigPath      string            // -c/--config flag value
	DBPathOverride  string            // --db flag value; empty means no override
	Env             map[string]string // environment variables
}

// Load loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config (~/.config/tg/config.json or $XDG_CONFIG_HOME/tg/config.json)
// 3. Project config file at default location (.tg.json, if exists)
// 4. Explicit config file via ConfigPath (if non-empty)
// 5. CLI overrides.
//
// All paths in the returned Config are resolved to absolute paths.
func Load(input LoadInput) (Config, error) {
	workDir := input.WorkDirOverride
	if workDir == "" {
		var err error

		workDir, err = os.Getwd()
		if err != nil {
			return Config{}, fmt.Errorf("cannot get working directory: %w", err)
		}
	}

	cfg := DefaultConfig()

	globalCfg, globalSrc, err := loadOptional(globalPath(input.Env))
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Global = globalSrc
	cfg = merge(cfg, globalCfg)

	projectCfg, projectSrc, err := loadProject(workDir, input.ConfigPath)
	if err != nil {
		return Config{}, err
	}

	cfg.Sources.Project = projectSrc
	cfg = merge(cfg, projectCfg)

	if input.DBPathOverride != "" {
		cfg.DBPath = input.DBPathOverride
	}

	if cfg.DBPath == "" {
		return Config{}, ErrDBPathEmpty
	}

	if cfg.NotifyWindowHours <= 0 {
		cfg.NotifyWindowHours = DefaultNotifyWindowHours
	}

	cfg.EffectiveCwd = workDir

	if filepath.IsAbs(cfg.DBPath) {
		cfg.DBPathAbs = cfg.DBPath
	} else {
		cfg.DBPathAbs = filepath.Join(workDir, cfg.DBPath)
	}

	return cfg, nil
}

// loadOptional loads a config file that may be absent. Returns the config and
// the path if loaded.
func loadOptional(path string) (Config, string, error) {
	if path == "" {
		return Config{}, "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, "", nil
	}

	cfg, parseErr := parse(data)
	if parseErr != nil {
		return Config{}, "", fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, parseErr)
	}

	return cfg, path, nil
}

// loadProject loads the project config file (.tg.json) or an explicit config
// file, which must exist.
func loadProject(workDir, configPath string) (Config, string, error) {
	if configPath == "" {
		return loadOptional(filepath.Join(workDir, FileName))
	}

	cfgFile := configPath
	if !filepath.IsAbs(cfgFile) {
		cfgFile = filepath.Join(workDir, cfgFile)
	}

	data, err := os.ReadFile(cfgFile)
	if err != nil {
		return Config{}, "", fmt.Errorf("%w: %s", ErrConfigFileNotFound, configPath)
	}

	cfg, parseErr := parse(data)
	if parseErr != nil {
		return Config{}, "", fmt.Errorf("%w %s: %w", ErrConfigInvalid, cfgFile, parseErr)
	}

	return cfg, cfgFile, nil
}

func parse(data []byte) (Config, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	unmarshalErr := json.Unmarshal(standardized, &cfg)
	if unmarshalErr != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", unmarshalErr)
	}

	return cfg, nil
}

func merge(base, overlay Config) Config {
	if overlay.DBPath != "" {
		base.DBPath = overlay.DBPath
	}

	if overlay.NotifyWindowHours > 0 {
		base.NotifyWindowHours = overlay.NotifyWindowHours
	}

	return base
}

// Format renders the resolved config as indented JSON for print-config.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}

	return string(data), nil
}
