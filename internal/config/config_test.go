package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskgate/taskgate/internal/config"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()

	cfg, err := config.Load(config.LoadInput{WorkDirOverride: workDir})
	require.NoError(t, err)

	assert.Equal(t, ".taskgate/taskgate.db", cfg.DBPath)
	assert.Equal(t, filepath.Join(workDir, ".taskgate", "taskgate.db"), cfg.DBPathAbs)
	assert.Equal(t, config.DefaultNotifyWindowHours, cfg.NotifyWindowHours)
	assert.Empty(t, cfg.Sources.Global)
	assert.Empty(t, cfg.Sources.Project)
}

func TestLoadProjectConfigWithComments(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, config.FileName), `{
		// database location, relative to the project
		"db_path": "data/deps.db",
		"notify_window_hours": 6,
	}`)

	cfg, err := config.Load(config.LoadInput{WorkDirOverride: workDir})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(workDir, "data", "deps.db"), cfg.DBPathAbs)
	assert.Equal(t, 6, cfg.NotifyWindowHours)
	assert.Equal(t, filepath.Join(workDir, config.FileName), cfg.Sources.Project)
}

func TestLoadGlobalThenProjectPrecedence(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	xdg := t.TempDir()

	writeFile(t, filepath.Join(xdg, "tg", "config.json"), `{"db_path": "global.db", "notify_window_hours": 48}`)
	writeFile(t, filepath.Join(workDir, config.FileName), `{"db_path": "project.db"}`)

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: workDir,
		Env:             map[string]string{"XDG_CONFIG_HOME": xdg},
	})
	require.NoError(t, err)

	// Project wins for db_path; global's window survives because the
	// project file does not set one.
	assert.Equal(t, "project.db", cfg.DBPath)
	assert.Equal(t, 48, cfg.NotifyWindowHours)
}

func TestLoadExplicitConfigMustExist(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()

	_, err := config.Load(config.LoadInput{
		WorkDirOverride: workDir,
		ConfigPath:      "missing.json",
	})
	require.ErrorIs(t, err, config.ErrConfigFileNotFound)
}

func TestLoadCLIOverrideWins(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, config.FileName), `{"db_path": "project.db"}`)

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride: workDir,
		DBPathOverride:  "/tmp/override.db",
	})
	require.NoError(t, err)

	assert.Equal(t, "/tmp/override.db", cfg.DBPathAbs)
}

func TestLoadInvalidJSON(t *testing.T) {
	t.Parallel()

	workDir := t.TempDir()
	writeFile(t, filepath.Join(workDir, config.FileName), `{not json`)

	_, err := config.Load(config.LoadInput{WorkDirOverride: workDir})
	require.ErrorIs(t, err, config.ErrConfigInvalid)
}
