package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/najoast/syncrt/log"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	config := DefaultConfig()
	require.NoError(t, config.Validate())
	assert.Equal(t, log.InfoLevel, config.LogLevel())
	assert.True(t, config.IsDevelopment())
	assert.False(t, config.IsProduction())
	assert.Len(t, config.SystemOptions(), 3)
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		want   error
	}{
		{name: "valid config", mutate: func(c *Config) {}},
		{name: "empty app name", mutate: func(c *Config) { c.App.Name = "" }, want: ErrInvalidAppName},
		{name: "unknown environment", mutate: func(c *Config) { c.App.Environment = "moon" }, want: ErrInvalidEnvironment},
		{name: "unknown log level", mutate: func(c *Config) { c.Log.Level = "trace" }, want: ErrInvalidLogLevel},
		{name: "unknown log format", mutate: func(c *Config) { c.Log.Format = "xml" }, want: ErrInvalidLogFormat},
		{name: "no groups", mutate: func(c *Config) { c.Scheduler.Groups = 0 }, want: ErrInvalidScheduler},
		{name: "too many cooperative groups", mutate: func(c *Config) { c.Scheduler.CooperativeGroups = 3 }, want: ErrInvalidScheduler},
		{name: "zero cycle time", mutate: func(c *Config) { c.Scheduler.CycleTime = 0 }, want: ErrInvalidScheduler},
		{name: "sleep ratio above one", mutate: func(c *Config) { c.Scheduler.SleepRatio = 1.5 }, want: ErrInvalidScheduler},
		{name: "negative concurrency", mutate: func(c *Config) { c.IO.Concurrency = -1 }, want: ErrInvalidConcurrency},
		{name: "zero shutdown timeout", mutate: func(c *Config) { c.Actor.ShutdownTimeout = 0 }, want: ErrInvalidTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoaderYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "syncrt.yaml", `
app:
  name: asset-sync
  environment: production
log:
  level: debug
  format: json
scheduler:
  groups: 3
  cooperative_groups: 1
  cycle_time: 20ms
io:
  concurrency: 8
actor:
  shutdown_timeout: 2s
setup:
  path: setup.yaml
`)

	config, err := NewLoader().LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "asset-sync", config.App.Name)
	assert.True(t, config.IsProduction())
	assert.Equal(t, log.DebugLevel, config.LogLevel())
	format, err := config.LogFormat()
	require.NoError(t, err)
	assert.Equal(t, log.FormatJSON, format)

	assert.Equal(t, 3, config.Scheduler.Groups)
	assert.Equal(t, 1, config.Scheduler.CooperativeGroups)
	assert.Equal(t, 20*time.Millisecond, config.Scheduler.CycleTime)
	// untouched fields keep their defaults
	assert.Equal(t, DefaultConfig().Scheduler.SleepRatio, config.Scheduler.SleepRatio)
	assert.Equal(t, 8, config.IO.Concurrency)
	assert.Equal(t, 2*time.Second, config.Actor.ShutdownTimeout)
	assert.Equal(t, filepath.Join(dir, "setup.yaml"), config.Setup.Path)
}

func TestLoaderJSON(t *testing.T) {
	config, err := NewLoader().LoadFromReader(strings.NewReader(`{
		"app": {"name": "json-app"},
		"io": {"concurrency": 2}
	}`), FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, "json-app", config.App.Name)
	assert.Equal(t, 2, config.IO.Concurrency)
	assert.Equal(t, EnvDevelopment, config.App.Environment)
}

func TestLoaderRejectsBadInput(t *testing.T) {
	dir := t.TempDir()

	_, err := NewLoader().LoadFromFile(writeFile(t, dir, "config.toml", "x = 1"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = NewLoader().LoadFromFile(writeFile(t, dir, "broken.yaml", "app: [\n"))
	assert.ErrorIs(t, err, ErrConfigParseError)

	_, err = NewLoader().LoadFromFile(writeFile(t, dir, "invalid.yaml", "io:\n  concurrency: -4\n"))
	assert.ErrorIs(t, err, ErrInvalidConcurrency)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SYNCRT_APP_NAME", "from-env")
	t.Setenv("SYNCRT_LOG_LEVEL", "warn")
	t.Setenv("SYNCRT_SCHEDULER_GROUPS", "4")
	t.Setenv("SYNCRT_SCHEDULER_CYCLE_TIME", "5ms")
	t.Setenv("SYNCRT_IO_CONCURRENCY", "16")
	t.Setenv("SYNCRT_ACTOR_SHUTDOWN_TIMEOUT", "30s")

	config, err := NewLoader().LoadFromReader(strings.NewReader("app:\n  name: from-file\n"), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, "from-env", config.App.Name)
	assert.Equal(t, log.WarningLevel, config.LogLevel())
	assert.Equal(t, 4, config.Scheduler.Groups)
	assert.Equal(t, 5*time.Millisecond, config.Scheduler.CycleTime)
	assert.Equal(t, 16, config.IO.Concurrency)
	assert.Equal(t, 30*time.Second, config.Actor.ShutdownTimeout)
}

func TestEnvironmentOverrideParseError(t *testing.T) {
	t.Setenv("SYNCRT_IO_CONCURRENCY", "many")

	_, err := NewLoader().LoadFromReader(strings.NewReader(""), FormatYAML)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SYNCRT_IO_CONCURRENCY")
}

func TestAutoLoad(t *testing.T) {
	dir := t.TempDir()

	config, err := NewLoader().SetSearchPaths([]string{dir}).AutoLoad()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().App.Name, config.App.Name)

	writeFile(t, dir, "config.yml", "app:\n  name: discovered\n")
	config, err = NewLoader().SetSearchPaths([]string{dir}).Load("")
	require.NoError(t, err)
	assert.Equal(t, "discovered", config.App.Name)
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "syncrt.yaml", "io:\n  concurrency: 1\n")

	watcher, err := NewWatcher(path, NewLoader(),
		WithWatcherLogger(log.DiscardLogger), WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 1, watcher.GetConfig().IO.Concurrency)

	changes := make(chan [2]int, 4)
	watcher.OnConfigChange(func(oldConfig, newConfig *Config) {
		changes <- [2]int{oldConfig.IO.Concurrency, newConfig.IO.Concurrency}
	})
	watcher.OnConfigChange(func(oldConfig, newConfig *Config) {
		panic("callbacks are isolated")
	})

	require.NoError(t, watcher.Start())
	defer func() { assert.NoError(t, watcher.Stop()) }()

	writeFile(t, dir, "syncrt.yaml", "io:\n  concurrency: 6\n")

	select {
	case change := <-changes:
		assert.Equal(t, [2]int{1, 6}, change)
	case <-time.After(3 * time.Second):
		require.FailNow(t, "config change not observed")
	}
	assert.Equal(t, 6, watcher.GetConfig().IO.Concurrency)
}

func TestWatcherKeepsConfigOnInvalidReload(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "syncrt.yaml", "io:\n  concurrency: 3\n")

	watcher, err := NewWatcher(path, NewLoader(), WithWatcherLogger(log.DiscardLogger))
	require.NoError(t, err)

	writeFile(t, dir, "syncrt.yaml", "io:\n  concurrency: -1\n")
	assert.ErrorIs(t, watcher.Reload(), ErrInvalidConcurrency)
	assert.Equal(t, 3, watcher.GetConfig().IO.Concurrency)
	assert.NoError(t, watcher.Stop())
}

const validSetup = `
version: "1.2.0"
actors:
  - id: 7b0f3d9e-4a5c-4e0a-9d53-1f1f3b0c2a01
    type: Manifest
    name: manifest
    outputs:
      download: [7b0f3d9e-4a5c-4e0a-9d53-1f1f3b0c2a02]
  - id: 7b0f3d9e-4a5c-4e0a-9d53-1f1f3b0c2a02
    type: Downloader
    group: 1
    params:
      root: /tmp/assets
`

func TestLoadSetup(t *testing.T) {
	setup, err := LoadSetup(strings.NewReader(validSetup))
	require.NoError(t, err)

	require.Len(t, setup.Actors, 2)
	manifest, downloader := setup.Actors[0], setup.Actors[1]
	assert.Equal(t, "Manifest", manifest.Type)
	assert.Equal(t, "manifest", manifest.Name)
	assert.Equal(t, []uuid.UUID{downloader.ID}, manifest.Outputs["download"])
	assert.Equal(t, 1, downloader.Group)
	assert.Equal(t, "/tmp/assets", downloader.Params["root"])
}

func TestLoadSetupFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "setup.yaml", validSetup)
	setup, err := LoadSetupFile(path)
	require.NoError(t, err)
	assert.Len(t, setup.Actors, 2)

	_, err = LoadSetupFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSetupValidation(t *testing.T) {
	id := "7b0f3d9e-4a5c-4e0a-9d53-1f1f3b0c2a01"
	tests := []struct {
		name  string
		setup string
		want  error
	}{
		{name: "missing version", setup: "actors: []", want: ErrUnsupportedSetupVersion},
		{name: "major version 2", setup: `version: "2.0.0"`, want: ErrUnsupportedSetupVersion},
		{name: "garbage version", setup: `version: "one"`, want: ErrUnsupportedSetupVersion},
		{name: "missing type", setup: "version: \"1\"\nactors:\n  - id: " + id, want: ErrInvalidSetup},
		{name: "missing id", setup: "version: \"1\"\nactors:\n  - type: A", want: ErrInvalidSetup},
		{
			name:  "duplicate id",
			setup: "version: \"1\"\nactors:\n  - {id: " + id + ", type: A}\n  - {id: " + id + ", type: B}",
			want:  ErrInvalidSetup,
		},
		{
			name:  "unknown receiver",
			setup: "version: \"1\"\nactors:\n  - id: " + id + "\n    type: A\n    outputs:\n      out: [00000000-0000-0000-0000-0000000000ff]",
			want:  ErrInvalidSetup,
		},
		{name: "unknown field", setup: "version: \"1\"\nextra: true", want: ErrConfigParseError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadSetup(strings.NewReader(tt.setup))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
