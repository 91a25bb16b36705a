package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "evtimings", cfg.AppName)
	assert.Equal(t, "local", cfg.Transport)
	assert.Equal(t, 2, cfg.Ranks)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.True(t, cfg.Report.CSV)
	assert.Equal(t, "table", cfg.Report.Format)
	assert.Equal(t, 1.0, cfg.Workload.Scale)
	assert.False(t, cfg.StoreEnabled())
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evtimings.yaml")
	content := `
app_name: solver
transport: hub
hub_url: http://hub:7070
ranks: 4
rank: 3
log:
  level: debug
  json: true
store:
  type: sqlite
  path: /tmp/runs.db
workload:
  scale: 0.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	t.Setenv("EVTIMINGS_RUN_NAME", "from-env")
	t.Setenv("EVTIMINGS_REPORT_FORMAT", "yaml")
	t.Setenv("EVTIMINGS_HUB_TOKEN", "s3cret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "solver", cfg.AppName)
	assert.Equal(t, "from-env", cfg.RunName)
	assert.Equal(t, "hub", cfg.Transport)
	assert.Equal(t, "http://hub:7070", cfg.HubURL)
	assert.Equal(t, 4, cfg.Ranks)
	assert.Equal(t, 3, cfg.Rank)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Log.JSON)
	assert.Equal(t, "yaml", cfg.Report.Format)
	assert.Equal(t, 0.5, cfg.Workload.Scale)
	assert.Equal(t, "s3cret", cfg.Hub.Token)
	assert.False(t, cfg.Hub.TLS)

	assert.True(t, cfg.StoreEnabled())
	sc := cfg.StoreConfig()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/runs.db", sc.Path)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Transport: "local",
			Ranks:     2,
			Report:    ReportConfig{Format: "table"},
			Store:     StoreConfig{Type: "none"},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{name: "valid", mutate: func(c *Config) {}, ok: true},
		{name: "unknown transport", mutate: func(c *Config) { c.Transport = "mpi" }},
		{name: "no ranks", mutate: func(c *Config) { c.Ranks = 0 }},
		{name: "rank too large", mutate: func(c *Config) { c.Rank = 2 }},
		{name: "negative rank", mutate: func(c *Config) { c.Rank = -1 }},
		{name: "coordinator outside world", mutate: func(c *Config) { c.Coordinator = 5 }},
		{name: "hub without url", mutate: func(c *Config) { c.Transport = "hub" }},
		{name: "hub with url", mutate: func(c *Config) { c.Transport = "hub"; c.HubURL = "http://h" }, ok: true},
		{name: "unknown format", mutate: func(c *Config) { c.Report.Format = "xml" }},
		{name: "unknown store", mutate: func(c *Config) { c.Store.Type = "mongo" }},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Type = "postgres" }},
		{name: "negative scale", mutate: func(c *Config) { c.Workload.Scale = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			}
		})
	}
}
