package cmd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/eventtimings/internal/config"
)

// execute runs the root command against a fresh viper instance
func execute(t *testing.T, args ...string) error {
	t.Helper()
	v = config.NewViper()
	cfgFile = ""

	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestRunLocalWorldAndReport(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "runs.db")
	t.Setenv("EVTIMINGS_STORE_PATH", dbPath)

	err := execute(t, "run",
		"--app", "demo",
		"--ranks", "3",
		"--scale", "0",
		"--run-name", "cli",
		"--output-dir", dir,
		"--trace",
		"--store", "sqlite",
		"--prometheus-file", filepath.Join(dir, "demo.prom"),
	)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Ranks)
	assert.Equal(t, dbPath, cfg.Store.Path)

	for _, name := range []string{"demo-eventTimings.log", "demo-events.log", "demo-trace.json", "demo.prom"} {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	assert.FileExists(t, dbPath)

	require.NoError(t, execute(t, "report", "--store", "sqlite", "--format", "json"))
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	err := execute(t, "run", "--transport", "carrier-pigeon")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestTraceNeedsArguments(t *testing.T) {
	assert.Error(t, execute(t, "trace"))
}
