package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/psantana5/eventtimings/pkg/events"
	"github.com/psantana5/eventtimings/pkg/hostinfo"
)

// EmitConfig selects the outputs written by EmitAll
type EmitConfig struct {
	OutputDir      string    // directory of the CSV and event log files, "." when empty
	Stdout         io.Writer // table destination, os.Stdout when nil
	Host           *hostinfo.Info
	SkipTable      bool
	SkipCSV        bool
	SkipEventLog   bool
	ChromeTrace    bool   // convert the event log to <app>-trace.json, needs the event log
	SummaryFormat  string // "json" or "yaml" to write a summary file, none when empty
	PrometheusFile string // textfile collector output, none when empty
}

// FileNames returns the CSV and event log file names for an application
func FileNames(appName string) (csvFile, logFile string) {
	if appName == "" {
		return "EventTimings.log", "Events.log"
	}
	return appName + "-eventTimings.log", appName + "-events.log"
}

// EmitAll prints the table and writes every configured file. Only the
// coordinator emits; other ranks return nil. All outputs are attempted and
// their errors combined.
func EmitAll(reg *events.Registry, cfg EmitConfig) error {
	if !reg.IsCoordinator() {
		return nil
	}
	if err := checkFinalized(reg); err != nil {
		return err
	}

	out := cfg.Stdout
	if out == nil {
		out = os.Stdout
	}
	dir := cfg.OutputDir
	if dir == "" {
		dir = "."
	}

	var err error
	if !cfg.SkipTable {
		err = multierr.Append(err, WriteTable(out, reg, cfg.Host))
	}

	if mkErr := os.MkdirAll(dir, 0755); mkErr != nil {
		return multierr.Append(err, fmt.Errorf("failed to create output directory: %w", mkErr))
	}
	csvFile, logFile := FileNames(reg.AppName())
	if !cfg.SkipCSV {
		err = multierr.Append(err, WriteCSV(filepath.Join(dir, csvFile), reg))
	}
	if !cfg.SkipEventLog {
		logPath := filepath.Join(dir, logFile)
		logErr := WriteEventLog(logPath, reg)
		err = multierr.Append(err, logErr)
		if cfg.ChromeTrace && logErr == nil {
			err = multierr.Append(err, writeTraceFile(dir, logPath, reg))
		}
	}

	if cfg.SummaryFormat != "" {
		err = multierr.Append(err, writeSummaryFile(dir, reg, cfg.SummaryFormat))
	}

	if cfg.PrometheusFile != "" {
		err = multierr.Append(err, WritePrometheusFile(cfg.PrometheusFile, reg))
	}
	return err
}

// writeTraceFile converts the event log of this run only, the log file
// itself keeps every run appended to it
func writeTraceFile(dir, logPath string, reg *events.Registry) error {
	name := "trace.json"
	if reg.AppName() != "" {
		name = reg.AppName() + "-" + name
	}

	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("failed to create trace file: %w", err)
	}
	participant := reg.AppName()
	if participant == "" {
		participant = "run"
	}
	logs := []TraceLog{{Participant: participant, Path: logPath}}
	if err := WriteChromeTrace(f, logs, TraceOptions{Run: reg.RunName()}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeSummaryFile(dir string, reg *events.Registry, format string) error {
	name := "summary." + format
	if reg.AppName() != "" {
		name = reg.AppName() + "-" + name
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	if err := WriteSummary(f, reg, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
