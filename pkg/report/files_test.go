package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/psantana5/eventtimings/pkg/events"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestWriteCSVAppends(t *testing.T) {
	regs := finalizedRun(t)
	path := filepath.Join(t.TempDir(), "demo-eventTimings.log")

	require.NoError(t, WriteCSV(path, regs[0]))
	require.NoError(t, WriteCSV(path, regs[0]))

	lines := readLines(t, path)
	// header once, then per run two comments and six rows
	require.Len(t, lines, 1+2*(2+6))
	assert.Equal(t, "Timestamp,RunName,Rank,Name,Count,Total,Min,Max,Avg,T%,Data", lines[0])
	assert.Equal(t, "# Number of processors: 2", lines[2])
	assert.True(t, strings.HasPrefix(lines[1], "# Run finished at: "))

	ts := regs[0].Timestamp().Local().Format("2006-01-02T15:04:05.000")
	assert.Contains(t, lines, ts+",run1,0,_GLOBAL,1,1000,1000,1000,1000,100,[]")
	assert.Contains(t, lines, ts+",run1,1,solve,1,200,200,200,200,20,[]")
	assert.Contains(t, lines, ts+`,run1,1,step,1,250,250,250,250,25,"[1,7]"`)
}

func TestWriteCSVCoordinatorOnly(t *testing.T) {
	regs := finalizedRun(t)
	path := filepath.Join(t.TempDir(), "out.csv")

	assert.ErrorIs(t, WriteCSV(path, regs[1]), ErrNotCoordinator)
	assert.NoFileExists(t, path)

	assert.ErrorIs(t, WriteCSV(path, unfinalized(t)), events.ErrNotFinalized)
}

func TestWriteEventLog(t *testing.T) {
	regs := finalizedRun(t)
	path := filepath.Join(t.TempDir(), "demo-events.log")
	require.NoError(t, WriteEventLog(path, regs[0]))

	lines := readLines(t, path)
	require.Len(t, lines, 1+8)
	assert.Equal(t, "RunTimestamp,RunName,Name,Rank,Timestamp,State", lines[0])

	start := strconv.FormatInt(runStart.UnixMilli(), 10)
	stepEnd := strconv.FormatInt(runStart.Add(250*time.Millisecond).UnixMilli(), 10)
	runTS := regs[0].Timestamp().Local().Format("2006-01-02T15:04:05.000")
	assert.Equal(t, runTS+",run1,_GLOBAL,0,"+start+",1", lines[1])
	assert.Contains(t, lines, runTS+",run1,step,1,"+stepEnd+",0")

	require.NoError(t, WriteEventLog(path, regs[0]))
	assert.Len(t, readLines(t, path), 1+16, "header is not repeated")
}

func TestChromeTrace(t *testing.T) {
	regs := finalizedRun(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "events.log")
	require.NoError(t, WriteEventLog(path, regs[0]))

	logs, err := ParseTraceLogs([]string{"solver=" + path})
	require.NoError(t, err)

	traces, err := BuildChromeTrace(logs, TraceOptions{})
	require.NoError(t, err)
	// process name, two thread names, eight transitions
	require.Len(t, traces, 11)

	assert.Equal(t, "process_name", traces[0].Name)
	assert.Equal(t, "M", traces[0].Ph)
	assert.Equal(t, "solver", traces[0].Args["name"])
	assert.Nil(t, traces[0].Ts)

	assert.Equal(t, "thread_name", traces[1].Name)
	assert.Equal(t, "Rank    0", traces[1].Args["name"])

	first := traces[2]
	assert.Equal(t, "_GLOBAL", first.Name)
	assert.Equal(t, "B", first.Ph)
	assert.Equal(t, DefaultCategory, first.Cat)
	require.NotNil(t, first.Ts)
	assert.Equal(t, runStart.UnixMilli()*1000, *first.Ts)

	var begins, ends int
	for _, tr := range traces {
		switch tr.Ph {
		case "B":
			begins++
		case "E":
			ends++
		}
	}
	assert.Equal(t, 4, begins)
	assert.Equal(t, 4, ends)
}

func TestChromeTraceFilters(t *testing.T) {
	regs := finalizedRun(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "events.log")
	require.NoError(t, WriteEventLog(path, regs[0]))

	mapping := filepath.Join(dir, "mapping.json")
	require.NoError(t, os.WriteFile(mapping, []byte(`{"step": "compute"}`), 0644))
	categories, err := LoadCategoryMapping(mapping)
	require.NoError(t, err)

	logs := []TraceLog{{Participant: "p", Path: path}}

	tests := []struct {
		name string
		opts TraceOptions
		want int
	}{
		{"no global", TraceOptions{NoGlobal: true}, 1 + 2 + 4},
		{"one rank", TraceOptions{Ranks: []int{1}}, 1 + 1 + 4},
		{"other run", TraceOptions{Run: "run2"}, 1},
		{"same run", TraceOptions{Run: "run1", NoGlobal: true, Ranks: []int{0}}, 1 + 1 + 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Categories = categories
			traces, err := BuildChromeTrace(logs, tt.opts)
			require.NoError(t, err)
			assert.Len(t, traces, tt.want)
			for _, tr := range traces {
				if tr.Name == "step" {
					assert.Equal(t, "compute", tr.Cat)
				}
			}
		})
	}

	var buf bytes.Buffer
	require.NoError(t, WriteChromeTrace(&buf, logs, TraceOptions{Run: "none", Pretty: true}))
	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Len(t, decoded, 1)
}

func TestParseTraceLogsRejectsBadArgs(t *testing.T) {
	for _, arg := range []string{"nofile", "=x.log", "p="} {
		_, err := ParseTraceLogs([]string{arg})
		assert.Error(t, err, arg)
	}
}

func TestSummary(t *testing.T) {
	regs := finalizedRun(t)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, regs[0], "json"))

	var s Summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &s))
	assert.Equal(t, regs[0].RunID(), s.RunID)
	assert.Equal(t, "demo", s.AppName)
	assert.Equal(t, 2, s.Ranks)
	assert.Equal(t, int64(1000), s.DurationMs)
	assert.Len(t, s.Events, 6)
	require.Len(t, s.GlobalStats, 3)
	assert.Equal(t, "solve", s.GlobalStats[1].Name)
	assert.Equal(t, 1, s.GlobalStats[1].MaxRank)
	assert.InDelta(t, 0.5, s.GlobalStats[1].Ratio, 1e-9)

	buf.Reset()
	require.NoError(t, WriteSummary(&buf, regs[1], "yaml"))
	var local Summary
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &local))
	assert.Equal(t, 1, local.Rank)
	assert.Len(t, local.Events, 3, "non-coordinators only know their own events")
	assert.Empty(t, local.GlobalStats)

	assert.Error(t, WriteSummary(&buf, regs[0], "xml"))
}

func TestPrometheusText(t *testing.T) {
	regs := finalizedRun(t)

	var buf bytes.Buffer
	require.NoError(t, WritePrometheusText(&buf, regs[0]))
	out := buf.String()

	assert.Contains(t, out, `evtimings_event_count{event="solve",rank="1"} 1`)
	assert.Contains(t, out, `evtimings_event_total_seconds{event="step",rank="0"} 0.25`)
	assert.Contains(t, out, `evtimings_event_time_percent{event="solve",rank="0"} 10`)
	assert.Contains(t, out, `evtimings_event_imbalance_ratio{event="solve"} 0.5`)
	assert.Contains(t, out, `evtimings_event_max_rank{event="solve"} 1`)
	assert.Contains(t, out, `evtimings_run_duration_seconds{app="demo",run="run1"} 1`)

	path := filepath.Join(t.TempDir(), "evtimings.prom")
	require.NoError(t, WritePrometheusFile(path, regs[0]))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, out, string(data))
}

func TestEmitAll(t *testing.T) {
	regs := finalizedRun(t)
	dir := t.TempDir()

	var stdout bytes.Buffer
	err := EmitAll(regs[0], EmitConfig{
		OutputDir:      dir,
		Stdout:         &stdout,
		ChromeTrace:    true,
		SummaryFormat:  "yaml",
		PrometheusFile: filepath.Join(dir, "metrics.prom"),
	})
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "Global runtime")
	assert.FileExists(t, filepath.Join(dir, "demo-eventTimings.log"))
	assert.FileExists(t, filepath.Join(dir, "demo-events.log"))
	assert.FileExists(t, filepath.Join(dir, "demo-summary.yaml"))
	assert.FileExists(t, filepath.Join(dir, "metrics.prom"))

	trace, err := os.ReadFile(filepath.Join(dir, "demo-trace.json"))
	require.NoError(t, err)
	assert.Contains(t, string(trace), `"name":"step"`)

	otherDir := t.TempDir()
	require.NoError(t, EmitAll(regs[1], EmitConfig{OutputDir: otherDir, Stdout: &stdout}))
	entries, err := os.ReadDir(otherDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEmitAllSkipsDisabledOutputs(t *testing.T) {
	regs := finalizedRun(t)
	dir := t.TempDir()

	var stdout bytes.Buffer
	err := EmitAll(regs[0], EmitConfig{
		OutputDir: dir,
		Stdout:    &stdout,
		SkipTable: true,
		SkipCSV:   true,
	})
	require.NoError(t, err)

	assert.Empty(t, stdout.String())
	assert.NoFileExists(t, filepath.Join(dir, "demo-eventTimings.log"))
	assert.FileExists(t, filepath.Join(dir, "demo-events.log"))
}

func TestFileNames(t *testing.T) {
	csvFile, logFile := FileNames("")
	assert.Equal(t, "EventTimings.log", csvFile)
	assert.Equal(t, "Events.log", logFile)

	csvFile, logFile = FileNames("solver")
	assert.Equal(t, "solver-eventTimings.log", csvFile)
	assert.Equal(t, "solver-events.log", logFile)
}
