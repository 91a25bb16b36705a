package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/psantana5/eventtimings/pkg/models"
)

// DefaultCategory is the trace category of events without a mapping
const DefaultCategory = "default"

// TraceLog is one participant of a trace, read from its event log file
type TraceLog struct {
	Participant string
	Path        string
}

// ParseTraceLogs parses PARTICIPANT=LOGFILE arguments
func ParseTraceLogs(args []string) ([]TraceLog, error) {
	logs := make([]TraceLog, 0, len(args))
	for _, arg := range args {
		participant, path, ok := strings.Cut(arg, "=")
		if !ok || participant == "" || path == "" {
			return nil, fmt.Errorf("invalid log argument %q, expected PARTICIPANT=LOGFILE", arg)
		}
		logs = append(logs, TraceLog{Participant: participant, Path: path})
	}
	return logs, nil
}

// TraceOptions filters and decorates the generated trace
type TraceOptions struct {
	Run             string            // only rows of this run name, all runs when empty
	NoGlobal        bool              // drop the run-wide sentinel event
	Ranks           []int             // only these ranks, all ranks when empty
	Categories      map[string]string // event name to category
	DefaultCategory string
	Pretty          bool
}

// TraceEvent is one entry of the Chrome trace event JSON array format
type TraceEvent struct {
	Name string            `json:"name"`
	Cat  string            `json:"cat,omitempty"`
	Ph   string            `json:"ph"`
	Pid  int               `json:"pid"`
	Tid  int               `json:"tid"`
	Ts   *int64            `json:"ts,omitempty"`
	Args map[string]string `json:"args,omitempty"`
}

// LoadCategoryMapping reads a JSON object mapping event names to categories
func LoadCategoryMapping(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read category mapping: %w", err)
	}
	var mapping map[string]string
	if err := json.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("failed to parse category mapping: %w", err)
	}
	return mapping, nil
}

// BuildChromeTrace converts event logs into trace events. Every participant
// becomes a process, every rank a thread of it. Running transitions open a
// duration event, any other state closes it.
func BuildChromeTrace(logs []TraceLog, opts TraceOptions) ([]TraceEvent, error) {
	if opts.DefaultCategory == "" {
		opts.DefaultCategory = DefaultCategory
	}
	wantRank := make(map[int]bool, len(opts.Ranks))
	for _, r := range opts.Ranks {
		wantRank[r] = true
	}

	var traces []TraceEvent
	for pid, log := range logs {
		traces = append(traces, TraceEvent{
			Name: "process_name",
			Ph:   "M",
			Pid:  pid,
			Args: map[string]string{"name": log.Participant},
		})

		rows, err := readEventLog(log.Path)
		if err != nil {
			return nil, err
		}

		seen := make(map[int]bool)
		for _, row := range rows {
			if opts.Run != "" && row.run != opts.Run {
				continue
			}
			if opts.NoGlobal && row.name == models.GlobalEventName {
				continue
			}
			if len(wantRank) > 0 && !wantRank[row.rank] {
				continue
			}

			if !seen[row.rank] {
				seen[row.rank] = true
				traces = append(traces, TraceEvent{
					Name: "thread_name",
					Ph:   "M",
					Pid:  pid,
					Tid:  row.rank,
					Args: map[string]string{"name": fmt.Sprintf("Rank %4d", row.rank)},
				})
			}

			cat, ok := opts.Categories[row.name]
			if !ok {
				cat = opts.DefaultCategory
			}
			ph := "E"
			if row.state == strconv.Itoa(int(models.TimerRunning)) {
				ph = "B"
			}
			ts := row.timestampMs * 1000
			traces = append(traces, TraceEvent{
				Name: row.name,
				Cat:  cat,
				Ph:   ph,
				Pid:  pid,
				Tid:  row.rank,
				Ts:   &ts,
			})
		}
	}
	return traces, nil
}

// WriteChromeTrace writes the trace of logs to w as a JSON array
func WriteChromeTrace(w io.Writer, logs []TraceLog, opts TraceOptions) error {
	traces, err := BuildChromeTrace(logs, opts)
	if err != nil {
		return err
	}
	if traces == nil {
		traces = []TraceEvent{}
	}

	enc := json.NewEncoder(w)
	if opts.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(traces)
}

type eventLogRow struct {
	run         string
	name        string
	rank        int
	timestampMs int64
	state       string
}

func readEventLog(path string) ([]eventLogRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: failed to read header: %w", path, err)
	}

	col := make(map[string]int, len(header))
	for i, h := range header {
		col[h] = i
	}
	for _, name := range []string{"RunName", "Name", "Rank", "Timestamp", "State"} {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("%s: missing column %s", path, name)
		}
	}

	var rows []eventLogRow
	for line := 2; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}

		rank, err := strconv.Atoi(rec[col["Rank"]])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: invalid rank %q", path, line, rec[col["Rank"]])
		}
		ts, err := strconv.ParseInt(rec[col["Timestamp"]], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: invalid timestamp %q", path, line, rec[col["Timestamp"]])
		}
		rows = append(rows, eventLogRow{
			run:         rec[col["RunName"]],
			name:        rec[col["Name"]],
			rank:        rank,
			timestampMs: ts,
			state:       rec[col["State"]],
		})
	}
	return rows, nil
}
