package report

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/psantana5/eventtimings/pkg/events"
)

// PrometheusRegistry exposes the statistics of reg as gauges on a fresh
// registry, suitable for a textfile collector or a push
func PrometheusRegistry(reg *events.Registry) (*prometheus.Registry, error) {
	if err := checkFinalized(reg); err != nil {
		return nil, err
	}

	eventLabels := []string{"event", "rank"}
	count := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "evtimings_event_count",
		Help: "Number of reported intervals per event and rank",
	}, eventLabels)
	total := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "evtimings_event_total_seconds",
		Help: "Total duration per event and rank",
	}, eventLabels)
	minimum := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "evtimings_event_min_seconds",
		Help: "Shortest interval per event and rank",
	}, eventLabels)
	maximum := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "evtimings_event_max_seconds",
		Help: "Longest interval per event and rank",
	}, eventLabels)
	avg := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "evtimings_event_avg_seconds",
		Help: "Mean interval per event and rank",
	}, eventLabels)
	percent := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "evtimings_event_time_percent",
		Help: "Total duration as percentage of the run duration",
	}, eventLabels)

	ratio := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "evtimings_event_imbalance_ratio",
		Help: "Smallest min over largest max across ranks",
	}, []string{"event"})
	maxRank := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "evtimings_event_max_rank",
		Help: "Rank holding the largest max",
	}, []string{"event"})
	minRank := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "evtimings_event_min_rank",
		Help: "Rank holding the smallest min",
	}, []string{"event"})

	runDuration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "evtimings_run_duration_seconds",
		Help:        "Duration of the run-wide sentinel event",
		ConstLabels: prometheus.Labels{"app": reg.AppName(), "run": reg.RunName()},
	})

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(count, total, minimum, maximum, avg, percent, ratio, maxRank, minRank, runDuration)

	for _, s := range statistics(reg) {
		rank := strconv.Itoa(s.Rank)
		count.WithLabelValues(s.Name, rank).Set(float64(s.Count))
		total.WithLabelValues(s.Name, rank).Set(s.Total.Seconds())
		minimum.WithLabelValues(s.Name, rank).Set(s.Min.Seconds())
		maximum.WithLabelValues(s.Name, rank).Set(s.Max.Seconds())
		avg.WithLabelValues(s.Name, rank).Set(s.Avg().Seconds())
		percent.WithLabelValues(s.Name, rank).Set(float64(s.TimePercentage(reg.Duration())))
	}
	for name, gs := range reg.GlobalStats() {
		ratio.WithLabelValues(name).Set(gs.Ratio())
		maxRank.WithLabelValues(name).Set(float64(gs.MaxRank))
		minRank.WithLabelValues(name).Set(float64(gs.MinRank))
	}
	runDuration.Set(reg.Duration().Seconds())

	return promReg, nil
}

// WritePrometheusText writes the statistics of reg in the text exposition format
func WritePrometheusText(w io.Writer, reg *events.Registry) error {
	promReg, err := PrometheusRegistry(reg)
	if err != nil {
		return err
	}

	families, err := promReg.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	encoder := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := encoder.Encode(mf); err != nil {
			return fmt.Errorf("failed to encode metric %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WritePrometheusFile atomically replaces path with the text exposition of reg
func WritePrometheusFile(path string, reg *events.Registry) error {
	var buf bytes.Buffer
	if err := WritePrometheusText(&buf, reg); err != nil {
		return err
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move metrics file into place: %w", err)
	}
	return nil
}
