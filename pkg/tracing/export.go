package tracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/psantana5/eventtimings/pkg/events"
	"github.com/psantana5/eventtimings/pkg/models"
)

// ExportEvents turns the transition logs of every collected statistic into
// spans: each Running transition opens a span that the next Paused or
// Stopped transition ends. Spans of one run share a root span named after
// the run. It returns the number of event spans created.
func ExportEvents(ctx context.Context, tracer trace.Tracer, runName string, global *events.GlobalEvents) int {
	start, end, ok := bounds(global)
	if !ok {
		return 0
	}

	if runName == "" {
		runName = "run"
	}
	ctx, root := tracer.Start(ctx, runName,
		trace.WithTimestamp(start),
		trace.WithAttributes(attribute.Int("run.ranks", global.Size())),
	)

	n := 0
	global.Each(func(name string, stats []*models.EventStatistic) {
		for _, s := range stats {
			attrs := []attribute.KeyValue{
				attribute.Int("event.rank", s.Rank),
				attribute.Int64("event.count", s.Count),
			}

			var open *models.Transition
			for i := range s.Transitions {
				tr := &s.Transitions[i]
				switch {
				case tr.State == models.TimerRunning:
					if open == nil {
						open = tr
					}
				case open != nil:
					_, span := tracer.Start(ctx, name,
						trace.WithTimestamp(open.At),
						trace.WithAttributes(attrs...),
					)
					span.End(trace.WithTimestamp(tr.At))
					open = nil
					n++
				}
			}
		}
	})

	root.End(trace.WithTimestamp(end))
	return n
}

// bounds returns the earliest and latest transition of all statistics
func bounds(global *events.GlobalEvents) (start, end time.Time, ok bool) {
	if global == nil {
		return time.Time{}, time.Time{}, false
	}
	global.Each(func(_ string, stats []*models.EventStatistic) {
		for _, s := range stats {
			for _, tr := range s.Transitions {
				if !ok || tr.At.Before(start) {
					start = tr.At
				}
				if !ok || tr.At.After(end) {
					end = tr.At
				}
				ok = true
			}
		}
	})
	return start, end, ok
}
