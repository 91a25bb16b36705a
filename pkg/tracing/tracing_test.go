package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/psantana5/eventtimings/pkg/comm"
	"github.com/psantana5/eventtimings/pkg/events"
)

func newRecorder() (*tracetest.SpanRecorder, *Provider) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return sr, NewProvider(tp, "evtimings-test")
}

func finalizedGlobal(t *testing.T) (*events.GlobalEvents, time.Time) {
	t.Helper()
	w, err := comm.NewWorld(1)
	require.NoError(t, err)
	c, err := w.Comm(0)
	require.NoError(t, err)

	mock := clock.NewMock()
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.Set(start)

	reg := events.NewRegistry(c, events.WithClock(mock))
	require.NoError(t, reg.Initialize("app", "trace-run"))

	tm, err := reg.NewTimer("solve")
	require.NoError(t, err)
	mock.Add(100 * time.Millisecond)
	require.NoError(t, tm.Pause())
	mock.Add(50 * time.Millisecond)
	require.NoError(t, tm.Start())
	mock.Add(20 * time.Millisecond)
	require.NoError(t, tm.Stop())

	require.NoError(t, reg.Finalize())
	return reg.Global(), start
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestExportEvents(t *testing.T) {
	sr, provider := newRecorder()
	global, start := finalizedGlobal(t)

	n := ExportEvents(context.Background(), provider.Tracer(), "trace-run", global)

	// solve is split by its pause, the sentinel spans the whole run
	assert.Equal(t, 3, n)

	spans := sr.Ended()
	require.Len(t, spans, 4)

	var root sdktrace.ReadOnlySpan
	var solve []sdktrace.ReadOnlySpan
	for _, s := range spans {
		switch s.Name() {
		case "trace-run":
			root = s
		case "solve":
			solve = append(solve, s)
		}
	}
	require.NotNil(t, root)
	require.Len(t, solve, 2)

	assert.Equal(t, start, root.StartTime())
	assert.Equal(t, start.Add(170*time.Millisecond), root.EndTime())

	assert.Equal(t, start, solve[0].StartTime())
	assert.Equal(t, start.Add(100*time.Millisecond), solve[0].EndTime())
	assert.Equal(t, start.Add(150*time.Millisecond), solve[1].StartTime())
	assert.Equal(t, start.Add(170*time.Millisecond), solve[1].EndTime())

	for _, s := range solve {
		assert.Equal(t, root.SpanContext().SpanID(), s.Parent().SpanID())

		rank, ok := attrValue(s.Attributes(), "event.rank")
		require.True(t, ok)
		assert.Equal(t, int64(0), rank.AsInt64())

		count, ok := attrValue(s.Attributes(), "event.count")
		require.True(t, ok)
		assert.Equal(t, int64(1), count.AsInt64())
	}
}

func TestExportEventsNothingCollected(t *testing.T) {
	sr, provider := newRecorder()

	assert.Equal(t, 0, ExportEvents(context.Background(), provider.Tracer(), "run", nil))
	assert.Empty(t, sr.Ended())
}

func TestInitTracerDisabled(t *testing.T) {
	provider, err := InitTracer(Config{ServiceName: "evtimings"}, nil)
	require.NoError(t, err)
	require.NotNil(t, provider.Tracer())
	assert.NoError(t, provider.Shutdown(context.Background()))
}

func TestHTTPMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		status int
		isErr  bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "not found", status: http.StatusNotFound, isErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr, provider := newRecorder()
			h := HTTPMiddleware(provider)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/barrier", nil))
			assert.Equal(t, tt.status, rec.Code)

			spans := sr.Ended()
			require.Len(t, spans, 1)
			assert.Equal(t, "GET /v1/barrier", spans[0].Name())

			code, ok := attrValue(spans[0].Attributes(), "http.status_code")
			require.True(t, ok)
			assert.Equal(t, int64(tt.status), code.AsInt64())

			_, flagged := attrValue(spans[0].Attributes(), "error")
			assert.Equal(t, tt.isErr, flagged)
		})
	}
}
