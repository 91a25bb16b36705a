package report

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/eventtimings/pkg/comm"
	"github.com/psantana5/eventtimings/pkg/events"
)

var runStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// finalizedRun runs a two-rank epoch of one second on mock clocks. Every rank
// records "solve" for (rank+1)*100ms and one "step" interval of 250ms tagged
// with its rank.
func finalizedRun(t *testing.T) []*events.Registry {
	t.Helper()
	const size = 2
	w, err := comm.NewWorld(size)
	require.NoError(t, err)

	var mu sync.Mutex
	regs := make([]*events.Registry, size)
	err = w.Run(func(c comm.Communicator) error {
		mock := clock.NewMock()
		mock.Set(runStart)
		reg := events.NewRegistry(c, events.WithClock(mock))
		if err := reg.Initialize("demo", "run1"); err != nil {
			return err
		}

		reg.AddEvent("solve", time.Duration(c.Rank()+1)*100*time.Millisecond)
		step, err := reg.NewTimer("step")
		if err != nil {
			return err
		}
		step.AddTags(int64(c.Rank()), 7)
		mock.Add(250 * time.Millisecond)
		if err := step.Stop(); err != nil {
			return err
		}
		mock.Add(750 * time.Millisecond)

		if err := reg.Finalize(); err != nil {
			return err
		}
		mu.Lock()
		regs[c.Rank()] = reg
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	return regs
}

func unfinalized(t *testing.T) *events.Registry {
	t.Helper()
	w, err := comm.NewWorld(1)
	require.NoError(t, err)
	c, err := w.Comm(0)
	require.NoError(t, err)
	return events.NewRegistry(c)
}
