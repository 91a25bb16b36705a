package workload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/eventtimings/pkg/comm"
	"github.com/psantana5/eventtimings/pkg/events"
)

func TestWorkloadRecordsEveryEvent(t *testing.T) {
	w, err := comm.NewWorld(2)
	require.NoError(t, err)

	locals := make([]*events.Aggregator, 2)
	err = w.Run(func(c comm.Communicator) error {
		reg := events.NewRegistry(c)
		if err := reg.Initialize("demo", "test"); err != nil {
			return err
		}
		if err := New(0).Run(context.Background(), reg); err != nil {
			return err
		}
		if err := reg.Finalize(); err != nil {
			return err
		}
		locals[c.Rank()] = reg.Local()
		return nil
	})
	require.NoError(t, err)

	for rank, local := range locals {
		assert.Equal(t, []string{
			"Anothertestevent",
			"Paused Event",
			"Testevent",
			"_GLOBAL",
			"io",
			"phase/checkpoint",
			"phase/step",
		}, local.Names(), "rank %d", rank)

		tagged := local.Get("Testevent")
		assert.Equal(t, int64(2), tagged.Count)
		assert.Equal(t, []int64{5, 7, 8}, tagged.Data)

		step := local.Get("phase/step")
		assert.Equal(t, int64(2), step.Count)
		assert.Equal(t, []int64{0, 1}, step.Data)

		// one report for both paused iterations
		assert.Equal(t, int64(1), local.Get("io").Count)
		assert.Len(t, local.Get("io").Transitions, 5)

		paused := local.Get("Paused Event")
		assert.Len(t, paused.Transitions, 4)
	}
}

func TestWorkloadDurationsGrowWithRank(t *testing.T) {
	if testing.Short() {
		t.Skip("sleeps")
	}
	w, err := comm.NewWorld(2)
	require.NoError(t, err)

	totals := make([]time.Duration, 2)
	err = w.Run(func(c comm.Communicator) error {
		reg := events.NewRegistry(c)
		if err := reg.Initialize("demo", "scaled"); err != nil {
			return err
		}
		if err := New(0.1).Run(context.Background(), reg); err != nil {
			return err
		}
		totals[c.Rank()] = reg.Local().Get("Testevent").Total
		return reg.Finalize()
	})
	require.NoError(t, err)

	// 25ms on rank 0, 50ms on rank 1
	assert.GreaterOrEqual(t, totals[0], 25*time.Millisecond)
	assert.GreaterOrEqual(t, totals[1], 50*time.Millisecond)
}

func TestWorkloadStopsOnCancel(t *testing.T) {
	w, err := comm.NewWorld(1)
	require.NoError(t, err)
	c, err := w.Comm(0)
	require.NoError(t, err)

	reg := events.NewRegistry(c)
	require.NoError(t, reg.Initialize("demo", "canceled"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = New(1).Run(ctx, reg)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)

	// the interrupted first interval was never reported
	assert.Nil(t, reg.Local().Get("Testevent"))
}

func TestWorkloadNeedsActiveRegistry(t *testing.T) {
	w, err := comm.NewWorld(1)
	require.NoError(t, err)
	c, err := w.Comm(0)
	require.NoError(t, err)

	err = New(0).Run(context.Background(), events.NewRegistry(c))
	assert.ErrorIs(t, err, events.ErrNotActive)
}
