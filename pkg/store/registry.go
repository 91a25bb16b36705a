package store

import (
	"fmt"

	"github.com/psantana5/eventtimings/pkg/events"
	"github.com/psantana5/eventtimings/pkg/models"
)

// FromRegistry builds the persisted form of a finalized coordinator registry
func FromRegistry(reg *events.Registry) (*models.Run, error) {
	if reg.State() != models.RegistryFinalized {
		return nil, fmt.Errorf("%w: registry is %s", events.ErrNotFinalized, reg.State())
	}
	global := reg.Global()
	if global == nil {
		return nil, fmt.Errorf("rank %d holds no global events, only the coordinator can be stored", reg.Rank())
	}

	run := &models.Run{
		ID:          reg.RunID(),
		AppName:     reg.AppName(),
		RunName:     reg.RunName(),
		FinalizedAt: reg.Timestamp(),
		Ranks:       reg.Size(),
		Duration:    reg.Duration(),
	}
	global.Each(func(_ string, stats []*models.EventStatistic) {
		for _, s := range stats {
			run.Events = append(run.Events, s.Clone())
		}
	})
	return run, nil
}
