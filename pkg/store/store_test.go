package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psantana5/eventtimings/pkg/comm"
	"github.com/psantana5/eventtimings/pkg/events"
	"github.com/psantana5/eventtimings/pkg/models"
)

func sampleRun(id string, finalized time.Time) *models.Run {
	solve0 := models.NewEventStatistic("solve", 0)
	solve0.Put(100*time.Millisecond, []models.Transition{
		{State: models.TimerRunning, At: finalized.Add(-time.Second)},
		{State: models.TimerPaused, At: finalized.Add(-900 * time.Millisecond)},
		{State: models.TimerStopped, At: finalized.Add(-800 * time.Millisecond)},
	}, []int64{3, 1, 3})
	solve1 := models.NewEventStatistic("solve", 1)
	solve1.Put(300*time.Millisecond, nil, nil)
	io0 := models.NewEventStatistic("io", 0)
	io0.Put(5*time.Millisecond, nil, []int64{-1})

	return &models.Run{
		ID:          id,
		AppName:     "demo",
		RunName:     "run",
		FinalizedAt: finalized,
		Ranks:       2,
		Duration:    2 * time.Second,
		Events:      []*models.EventStatistic{io0, solve0, solve1},
	}
}

// testStoreContract exercises the behavior every Store must share
func testStoreContract(t *testing.T, s Store) {
	t.Helper()
	require.NoError(t, s.HealthCheck())

	older := time.Unix(1700000000, 0)
	newer := older.Add(time.Hour)
	require.NoError(t, s.SaveRun(sampleRun("run-a", older)))
	require.NoError(t, s.SaveRun(sampleRun("run-b", newer)))

	assert.ErrorIs(t, s.SaveRun(sampleRun("run-a", older)), ErrRunExists)

	got, err := s.GetRun("run-a")
	require.NoError(t, err)
	want := sampleRun("run-a", older)
	assert.Equal(t, want.AppName, got.AppName)
	assert.Equal(t, want.Ranks, got.Ranks)
	assert.Equal(t, want.Duration, got.Duration)
	assert.True(t, want.FinalizedAt.Equal(got.FinalizedAt))
	require.Len(t, got.Events, 3)

	byKey := make(map[string]*models.EventStatistic)
	for _, e := range got.Events {
		byKey[e.Name+"/"+string(rune('0'+e.Rank))] = e
	}
	solve0 := byKey["solve/0"]
	require.NotNil(t, solve0)
	assert.Equal(t, int64(1), solve0.Count)
	assert.Equal(t, 100*time.Millisecond, solve0.Total)
	assert.Equal(t, []int64{3, 1, 3}, solve0.Data)
	require.Len(t, solve0.Transitions, 3)
	assert.Equal(t, models.TimerPaused, solve0.Transitions[1].State)
	assert.True(t, want.Events[1].Transitions[1].At.Equal(solve0.Transitions[1].At))
	assert.Empty(t, byKey["solve/1"].Data)

	stats := got.GlobalStats()["solve"]
	assert.Equal(t, 1, stats.MaxRank)
	assert.Equal(t, 0, stats.MinRank)

	infos, err := s.ListRuns()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "run-b", infos[0].ID, "most recent first")
	assert.Equal(t, 2, infos[0].EventCount)

	require.NoError(t, s.DeleteRun("run-a"))
	_, err = s.GetRun("run-a")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, s.DeleteRun("run-a"), ErrRunNotFound)

	infos, err = s.ListRuns()
	require.NoError(t, err)
	assert.Len(t, infos, 1)
}

func TestMemoryStore(t *testing.T) {
	s, err := NewStore(Config{Type: "memory"})
	require.NoError(t, err)
	defer s.Close()

	testStoreContract(t, s)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	run := sampleRun("copy", time.Now())
	require.NoError(t, s.SaveRun(run))

	run.Events[0].Count = 99
	got, err := s.GetRun("copy")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Events[0].Count)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := NewStore(Config{Type: "sqlite", Path: path})
	require.NoError(t, err)
	defer s.Close()

	testStoreContract(t, s)
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveRun(sampleRun("persisted", time.Now())))
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.GetRun("persisted")
	require.NoError(t, err)
	assert.Len(t, got.Events, 3)
}

// Set DATABASE_DSN to run against a real PostgreSQL: export DATABASE_DSN="postgresql://..."
func TestPostgreSQLStore(t *testing.T) {
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		t.Skip("Skipping PostgreSQL integration test: DATABASE_DSN not set")
	}

	s, err := NewStore(Config{Type: "postgres", DSN: dsn})
	require.NoError(t, err)
	defer s.Close()

	for _, id := range []string{"run-a", "run-b"} {
		s.DeleteRun(id)
	}
	testStoreContract(t, s)
	s.DeleteRun("run-b")
}

func TestNewStoreUnsupported(t *testing.T) {
	_, err := NewStore(Config{Type: "mongodb"})
	assert.ErrorIs(t, err, ErrUnsupportedDatabase)

	_, err = NewStore(Config{Type: "postgres"})
	assert.Error(t, err, "postgres requires a DSN")
}

func TestRebind(t *testing.T) {
	pg := dialect{positional: true}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := dialect{}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestFromRegistry(t *testing.T) {
	w, err := comm.NewWorld(1)
	require.NoError(t, err)
	c, err := w.Comm(0)
	require.NoError(t, err)
	reg := events.NewRegistry(c)

	_, err = FromRegistry(reg)
	assert.ErrorIs(t, err, events.ErrNotFinalized)

	require.NoError(t, reg.Initialize("demo", "stored"))
	reg.AddEvent("load", 20*time.Millisecond)
	require.NoError(t, reg.Finalize())

	run, err := FromRegistry(reg)
	require.NoError(t, err)
	assert.Equal(t, reg.RunID(), run.ID)
	assert.Equal(t, "stored", run.RunName)
	assert.Equal(t, 1, run.Ranks)
	require.Len(t, run.Events, 2)
	assert.Equal(t, models.GlobalEventName, run.Events[0].Name)
	assert.Equal(t, "load", run.Events[1].Name)

	s := NewMemoryStore()
	require.NoError(t, s.SaveRun(run))
}
