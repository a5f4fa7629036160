package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-ledger/internal/journal"
	"github.com/sells-group/listing-ledger/internal/model"
)

// stubRuns implements RunLister for testing.
type stubRuns struct {
	runs []model.Run
	err  error
}

func (s *stubRuns) List(_ context.Context, _ journal.RunFilter) ([]model.Run, error) {
	return s.runs, s.err
}

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func run(areaName string, status model.RunStatus, outcome string, saved int, ago time.Duration) model.Run {
	return model.Run{
		ID:        areaName + ago.String(),
		Area:      areaName,
		Status:    status,
		Outcome:   outcome,
		Saved:     saved,
		StartedAt: fixedNow.Add(-ago),
	}
}

func newTestCollector(runs ...model.Run) *Collector {
	c := NewCollector(&stubRuns{runs: runs})
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestCollector_Collect(t *testing.T) {
	c := newTestCollector(
		run("Indiranagar", model.RunStatusComplete, "count_reached", 10, time.Hour),
		run("Indiranagar", model.RunStatusFailed, "source_error", 2, 2*time.Hour),
		run("Jayanagar", model.RunStatusRunning, "", 0, 3*time.Hour),
		run("Jayanagar", model.RunStatusComplete, "exhausted", 4, 48*time.Hour), // outside window
	)

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.RunsTotal)
	assert.Equal(t, 1, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.Equal(t, 1, snap.SourceErrors)
	assert.Equal(t, 12, snap.Saved)
	assert.InDelta(t, 0.5, snap.FailRate, 0.001)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.Equal(t, fixedNow, snap.CollectedAt)
}

func TestCollector_Empty(t *testing.T) {
	snap, err := newTestCollector().Collect(context.Background(), 24)
	require.NoError(t, err)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.FailRate)
	assert.Empty(t, snap.DryStreaks)
}

func TestCollector_ListError(t *testing.T) {
	c := NewCollector(&stubRuns{err: errors.New("db closed")})
	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}

func TestDryStreaks(t *testing.T) {
	runs := []model.Run{
		// Newest first after sorting: two dry complete runs, a failed run
		// that is skipped, then a productive run that ends the streak.
		run("Indiranagar", model.RunStatusComplete, "exhausted", 0, time.Hour),
		run("Indiranagar", model.RunStatusFailed, "source_error", 0, 2*time.Hour),
		run("Indiranagar", model.RunStatusComplete, "no_results", 0, 3*time.Hour),
		run("Indiranagar", model.RunStatusComplete, "count_reached", 5, 4*time.Hour),
		run("Indiranagar", model.RunStatusComplete, "exhausted", 0, 5*time.Hour),
		run("Jayanagar", model.RunStatusComplete, "count_reached", 3, time.Hour),
	}

	streaks := dryStreaks(runs)
	assert.Equal(t, map[string]int{"Indiranagar": 2}, streaks)
}
