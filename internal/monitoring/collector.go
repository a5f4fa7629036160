package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-ledger/internal/journal"
	"github.com/sells-group/listing-ledger/internal/model"
)

// MetricsSnapshot holds a point-in-time view of harvest health.
type MetricsSnapshot struct {
	// Runs started within the lookback window.
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	FailRate     float64 `json:"fail_rate"`
	SourceErrors int     `json:"source_errors"`
	Saved        int     `json:"saved"`
	Duplicates   int     `json:"duplicates"`

	// DryStreaks maps an area to its count of most recent consecutive
	// complete runs that saved nothing.
	DryStreaks map[string]int `json:"dry_streaks,omitempty"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister abstracts the journal query the collector needs.
type RunLister interface {
	List(ctx context.Context, f journal.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from the run journal.
type Collector struct {
	runs RunLister
	now  func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(runs RunLister) *Collector {
	return &Collector{runs: runs, now: time.Now}
}

// Collect gathers a snapshot of harvest metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	all, err := c.runs.List(ctx, journal.RunFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	var runs []model.Run
	for _, r := range all {
		if r.StartedAt.Before(cutoff) {
			continue
		}
		runs = append(runs, r)
	}

	snap.RunsTotal = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		default:
			snap.RunsRunning++
		}
		if r.Outcome == "source_error" {
			snap.SourceErrors++
		}
		snap.Saved += r.Saved
		snap.Duplicates += r.Duplicates
	}
	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.FailRate = float64(snap.RunsFailed) / float64(finished)
	}
	snap.DryStreaks = dryStreaks(runs)
	return snap, nil
}

// dryStreaks counts, per area, the newest complete runs that saved nothing.
// A complete run with saves ends the streak; failed and running runs are
// skipped.
func dryStreaks(runs []model.Run) map[string]int {
	sorted := make([]model.Run, len(runs))
	copy(sorted, runs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StartedAt.After(sorted[j].StartedAt)
	})

	streaks := make(map[string]int)
	ended := make(map[string]bool)
	for _, r := range sorted {
		if r.Status != model.RunStatusComplete || ended[r.Area] {
			continue
		}
		if r.Saved > 0 {
			ended[r.Area] = true
			continue
		}
		streaks[r.Area]++
	}
	return streaks
}
