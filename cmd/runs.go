package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/listing-ledger/internal/journal"
	"github.com/sells-group/listing-ledger/internal/model"
	"github.com/sells-group/listing-ledger/internal/monitoring"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect harvest run history",
	Long:  "Commands for listing, viewing, and summarizing runs recorded in the run journal.",
}

// openJournal opens the configured journal for reading.
func openJournal(ctx context.Context) (*journal.Journal, error) {
	if cfg.Journal.Path == "" {
		return nil, eris.New("run journal disabled (journal.path is empty)")
	}
	return initJournal(ctx, cfg.Journal.Path)
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List harvest runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		j, err := openJournal(ctx)
		if err != nil {
			return err
		}
		defer j.Close() //nolint:errcheck

		status, _ := cmd.Flags().GetString("status")
		areaName, _ := cmd.Flags().GetString("area")
		limit, _ := cmd.Flags().GetInt("limit")

		runs, err := j.List(ctx, journal.RunFilter{
			Status: model.RunStatus(status),
			Area:   areaName,
			Limit:  limit,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		j, err := openJournal(ctx)
		if err != nil {
			return err
		}
		defer j.Close() //nolint:errcheck

		run, err := j.Get(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		j, err := openJournal(ctx)
		if err != nil {
			return err
		}
		defer j.Close() //nolint:errcheck

		since, _ := cmd.Flags().GetDuration("since")
		runs, err := j.List(ctx, journal.RunFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}
		if since > 0 {
			runs = runsSince(runs, time.Now().Add(-since))
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

// -- runs check --

var runsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check recent runs against health thresholds",
	Long:  "Evaluates recent runs for failure rate, source errors and areas that stopped yielding new listings. Alerts are posted to monitoring.webhook_url when set.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		j, err := openJournal(ctx)
		if err != nil {
			return err
		}
		defer j.Close() //nolint:errcheck

		checker := monitoring.NewChecker(monitoring.NewCollector(j), monitoring.NewAlerter(cfg.Monitor), cfg.Monitor)

		if watch, _ := cmd.Flags().GetBool("watch"); watch {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			checker.Run(ctx)
			return nil
		}

		alerts := checker.Check(ctx)
		if len(alerts) == 0 {
			fmt.Fprintln(os.Stderr, "No alerts.")
			return nil
		}
		formatAlerts(os.Stdout, alerts)
		return nil
	},
}

func init() {
	runsCheckCmd.Flags().Bool("watch", false, "keep checking every monitoring.check_interval_secs")

	runsListCmd.Flags().String("status", "", "filter by run status (running, complete, failed)")
	runsListCmd.Flags().String("area", "", "filter by area")
	runsListCmd.Flags().Int("limit", 50, "max number of runs to display")

	runsStatsCmd.Flags().Duration("since", 7*24*time.Hour, "time window for stats (e.g. 24h, 168h); 0 for all")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsCheckCmd)
	rootCmd.AddCommand(runsCmd)
}

func runsSince(runs []model.Run, after time.Time) []model.Run {
	var out []model.Run
	for _, r := range runs {
		if !r.StartedAt.Before(after) {
			out = append(out, r)
		}
	}
	return out
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total      int
	Complete   int
	Failed     int
	Running    int
	Saved      int
	Duplicates int
	AvgDurSecs float64
}

// computeRunStats computes aggregate statistics from a list of runs.
func computeRunStats(runs []model.Run) runStats {
	var s runStats
	s.Total = len(runs)

	var totalDur time.Duration
	var durCount int

	for _, r := range runs {
		s.Saved += r.Saved
		s.Duplicates += r.Duplicates
		switch r.Status {
		case model.RunStatusComplete:
			s.Complete++
			if r.CompletedAt != nil {
				totalDur += r.CompletedAt.Sub(r.StartedAt)
				durCount++
			}
		case model.RunStatusFailed:
			s.Failed++
		default:
			s.Running++
		}
	}

	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return s
}

// formatRunsList writes a table of runs to out.
func formatRunsList(out io.Writer, runs []model.Run) {
	t := newTable()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"ID", "Area", "Status", "Outcome", "Saved", "Dups", "Started", "Duration"})

	for _, r := range runs {
		dur := ""
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		areaName := r.Area
		if len(areaName) > 30 {
			areaName = areaName[:27] + "..."
		}
		t.AppendRow(table.Row{
			truncateID(r.ID),
			areaName,
			r.Status,
			r.Outcome,
			r.Saved,
			r.Duplicates,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		})
	}
	t.Render()
}

// formatRunStats writes aggregate stats to out.
func formatRunStats(out io.Writer, s runStats) {
	t := newTable()
	t.SetOutputMirror(out)
	t.AppendRows([]table.Row{
		{"Total runs", s.Total},
		{"Complete", s.Complete},
		{"Failed", s.Failed},
		{"Running", s.Running},
		{"Listings saved", s.Saved},
		{"Duplicates", s.Duplicates},
	})
	if s.AvgDurSecs > 0 {
		t.AppendRow(table.Row{"Avg duration", fmt.Sprintf("%.1fs", s.AvgDurSecs)})
	}
	t.Render()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// formatAlerts writes triggered alerts to out.
func formatAlerts(out io.Writer, alerts []monitoring.Alert) {
	t := newTable()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Severity", "Type", "Message"})
	for _, a := range alerts {
		t.AppendRow(table.Row{a.Severity, a.Type, a.Message})
	}
	t.Render()
}
