package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/sells-group/listing-ledger/internal/area"
	"github.com/sells-group/listing-ledger/internal/pipeline"
)

// defaultCount applies when no count is given or the given one is invalid.
const defaultCount = 50

var (
	runArea  string
	runCount int
	runJSON  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Harvest new listings for an area",
	Long:  "Searches the configured source for listings in an area, saves new ones to a fresh run workbook and records repeats in the duplicate ledger.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer env.Close()

		interactive := isInteractive()
		name := strings.TrimSpace(runArea)
		if name == "" && interactive {
			if name, err = askArea(ctx, "Area to search", ""); err != nil {
				return eris.Wrapf(area.ErrFatalPrecondition, "read area: %v", err)
			}
		}
		if name == "" {
			return eris.Wrap(area.ErrFatalPrecondition, "an area is required (--area)")
		}

		count := runCount
		if !cmd.Flags().Changed("count") && interactive {
			raw, err := askCount(ctx)
			if err != nil {
				return eris.Wrap(err, "read count")
			}
			count = parseCount(raw)
		}
		if count <= 0 {
			zap.L().Warn("invalid count, using default", zap.Int("count", count), zap.Int("default", defaultCount))
			count = defaultCount
		}

		var prompt area.Prompt
		if interactive {
			prompt = func(ctx context.Context, attempt int, reason error) (string, error) {
				return askArea(ctx, "Area not recognized, try again", reason.Error())
			}
		}
		validated, err := area.NewValidator(env.Source, areaOptions(cfg, prompt)).Validate(ctx, name)
		if err != nil {
			return err
		}

		var j pipeline.Journal
		if env.Journal != nil {
			j = env.Journal
		}
		result, runErr := pipeline.New(env.Source, j, runOptions(cfg, env.Schema, validated, count)).Run(ctx)
		if result != nil {
			if runJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				renderSummary(os.Stdout, validated, count, result)
			}
		}
		if runErr != nil {
			return eris.Wrap(runErr, "run")
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runArea, "area", "", "area to search, e.g. Indiranagar (prompted when omitted)")
	runCmd.Flags().IntVar(&runCount, "count", defaultCount, "number of listings to process")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the run result as JSON")
	rootCmd.AddCommand(runCmd)
}

// isInteractive reports whether prompts can be shown.
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// parseCount reads a listing count. Anything that is not a positive integer
// yields defaultCount.
func parseCount(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return defaultCount
	}
	return n
}

func askArea(ctx context.Context, title, reason string) (string, error) {
	var name string
	input := huh.NewInput().
		Title(title).
		Placeholder("e.g., Indiranagar").
		Value(&name).
		Validate(area.Check)
	if reason != "" {
		input = input.Description(reason)
	}
	if err := huh.NewForm(huh.NewGroup(input)).RunWithContext(ctx); err != nil {
		return "", err
	}
	return strings.TrimSpace(name), nil
}

func askCount(ctx context.Context) (string, error) {
	raw := strconv.Itoa(defaultCount)
	err := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("How many listings?").
			Description(fmt.Sprintf("Invalid values fall back to %d", defaultCount)).
			Value(&raw),
	)).RunWithContext(ctx)
	return raw, err
}

// renderSummary writes the end-of-run report.
func renderSummary(w io.Writer, areaName string, requested int, r *pipeline.Result) {
	_, _ = fmt.Fprintln(w, summaryTitleStyle.Render("Run "+truncateID(r.RunID)+" · "+areaName))

	row := func(label, value string) {
		_, _ = fmt.Fprintf(w, "  %s %s\n", summaryLabelStyle.Render(fmt.Sprintf("%-12s", label)), value)
	}
	row("Outcome", outcomeStyle(string(r.Outcome)).Render(string(r.Outcome)))
	row("Run file", r.RunPath)
	row("Processed", fmt.Sprintf("%d of %d", r.Processed, requested))
	row("Saved", strconv.Itoa(r.Saved))
	row("Duplicates", strconv.Itoa(r.Duplicates))
	if r.Unsaved > 0 {
		row("Unsaved", summaryWarnStyle.Render(strconv.Itoa(r.Unsaved)))
	}
	if r.Failed > 0 {
		row("Failed", summaryWarnStyle.Render(strconv.Itoa(r.Failed)))
	}
	if r.Dropped > 0 {
		row("Closed", strconv.Itoa(r.Dropped))
	}
	if r.Finalize != nil {
		dup := string(r.Finalize.Action)
		if r.Finalize.Path != "" {
			dup += " " + r.Finalize.Path
		}
		row("Dup ledger", dup)
	}
	row("Elapsed", r.Elapsed.Round(time.Second).String())
}
