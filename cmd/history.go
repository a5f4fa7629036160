package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/sells-group/listing-ledger/internal/ledger"
	"github.com/sells-group/listing-ledger/internal/model"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Summarize the listings already recorded by earlier runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("ledger"); err != nil {
			return err
		}
		schema, err := model.ParseSchema(cfg.Ledger.Schema)
		if err != nil {
			return err
		}

		h := ledger.ScanHistory(cfg.Ledger.OutputDir, schema)
		if len(h.Files) == 0 {
			fmt.Fprintf(os.Stderr, "No run outputs in %s.\n", cfg.Ledger.OutputDir)
			return nil
		}
		formatHistory(os.Stdout, h)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}

// formatHistory writes one row per run output plus the distinct key total.
func formatHistory(out io.Writer, h *ledger.History) {
	t := newTable()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"Run file", "Rows", "Status"})

	rows := 0
	for _, f := range h.Files {
		status := "ok"
		if f.Err != nil {
			status = "unreadable: " + f.Err.Error()
		}
		rows += f.Rows
		t.AppendRow(table.Row{filepath.Base(f.Path), f.Rows, status})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d files", len(h.Files)), rows, fmt.Sprintf("%d distinct", h.Keys.Len())})
	t.Render()
}
