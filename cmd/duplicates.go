package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/listing-ledger/internal/ledger"
	"github.com/sells-group/listing-ledger/internal/model"
)

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Show the duplicate ledger files",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("ledger"); err != nil {
			return err
		}
		schema, err := model.ParseSchema(cfg.Ledger.Schema)
		if err != nil {
			return err
		}

		st, err := ledger.NewDuplicateManager(cfg.Ledger.DuplicateDir, schema).State()
		if err != nil {
			return eris.Wrap(err, "duplicates")
		}
		if !st.HasPlaceholder && len(st.Rotated) == 0 {
			fmt.Fprintf(os.Stderr, "No duplicate ledger in %s.\n", cfg.Ledger.DuplicateDir)
			return nil
		}
		formatDuplicates(os.Stdout, st, ledger.CountRows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(duplicatesCmd)
}

// formatDuplicates lists the placeholder and rotated files with their data
// row counts. The latest rotated file is the one the next run merges into.
func formatDuplicates(out io.Writer, st *ledger.DuplicateState, count func(string) (int, error)) {
	t := newTable()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"File", "Kind", "Rows"})

	rowsOf := func(path string) any {
		n, err := count(path)
		if err != nil {
			return "?"
		}
		return n
	}

	if st.HasPlaceholder {
		t.AppendRow(table.Row{filepath.Base(st.Placeholder), "placeholder", rowsOf(st.Placeholder)})
	}
	for _, p := range st.Rotated {
		kind := "rotated"
		if p == st.Latest {
			kind = "latest"
		}
		t.AppendRow(table.Row{filepath.Base(p), kind, rowsOf(p)})
	}
	t.Render()
}
