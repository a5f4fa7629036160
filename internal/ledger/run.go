package ledger

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-ledger/internal/model"
)

// RunLedger is the primary output of one run. Rows are persisted one at a
// time so a crash loses at most the row being written.
type RunLedger struct {
	path   string
	schema model.Schema
	rows   int
}

// CreateRunLedger writes a header-only run output in dir named for at.
func CreateRunLedger(dir string, schema model.Schema, at time.Time) (*RunLedger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "ledger: create dir %s", dir)
	}
	path := uniquePath(filepath.Join(dir, RunFileName(at)))
	if err := writeWorkbook(path, schema, nil); err != nil {
		return nil, eris.Wrap(err, "ledger: create run output")
	}
	return &RunLedger{path: path, schema: schema}, nil
}

// Append opens the run output, adds e as the last row, and saves it.
func (l *RunLedger) Append(e model.Entry) error {
	if err := appendRows(l.path, l.schema, l.schema.Row(e)); err != nil {
		return eris.Wrapf(err, "ledger: append %q", e.Name)
	}
	l.rows++
	return nil
}

// Path returns the run output file path.
func (l *RunLedger) Path() string { return l.path }

// Rows returns the number of rows appended through this ledger.
func (l *RunLedger) Rows() int { return l.rows }
