// Package journal keeps a sqlite record of every harvest run.
package journal

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/listing-ledger/internal/model"
)

// Journal implements pipeline.Journal using modernc.org/sqlite.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// RunFilter narrows List results.
type RunFilter struct {
	Status model.RunStatus
	Area   string
	Limit  int
}

// Open opens the journal database at path and configures WAL mode. The
// parent directory is created when missing.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "journal: create dir %s", dir)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "journal: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "journal: exec %s", pragma)
		}
	}
	return &Journal{db: db, now: time.Now}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	area         TEXT NOT NULL,
	requested    INTEGER NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	outcome      TEXT NOT NULL DEFAULT '',
	run_file     TEXT NOT NULL DEFAULT '',
	saved        INTEGER NOT NULL DEFAULT 0,
	duplicates   INTEGER NOT NULL DEFAULT 0,
	error        TEXT NOT NULL DEFAULT '',
	started_at   DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Migrate creates the journal schema.
func (j *Journal) Migrate(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, migration)
	return eris.Wrap(err, "journal: migrate")
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Start records run as running.
func (j *Journal) Start(ctx context.Context, run *model.Run) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (id, area, requested, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Area, run.Requested, string(model.RunStatusRunning), run.StartedAt.UTC(),
	)
	return eris.Wrapf(err, "journal: insert run %s", run.ID)
}

// Complete records the final counters of a successful run.
func (j *Journal) Complete(ctx context.Context, run *model.Run) error {
	return j.finish(ctx, run, model.RunStatusComplete, "")
}

// Fail records a failed run with its error.
func (j *Journal) Fail(ctx context.Context, run *model.Run, runErr error) error {
	msg := run.Error
	if runErr != nil {
		msg = runErr.Error()
	}
	return j.finish(ctx, run, model.RunStatusFailed, msg)
}

func (j *Journal) finish(ctx context.Context, run *model.Run, status model.RunStatus, msg string) error {
	done := j.now().UTC()
	res, err := j.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, outcome = ?, run_file = ?, saved = ?, duplicates = ?, error = ?, completed_at = ?
		 WHERE id = ?`,
		string(status), run.Outcome, run.RunFile, run.Saved, run.Duplicates, msg, done, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "journal: update run %s", run.ID)
	}
	if err := checkRowsAffected(res, run.ID); err != nil {
		return err
	}
	run.Status = status
	run.Error = msg
	run.CompletedAt = &done
	return nil
}

// Get returns one run by ID.
func (j *Journal) Get(ctx context.Context, id string) (*model.Run, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	return scanRun(row)
}

// List returns runs newest first.
func (j *Journal) List(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Area != "" {
		query += ` AND area = ?`
		args = append(args, filter.Area)
	}
	query += ` ORDER BY started_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "journal: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "journal: iterate runs")
}

const runColumns = `id, area, requested, status, outcome, run_file, saved, duplicates, error, started_at, completed_at`

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var (
		r         model.Run
		status    string
		completed sql.NullTime
	)
	err := row.Scan(&r.ID, &r.Area, &r.Requested, &status, &r.Outcome, &r.RunFile,
		&r.Saved, &r.Duplicates, &r.Error, &r.StartedAt, &completed)
	if err == sql.ErrNoRows {
		return nil, eris.New("journal: run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "journal: scan run")
	}
	r.Status = model.RunStatus(status)
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "journal: rows affected")
	}
	if n == 0 {
		return eris.Errorf("journal: run %s not found", id)
	}
	return nil
}
