package ledger

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-ledger/internal/model"
)

// Action names what Finalize did to the duplicate ledger.
type Action string

const (
	// ActionUnchanged means no duplicate file was touched.
	ActionUnchanged Action = "unchanged"
	// ActionPlaceholder means an empty placeholder ledger was created.
	ActionPlaceholder Action = "placeholder_created"
	// ActionCreated means the first rotated ledger was written.
	ActionCreated Action = "created"
	// ActionMerged means the latest rotated ledger was merged into a new rotation.
	ActionMerged Action = "merged"
	// ActionRecreated means the latest rotated ledger could not be read, so a
	// fresh rotation was written from this run's duplicates alone.
	ActionRecreated Action = "recreated"
)

// FinalizeResult reports the outcome of DuplicateManager.Finalize.
type FinalizeResult struct {
	Action             Action
	Path               string
	Appended           int
	PreviousPath       string
	PlaceholderRemoved bool
}

// DuplicateState is the current set of duplicate ledger files.
type DuplicateState struct {
	Placeholder    string
	HasPlaceholder bool
	Latest         string
	Rotated        []string
}

// DuplicateManager owns the rotating duplicate ledger in one directory.
type DuplicateManager struct {
	dir    string
	schema model.Schema
	now    func() time.Time
}

// NewDuplicateManager returns a manager for dir.
func NewDuplicateManager(dir string, schema model.Schema) *DuplicateManager {
	return &DuplicateManager{dir: dir, schema: schema, now: time.Now}
}

// State locates the placeholder and the rotated ledgers, newest first.
func (m *DuplicateManager) State() (*DuplicateState, error) {
	st := &DuplicateState{Placeholder: PlaceholderPath(m.dir)}
	if _, err := os.Stat(st.Placeholder); err == nil {
		st.HasPlaceholder = true
	}

	files, err := listFiles(m.dir, isRotatedFile)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		st.Rotated = append(st.Rotated, f.path)
	}
	if len(st.Rotated) > 0 {
		st.Latest = st.Rotated[0]
	}
	return st, nil
}

// Finalize records this run's duplicate sightings. With none, it only makes
// sure some duplicate ledger exists. With some, it writes a new rotation
// holding every prior row plus the sightings whose keys were not yet present,
// then removes the previous rotation. Rows are never dropped by a rotation.
func (m *DuplicateManager) Finalize(dups []model.Entry) (*FinalizeResult, error) {
	log := zap.L().With(zap.String("component", "ledger.duplicates"), zap.String("dir", m.dir))

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "ledger: create dir %s", m.dir)
	}
	st, err := m.State()
	if err != nil {
		return nil, err
	}

	if len(dups) == 0 {
		if st.HasPlaceholder || st.Latest != "" {
			log.Info("no duplicates this run, ledger unchanged")
			return &FinalizeResult{Action: ActionUnchanged}, nil
		}
		if err := writeWorkbook(st.Placeholder, m.schema, nil); err != nil {
			return nil, eris.Wrap(err, "ledger: create placeholder")
		}
		log.Info("created empty duplicate placeholder", zap.String("path", st.Placeholder))
		return &FinalizeResult{Action: ActionPlaceholder, Path: st.Placeholder}, nil
	}

	var res *FinalizeResult
	if st.Latest == "" {
		res, err = m.rotateFresh(dups, ActionCreated)
	} else {
		res, err = m.merge(st.Latest, dups)
	}
	if err != nil {
		return nil, err
	}

	if st.HasPlaceholder {
		res.PlaceholderRemoved = m.removeEmptyPlaceholder(st.Placeholder)
	}

	log.Info("duplicate ledger rotated",
		zap.String("action", string(res.Action)),
		zap.String("path", res.Path),
		zap.Int("appended", res.Appended),
		zap.Bool("placeholder_removed", res.PlaceholderRemoved),
	)
	return res, nil
}

func (m *DuplicateManager) merge(latest string, dups []model.Entry) (*FinalizeResult, error) {
	existing, err := readRows(latest)
	if err != nil {
		zap.L().Warn("cannot open latest duplicate ledger, writing a fresh rotation",
			zap.String("path", latest), zap.Error(err))
		return m.rotateFresh(dups, ActionRecreated)
	}

	seen := make(model.KeySet)
	for _, r := range existing {
		if k, ok := m.schema.KeyOf(r); ok {
			seen.Add(k)
		}
	}
	fresh := m.uniqueRows(dups, seen)

	rows := make([][]string, 0, len(existing)+len(fresh))
	rows = append(rows, existing...)
	rows = append(rows, fresh...)

	path := m.nextRotationPath()
	if err := writeWorkbook(path, m.schema, rows); err != nil {
		return nil, eris.Wrap(err, "ledger: write merged duplicates")
	}
	if err := os.Remove(latest); err != nil {
		zap.L().Warn("cannot delete previous duplicate ledger", zap.String("path", latest), zap.Error(err))
	}

	return &FinalizeResult{Action: ActionMerged, Path: path, Appended: len(fresh), PreviousPath: latest}, nil
}

func (m *DuplicateManager) rotateFresh(dups []model.Entry, action Action) (*FinalizeResult, error) {
	rows := m.uniqueRows(dups, make(model.KeySet))
	path := m.nextRotationPath()
	if err := writeWorkbook(path, m.schema, rows); err != nil {
		return nil, eris.Wrap(err, "ledger: write duplicates")
	}
	return &FinalizeResult{Action: action, Path: path, Appended: len(rows)}, nil
}

// uniqueRows lays out dups whose keys are absent from seen, adding each to seen
// so a key repeated within one run is recorded once.
func (m *DuplicateManager) uniqueRows(dups []model.Entry, seen model.KeySet) [][]string {
	var rows [][]string
	for _, e := range dups {
		k := e.Key()
		if seen.Has(k) {
			continue
		}
		seen.Add(k)
		rows = append(rows, m.schema.Row(e))
	}
	return rows
}

func (m *DuplicateManager) nextRotationPath() string {
	return uniquePath(filepath.Join(m.dir, rotatedFileName(m.now())))
}

func (m *DuplicateManager) removeEmptyPlaceholder(path string) bool {
	empty, err := isEmptyLedger(path)
	if err != nil || !empty {
		return false
	}
	if err := os.Remove(path); err != nil {
		zap.L().Warn("cannot delete duplicate placeholder", zap.String("path", path), zap.Error(err))
		return false
	}
	return true
}
