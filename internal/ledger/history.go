package ledger

import (
	"go.uber.org/zap"

	"github.com/sells-group/listing-ledger/internal/model"
)

// FileSummary describes one ledger file read during a scan.
type FileSummary struct {
	Path string
	Rows int
	Err  error
}

// History is the identity-key set built from every prior run output.
type History struct {
	Keys  model.KeySet
	Files []FileSummary
}

// LoadHistory returns the identity keys of every data row in the run outputs
// under dir. Unreadable files are logged and skipped.
func LoadHistory(dir string, schema model.Schema) model.KeySet {
	return ScanHistory(dir, schema).Keys
}

// ScanHistory is LoadHistory with per-file detail. It never fails: a missing
// directory yields an empty history.
func ScanHistory(dir string, schema model.Schema) *History {
	log := zap.L().With(zap.String("component", "ledger.history"), zap.String("dir", dir))
	h := &History{Keys: make(model.KeySet)}

	files, err := listFiles(dir, isRunFile)
	if err != nil {
		log.Warn("cannot list run outputs", zap.Error(err))
		return h
	}

	for _, f := range files {
		rows, err := readRows(f.path)
		if err != nil {
			log.Warn("skipping unreadable run output", zap.String("path", f.path), zap.Error(err))
			h.Files = append(h.Files, FileSummary{Path: f.path, Err: err})
			continue
		}
		n := 0
		for _, r := range rows {
			if k, ok := schema.KeyOf(r); ok {
				h.Keys.Add(k)
				n++
			}
		}
		h.Files = append(h.Files, FileSummary{Path: f.path, Rows: n})
	}

	log.Debug("history loaded", zap.Int("files", len(files)), zap.Int("keys", h.Keys.Len()))
	return h
}
