package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-ledger/internal/model"
)

const (
	runPrefix       = "main_"
	duplicateBase   = "duplicated"
	ledgerExtension = ".xlsx"
)

// RunFileName returns the run-output file name for a capture time.
func RunFileName(at time.Time) string {
	return runPrefix + at.Format(model.StampLayout) + ledgerExtension
}

// PlaceholderPath returns the un-rotated duplicate ledger path in dir.
func PlaceholderPath(dir string) string {
	return filepath.Join(dir, duplicateBase+ledgerExtension)
}

func rotatedFileName(at time.Time) string {
	return duplicateBase + "_" + at.Format(model.StampLayout) + ledgerExtension
}

// isRunFile reports whether name follows the run-output naming convention.
func isRunFile(name string) bool {
	return strings.HasPrefix(name, runPrefix) && strings.HasSuffix(name, ledgerExtension)
}

func isRotatedFile(name string) bool {
	return strings.HasPrefix(name, duplicateBase+"_") && strings.HasSuffix(name, ledgerExtension)
}

// uniquePath returns path, or path with a numeric suffix when a file of that
// name already exists. Two rotations inside the same second must not collide.
func uniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	base := strings.TrimSuffix(path, ledgerExtension)
	for n := 1; ; n++ {
		p := fmt.Sprintf("%s_%d%s", base, n, ledgerExtension)
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return p
		}
	}
}

type fileStat struct {
	path    string
	modTime time.Time
}

// listFiles returns files in dir accepted by match, newest first. Files with
// equal modification times are ordered by name, highest first.
func listFiles(dir string, match func(string) bool) ([]fileStat, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "ledger: read dir %s", dir)
	}

	var files []fileStat
	for _, e := range entries {
		if e.IsDir() || !match(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileStat{path: filepath.Join(dir, e.Name()), modTime: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].modTime.Equal(files[j].modTime) {
			return files[i].modTime.After(files[j].modTime)
		}
		return files[i].path > files[j].path
	})
	return files, nil
}
