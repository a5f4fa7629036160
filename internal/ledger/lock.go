package ledger

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
)

// ErrLocked is returned when another process holds the ledger lock.
var ErrLocked = eris.New("ledger: another run is writing to this ledger")

const lockFile = ".ledger.lock"

// Lock takes an exclusive lock on dir for the lifetime of one run. The
// returned func releases it.
func Lock(dir string) (func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "ledger: create dir %s", dir)
	}

	lock := flock.New(filepath.Join(dir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, eris.Wrap(err, "ledger: acquire lock")
	}
	if !locked {
		return nil, ErrLocked
	}
	return func() { _ = lock.Unlock() }, nil
}
