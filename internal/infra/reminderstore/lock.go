package reminderstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsonx "nudge/internal/shared/json"
)

const lockFileName = ".serve.lock"

// ErrLocked reports that a live process owns the store directory.
var ErrLocked = errors.New("reminderstore: store directory is owned by a running server")

// Owner describes the process holding a store lock.
type Owner struct {
	PID   int       `json:"pid"`
	Addr  string    `json:"addr,omitempty"`
	Since time.Time `json:"since"`
}

// LockedError carries the owner of a held lock. It matches ErrLocked.
type LockedError struct {
	Owner Owner
}

func (e *LockedError) Error() string {
	if e.Owner.Addr != "" {
		return fmt.Sprintf("%v (pid %d, api %s)", ErrLocked, e.Owner.PID, e.Owner.Addr)
	}
	return fmt.Sprintf("%v (pid %d)", ErrLocked, e.Owner.PID)
}

func (e *LockedError) Unwrap() error { return ErrLocked }

// Lock is an exclusive claim on a store directory. A long-running server
// holds it so that other processes do not write snapshots behind its cache.
type Lock struct {
	path  string
	owner Owner
	once  sync.Once
}

// AcquireLock claims dir for the current process. A lock left behind by a
// process that is no longer alive is taken over.
func AcquireLock(dir, addr string) (*Lock, error) {
	path := filepath.Join(dir, lockFileName)
	owner := Owner{PID: os.Getpid(), Addr: addr, Since: time.Now().UTC()}
	data, err := jsonx.Marshal(owner)
	if err != nil {
		return nil, fmt.Errorf("reminderstore: encode lock: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
		if err == nil {
			_, werr := f.Write(data)
			if werr = errors.Join(werr, f.Close()); werr != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("reminderstore: write lock: %w", werr)
			}
			return &Lock{path: path, owner: owner}, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("reminderstore: create lock: %w", err)
		}
		if held, ok := readOwner(path); ok && processAlive(held.PID) {
			return nil, &LockedError{Owner: held}
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("reminderstore: remove stale lock: %w", err)
		}
	}
	return nil, fmt.Errorf("reminderstore: could not acquire %s", path)
}

// CheckLock returns a *LockedError when a live process holds dir, nil
// otherwise.
func CheckLock(dir string) error {
	held, ok := readOwner(filepath.Join(dir, lockFileName))
	if !ok || !processAlive(held.PID) {
		return nil
	}
	return &LockedError{Owner: held}
}

// Owner returns the lock holder recorded on disk.
func (l *Lock) Owner() Owner {
	return l.owner
}

// Release removes the lock file if it still belongs to this lock. It is safe
// to call more than once.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	var err error
	l.once.Do(func() {
		held, ok := readOwner(l.path)
		if !ok || held.PID != l.owner.PID || !held.Since.Equal(l.owner.Since) {
			return
		}
		if rerr := os.Remove(l.path); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			err = fmt.Errorf("reminderstore: release lock: %w", rerr)
		}
	})
	return err
}

func readOwner(path string) (Owner, bool) {
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return Owner{}, false
	}
	var owner Owner
	if err := jsonx.Unmarshal(data, &owner); err != nil || owner.PID <= 0 {
		return Owner{}, false
	}
	return owner, true
}
