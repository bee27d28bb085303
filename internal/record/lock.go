package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// StaleLockThreshold is the age after which a lock whose owner cannot be
// checked (another host, unreadable owner data) is taken over. A lock held by
// a live process on this host never ages out.
const StaleLockThreshold = 10 * time.Minute

// ErrLocked is returned when another launcher holds the record lock.
var ErrLocked = errors.New("version record is locked: another launcher may be updating")

// lockOwner is written into the lock file.
type lockOwner struct {
	PID      int32     `json:"pid"`
	Host     string    `json:"host"`
	Acquired time.Time `json:"acquired"`
}

func (o lockOwner) same(other lockOwner) bool {
	return o.PID == other.PID && o.Host == other.Host && o.Acquired.Equal(other.Acquired)
}

// Lock is an exclusive lock on a version record.
type Lock struct {
	path  string
	file  *os.File
	owner lockOwner
}

// Lock takes the lock file next to the record. The lock is exclusive across
// processes. A lock left behind by a launcher on this host that died is taken
// over; one from another host, or with unreadable owner data, is taken over
// once older than StaleLockThreshold.
func (s *Store) Lock(ctx context.Context) (*Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.path + ".lock"
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	file, err := createExclusive(path)
	if errors.Is(err, fs.ErrExist) {
		if !lockAbandoned(ctx, path) {
			return nil, ErrLocked
		}
		_ = os.Remove(path)
		file, err = createExclusive(path)
		if errors.Is(err, fs.ErrExist) {
			// Another launcher won the takeover
			return nil, ErrLocked
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create lock file: %w", err)
	}

	host, _ := os.Hostname()
	owner := lockOwner{PID: int32(os.Getpid()), Host: host, Acquired: time.Now().UTC()}
	if err := json.NewEncoder(file).Encode(owner); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write lock owner: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("sync lock file: %w", err)
	}

	return &Lock{path: path, file: file, owner: owner}, nil
}

func createExclusive(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
}

// lockAbandoned reports whether the lock at path may be taken over.
func lockAbandoned(ctx context.Context, path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		// Removed in the meantime
		return errors.Is(err, fs.ErrNotExist)
	}
	aged := time.Since(info.ModTime()) > StaleLockThreshold

	owner, err := readOwner(path)
	if err != nil {
		// Half-written or foreign lock: wait for it to age out
		return aged
	}
	if host, _ := os.Hostname(); owner.Host != host {
		return aged
	}
	alive, err := process.PidExistsWithContext(ctx, owner.PID)
	if err != nil {
		return aged
	}
	return !alive
}

func readOwner(path string) (lockOwner, error) {
	var owner lockOwner
	data, err := os.ReadFile(path)
	if err != nil {
		return owner, err
	}
	if err := json.Unmarshal(data, &owner); err != nil {
		return owner, err
	}
	if owner.PID <= 0 {
		return owner, fmt.Errorf("lock owner pid %d", owner.PID)
	}
	return owner, nil
}

// Release releases the lock. Safe to call more than once. A lock file that
// another launcher has taken over in the meantime is left alone.
func (l *Lock) Release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	if l.path == "" {
		return nil
	}

	path := l.path
	l.path = ""
	if current, err := readOwner(path); err == nil && !current.same(l.owner) {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}
