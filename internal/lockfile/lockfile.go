package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrHeld is returned by Acquire when the lock file already exists and its
// holder is (or must be assumed to be) alive.
var ErrHeld = errors.New("lock already held")

// Lock is a host-wide mutual exclusion token backed by a file.
// Acquire creates the file with O_EXCL so that two racing processes cannot
// both win; presence of the file means "a run is in progress". The file
// carries the holder PID on the first line and a small JSON meta line so
// stale holders can be probed.
//
// A process killed with SIGKILL leaves the file behind. That is a
// documented limitation; TakeoverStale exists for deployments that want
// dead holders broken automatically, and is off by default.
type Lock struct {
	Path          string
	TakeoverStale bool

	held bool
}

type lockMeta struct {
	StartUnix int64 `json:"start_unix"`
}

// Holder describes the process recorded in an existing lock file.
type Holder struct {
	PID       int   `json:"pid"`
	StartUnix int64 `json:"start_unix"`
}

func New(path string) *Lock { return &Lock{Path: path} }

// Acquire atomically creates the lock file. It fails with ErrHeld when the
// file already exists, unless TakeoverStale is set and the recorded holder
// is no longer alive, in which case the stale file is removed and creation
// is retried once.
func (l *Lock) Acquire() error {
	if l.Path == "" {
		return errors.New("lockfile: empty path")
	}
	if err := os.MkdirAll(filepath.Dir(l.Path), 0o750); err != nil {
		return fmt.Errorf("lockfile: create parent dir: %w", err)
	}
	if err := l.tryCreate(); err == nil {
		return nil
	} else if !os.IsExist(err) {
		return fmt.Errorf("lockfile: create %s: %w", l.Path, err)
	}
	if !l.TakeoverStale {
		return ErrHeld
	}
	h, err := ReadHolder(l.Path)
	if err != nil {
		// Unreadable or malformed lock file: refuse to guess.
		return ErrHeld
	}
	if holderAlive(h) {
		return ErrHeld
	}
	if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lockfile: remove stale %s: %w", l.Path, err)
	}
	if err := l.tryCreate(); err != nil {
		if os.IsExist(err) {
			// Someone else re-acquired between our remove and create.
			return ErrHeld
		}
		return fmt.Errorf("lockfile: create %s: %w", l.Path, err)
	}
	return nil
}

func (l *Lock) tryCreate() error {
	f, err := os.OpenFile(l.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	meta, _ := json.Marshal(lockMeta{StartUnix: procStartUnix(os.Getpid())})
	_, werr := fmt.Fprintf(f, "%d\n%s\n", os.Getpid(), meta)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(l.Path)
		if werr != nil {
			return werr
		}
		return cerr
	}
	l.held = true
	return nil
}

// Release removes the lock file. A removal failure is the most serious
// condition this package can report since it wedges future runs; callers
// must surface it loudly.
func (l *Lock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := os.Remove(l.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lockfile: release %s: %w", l.Path, err)
	}
	return nil
}

// Held reports whether this Lock instance currently owns the file.
func (l *Lock) Held() bool { return l.held }

// ReadHolder parses an existing lock file. The first line is the PID; an
// optional second line carries JSON meta with the holder's start time.
func ReadHolder(path string) (Holder, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Holder{}, err
	}
	pidLine, rest, _ := strings.Cut(strings.ReplaceAll(string(b), "\r\n", "\n"), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(pidLine))
	if err != nil {
		return Holder{}, fmt.Errorf("lockfile: invalid pid in %s: %w", path, err)
	}
	h := Holder{PID: pid}
	rest = strings.TrimSpace(rest)
	if rest != "" {
		var m lockMeta
		if err := json.Unmarshal([]byte(rest), &m); err == nil {
			h.StartUnix = m.StartUnix
		}
	}
	return h, nil
}

// holderAlive probes whether the recorded holder still runs. When start
// time meta is present it also guards against PID reuse.
func holderAlive(h Holder) bool {
	if h.PID <= 0 {
		return false
	}
	if !pidAlive(h.PID) {
		return false
	}
	if h.StartUnix > 0 {
		if cur := procStartUnix(h.PID); cur > 0 && cur != h.StartUnix {
			return false // PID reused by an unrelated process
		}
	}
	return true
}
