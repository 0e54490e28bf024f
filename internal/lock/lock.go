// Package lock implements the directory lock protocol (spec §4.2, §6):
// an on-disk JSON file at <dir>/.processing.lock that serialises work on a
// directory across worker processes, with orphan detection via a pluggable
// process-liveness probe (spec §9). There is no library in the retrieval
// pack for PID-liveness file locking, so this is built directly on the
// standard library the way the teacher builds its own small, single-purpose
// utilities (e.g. internal/config/gitignore.go) rather than reaching for a
// third-party flock library that would only cover part of the protocol
// (the PID-liveness half has no package in the ecosystem corpus either).
package lock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/standardbeagle/ingestd/internal/config"
	"github.com/standardbeagle/ingestd/internal/debug"
	"github.com/standardbeagle/ingestd/internal/errtypes"
	"github.com/standardbeagle/ingestd/internal/types"
)

const lockFileName = ".processing.lock"

const defaultTimeoutSeconds = 600

// ErrLockedByOther is returned by Acquire when a live peer holds the lock.
type ErrLockedByOther struct{ PID int }

func (e *ErrLockedByOther) Error() string {
	return fmt.Sprintf("directory locked by active process %d", e.PID)
}

// ErrForeignLock is returned by Release when the caller doesn't own the lock.
type ErrForeignLock struct{ Owner, Caller int }

func (e *ErrForeignLock) Error() string {
	return fmt.Sprintf("lock owned by process %d, refusing release from %d", e.Owner, e.Caller)
}

// Manager implements Acquire/Release/Inspect/SweepOrphans (spec §4.2).
type Manager struct {
	probe ProcessProbe
	mu    sync.Mutex // serialises this process's own lock operations
}

// New creates a lock manager using the real OS process probe.
func New() *Manager {
	return &Manager{probe: OSProcessProbe{}}
}

// NewWithProbe allows tests to substitute a fake ProcessProbe.
func NewWithProbe(p ProcessProbe) *Manager {
	return &Manager{probe: p}
}

func lockPath(dir string) string {
	return filepath.Join(dir, lockFileName)
}

// Acquire implements the protocol of spec §4.2.
func (m *Manager) Acquire(dir string) (*types.Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errtypes.New(errtypes.KindFilesystemMissing, "acquire", err).WithPath(dir)
		}
		return nil, errtypes.New(errtypes.KindUnknown, "acquire", err).WithPath(dir)
	}
	if !info.IsDir() {
		return nil, errtypes.New(errtypes.KindFilesystemMissing, "acquire", fmt.Errorf("%s is not a directory", dir)).WithPath(dir)
	}

	path := lockPath(dir)
	if existing, err := os.ReadFile(path); err == nil {
		if m.shouldRemoveExisting(existing, dir) {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, errtypes.New(errtypes.KindUnknown, "acquire.remove_stale", err).WithPath(dir)
			}
		} else {
			lk, _ := decodeLock(existing)
			return nil, &ErrLockedByOther{PID: lk.ProcessID}
		}
	} else if !os.IsNotExist(err) {
		if os.IsPermission(err) {
			return nil, errtypes.New(errtypes.KindPermissionDenied, "acquire.read_lock", err).WithPath(dir)
		}
		return nil, errtypes.New(errtypes.KindUnknown, "acquire.read_lock", err).WithPath(dir)
	}

	newLock := &types.Lock{
		ProcessID:      os.Getpid(),
		CreatedAt:      time.Now().UTC(),
		Directory:      dir,
		Status:         types.LockStatusActive,
		LockFilePath:   path,
		TimeoutSeconds: defaultTimeoutSeconds,
	}

	data, err := json.Marshal(newLock)
	if err != nil {
		return nil, errtypes.New(errtypes.KindUnknown, "acquire.marshal", err).WithPath(dir)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		if os.IsPermission(err) {
			return nil, errtypes.New(errtypes.KindPermissionDenied, "acquire.write_lock", err).WithPath(dir)
		}
		return nil, errtypes.New(errtypes.KindUnknown, "acquire.write_lock", err).WithPath(dir)
	}

	return newLock, nil
}

// shouldRemoveExisting decides whether the on-disk lock at dir should be
// deleted (corrupt, expired, or owned by a dead process) so Acquire can
// proceed, or kept because a live peer still owns it.
func (m *Manager) shouldRemoveExisting(raw []byte, dir string) bool {
	if _, err := config.ValidateLockJSON(raw); err != nil {
		debug.LogWarn("lock: corrupt lock at %s: %v", dir, err)
		return true
	}

	lk, err := decodeLock(raw)
	if err != nil {
		debug.LogWarn("lock: unparseable lock at %s: %v", dir, err)
		return true
	}

	timeout := lk.TimeoutSeconds
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds
	}
	if time.Since(lk.CreatedAt) > time.Duration(timeout)*time.Second {
		debug.LogInfo("lock: expired lock at %s (pid %d, age %s)", dir, lk.ProcessID, time.Since(lk.CreatedAt))
		return true
	}

	switch m.probe.Probe(lk.ProcessID) {
	case Alive:
		return false
	default: // Dead or Unknown: a generic probe error is not alive (spec §4.2), matching lock_manager.py's is_process_alive which returns False from its catch-all except clause
		return true
	}
}

// Release removes the lock, refusing unless the caller owns it (spec §4.2).
// It is idempotent on a missing lock file, returning (false, nil).
func (m *Manager) Release(lk *types.Lock) (bool, error) {
	if lk == nil {
		return false, nil
	}
	path := lk.LockFilePath
	if path == "" {
		path = lockPath(lk.Directory)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errtypes.New(errtypes.KindUnknown, "release.read", err).WithPath(lk.Directory)
	}

	onDisk, err := decodeLock(raw)
	if err != nil {
		return false, errtypes.New(errtypes.KindLockCorrupt, "release.decode", err).WithPath(lk.Directory)
	}
	if onDisk.ProcessID != os.Getpid() {
		return false, &ErrForeignLock{Owner: onDisk.ProcessID, Caller: os.Getpid()}
	}

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errtypes.New(errtypes.KindUnknown, "release.remove", err).WithPath(lk.Directory)
	}
	return true, nil
}

// Inspect returns the current lock for dir, or nil if none exists.
func (m *Manager) Inspect(dir string) (*types.Lock, error) {
	raw, err := os.ReadFile(lockPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errtypes.New(errtypes.KindUnknown, "inspect", err).WithPath(dir)
	}
	lk, err := decodeLock(raw)
	if err != nil {
		return nil, errtypes.New(errtypes.KindLockCorrupt, "inspect", err).WithPath(dir)
	}
	switch m.probe.Probe(lk.ProcessID) {
	case Dead:
		lk.Status = types.LockStatusOrphaned
	case Alive:
		timeout := lk.TimeoutSeconds
		if timeout <= 0 {
			timeout = defaultTimeoutSeconds
		}
		if time.Since(lk.CreatedAt) > time.Duration(timeout)*time.Second {
			lk.Status = types.LockStatusExpired
		}
	}
	return lk, nil
}

// SweepOrphans inspects every directory in dirs and removes any lock file
// that is orphaned (dead owner) or expired, returning the directories swept.
func (m *Manager) SweepOrphans(dirs []string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for _, dir := range dirs {
		raw, err := os.ReadFile(lockPath(dir))
		if err != nil {
			continue
		}
		if m.shouldRemoveExisting(raw, dir) {
			if err := os.Remove(lockPath(dir)); err == nil {
				removed = append(removed, dir)
			}
		}
	}
	return removed
}

func decodeLock(raw []byte) (*types.Lock, error) {
	var lk types.Lock
	if err := json.Unmarshal(raw, &lk); err != nil {
		return nil, err
	}
	if lk.ProcessID <= 0 {
		return nil, fmt.Errorf("lock has invalid process_id %d", lk.ProcessID)
	}
	return &lk, nil
}
