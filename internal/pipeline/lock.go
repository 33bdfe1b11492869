package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// runLock makes concurrent invocations against the same target fail fast
// with a clear error instead of racing on the managed tables.
type runLock struct {
	Target    string    `json:"target"`
	PID       int       `json:"pid"`
	Workspace string    `json:"workspace"`
	CreatedAt time.Time `json:"created_at"`

	path string
}

func lockPath(dir, target string) string {
	return filepath.Join(dir, ".authplane-sync-"+target+".lock")
}

// acquireLock claims the target for this run. A lock whose owning process
// is gone is treated as stale and replaced.
func acquireLock(dir, target, workspace string) (*runLock, error) {
	path := lockPath(dir, target)

	if data, err := os.ReadFile(path); err == nil {
		var existing runLock
		if err := json.Unmarshal(data, &existing); err == nil && processAlive(existing.PID) {
			return nil, fmt.Errorf("%w: pid %d since %s (lock file %s)",
				ErrRunLocked, existing.PID, existing.CreatedAt.Format(time.RFC3339), path)
		}
		// Stale or unreadable lock; fall through and replace it.
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	lock := &runLock{
		Target:    target,
		PID:       os.Getpid(),
		Workspace: workspace,
		CreatedAt: time.Now().UTC(),
		path:      path,
	}
	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, err
	}
	tmpFile := path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpFile, path); err != nil {
		return nil, err
	}
	return lock, nil
}

// release removes the lock file.
func (l *runLock) release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// processAlive reports whether pid refers to a running process.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
