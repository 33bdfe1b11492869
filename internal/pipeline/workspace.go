package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Workspace is the per-run directory holding the dump archive, generated
// SQL files, the run log, the state file, and the report. One run owns one
// workspace exclusively.
type Workspace struct {
	Dir string

	ArchivePath      string
	ExtractedSQLPath string
	ClearSQLPath     string
	RestoreSQLPath   string
	LogPath          string
	StatePath        string
	ReportPath       string

	logFile *os.File
}

// NewWorkspace creates the run directory. With an explicit path the
// directory is created as given (it must not already contain a run);
// otherwise a unique directory is created under the system temp dir.
func NewWorkspace(explicit, runID string) (*Workspace, error) {
	var dir string
	if explicit != "" {
		dir = explicit
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create workspace %s: %w", dir, err)
		}
	} else {
		stamp := time.Now().UTC().Format("20060102-150405")
		dir = filepath.Join(os.TempDir(), fmt.Sprintf("authplane-sync-%s-%s", stamp, shortID(runID)))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create workspace %s: %w", dir, err)
		}
	}

	ws := &Workspace{
		Dir:              dir,
		ArchivePath:      filepath.Join(dir, "auth-data.dump"),
		ExtractedSQLPath: filepath.Join(dir, "extracted.sql"),
		ClearSQLPath:     filepath.Join(dir, "clear.sql"),
		RestoreSQLPath:   filepath.Join(dir, "restore.sql"),
		LogPath:          filepath.Join(dir, "sync.log"),
		StatePath:        filepath.Join(dir, "state.json"),
		ReportPath:       filepath.Join(dir, "report.json"),
	}

	logFile, err := os.OpenFile(ws.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	ws.logFile = logFile
	return ws, nil
}

// Printf writes one timestamped line to the run log. Satisfies
// fallback.Logger so endpoint attempts land in the same log.
func (w *Workspace) Printf(format string, args ...any) {
	if w.logFile == nil {
		return
	}
	fmt.Fprintf(w.logFile, "%s %s\n", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
}

// LogWriter exposes the raw log file for subprocess output.
func (w *Workspace) LogWriter() *os.File {
	return w.logFile
}

// RemoveIntermediate deletes a generated SQL file once its stage succeeded.
// The archive, log, state, and report are never removed here.
func (w *Workspace) RemoveIntermediate(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		w.Printf("warning: failed to remove intermediate file %s: %v", path, err)
	}
}

// Close flushes and closes the run log.
func (w *Workspace) Close() error {
	if w.logFile == nil {
		return nil
	}
	err := w.logFile.Close()
	w.logFile = nil
	return err
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
