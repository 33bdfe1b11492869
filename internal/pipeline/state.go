package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// State names the orchestrator's position in the pipeline. Transitions are
// strictly sequential; Failed is reachable from every state except Done.
type State string

const (
	StateInit       State = "init"
	StateConfirming State = "confirming"
	StateDumping    State = "dumping"
	StateClearing   State = "clearing"
	StateSanitizing State = "sanitizing"
	StateRestoring  State = "restoring"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// RunState is persisted to state.json in the workspace on every transition,
// so a post-mortem shows exactly which stage was in flight.
type RunState struct {
	RunID          string            `json:"run_id"`
	Source         string            `json:"source"`
	Target         string            `json:"target"`
	State          State             `json:"state"`
	StageEndpoints map[string]string `json:"stage_endpoints,omitempty"` // stage -> endpoint label that served it
	StartedAt      time.Time         `json:"started_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Error          string            `json:"error,omitempty"`

	path string
}

func newRunState(path, runID, source, target string) *RunState {
	now := time.Now().UTC()
	return &RunState{
		RunID:          runID,
		Source:         source,
		Target:         target,
		State:          StateInit,
		StageEndpoints: map[string]string{},
		StartedAt:      now,
		UpdatedAt:      now,
		path:           path,
	}
}

// transition moves to next and persists. Persisting is best effort on the
// failure path but an error here during normal operation aborts the run:
// an unreadable state file defeats the audit trail.
func (rs *RunState) transition(next State) error {
	rs.State = next
	rs.UpdatedAt = time.Now().UTC()
	return rs.save()
}

func (rs *RunState) fail(err error) {
	rs.State = StateFailed
	rs.Error = err.Error()
	rs.UpdatedAt = time.Now().UTC()
	_ = rs.save()
}

func (rs *RunState) recordEndpoint(stage State, label string) {
	rs.StageEndpoints[string(stage)] = label
	_ = rs.save()
}

// save writes atomically: temp file then rename.
func (rs *RunState) save() error {
	data, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}
	tmpFile := rs.path + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write run state: %w", err)
	}
	if err := os.Rename(tmpFile, rs.path); err != nil {
		return fmt.Errorf("failed to replace run state: %w", err)
	}
	return nil
}

// LoadRunState reads a persisted state.json, for inspection after a run.
func LoadRunState(path string) (*RunState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read run state: %w", err)
	}
	var rs RunState
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("failed to parse run state: %w", err)
	}
	rs.path = path
	return &rs, nil
}
