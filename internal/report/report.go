// Package report writes the machine-readable run report that accompanies
// every sync run. The report is validated against a JSON Schema before it
// is written so downstream tooling can rely on its shape.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// Report describes the outcome of one sync run.
type Report struct {
	RunID             string            `json:"run_id"`
	Source            string            `json:"source"`
	Target            string            `json:"target"`
	State             string            `json:"state"`
	Success           bool              `json:"success"`
	Tables            []string          `json:"tables"`
	StageEndpoints    map[string]string `json:"stage_endpoints,omitempty"`
	RowCounts         map[string]int64  `json:"row_counts,omitempty"`
	StatementsRemoved int               `json:"statements_removed"`
	Workspace         string            `json:"workspace"`
	Archive           string            `json:"archive"`
	Log               string            `json:"log"`
	StartedAt         time.Time         `json:"started_at"`
	FinishedAt        time.Time         `json:"finished_at"`
	Error             string            `json:"error,omitempty"`
}

const reportSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "authplane sync report",
  "type": "object",
  "required": ["run_id", "source", "target", "state", "success", "tables", "workspace", "archive", "log", "started_at", "finished_at"],
  "properties": {
    "run_id": {"type": "string", "minLength": 1},
    "source": {"type": "string", "minLength": 1},
    "target": {"type": "string", "minLength": 1},
    "state": {"type": "string", "enum": ["init", "confirming", "dumping", "clearing", "sanitizing", "restoring", "done", "failed"]},
    "success": {"type": "boolean"},
    "tables": {"type": "array", "items": {"type": "string"}, "minItems": 1},
    "stage_endpoints": {"type": "object", "additionalProperties": {"type": "string"}},
    "row_counts": {"type": "object", "additionalProperties": {"type": "integer", "minimum": 0}},
    "statements_removed": {"type": "integer", "minimum": 0},
    "workspace": {"type": "string"},
    "archive": {"type": "string"},
    "log": {"type": "string"},
    "started_at": {"type": "string"},
    "finished_at": {"type": "string"},
    "error": {"type": "string"}
  },
  "additionalProperties": false
}`

// Validate checks data against the report schema.
func Validate(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(reportSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate report: %w", err)
	}
	if !result.Valid() {
		msg := "report does not match schema:"
		for _, desc := range result.Errors() {
			msg += fmt.Sprintf("\n  - %s", desc)
		}
		return fmt.Errorf("%s", msg)
	}
	return nil
}

// Write validates and writes the report as indented JSON.
func Write(path string, r *Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := Validate(data); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// Load reads and validates a previously written report.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	if err := Validate(data); err != nil {
		return nil, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &r, nil
}
