package importer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rulebase/core"

	"github.com/google/uuid"
)

// Status is the outcome of importing one document.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	// StatusSkipped marks a document whose rules were all already registered
	StatusSkipped Status = "skipped"
)

// LogEntry records what happened to one input document.
type LogEntry struct {
	ID        uuid.UUID `json:"id"`
	File      string    `json:"file"`
	Format    Format    `json:"format,omitempty"`
	Status    Status    `json:"status"`
	Message   string    `json:"message,omitempty"`
	RuleIDs   []string  `json:"rule_ids,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func newLogEntry(file string) LogEntry {
	return LogEntry{ID: uuid.New(), File: file, Timestamp: time.Now().UTC()}
}

func (e *LogEntry) fail(err error) {
	e.Status = StatusError
	e.Message = err.Error()
	e.ErrorKind = core.ErrorKind(err)
}

// Summary aggregates a batch import.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	// SuccessRate is the share of documents that did not fail, in [0, 1]
	SuccessRate float64 `json:"success_rate"`
}

// Result is the outcome of a batch import.
type Result struct {
	// Rules holds the stored version of every rule added or merged
	Rules []*core.Rule `json:"rules"`
	Log   []LogEntry   `json:"log"`
}

// Summary counts log entries by status.
func (r *Result) Summary() Summary {
	s := Summary{Total: len(r.Log)}
	for _, e := range r.Log {
		switch e.Status {
		case StatusSuccess:
			s.Succeeded++
		case StatusSkipped:
			s.Skipped++
		case StatusError:
			s.Failed++
		}
	}
	if s.Total > 0 {
		s.SuccessRate = float64(s.Total-s.Failed) / float64(s.Total)
	}
	return s
}

// Failures returns the entries with StatusError.
func (r *Result) Failures() []LogEntry {
	var out []LogEntry
	for _, e := range r.Log {
		if e.Status == StatusError {
			out = append(out, e)
		}
	}
	return out
}

// SaveLog writes the summary and per-file log to path as indented JSON.
func (r *Result) SaveLog(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &core.IOError{Path: dir, Op: "mkdir", Err: err}
		}
	}
	data, err := json.MarshalIndent(struct {
		Summary Summary    `json:"summary"`
		Entries []LogEntry `json:"entries"`
	}{r.Summary(), r.Log}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode import log: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &core.IOError{Path: path, Op: "write", Err: err}
	}
	return nil
}
