package model

import "time"

// RunStatus represents the current state of a harvest run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is a journaled harvest run.
type Run struct {
	ID          string     `json:"id"`
	Area        string     `json:"area"`
	Requested   int        `json:"requested"`
	Status      RunStatus  `json:"status"`
	Outcome     string     `json:"outcome,omitempty"`
	RunFile     string     `json:"run_file,omitempty"`
	Saved       int        `json:"saved"`
	Duplicates  int        `json:"duplicates"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
