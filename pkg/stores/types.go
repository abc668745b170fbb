package stores

import (
	"time"
)

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID          string     `json:"id"`
	Target      string     `json:"target"`
	Status      string     `json:"status"`
	Options     string     `json:"options"` // JSON blob
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DurationMS  int64      `json:"duration_ms"`
	Executed    int        `json:"executed"`
	Fresh       int        `json:"fresh"`
	Failed      int        `json:"failed"`
	Error       *string    `json:"error,omitempty"`
}

// NodeExecution is one row of the node_executions table: the final state of
// one workflow in one run.
type NodeExecution struct {
	ID          int64     `json:"id"`
	RunID       string    `json:"run_id"`
	Workflow    string    `json:"workflow"`
	State       string    `json:"state"`
	Reason      *string   `json:"reason,omitempty"`
	Executed    bool      `json:"executed"`
	Fingerprint *string   `json:"fingerprint,omitempty"`
	OutputPath  *string   `json:"output_path,omitempty"`
	DurationMS  int64     `json:"duration_ms"`
	Error       *string   `json:"error,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
