package workflow

import "time"

// Status describes the lifecycle of a node execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// NodeResult is the audit trail of one node within a run: the input it saw,
// the output it produced, and how it ended.
type NodeResult struct {
	NodeID    string         `json:"node_id"`
	Status    Status         `json:"status"`
	Input     map[string]any `json:"input,omitempty"`
	Output    map[string]any `json:"output,omitempty"`
	Err       string         `json:"error,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
}

// Result is what the caller receives when the exit node completes.
//
// OutputData holds the exit node's declared output fields. Results holds the
// per-node trace up to and including the exit node; background node results
// are only included when the engine runs them synchronously.
type Result struct {
	WorkflowID string         `json:"workflow_id"`
	Status     Status         `json:"status"`
	Results    []NodeResult   `json:"results"`
	OutputData map[string]any `json:"output_data"`
	StartedAt  time.Time      `json:"started_at"`
	EndedAt    time.Time      `json:"ended_at"`
}
