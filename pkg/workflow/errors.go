package workflow

import "fmt"

// ValidationError reports a required entry parameter missing from the
// initial run parameters.
type ValidationError struct {
	WorkflowID string
	Param      string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow %s: missing required parameter %q", e.WorkflowID, e.Param)
}

// MissingOutputError reports a node that completed without producing one of
// its declared output fields.
type MissingOutputError struct {
	NodeID string
	Field  string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("node %s: missing required output field %q", e.NodeID, e.Field)
}

// NodeError wraps a failure raised by a node implementation.
type NodeError struct {
	NodeID string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: execution failed: %v", e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }
