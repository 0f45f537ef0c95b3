package engine

import (
	"errors"
	"fmt"
)

// RunError represents an error detected while evaluating a graph.
//
// Run errors include:
//   - Cycle detection: the edge set admits no topological order
//   - Missing node: an edge references a node id that doesn't exist
//   - Node failure: a node's own execution failed
//   - Worker failure: an external analysis worker failed
//
// RunError includes structured fields for diagnostics and recovery.
type RunError struct {
	// Code identifies the error category.
	Code RunErrorCode

	// Message is a human-readable description.
	Message string

	// NodeID identifies the affected node, when one is known.
	NodeID string

	// TypeID is the node type of the affected node.
	TypeID string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RunErrorCode categorizes run errors.
type RunErrorCode string

const (
	// ErrCodeCycleDetected indicates the graph contains a dependency cycle.
	ErrCodeCycleDetected RunErrorCode = "CYCLE_DETECTED"

	// ErrCodeMissingNode indicates an edge references an unknown node id.
	ErrCodeMissingNode RunErrorCode = "MISSING_NODE"

	// ErrCodeNodeFailed indicates a node's execution returned an error.
	ErrCodeNodeFailed RunErrorCode = "NODE_FAILED"

	// ErrCodeWorkerFailed indicates an external analysis worker failed.
	ErrCodeWorkerFailed RunErrorCode = "WORKER_FAILED"

	// ErrCodeBadParam indicates a node parameter could not be parsed.
	ErrCodeBadParam RunErrorCode = "BAD_PARAM"

	// ErrCodeEmptySignal indicates a node received audio or a signal with
	// no samples where samples are required.
	ErrCodeEmptySignal RunErrorCode = "EMPTY_SIGNAL"
)

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.NodeID != "" && e.TypeID != "" {
		return fmt.Sprintf("%s: %s (node=%s, type=%s)", e.Code, e.Message, e.NodeID, e.TypeID)
	}
	if e.NodeID != "" {
		return fmt.Sprintf("%s: %s (node=%s)", e.Code, e.Message, e.NodeID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RunError) Unwrap() error { return e.Err }

// IsCycleError returns true if the error is a cycle detection error.
// Uses errors.As to handle wrapped errors.
func IsCycleError(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeCycleDetected
	}
	return false
}

// IsMissingNodeError returns true if the error names an unknown node id.
func IsMissingNodeError(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeMissingNode
	}
	return false
}

// IsWorkerError returns true if the error came from an external worker.
func IsWorkerError(err error) bool {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code == ErrCodeWorkerFailed
	}
	return false
}

// NewCycleError creates a RunError for an unresolvable dependency cycle.
func NewCycleError(remaining []string) *RunError {
	return &RunError{
		Code:    ErrCodeCycleDetected,
		Message: fmt.Sprintf("graph contains a cycle through %d node(s)", len(remaining)),
		Details: map[string]string{"nodes": fmt.Sprintf("%v", remaining)},
	}
}

// NewMissingNodeError creates a RunError for an edge endpoint that
// references a node id absent from the document.
func NewMissingNodeError(edgeID, nodeID string) *RunError {
	return &RunError{
		Code:    ErrCodeMissingNode,
		Message: fmt.Sprintf("edge %q references unknown node", edgeID),
		NodeID:  nodeID,
	}
}

// NewNodeError wraps a node execution failure with the node's identity.
func NewNodeError(nodeID, typeID string, err error) *RunError {
	return &RunError{
		Code:    ErrCodeNodeFailed,
		Message: err.Error(),
		NodeID:  nodeID,
		TypeID:  typeID,
		Err:     err,
	}
}

// NewWorkerError wraps an external worker failure.
func NewWorkerError(nodeID string, err error) *RunError {
	return &RunError{
		Code:    ErrCodeWorkerFailed,
		Message: err.Error(),
		NodeID:  nodeID,
		Err:     err,
	}
}

// NewBadParamError creates a RunError for an unparseable node parameter.
func NewBadParamError(nodeID, typeID, param string, err error) *RunError {
	return &RunError{
		Code:    ErrCodeBadParam,
		Message: fmt.Sprintf("parameter %q: %v", param, err),
		NodeID:  nodeID,
		TypeID:  typeID,
		Details: map[string]string{"param": param},
		Err:     err,
	}
}

// NewEmptySignalError creates a RunError for empty required input.
func NewEmptySignalError(nodeID, typeID, port string) *RunError {
	return &RunError{
		Code:    ErrCodeEmptySignal,
		Message: fmt.Sprintf("input %q carries no samples", port),
		NodeID:  nodeID,
		TypeID:  typeID,
		Details: map[string]string{"port": port},
	}
}
