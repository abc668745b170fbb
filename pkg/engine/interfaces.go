package engine

import (
	"context"
	"errors"
)

// ErrWorkflowNotFound is returned by a NodeResolver for an unknown workflow ID.
var ErrWorkflowNotFound = errors.New("workflow not found")

// NodeResolver turns a workflow ID into a node with its resolved
// configuration and file references.
type NodeResolver interface {
	// ResolveNode returns the node for id, or an error wrapping
	// ErrWorkflowNotFound if no such workflow exists.
	ResolveNode(ctx context.Context, id string) (*WorkflowNode, error)
}

// NodeResolverFunc adapts a function to NodeResolver.
type NodeResolverFunc func(ctx context.Context, id string) (*WorkflowNode, error)

// ResolveNode calls f.
func (f NodeResolverFunc) ResolveNode(ctx context.Context, id string) (*WorkflowNode, error) {
	return f(ctx, id)
}

// ExecutionRequest is what the scheduler hands to the executor.
type ExecutionRequest struct {
	RunID string

	// Node is the workflow to execute.
	Node *WorkflowNode

	// Dependencies are the direct dependencies, already fresh.
	Dependencies []*WorkflowNode
}

// ExecutorResult is the executor's report for one workflow.
type ExecutorResult struct {
	OutputPath string
	Success    bool
	Detail     string
}

// Executor performs prompt assembly and the backend call for one workflow.
// The scheduler treats it as opaque and atomic.
type Executor interface {
	Execute(ctx context.Context, req *ExecutionRequest) (*ExecutorResult, error)
}

// ExecutionLog persists one ExecutionRecord per workflow.
type ExecutionLog interface {
	// Get returns the record for id, or nil if the workflow never executed.
	Get(ctx context.Context, id string) (*ExecutionRecord, error)

	// Put replaces the record for rec.Workflow.
	Put(ctx context.Context, rec *ExecutionRecord) error
}

// RunRecorder receives run history. Recorder failures are logged and never
// fail the run.
type RunRecorder interface {
	RunStarted(ctx context.Context, run *RunResult) error
	NodeFinished(ctx context.Context, runID string, node *NodeResult) error
	RunFinished(ctx context.Context, run *RunResult) error
}

// Admitter decides whether a workflow may execute.
type Admitter interface {
	// Admit returns nil to allow execution, or an error describing why the
	// workflow was denied.
	Admit(ctx context.Context, node *WorkflowNode) error
}
