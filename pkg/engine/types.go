package engine

import (
	"time"

	"github.com/openfroyo/cascade/pkg/config"
)

// WorkflowNode is one workflow as seen by a single run: its resolved
// configuration, its declared dependencies, and the files whose content
// determines its fingerprint. Nodes are built fresh for every run.
type WorkflowNode struct {
	// ID is the workflow name.
	ID string `json:"id"`

	// Config is the resolved configuration. It is never mutated.
	Config *config.ResolvedConfig `json:"-"`

	// Dependencies are the declared dependency IDs, duplicates removed,
	// in declaration order.
	Dependencies []string `json:"dependencies"`

	// Root is the project root; file references are reported relative to it.
	Root string `json:"root"`

	// TaskFile is the task specification. It may not exist yet.
	TaskFile string `json:"task_file"`

	// InputFiles are explicit input files followed by pattern matches.
	InputFiles []string `json:"input_files,omitempty"`

	// ContextFiles are explicit context files followed by pattern matches.
	ContextFiles []string `json:"context_files,omitempty"`

	// OutputFile is where the executor writes the workflow output.
	OutputFile string `json:"output_file"`
}

// GraphEdge is a dependency edge. From is the dependency, To the dependent.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DependencyGraph is the set of workflows reachable from Target through
// depends_on, together with the edges between them. It is acyclic by
// construction.
type DependencyGraph struct {
	// Target is the workflow the graph was built for.
	Target string `json:"target"`

	// Nodes maps workflow IDs to their nodes.
	Nodes map[string]*WorkflowNode `json:"nodes"`

	// Edges lists dependency edges in discovery order.
	Edges []GraphEdge `json:"edges"`

	// discovery is the pre-order in which nodes were first reached.
	discovery []string
}

// Fingerprint is a content-addressed digest of everything a workflow's output
// depends on.
type Fingerprint struct {
	// Digest is the hex sha256 over all components.
	Digest string `json:"digest"`

	// Components holds the per-input hashes the digest was computed from.
	Components Components `json:"components"`
}

// Components are the individual hashes folded into a Fingerprint. They are
// stored with each ExecutionRecord so staleness can be explained.
type Components struct {
	Config            string            `json:"config"`
	Task              string            `json:"task"`
	Inputs            map[string]string `json:"inputs,omitempty"`
	Context           map[string]string `json:"context,omitempty"`
	Dependencies      map[string]string `json:"dependencies,omitempty"`
	DependencyOutputs map[string]string `json:"dependency_outputs,omitempty"`
}

// OutcomeSuccess is the only outcome ever persisted: failed executions leave
// no record.
const OutcomeSuccess = "success"

// ExecutionRecord is the persisted result of the last successful execution
// of a workflow.
type ExecutionRecord struct {
	Workflow    string      `json:"workflow" validate:"required"`
	Fingerprint string      `json:"fingerprint" validate:"required,hexadecimal,len=64"`
	Timestamp   time.Time   `json:"timestamp" validate:"required"`
	Outcome     string      `json:"outcome" validate:"required,oneof=success"`
	RunID       string      `json:"run_id,omitempty"`
	OutputPath  string      `json:"output_path,omitempty"`
	Components  *Components `json:"components,omitempty"`
}

// NodeState is the per-run state of a workflow.
type NodeState string

const (
	// NodeStatePending means the workflow has not been looked at, or was
	// never reached because the run stopped earlier.
	NodeStatePending NodeState = "pending"

	// NodeStateExecuting means the executor is running the workflow.
	NodeStateExecuting NodeState = "executing"

	// NodeStateFresh means the workflow output is up to date, either because
	// it was already or because it just executed successfully.
	NodeStateFresh NodeState = "fresh"

	// NodeStateFailed is terminal and halts the run.
	NodeStateFailed NodeState = "failed"

	// NodeStatePlanned marks a workflow a dry run would have executed.
	NodeStatePlanned NodeState = "planned"
)

// RunStatus is the overall outcome of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunOptions control a single scheduler run.
type RunOptions struct {
	// AutoDeps executes stale dependencies. When false, a stale dependency
	// is a fatal error.
	AutoDeps bool

	// Force executes the target even when fresh.
	Force bool

	// ForceDeps executes every workflow in the graph even when fresh.
	ForceDeps bool

	// DryRun decides what would execute without calling the executor or
	// writing records.
	DryRun bool
}

// NodeResult reports what happened to one workflow during a run.
type NodeResult struct {
	Workflow    string        `json:"workflow"`
	State       NodeState     `json:"state"`
	Reason      string        `json:"reason,omitempty"`
	Executed    bool          `json:"executed"`
	Fingerprint string        `json:"fingerprint,omitempty"`
	OutputPath  string        `json:"output_path,omitempty"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
}

// RunSummary counts node outcomes.
type RunSummary struct {
	Total    int `json:"total"`
	Executed int `json:"executed"`
	Fresh    int `json:"fresh"`
	Failed   int `json:"failed"`
	Planned  int `json:"planned"`
	Pending  int `json:"pending"`
}

// RunResult is the outcome of Scheduler.Run.
type RunResult struct {
	RunID       string        `json:"run_id"`
	Target      string        `json:"target"`
	Status      RunStatus     `json:"status"`
	Options     RunOptions    `json:"options"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
	Order       []string      `json:"order"`
	Nodes       []*NodeResult `json:"nodes"`
	Summary     RunSummary    `json:"summary"`
	Error       string        `json:"error,omitempty"`
}

// Node returns the result for a workflow, or nil.
func (r *RunResult) Node(id string) *NodeResult {
	for _, n := range r.Nodes {
		if n.Workflow == id {
			return n
		}
	}
	return nil
}

// ExecutedWorkflows returns the IDs of workflows the executor ran, in order.
func (r *RunResult) ExecutedWorkflows() []string {
	var out []string
	for _, n := range r.Nodes {
		if n.Executed {
			out = append(out, n.Workflow)
		}
	}
	return out
}

func calculateRunSummary(nodes []*NodeResult) RunSummary {
	summary := RunSummary{Total: len(nodes)}
	for _, n := range nodes {
		if n.Executed {
			summary.Executed++
		}
		switch n.State {
		case NodeStateFresh:
			summary.Fresh++
		case NodeStateFailed:
			summary.Failed++
		case NodeStatePlanned:
			summary.Planned++
		case NodeStatePending:
			summary.Pending++
		}
	}
	return summary
}
