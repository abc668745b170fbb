package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is reported but does not block execution.
	SeverityWarning Severity = "warning"

	// SeverityError blocks execution.
	SeverityError Severity = "error"

	// SeverityCritical blocks execution.
	SeverityCritical Severity = "critical"
)

// Blocks reports whether violations of this severity deny admission.
func (s Severity) Blocks() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Violations are collected from the
	// deny set of its package.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Source is the file the policy came from, empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation is a single deny result.
type Violation struct {
	Policy   string   `json:"policy"`
	Workflow string   `json:"workflow,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// Result is the outcome of evaluating every enabled policy against one input.
type Result struct {
	// Allowed is false if any violation blocks.
	Allowed bool `json:"allowed"`

	// Violations lists blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists non-blocking violations.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Input is the document policies see as `input`.
type Input struct {
	// Workflow is the workflow ID.
	Workflow string `json:"workflow"`

	// Config holds the resolved configuration: strings, numbers and lists.
	Config map[string]interface{} `json:"config"`

	// Dependencies are the declared dependencies.
	Dependencies []string `json:"dependencies"`

	// Files are the configured file references, as written.
	Files []FileRef `json:"files"`

	// Context provides evaluation context.
	Context *Context `json:"context"`
}

// FileRef is one configured file reference. Clean is the lexically cleaned,
// slash-separated form of Path.
type FileRef struct {
	Key   string `json:"key"`
	Path  string `json:"path"`
	Clean string `json:"clean"`
}

// Context provides context information for policy evaluation.
type Context struct {
	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`

	// Operation is what is being admitted, e.g. "execute".
	Operation string `json:"operation"`
}
