package engine

import (
	"errors"
	"io/fs"
	"os"
)

// Verdict statuses.
const (
	VerdictPending = "pending"
	VerdictFresh   = "fresh"
	VerdictStale   = "stale"
)

// Staleness reasons, in the order they are checked.
const (
	ReasonNeverExecuted          = "never executed"
	ReasonConfigChanged          = "config changed"
	ReasonTaskChanged            = "task changed"
	ReasonInputChanged           = "input changed"
	ReasonContextChanged         = "context changed"
	ReasonDependencyChanged      = "dependency changed"
	ReasonDependencyOutputChange = "dependency output changed"
	ReasonFingerprintChanged     = "fingerprint changed"
	ReasonOutputMissing          = "output missing"
	ReasonForced                 = "forced"
)

// Verdict is the oracle's decision for one workflow.
type Verdict struct {
	// Status is pending (never executed), fresh, or stale.
	Status string

	// Reason explains a pending or stale status.
	Reason string

	// Fingerprint is the current fingerprint of the workflow.
	Fingerprint *Fingerprint
}

// Stale reports whether the workflow must execute.
func (v Verdict) Stale() bool {
	return v.Status != VerdictFresh
}

// Label renders the verdict as shown by `cascade status`.
func (v Verdict) Label() string {
	if v.Status == VerdictStale {
		return VerdictStale + ": " + v.Reason
	}
	return v.Status
}

// StalenessOracle compares a workflow's current fingerprint with its last
// execution record. It has no knowledge of the graph: dependency changes
// reach it through the dependency fingerprints it is given.
type StalenessOracle struct {
	fingerprinter *Fingerprinter
}

// NewStalenessOracle creates an oracle.
func NewStalenessOracle(fp *Fingerprinter) *StalenessOracle {
	if fp == nil {
		fp = NewFingerprinter()
	}
	return &StalenessOracle{fingerprinter: fp}
}

// Check fingerprints node and compares it with prior, which is nil if the
// workflow never executed. A matching fingerprint is only fresh while the
// recorded output still exists.
func (o *StalenessOracle) Check(node *WorkflowNode, deps map[string]*Fingerprint, outputs map[string]string, prior *ExecutionRecord) (Verdict, error) {
	fp, err := o.fingerprinter.Compute(node, deps, outputs)
	if err != nil {
		return Verdict{}, err
	}

	switch {
	case prior == nil:
		return Verdict{Status: VerdictPending, Reason: ReasonNeverExecuted, Fingerprint: fp}, nil
	case prior.Fingerprint == fp.Digest:
		missing, err := outputMissing(node, prior)
		if err != nil {
			return Verdict{}, err
		}
		if missing {
			return Verdict{Status: VerdictStale, Reason: ReasonOutputMissing, Fingerprint: fp}, nil
		}
		return Verdict{Status: VerdictFresh, Fingerprint: fp}, nil
	default:
		return Verdict{Status: VerdictStale, Reason: staleReason(prior.Components, &fp.Components), Fingerprint: fp}, nil
	}
}

// IsStale reports whether node must execute given prior.
func (o *StalenessOracle) IsStale(node *WorkflowNode, deps map[string]*Fingerprint, outputs map[string]string, prior *ExecutionRecord) (bool, error) {
	v, err := o.Check(node, deps, outputs, prior)
	if err != nil {
		return false, err
	}
	return v.Stale(), nil
}

// outputMissing reports whether the output of a recorded execution is gone.
// The node's output file wins over the path stored in the record.
func outputMissing(node *WorkflowNode, prior *ExecutionRecord) (bool, error) {
	path := node.OutputFile
	if path == "" {
		path = prior.OutputPath
	}
	if path == "" {
		return false, nil
	}
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, fs.ErrNotExist):
		return true, nil
	default:
		return false, NewPermanentError("failed to stat output file "+relPath(node.Root, path), err).
			WithCode(ErrCodeInternal).
			WithWorkflow(node.ID)
	}
}

// staleReason names the first component that differs. Records written
// without components fall back to a generic reason.
func staleReason(prior, current *Components) string {
	if prior == nil {
		return ReasonFingerprintChanged
	}
	switch {
	case prior.Config != current.Config:
		return ReasonConfigChanged
	case prior.Task != current.Task:
		return ReasonTaskChanged
	case !equalMaps(prior.Inputs, current.Inputs):
		return ReasonInputChanged
	case !equalMaps(prior.Context, current.Context):
		return ReasonContextChanged
	case !equalMaps(prior.Dependencies, current.Dependencies):
		return ReasonDependencyChanged
	case !equalMaps(prior.DependencyOutputs, current.DependencyOutputs):
		return ReasonDependencyOutputChange
	default:
		return ReasonFingerprintChanged
	}
}

func equalMaps(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}
