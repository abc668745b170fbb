// Package engine builds workflow dependency graphs, decides which workflows are
// stale, and runs them in dependency order.
//
// # Graph construction
//
// GraphBuilder walks depends_on declarations from a target with an explicit
// stack and visiting/done sets. A back edge is a CycleError carrying the
// full path, for example:
//
//	circular dependency detected: A -> C -> B -> A
//
// Unknown dependencies fail with ErrCodeDependencyNotFound. Each workflow is
// resolved once, even when several dependents share it.
//
// # Staleness
//
// A Fingerprint is a sha256 over the canonical resolved configuration, the
// task file, every input and context file, and the fingerprint and output
// hash of each direct dependency. Because dependency fingerprints are folded
// in, a change anywhere upstream changes every fingerprint downstream.
//
// StalenessOracle compares the current fingerprint with the ExecutionRecord
// written by the last successful execution:
//
//	no record            pending
//	same fingerprint     fresh
//	different            stale: <first differing component>
//
// # Scheduling
//
// Scheduler processes the topological order sequentially. Each workflow
// moves from pending to fresh, or from pending through executing to fresh
// or failed. A failure stops the run; no record is written for a workflow
// that failed or was never reached.
package engine
