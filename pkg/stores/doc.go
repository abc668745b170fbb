// Package stores persists cascade state.
//
// FileExecutionLog keeps one execution.json per workflow: the record of its
// last successful execution, which the staleness oracle compares against.
// Records are replaced atomically.
//
// SQLiteStore keeps the run history shown by `cascade history`. It is
// append-only bookkeeping and never consulted for staleness.
package stores
