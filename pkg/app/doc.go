// Package app wires the cascade components into the operations the command
// line exposes: run, status, config, graph, clean, history and watch.
package app
