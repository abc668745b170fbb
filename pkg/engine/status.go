package engine

import (
	"context"
	"fmt"
)

// Evaluate computes the verdict of every workflow in graph without executing
// anything. Verdicts are computed in topological order, so a stale
// dependency makes its dependents stale through their fingerprints.
func Evaluate(ctx context.Context, graph *DependencyGraph, log ExecutionLog, oracle *StalenessOracle) (map[string]Verdict, error) {
	if oracle == nil {
		oracle = NewStalenessOracle(nil)
	}

	fingerprints := make(map[string]*Fingerprint, len(graph.Nodes))
	outputs := make(map[string]string, len(graph.Nodes))
	for id, node := range graph.Nodes {
		outputs[id] = node.OutputFile
	}

	verdicts := make(map[string]Verdict, len(graph.Nodes))
	for _, id := range graph.TopologicalOrder() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		prior, err := log.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to read execution record for %s: %w", id, err)
		}
		v, err := oracle.Check(graph.Nodes[id], fingerprints, outputs, prior)
		if err != nil {
			return nil, err
		}
		fingerprints[id] = v.Fingerprint
		verdicts[id] = v
	}
	return verdicts, nil
}
