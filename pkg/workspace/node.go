package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/openfroyo/cascade/pkg/config"
	"github.com/openfroyo/cascade/pkg/engine"
	"github.com/openfroyo/cascade/pkg/telemetry"
)

// NodeFor builds the engine node of a workflow from its resolved
// configuration. Explicit file references come first, in declared order,
// followed by pattern matches not already listed. Paths are relative to the
// project root unless absolute.
func (w *Workspace) NodeFor(id string, resolved *config.ResolvedConfig) (*engine.WorkflowNode, error) {
	inputs, err := w.expand(resolved.List(config.KeyInputFiles), resolved.String(config.KeyInputPattern))
	if err != nil {
		return nil, fmt.Errorf("workflow %s: input files: %w", id, err)
	}
	contexts, err := w.expand(resolved.List(config.KeyContextFiles), resolved.String(config.KeyContextPattern))
	if err != nil {
		return nil, fmt.Errorf("workflow %s: context files: %w", id, err)
	}

	return &engine.WorkflowNode{
		ID:           id,
		Config:       resolved,
		Dependencies: resolved.List(config.KeyDependsOn),
		Root:         w.root,
		TaskFile:     w.TaskPath(id),
		InputFiles:   inputs,
		ContextFiles: contexts,
		OutputFile:   w.OutputPath(id, resolved.String(config.KeyOutputFormat)),
	}, nil
}

func (w *Workspace) abs(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(w.root, p)
}

func (w *Workspace) expand(files []string, pattern string) ([]string, error) {
	seen := make(map[string]bool, len(files))
	out := make([]string, 0, len(files))
	for _, f := range files {
		p := w.abs(f)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	if pattern == "" {
		return out, nil
	}

	matches, err := filepath.Glob(w.abs(pattern))
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	for _, m := range matches {
		if info, err := os.Stat(m); err != nil || info.IsDir() {
			continue
		}
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out, nil
}

// Resolver implements engine.NodeResolver on top of a loaded cascade. It
// collects the tier warnings of every workflow it resolves.
type Resolver struct {
	ws      *Workspace
	cascade *config.Cascade
	cli     config.TierValues
	logger  *telemetry.Logger

	mu       sync.Mutex
	warnings []config.Warning
}

// NewResolver creates a resolver for one run. cli is the highest tier.
func (w *Workspace) NewResolver(cascade *config.Cascade, cli config.TierValues) *Resolver {
	r := &Resolver{ws: w, cascade: cascade, cli: cli, logger: w.logger}
	r.note(cascade.Warnings())
	return r
}

// Config resolves the configuration of a workflow, or the project-level
// configuration when id is empty.
func (r *Resolver) Config(id string) (*config.ResolvedConfig, error) {
	if id == "" {
		resolved, _ := r.cascade.Resolve("", r.cli)
		return resolved, nil
	}
	// An id that cannot name a directory names no workflow.
	if err := ValidateID(id); err != nil {
		return nil, fmt.Errorf("%w: %w", engine.ErrWorkflowNotFound, err)
	}
	if !r.ws.Exists(id) {
		return nil, fmt.Errorf("%s: %w", id, engine.ErrWorkflowNotFound)
	}
	resolved, warnings := r.cascade.Resolve(r.ws.WorkflowSource(id), r.cli)
	r.note(warnings)
	return resolved, nil
}

// ResolveNode implements engine.NodeResolver.
func (r *Resolver) ResolveNode(_ context.Context, id string) (*engine.WorkflowNode, error) {
	resolved, err := r.Config(id)
	if err != nil {
		return nil, err
	}
	return r.ws.NodeFor(id, resolved)
}

func (r *Resolver) note(warnings []config.Warning) {
	if len(warnings) == 0 {
		return
	}
	r.mu.Lock()
	r.warnings = append(r.warnings, warnings...)
	r.mu.Unlock()
	for _, w := range warnings {
		r.logger.WithFields(map[string]interface{}{
			"source": w.Source,
			"key":    w.Key,
		}).Warn("Configuration warning: " + w.Message)
	}
}

// Warnings returns every warning seen so far.
func (r *Resolver) Warnings() []config.Warning {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]config.Warning, len(r.warnings))
	copy(out, r.warnings)
	return out
}
