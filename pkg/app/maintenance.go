package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/openfroyo/cascade/pkg/engine"
	"github.com/openfroyo/cascade/pkg/stores"
	"github.com/openfroyo/cascade/pkg/workspace"
)

// Clean removes the execution record and outputs of one workflow, or of
// every workflow when id is empty, so the next run executes them again. It
// returns the workflows that had something to remove.
func (s *Service) Clean(ctx context.Context, id string) ([]string, error) {
	ids := []string{id}
	if id == "" {
		var err error
		if ids, err = s.ws.ListWorkflows(); err != nil {
			return nil, err
		}
	} else if !s.ws.Exists(id) {
		return nil, fmt.Errorf("%s: %w", id, engine.ErrWorkflowNotFound)
	}

	cleaned := []string{}
	for _, wf := range ids {
		removed := false

		if _, err := os.Stat(s.execLog.Path(wf)); err == nil {
			removed = true
		}
		if err := s.execLog.Delete(ctx, wf); err != nil {
			return cleaned, err
		}

		outputs, err := filepath.Glob(filepath.Join(s.ws.WorkflowDir(wf), workspace.OutputBase+".*"))
		if err != nil {
			return cleaned, err
		}
		for _, out := range outputs {
			if err := os.Remove(out); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return cleaned, fmt.Errorf("failed to remove %s: %w", out, err)
			}
			removed = true
		}

		if removed {
			s.logger.WithWorkflow(wf).Info("Cleaned workflow")
			cleaned = append(cleaned, wf)
		}
	}
	return cleaned, nil
}

// RunHistory is one run with its node executions.
type RunHistory struct {
	*stores.RunRecord
	Nodes []*stores.NodeExecution `json:"nodes"`
}

// ErrNoHistory is returned when the history database is not available.
var ErrNoHistory = errors.New("run history is not available")

// History returns the most recent runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]RunHistory, error) {
	if s.history == nil {
		return nil, ErrNoHistory
	}
	if limit <= 0 {
		limit = 20
	}
	runs, err := s.history.ListRuns(ctx, limit, 0)
	if err != nil {
		return nil, err
	}

	out := make([]RunHistory, 0, len(runs))
	for _, run := range runs {
		nodes, err := s.history.ListNodeExecutions(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, RunHistory{RunRecord: run, Nodes: nodes})
	}
	return out, nil
}
