package app

import (
	"context"
	"fmt"
	"time"

	"github.com/openfroyo/cascade/pkg/engine"
)

// Status values beyond the oracle verdicts.
const StatusError = "error"

// StatusEntry is one row of `cascade status`.
type StatusEntry struct {
	Workflow     string     `json:"workflow"`
	Status       string     `json:"status"`
	Reason       string     `json:"reason,omitempty"`
	Error        string     `json:"error,omitempty"`
	LastExecuted *time.Time `json:"last_executed,omitempty"`
}

// Label renders the entry as pending, fresh, stale: <reason> or error: <msg>.
func (e StatusEntry) Label() string {
	switch e.Status {
	case engine.VerdictStale:
		return e.Status + ": " + e.Reason
	case StatusError:
		return e.Status + ": " + e.Error
	default:
		return e.Status
	}
}

// Status evaluates one workflow, or every workflow when id is empty, without
// executing anything. A workflow whose graph or fingerprint cannot be
// computed gets an error entry; the other entries are still reported.
func (s *Service) Status(ctx context.Context, id string) ([]StatusEntry, error) {
	ids := []string{id}
	if id == "" {
		var err error
		if ids, err = s.ws.ListWorkflows(); err != nil {
			return nil, err
		}
	} else if !s.ws.Exists(id) {
		return nil, fmt.Errorf("%s: %w", id, engine.ErrWorkflowNotFound)
	}

	r := s.resolver()
	verdicts := make(map[string]engine.Verdict)
	entries := make([]StatusEntry, 0, len(ids))

	for _, wf := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, ok := verdicts[wf]; !ok {
			if err := s.evaluate(ctx, r, wf, verdicts); err != nil {
				entries = append(entries, StatusEntry{Workflow: wf, Status: StatusError, Error: err.Error()})
				continue
			}
		}

		v := verdicts[wf]
		entry := StatusEntry{Workflow: wf, Status: v.Status}
		if v.Status != engine.VerdictFresh {
			entry.Reason = v.Reason
		}
		if rec, err := s.execLog.Get(ctx, wf); err == nil && rec != nil {
			ts := rec.Timestamp
			entry.LastExecuted = &ts
		}
		entries = append(entries, entry)
	}

	s.reportWarnings(r.Warnings())
	return entries, nil
}

func (s *Service) evaluate(ctx context.Context, r engine.NodeResolver, target string, verdicts map[string]engine.Verdict) error {
	graph, err := s.builder.Build(ctx, target, r)
	if err != nil {
		return err
	}
	result, err := engine.Evaluate(ctx, graph, s.execLog, nil)
	if err != nil {
		return err
	}
	for wf, v := range result {
		verdicts[wf] = v
	}
	return nil
}
