package app

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/openfroyo/cascade/pkg/engine"
)

// WatchHandler receives the result of every run Watch triggers.
type WatchHandler func(result *engine.RunResult, err error)

// Watch runs target once, then again whenever project files change, until
// ctx is done. Changes to policy files reload the policy engine first.
func (s *Service) Watch(ctx context.Context, target string, opts engine.RunOptions, debounce time.Duration, fn WatchHandler) error {
	fn(s.Run(ctx, target, opts))

	return s.ws.Watch(ctx, debounce, func(changed []string) {
		if s.touchesPolicies(changed) {
			if err := s.reloadPolicies(ctx); err != nil {
				s.logger.WithError(err).Error("Failed to reload policies")
			}
		}
		s.logger.WithField("files", len(changed)).Info("Changes detected, re-running")
		fn(s.Run(ctx, target, opts))
	})
}

func (s *Service) reloadPolicies(ctx context.Context) error {
	if err := s.policies.ReloadPolicies(ctx); err != nil {
		return err
	}
	return s.applyPolicyToggles()
}

func (s *Service) touchesPolicies(changed []string) bool {
	dir := s.ws.PoliciesDir() + string(filepath.Separator)
	for _, p := range changed {
		if strings.HasPrefix(p, dir) {
			return true
		}
	}
	return false
}
