package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/openfroyo/cascade/pkg/config"
	"github.com/openfroyo/cascade/pkg/engine"
	"github.com/openfroyo/cascade/pkg/executor"
	"github.com/openfroyo/cascade/pkg/policy"
	"github.com/openfroyo/cascade/pkg/stores"
	"github.com/openfroyo/cascade/pkg/telemetry"
	"github.com/openfroyo/cascade/pkg/workspace"
)

// Options locate the project and carry the cli tier.
type Options struct {
	// Root is the project root. Empty means discover from WorkDir.
	Root string

	// WorkDir is where discovery starts. Empty means the process working
	// directory.
	WorkDir string

	// ConfigHome overrides the global tier directory.
	ConfigHome string

	// Set holds key=value assignments for the cli tier.
	Set []string

	// NoHistory disables the run history database.
	NoHistory bool

	// EnablePolicies and DisablePolicies toggle loaded policies by name.
	// Disabling wins when a name appears in both.
	EnablePolicies  []string
	DisablePolicies []string
}

// Service is the facade over workspace, cascade, engine and stores.
type Service struct {
	ws       *workspace.Workspace
	loader   *config.Loader
	cli      config.TierValues
	tel      *telemetry.Telemetry
	logger   *telemetry.Logger
	execLog  *stores.FileExecutionLog
	executor engine.Executor
	policies *policy.Engine
	toggles  map[string]bool
	history  *stores.SQLiteStore
	builder  *engine.GraphBuilder
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithExecutor replaces the command executor.
func WithExecutor(e engine.Executor) ServiceOption {
	return func(s *Service) { s.executor = e }
}

// New opens the project and wires every component. The history database and
// project policies are optional: failing to open history only logs a
// warning, but a broken policy or an unknown policy toggle is an error.
// A nil tel falls back to the telemetry carried by ctx.
func New(ctx context.Context, opts Options, tel *telemetry.Telemetry, sopts ...ServiceOption) (*Service, error) {
	if tel == nil {
		tel = telemetry.FromTelemetryContext(ctx)
	}
	if tel == nil {
		tel = telemetry.Nop()
	}
	logger := tel.Logger.NewComponentLogger("app")

	wsOpts := []workspace.Option{workspace.WithLogger(tel.Logger)}
	if opts.ConfigHome != "" {
		wsOpts = append(wsOpts, workspace.WithConfigHome(opts.ConfigHome))
	}

	var ws *workspace.Workspace
	var err error
	if opts.Root != "" {
		ws, err = workspace.Open(opts.Root, wsOpts...)
	} else {
		start := opts.WorkDir
		if start == "" {
			if start, err = os.Getwd(); err != nil {
				return nil, fmt.Errorf("failed to get working directory: %w", err)
			}
		}
		ws, err = workspace.Discover(start, wsOpts...)
	}
	if err != nil {
		return nil, err
	}

	cli, err := config.ParseAssignments(opts.Set)
	if err != nil {
		return nil, err
	}

	loader, err := config.NewLoader()
	if err != nil {
		return nil, fmt.Errorf("failed to create config loader: %w", err)
	}

	policies, err := policy.NewEngine(tel.Logger.Zerolog())
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(ws.PoliciesDir()); err == nil && info.IsDir() {
		if err := policies.LoadPolicies(ctx, []string{ws.PoliciesDir()}); err != nil {
			return nil, err
		}
	}

	s := &Service{
		ws:       ws,
		loader:   loader,
		cli:      cli,
		tel:      tel,
		logger:   logger,
		execLog:  stores.NewFileExecutionLog(ws.WorkflowsDir(), tel.Logger),
		executor: executor.NewCommandExecutor(tel.Logger),
		policies: policies,
		toggles:  policyToggles(opts.EnablePolicies, opts.DisablePolicies),
		builder:  engine.NewGraphBuilder(),
	}
	for _, opt := range sopts {
		opt(s)
	}
	if err := s.applyPolicyToggles(); err != nil {
		return nil, err
	}

	if !opts.NoHistory {
		s.history = openHistory(ctx, ws.HistoryPath(), logger)
	}

	logger.WithFields(map[string]interface{}{
		"root":    ws.Root(),
		"history": s.history != nil,
	}).Debug("Project opened")

	return s, nil
}

func openHistory(ctx context.Context, path string, logger *telemetry.Logger) *stores.SQLiteStore {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err == nil {
		err = store.Init(ctx)
	}
	if err == nil {
		if err = store.HealthCheck(ctx); err == nil {
			err = store.Migrate(ctx)
		}
		if err != nil {
			_ = store.Close()
		}
	}
	if err != nil {
		logger.WithError(err).Warn("Run history unavailable")
		return nil
	}
	return store
}

func policyToggles(enable, disable []string) map[string]bool {
	toggles := make(map[string]bool, len(enable)+len(disable))
	for _, name := range enable {
		toggles[name] = true
	}
	for _, name := range disable {
		toggles[name] = false
	}
	return toggles
}

// applyPolicyToggles enables or disables policies by name. It runs after
// every policy (re)load, which resets the enabled flags.
func (s *Service) applyPolicyToggles() error {
	names := make([]string, 0, len(s.toggles))
	for name := range s.toggles {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		var err error
		if s.toggles[name] {
			err = s.policies.EnablePolicy(name)
		} else {
			err = s.policies.DisablePolicy(name)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Close releases the history database.
func (s *Service) Close() error {
	if s.history != nil {
		return s.history.Close()
	}
	return nil
}

// Workspace returns the opened project.
func (s *Service) Workspace() *workspace.Workspace {
	return s.ws
}

// Policies returns the policy engine.
func (s *Service) Policies() *policy.Engine {
	return s.policies
}

// resolver loads the shared tiers afresh, so every operation sees the
// current files.
func (s *Service) resolver() *workspace.Resolver {
	cascade := config.NewCascade(s.loader, s.ws.Sources())
	return s.ws.NewResolver(cascade, s.cli)
}

// buildGraph builds the graph for target and reports tier warnings.
func (s *Service) buildGraph(ctx context.Context, target string) (*engine.DependencyGraph, *workspace.Resolver, error) {
	r := s.resolver()
	graph, err := s.builder.Build(ctx, target, r)
	s.reportWarnings(r.Warnings())
	if err != nil {
		var engErr *engine.EngineError
		if errors.As(err, &engErr) {
			s.tel.Metrics.RecordError(engErr.Code)
		}
		return nil, r, err
	}
	return graph, r, nil
}

func (s *Service) reportWarnings(warnings []config.Warning) {
	if len(warnings) == 0 {
		return
	}
	s.tel.Metrics.RecordConfigWarnings(len(warnings))
	for _, w := range warnings {
		s.tel.Events.PublishConfigWarning("", "", w.String())
	}
}

// Run builds the graph for target and schedules it.
func (s *Service) Run(ctx context.Context, target string, opts engine.RunOptions) (*engine.RunResult, error) {
	s.tel.Events.Publish(telemetry.Event{
		Type:     telemetry.EventTypeResolving,
		Workflow: target,
		Message:  "Resolving dependencies...",
	})

	graph, _, err := s.buildGraph(ctx, target)
	if err != nil {
		return nil, err
	}

	schedOpts := []engine.SchedulerOption{
		engine.WithLogger(s.tel.Logger),
		engine.WithMetrics(s.tel.Metrics),
		engine.WithTracer(s.tel.Tracer),
		engine.WithEvents(s.tel.Events),
		engine.WithAdmitter(s.policies),
	}
	if s.history != nil {
		schedOpts = append(schedOpts, engine.WithRecorder(s.history))
	}

	return engine.NewScheduler(s.executor, s.execLog, schedOpts...).Run(ctx, graph, opts)
}

// Graph builds the dependency graph of target without evaluating it.
func (s *Service) Graph(ctx context.Context, target string) (*engine.DependencyGraph, error) {
	graph, _, err := s.buildGraph(ctx, target)
	return graph, err
}

// ShowConfig resolves the configuration of a workflow, or of the project
// when id is empty.
func (s *Service) ShowConfig(id string) ([]config.Entry, []config.Warning, error) {
	r := s.resolver()
	resolved, err := r.Config(id)
	if err != nil {
		return nil, nil, err
	}
	return resolved.Entries(), r.Warnings(), nil
}
