package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/cascade/pkg/telemetry"
)

// Scheduler runs a dependency graph one workflow at a time, dependencies
// first, executing only what is stale.
type Scheduler struct {
	executor Executor
	log      ExecutionLog
	oracle   *StalenessOracle

	admitter Admitter
	recorder RunRecorder

	logger  *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	events  *telemetry.EventPublisher

	now   func() time.Time
	newID func() string
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l *telemetry.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = l.NewComponentLogger("scheduler") }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *telemetry.Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// WithTracer sets the tracer.
func WithTracer(t *telemetry.Tracer) SchedulerOption {
	return func(s *Scheduler) { s.tracer = t }
}

// WithEvents sets the progress event publisher.
func WithEvents(ep *telemetry.EventPublisher) SchedulerOption {
	return func(s *Scheduler) { s.events = ep }
}

// WithAdmitter sets the admission check consulted before each execution.
func WithAdmitter(a Admitter) SchedulerOption {
	return func(s *Scheduler) { s.admitter = a }
}

// WithRecorder sets the run history recorder.
func WithRecorder(r RunRecorder) SchedulerOption {
	return func(s *Scheduler) { s.recorder = r }
}

// WithOracle replaces the staleness oracle.
func WithOracle(o *StalenessOracle) SchedulerOption {
	return func(s *Scheduler) { s.oracle = o }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a scheduler that executes through executor and keeps
// execution records in log.
func NewScheduler(executor Executor, log ExecutionLog, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		executor: executor,
		log:      log,
		oracle:   NewStalenessOracle(nil),
		logger:   telemetry.NopLogger(),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// runState carries the per-run bookkeeping.
type runState struct {
	result       *RunResult
	graph        *DependencyGraph
	opts         RunOptions
	fingerprints map[string]*Fingerprint
	outputs      map[string]string
	planned      map[string]bool
	logger       *telemetry.Logger
}

// Run processes every workflow of graph in topological order. It returns the
// run result even when the run fails; the error names the failing workflow.
func (s *Scheduler) Run(ctx context.Context, graph *DependencyGraph, opts RunOptions) (*RunResult, error) {
	if graph == nil || len(graph.Nodes) == 0 {
		return nil, NewPermanentError("dependency graph is empty", nil).WithCode(ErrCodeValidation)
	}

	order := graph.TopologicalOrder()
	result := &RunResult{
		RunID:     s.newID(),
		Target:    graph.Target,
		Status:    RunStatusRunning,
		Options:   opts,
		StartedAt: s.now(),
		Order:     order,
		Nodes:     make([]*NodeResult, 0, len(order)),
	}
	for _, id := range order {
		result.Nodes = append(result.Nodes, &NodeResult{Workflow: id, State: NodeStatePending})
	}

	st := &runState{
		result:       result,
		graph:        graph,
		opts:         opts,
		fingerprints: make(map[string]*Fingerprint, len(order)),
		outputs:      make(map[string]string, len(order)),
		planned:      make(map[string]bool),
		logger:       s.logger.WithRunID(result.RunID),
	}
	for id, node := range graph.Nodes {
		st.outputs[id] = node.OutputFile
	}

	ctx, span := s.tracer.StartRunSpan(ctx, result.RunID, graph.Target)
	defer span.End()
	if traceID := telemetry.TraceID(ctx); traceID != "" {
		st.logger = st.logger.WithField("trace_id", traceID)
	}

	s.events.PublishRunStarted(result.RunID, graph.Target)
	s.record(ctx, st, func(r RunRecorder) error { return r.RunStarted(ctx, result) })
	st.logger.WithFields(map[string]interface{}{
		"target":   graph.Target,
		"order":    order,
		"dry_run":  opts.DryRun,
		"autodeps": opts.AutoDeps,
	}).Info("Starting run")

	var runErr error
	for i, id := range order {
		if err := ctx.Err(); err != nil {
			runErr = NewTransientError("run cancelled", err).WithCode(ErrCodeCancelled).WithWorkflow(id)
			break
		}
		if err := s.processNode(ctx, st, result.Nodes[i]); err != nil {
			runErr = err
			break
		}
	}

	return s.finish(ctx, st, span, runErr)
}

func (s *Scheduler) processNode(ctx context.Context, st *runState, res *NodeResult) error {
	id := res.Workflow
	node := st.graph.Nodes[id]
	isTarget := id == st.graph.Target
	logger := st.logger.WithWorkflow(id)

	ctx, span := s.tracer.StartWorkflowSpan(ctx, id)
	defer span.End()

	prior, err := s.log.Get(ctx, id)
	if err != nil {
		return s.failNode(ctx, st, res, span, NewTransientError("failed to read execution record", err).
			WithCode(ErrCodeInternal).WithWorkflow(id))
	}

	verdict, err := s.oracle.Check(node, st.fingerprints, st.outputs, prior)
	if err != nil {
		return s.failNode(ctx, st, res, span, err)
	}
	st.fingerprints[id] = verdict.Fingerprint
	res.Fingerprint = verdict.Fingerprint.Digest

	stale, reason := verdict.Stale(), verdict.Reason
	if !stale && st.opts.DryRun && s.dependsOnPlanned(st, node) {
		stale, reason = true, ReasonDependencyChanged
	}
	if s.forced(st.opts, isTarget) && !stale {
		stale, reason = true, ReasonForced
	}
	res.Reason = reason
	span.SetAttributes(telemetry.AttrVerdict.String(verdict.Status), telemetry.AttrReason.String(reason))

	if !stale {
		res.State = NodeStateFresh
		res.OutputPath = node.OutputFile
		logger.Debug("Workflow is fresh")
		s.publish(st, id, eventType(isTarget, telemetry.EventTypeDependencyFresh, telemetry.EventTypeWorkflowSkipped), fmt.Sprintf("%s '%s' is fresh", label(isTarget), id))
		s.metrics.RecordWorkflowSkipped(VerdictFresh)
		s.record(ctx, st, func(r RunRecorder) error { return r.NodeFinished(ctx, st.result.RunID, res) })
		telemetry.RecordSuccess(span)
		return nil
	}

	if !isTarget && !st.opts.AutoDeps {
		what := "is stale"
		if verdict.Status == VerdictPending {
			what = "has never produced output"
		}
		return s.failNode(ctx, st, res, span, NewPermanentError(
			fmt.Sprintf("dependency %s %s (%s) and automatic dependency execution is disabled", id, what, reason), nil).
			WithCode(ErrCodeMissingDependencyOutput).
			WithWorkflow(id).
			WithDetail("target", st.graph.Target))
	}

	if st.opts.DryRun {
		res.State = NodeStatePlanned
		st.planned[id] = true
		s.publish(st, id, eventType(isTarget, telemetry.EventTypeDependencyStale, telemetry.EventTypeWorkflowStarted),
			fmt.Sprintf("%s '%s' is stale (%s), would execute", label(isTarget), id, reason))
		s.record(ctx, st, func(r RunRecorder) error { return r.NodeFinished(ctx, st.result.RunID, res) })
		return nil
	}

	if s.admitter != nil {
		if err := s.admitter.Admit(ctx, node); err != nil {
			s.publishLevel(st, id, telemetry.EventTypePolicyViolation, telemetry.EventLevelError, err.Error())
			var engErr *EngineError
			if !errors.As(err, &engErr) {
				err = NewPermanentError("workflow denied by policy", err).WithCode(ErrCodePolicyDenied).WithWorkflow(id)
			}
			return s.failNode(ctx, st, res, span, err)
		}
	}

	return s.execute(ctx, st, res, node, reason, isTarget, span)
}

func (s *Scheduler) execute(ctx context.Context, st *runState, res *NodeResult, node *WorkflowNode, reason string, isTarget bool, span trace.Span) error {
	id := node.ID
	logger := st.logger.WithWorkflow(id)

	res.State = NodeStateExecuting
	s.publish(st, id, eventType(isTarget, telemetry.EventTypeDependencyStale, telemetry.EventTypeWorkflowStarted),
		fmt.Sprintf("%s '%s' is stale (%s), executing...", label(isTarget), id, reason))
	logger.WithField("reason", reason).Info("Executing workflow")

	deps := make([]*WorkflowNode, 0, len(node.Dependencies))
	for _, dep := range node.Dependencies {
		deps = append(deps, st.graph.Nodes[dep])
	}

	timer := telemetry.NewTimer()
	out, err := s.executor.Execute(ctx, &ExecutionRequest{RunID: st.result.RunID, Node: node, Dependencies: deps})
	res.Duration = timer.Duration()
	res.Executed = true

	if err == nil && (out == nil || !out.Success) {
		detail := "executor reported failure"
		if out != nil && out.Detail != "" {
			detail = out.Detail
		}
		err = errors.New(detail)
	}
	if err != nil {
		s.metrics.RecordWorkflowExecuted("failure", res.Duration)
		if ctx.Err() != nil {
			return s.failNode(ctx, st, res, span, NewTransientError("workflow execution interrupted", err).
				WithCode(ErrCodeCancelled).WithWorkflow(id))
		}
		return s.failNode(ctx, st, res, span, NewTransientError("workflow execution failed", err).
			WithCode(ErrCodeExecutorFailed).WithWorkflow(id))
	}

	res.OutputPath = out.OutputPath
	if res.OutputPath == "" {
		res.OutputPath = node.OutputFile
	}
	st.outputs[id] = res.OutputPath

	fp := st.fingerprints[id]
	components := fp.Components
	rec := &ExecutionRecord{
		Workflow:    id,
		Fingerprint: fp.Digest,
		Timestamp:   s.now().UTC(),
		Outcome:     OutcomeSuccess,
		RunID:       st.result.RunID,
		OutputPath:  res.OutputPath,
		Components:  &components,
	}
	if err := s.log.Put(ctx, rec); err != nil {
		return s.failNode(ctx, st, res, span, NewTransientError("failed to write execution record", err).
			WithCode(ErrCodeInternal).WithWorkflow(id))
	}

	res.State = NodeStateFresh
	s.metrics.RecordWorkflowExecuted("success", res.Duration)
	s.publish(st, id, eventType(isTarget, telemetry.EventTypeDependencyCompleted, telemetry.EventTypeWorkflowCompleted), fmt.Sprintf("%s '%s' completed", label(isTarget), id))
	logger.WithField("duration", res.Duration.String()).Info("Workflow completed")
	s.record(ctx, st, func(r RunRecorder) error { return r.NodeFinished(ctx, st.result.RunID, res) })
	telemetry.RecordSuccess(span)
	return nil
}

func (s *Scheduler) failNode(ctx context.Context, st *runState, res *NodeResult, span trace.Span, err error) error {
	res.State = NodeStateFailed
	res.Error = err.Error()
	telemetry.RecordError(span, err)
	st.logger.WithWorkflow(res.Workflow).WithError(err).Error("Workflow failed")
	s.publishLevel(st, res.Workflow, telemetry.EventTypeWorkflowFailed, telemetry.EventLevelError,
		fmt.Sprintf("Workflow '%s' failed: %v", res.Workflow, err))
	s.record(ctx, st, func(r RunRecorder) error { return r.NodeFinished(ctx, st.result.RunID, res) })
	return err
}

func (s *Scheduler) finish(ctx context.Context, st *runState, span trace.Span, runErr error) (*RunResult, error) {
	result := st.result
	result.CompletedAt = s.now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)
	result.Summary = calculateRunSummary(result.Nodes)

	switch {
	case runErr == nil:
		result.Status = RunStatusSucceeded
		telemetry.RecordSuccess(span)
		s.events.PublishRunCompleted(result.RunID, string(result.Status), result.Duration)
		st.logger.WithFields(map[string]interface{}{
			"executed": result.Summary.Executed,
			"fresh":    result.Summary.Fresh,
			"planned":  result.Summary.Planned,
		}).Info("Run completed")
	default:
		result.Status = RunStatusFailed
		if HasCode(runErr, ErrCodeCancelled) {
			result.Status = RunStatusCancelled
		}
		result.Error = runErr.Error()
		telemetry.RecordError(span, runErr)
		s.events.PublishRunFailed(result.RunID, runErr.Error())
		var engErr *EngineError
		if errors.As(runErr, &engErr) {
			s.metrics.RecordError(engErr.Code)
		}
	}

	s.metrics.RecordRunCompleted(string(result.Status), result.Duration)
	// History must be written even if the run was cancelled.
	s.record(context.WithoutCancel(ctx), st, func(r RunRecorder) error {
		return r.RunFinished(context.WithoutCancel(ctx), result)
	})

	return result, runErr
}

func (s *Scheduler) forced(opts RunOptions, isTarget bool) bool {
	if isTarget {
		return opts.Force || opts.ForceDeps
	}
	return opts.ForceDeps && opts.AutoDeps
}

func (s *Scheduler) dependsOnPlanned(st *runState, node *WorkflowNode) bool {
	for _, dep := range node.Dependencies {
		if st.planned[dep] {
			return true
		}
	}
	return false
}

func (s *Scheduler) record(ctx context.Context, st *runState, fn func(RunRecorder) error) {
	if s.recorder == nil {
		return
	}
	if err := fn(s.recorder); err != nil {
		st.logger.WithError(err).Warn("Failed to record run history")
	}
}

func (s *Scheduler) publish(st *runState, workflow, eventType, msg string) {
	s.publishLevel(st, workflow, eventType, telemetry.EventLevelInfo, msg)
}

func (s *Scheduler) publishLevel(st *runState, workflow, eventType, level, msg string) {
	s.events.Publish(telemetry.Event{
		Type:     eventType,
		RunID:    st.result.RunID,
		Workflow: workflow,
		Message:  msg,
		Level:    level,
	})
}

func eventType(isTarget bool, dependency, target string) string {
	if isTarget {
		return target
	}
	return dependency
}

func label(isTarget bool) string {
	if isTarget {
		return "Workflow"
	}
	return "Dependency"
}
