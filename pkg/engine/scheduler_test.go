package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/openfroyo/cascade/pkg/telemetry"
)

func runTarget(t *testing.T, p *testProject, s *Scheduler, target string, opts RunOptions) (*RunResult, error) {
	t.Helper()
	return s.Run(context.Background(), p.build(target), opts)
}

func TestScheduler_Run_IncrementalScenario(t *testing.T) {
	p := abcProject(t)
	log := newMemoryLog()
	exec := newMockExecutor()
	s := NewScheduler(exec, log)
	opts := RunOptions{AutoDeps: true}

	// First run executes everything.
	result, err := runTarget(t, p, s, "C", opts)
	if err != nil {
		t.Fatalf("Expected first run to succeed, got: %v", err)
	}
	if got := exec.reset(); !equalStrings(got, []string{"A", "B", "C"}) {
		t.Errorf("Expected executions [A B C], got %v", got)
	}
	if log.puts != 3 {
		t.Errorf("Expected 3 execution records, got %d", log.puts)
	}
	if result.Status != RunStatusSucceeded {
		t.Errorf("Expected status succeeded, got %s", result.Status)
	}
	if result.Summary.Executed != 3 || result.Summary.Fresh != 3 {
		t.Errorf("Expected 3 executed and 3 fresh, got %+v", result.Summary)
	}

	// Second run with no changes executes nothing.
	result, err = runTarget(t, p, s, "C", opts)
	if err != nil {
		t.Fatalf("Expected second run to succeed, got: %v", err)
	}
	if got := exec.reset(); len(got) != 0 {
		t.Errorf("Expected no executions, got %v", got)
	}
	for _, n := range result.Nodes {
		if n.State != NodeStateFresh || n.Executed {
			t.Errorf("Expected %s fresh and not executed, got %+v", n.Workflow, n)
		}
	}

	// Editing A makes the whole chain stale.
	p.writeTask("A", "new task content")
	result, err = runTarget(t, p, s, "C", opts)
	if err != nil {
		t.Fatalf("Expected third run to succeed, got: %v", err)
	}
	if got := exec.reset(); !equalStrings(got, []string{"A", "B", "C"}) {
		t.Errorf("Expected executions [A B C], got %v", got)
	}
	if r := result.Node("A").Reason; r != ReasonTaskChanged {
		t.Errorf("Expected A reason %q, got %q", ReasonTaskChanged, r)
	}
	if r := result.Node("B").Reason; r != ReasonDependencyChanged {
		t.Errorf("Expected B reason %q, got %q", ReasonDependencyChanged, r)
	}
}

func TestScheduler_Run_DependencyOnlyChange(t *testing.T) {
	p := abcProject(t)
	log := newMemoryLog()
	exec := newMockExecutor()
	s := NewScheduler(exec, log)
	opts := RunOptions{AutoDeps: true}

	if _, err := runTarget(t, p, s, "C", opts); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	exec.reset()

	p.writeTask("B", "changed B")
	if _, err := runTarget(t, p, s, "C", opts); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := exec.reset(); !equalStrings(got, []string{"B", "C"}) {
		t.Errorf("Expected executions [B C], got %v", got)
	}
}

func TestScheduler_Run_NoDepsStaleDependency(t *testing.T) {
	p := abcProject(t)
	log := newMemoryLog()
	exec := newMockExecutor()
	s := NewScheduler(exec, log)

	result, err := runTarget(t, p, s, "C", RunOptions{AutoDeps: false})
	if err == nil {
		t.Fatal("Expected error for stale dependency, got nil")
	}
	if !HasCode(err, ErrCodeMissingDependencyOutput) {
		t.Errorf("Expected code %s, got %v", ErrCodeMissingDependencyOutput, err)
	}
	if FailedWorkflow(err) != "A" {
		t.Errorf("Expected failed workflow A, got %q", FailedWorkflow(err))
	}
	if got := exec.reset(); len(got) != 0 {
		t.Errorf("Expected no executions, got %v", got)
	}
	if log.puts != 0 {
		t.Errorf("Expected no records, got %d", log.puts)
	}
	if result.Status != RunStatusFailed {
		t.Errorf("Expected status failed, got %s", result.Status)
	}
}

func TestScheduler_Run_NoDepsFreshDependencies(t *testing.T) {
	p := abcProject(t)
	log := newMemoryLog()
	exec := newMockExecutor()
	s := NewScheduler(exec, log)

	if _, err := runTarget(t, p, s, "C", RunOptions{AutoDeps: true}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	exec.reset()

	p.writeTask("C", "changed C")
	if _, err := runTarget(t, p, s, "C", RunOptions{AutoDeps: false}); err != nil {
		t.Fatalf("Expected no error with fresh dependencies, got: %v", err)
	}
	if got := exec.reset(); !equalStrings(got, []string{"C"}) {
		t.Errorf("Expected executions [C], got %v", got)
	}
}

func TestScheduler_Run_DeletedDependencyOutput(t *testing.T) {
	p := abcProject(t)
	log := newMemoryLog()
	exec := newMockExecutor()
	s := NewScheduler(exec, log)

	if _, err := runTarget(t, p, s, "C", RunOptions{AutoDeps: true}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	exec.reset()
	if err := os.Remove(filepath.Join(p.dir("A"), "output.md")); err != nil {
		t.Fatal(err)
	}

	result, err := runTarget(t, p, s, "C", RunOptions{AutoDeps: false})
	if !HasCode(err, ErrCodeMissingDependencyOutput) {
		t.Fatalf("Expected code %s, got %v", ErrCodeMissingDependencyOutput, err)
	}
	if FailedWorkflow(err) != "A" {
		t.Errorf("Expected failed workflow A, got %q", FailedWorkflow(err))
	}
	if result.Node("A").Reason != ReasonOutputMissing {
		t.Errorf("Expected reason %q, got %q", ReasonOutputMissing, result.Node("A").Reason)
	}
	if got := exec.reset(); len(got) != 0 {
		t.Errorf("Expected no executions, got %v", got)
	}

	result, err = runTarget(t, p, s, "C", RunOptions{AutoDeps: true})
	if err != nil {
		t.Fatalf("Expected deleted output to be regenerated, got: %v", err)
	}
	if got := exec.reset(); !equalStrings(got, []string{"A", "B", "C"}) {
		t.Errorf("Expected executions [A B C], got %v", got)
	}
	if result.Node("A").Reason != ReasonOutputMissing {
		t.Errorf("Expected reason %q, got %q", ReasonOutputMissing, result.Node("A").Reason)
	}
}

func TestScheduler_Run_ExecutorFailureHalts(t *testing.T) {
	p := abcProject(t)
	log := newMemoryLog()
	exec := newMockExecutor()
	exec.fail["B"] = true
	s := NewScheduler(exec, log)

	result, err := runTarget(t, p, s, "C", RunOptions{AutoDeps: true})
	if !HasCode(err, ErrCodeExecutorFailed) {
		t.Fatalf("Expected code %s, got %v", ErrCodeExecutorFailed, err)
	}
	if FailedWorkflow(err) != "B" {
		t.Errorf("Expected failed workflow B, got %q", FailedWorkflow(err))
	}
	if got := exec.reset(); !equalStrings(got, []string{"A", "B"}) {
		t.Errorf("Expected executions [A B], got %v", got)
	}
	if _, ok := log.records["B"]; ok {
		t.Error("Expected no record for failed workflow B")
	}
	if _, ok := log.records["C"]; ok {
		t.Error("Expected no record for unreached workflow C")
	}
	if _, ok := log.records["A"]; !ok {
		t.Error("Expected record for successful workflow A")
	}
	if result.Node("B").State != NodeStateFailed {
		t.Errorf("Expected B failed, got %s", result.Node("B").State)
	}
	if result.Node("C").State != NodeStatePending {
		t.Errorf("Expected C pending, got %s", result.Node("C").State)
	}
	if result.Summary.Failed != 1 || result.Summary.Pending != 1 {
		t.Errorf("Expected 1 failed and 1 pending, got %+v", result.Summary)
	}
}

func TestScheduler_Run_Force(t *testing.T) {
	p := abcProject(t)
	log := newMemoryLog()
	exec := newMockExecutor()
	s := NewScheduler(exec, log)

	if _, err := runTarget(t, p, s, "C", RunOptions{AutoDeps: true}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	exec.reset()

	result, err := runTarget(t, p, s, "C", RunOptions{AutoDeps: true, Force: true})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := exec.reset(); !equalStrings(got, []string{"C"}) {
		t.Errorf("Expected executions [C], got %v", got)
	}
	if result.Node("C").Reason != ReasonForced {
		t.Errorf("Expected reason forced, got %q", result.Node("C").Reason)
	}

	if _, err := runTarget(t, p, s, "C", RunOptions{AutoDeps: true, ForceDeps: true}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := exec.reset(); !equalStrings(got, []string{"A", "B", "C"}) {
		t.Errorf("Expected executions [A B C], got %v", got)
	}
}

func TestScheduler_Run_DryRun(t *testing.T) {
	p := abcProject(t)
	log := newMemoryLog()
	exec := newMockExecutor()
	s := NewScheduler(exec, log)

	if _, err := runTarget(t, p, s, "C", RunOptions{AutoDeps: true}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	exec.reset()
	puts := log.puts

	p.writeTask("B", "changed B")
	result, err := runTarget(t, p, s, "C", RunOptions{AutoDeps: true, DryRun: true})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if got := exec.reset(); len(got) != 0 {
		t.Errorf("Expected no executions in dry run, got %v", got)
	}
	if log.puts != puts {
		t.Errorf("Expected no records written in dry run, got %d new", log.puts-puts)
	}
	if result.Node("A").State != NodeStateFresh {
		t.Errorf("Expected A fresh, got %s", result.Node("A").State)
	}
	if result.Node("B").State != NodeStatePlanned || result.Node("C").State != NodeStatePlanned {
		t.Errorf("Expected B and C planned, got %s and %s", result.Node("B").State, result.Node("C").State)
	}
	if result.Summary.Planned != 2 {
		t.Errorf("Expected 2 planned, got %d", result.Summary.Planned)
	}
}

func TestScheduler_Run_ProgressEvents(t *testing.T) {
	p := newTestProject(t)
	p.addWorkflow("A")
	p.addWorkflow("B", "A")

	events := telemetry.NewEventPublisher()
	var messages []string
	events.Subscribe(func(e telemetry.Event) { messages = append(messages, e.Message) },
		telemetry.FilterByType(
			telemetry.EventTypeDependencyStale,
			telemetry.EventTypeDependencyCompleted,
			telemetry.EventTypeDependencyFresh,
			telemetry.EventTypeWorkflowStarted,
			telemetry.EventTypeWorkflowCompleted,
			telemetry.EventTypeWorkflowSkipped,
		))

	s := NewScheduler(newMockExecutor(), newMemoryLog(), WithEvents(events))
	if _, err := runTarget(t, p, s, "B", RunOptions{AutoDeps: true}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if _, err := runTarget(t, p, s, "B", RunOptions{AutoDeps: true}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	expected := []string{
		"Dependency 'A' is stale (never executed), executing...",
		"Dependency 'A' completed",
		"Workflow 'B' is stale (never executed), executing...",
		"Workflow 'B' completed",
		"Dependency 'A' is fresh",
		"Workflow 'B' is fresh",
	}
	if !equalStrings(messages, expected) {
		t.Errorf("Expected messages %v, got %v", expected, messages)
	}
}

func TestScheduler_Run_Cancelled(t *testing.T) {
	p := abcProject(t)
	exec := newMockExecutor()
	s := NewScheduler(exec, newMemoryLog())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.Run(ctx, p.build("C"), RunOptions{AutoDeps: true})
	if !HasCode(err, ErrCodeCancelled) {
		t.Fatalf("Expected code %s, got %v", ErrCodeCancelled, err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected error to wrap context.Canceled, got %v", err)
	}
	if result.Status != RunStatusCancelled {
		t.Errorf("Expected status cancelled, got %s", result.Status)
	}
	if got := exec.reset(); len(got) != 0 {
		t.Errorf("Expected no executions, got %v", got)
	}
}

type denyAdmitter struct{ deny string }

func (d denyAdmitter) Admit(_ context.Context, node *WorkflowNode) error {
	if node.ID == d.deny {
		return errors.New("input outside project")
	}
	return nil
}

func TestScheduler_Run_AdmissionDenied(t *testing.T) {
	p := abcProject(t)
	exec := newMockExecutor()
	s := NewScheduler(exec, newMemoryLog(), WithAdmitter(denyAdmitter{deny: "B"}))

	_, err := runTarget(t, p, s, "C", RunOptions{AutoDeps: true})
	if !HasCode(err, ErrCodePolicyDenied) {
		t.Fatalf("Expected code %s, got %v", ErrCodePolicyDenied, err)
	}
	if FailedWorkflow(err) != "B" {
		t.Errorf("Expected failed workflow B, got %q", FailedWorkflow(err))
	}
	if got := exec.reset(); !equalStrings(got, []string{"A"}) {
		t.Errorf("Expected executions [A], got %v", got)
	}
}

type recordingRecorder struct {
	started, finished int
	nodes             []string
}

func (r *recordingRecorder) RunStarted(context.Context, *RunResult) error { r.started++; return nil }
func (r *recordingRecorder) NodeFinished(_ context.Context, _ string, n *NodeResult) error {
	r.nodes = append(r.nodes, n.Workflow+":"+string(n.State))
	return nil
}
func (r *recordingRecorder) RunFinished(context.Context, *RunResult) error { r.finished++; return nil }

func TestScheduler_Run_RecordsHistory(t *testing.T) {
	p := abcProject(t)
	rec := &recordingRecorder{}
	s := NewScheduler(newMockExecutor(), newMemoryLog(), WithRecorder(rec))

	if _, err := runTarget(t, p, s, "C", RunOptions{AutoDeps: true}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if rec.started != 1 || rec.finished != 1 {
		t.Errorf("Expected one start and one finish, got %d and %d", rec.started, rec.finished)
	}
	if !equalStrings(rec.nodes, []string{"A:fresh", "B:fresh", "C:fresh"}) {
		t.Errorf("Expected node history [A:fresh B:fresh C:fresh], got %v", rec.nodes)
	}
}

func TestScheduler_Run_EmptyGraph(t *testing.T) {
	s := NewScheduler(newMockExecutor(), newMemoryLog())
	if _, err := s.Run(context.Background(), nil, RunOptions{}); !HasCode(err, ErrCodeValidation) {
		t.Errorf("Expected code %s, got %v", ErrCodeValidation, err)
	}
}

func TestScheduler_Run_LogsTraceID(t *testing.T) {
	p := newTestProject(t)
	p.addWorkflow("A")

	var buf bytes.Buffer
	logger := telemetry.NewLoggerWithWriter(telemetry.LoggingConfig{Level: "info", Format: "json"}, &buf)
	tracer := telemetry.NewTracerWithExporter(tracetest.NewInMemoryExporter(), "cascade-test")
	s := NewScheduler(newMockExecutor(), newMemoryLog(), WithLogger(logger), WithTracer(tracer))

	if _, err := runTarget(t, p, s, "A", RunOptions{AutoDeps: true}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !strings.Contains(buf.String(), `"trace_id":"`) {
		t.Errorf("Expected run log lines to carry trace_id, got:\n%s", buf.String())
	}
}
