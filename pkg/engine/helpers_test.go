package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/openfroyo/cascade/pkg/config"
)

// testProject is a throwaway project with one directory per workflow.
type testProject struct {
	t        *testing.T
	root     string
	deps     map[string][]string
	settings map[string]config.TierValues
	inputs   map[string][]string
	calls    map[string]int
	mu       sync.Mutex
}

func newTestProject(t *testing.T) *testProject {
	t.Helper()
	return &testProject{
		t:        t,
		root:     t.TempDir(),
		deps:     make(map[string][]string),
		settings: make(map[string]config.TierValues),
		inputs:   make(map[string][]string),
		calls:    make(map[string]int),
	}
}

func (p *testProject) dir(id string) string {
	return filepath.Join(p.root, "workflows", id)
}

// addWorkflow creates a workflow with a task file and the given dependencies.
func (p *testProject) addWorkflow(id string, deps ...string) {
	p.t.Helper()
	if err := os.MkdirAll(p.dir(id), 0755); err != nil {
		p.t.Fatalf("Failed to create workflow dir: %v", err)
	}
	p.deps[id] = deps
	p.writeTask(id, "task for "+id)
}

func (p *testProject) setDeps(id string, deps ...string) {
	p.deps[id] = deps
}

func (p *testProject) set(id, key string, v config.Value) {
	if p.settings[id] == nil {
		p.settings[id] = config.TierValues{}
	}
	p.settings[id][key] = v
}

func (p *testProject) writeTask(id, content string) {
	p.t.Helper()
	p.writeFile(filepath.Join("workflows", id, "task.md"), content)
}

func (p *testProject) writeFile(rel, content string) string {
	p.t.Helper()
	path := filepath.Join(p.root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		p.t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		p.t.Fatalf("Failed to write %s: %v", rel, err)
	}
	return path
}

func (p *testProject) addInput(id, rel string) {
	p.inputs[id] = append(p.inputs[id], filepath.Join(p.root, rel))
}

func (p *testProject) resolveCount(id string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[id]
}

func (p *testProject) ResolveNode(_ context.Context, id string) (*WorkflowNode, error) {
	p.mu.Lock()
	p.calls[id]++
	p.mu.Unlock()

	deps, ok := p.deps[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrWorkflowNotFound)
	}
	values := config.TierValues{config.KeyDependsOn: config.ListValue(deps...)}
	for k, v := range p.settings[id] {
		values[k] = v
	}
	resolved := config.ResolveAll([]config.Layer{
		{Tier: config.Tier{Kind: config.TierWorkflow}, Values: values},
	})
	return &WorkflowNode{
		ID:           id,
		Config:       resolved,
		Dependencies: resolved.List(config.KeyDependsOn),
		Root:         p.root,
		TaskFile:     filepath.Join(p.dir(id), "task.md"),
		InputFiles:   p.inputs[id],
		OutputFile:   filepath.Join(p.dir(id), "output.md"),
	}, nil
}

func (p *testProject) build(target string) *DependencyGraph {
	p.t.Helper()
	graph, err := NewGraphBuilder().Build(context.Background(), target, p)
	if err != nil {
		p.t.Fatalf("Expected graph for %s, got error: %v", target, err)
	}
	return graph
}

// memoryLog is an in-memory ExecutionLog.
type memoryLog struct {
	mu      sync.Mutex
	records map[string]*ExecutionRecord
	puts    int
}

func newMemoryLog() *memoryLog {
	return &memoryLog{records: make(map[string]*ExecutionRecord)}
}

func (l *memoryLog) Get(_ context.Context, id string) (*ExecutionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records[id], nil
}

func (l *memoryLog) Put(_ context.Context, rec *ExecutionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records[rec.Workflow] = rec
	l.puts++
	return nil
}

// mockExecutor writes a distinct output on every execution.
type mockExecutor struct {
	mu       sync.Mutex
	executed []string
	fail     map[string]bool
	runs     int
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{fail: make(map[string]bool)}
}

func (m *mockExecutor) Execute(ctx context.Context, req *ExecutionRequest) (*ExecutorResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.executed = append(m.executed, req.Node.ID)
	m.runs++
	if m.fail[req.Node.ID] {
		return &ExecutorResult{Success: false, Detail: "backend returned 500"}, nil
	}
	content := fmt.Sprintf("output of %s #%d", req.Node.ID, m.runs)
	if err := os.WriteFile(req.Node.OutputFile, []byte(content), 0644); err != nil {
		return nil, err
	}
	return &ExecutorResult{OutputPath: req.Node.OutputFile, Success: true}, nil
}

func (m *mockExecutor) reset() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.executed
	m.executed = nil
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
