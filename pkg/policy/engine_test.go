package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/openfroyo/cascade/pkg/config"
	"github.com/openfroyo/cascade/pkg/engine"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	eng, err := NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	return eng
}

func testNode(id string, values config.TierValues, deps ...string) *engine.WorkflowNode {
	resolved := config.ResolveAll([]config.Layer{{
		Tier:   config.Tier{Kind: config.TierWorkflow},
		Values: values,
	}})
	return &engine.WorkflowNode{ID: id, Config: resolved, Dependencies: deps}
}

func TestNewEngine(t *testing.T) {
	eng := newTestEngine(t)

	policies := eng.ListPolicies()
	expected := []string{"dependency-names", "project-paths"}
	if len(policies) != len(expected) {
		t.Fatalf("Expected %d built-in policies, got %d", len(expected), len(policies))
	}
	for i, name := range expected {
		if policies[i].Name != name {
			t.Errorf("Expected policy %s at %d, got %s", name, i, policies[i].Name)
		}
	}
}

func TestAdmit_ProjectPaths(t *testing.T) {
	eng := newTestEngine(t)

	tests := []struct {
		name        string
		values      config.TierValues
		expectAllow bool
		expectMsg   string
	}{
		{
			name:        "defaults",
			values:      nil,
			expectAllow: true,
		},
		{
			name: "relative input files",
			values: config.TierValues{
				config.KeyInputFiles:   config.ListValue("data/a.txt", "./notes/b.md", "data/../data/c.txt"),
				config.KeyInputPattern: config.StringValue("data/*.txt"),
			},
			expectAllow: true,
		},
		{
			name: "absolute input file",
			values: config.TierValues{
				config.KeyInputFiles: config.ListValue("/etc/passwd"),
			},
			expectAllow: false,
			expectMsg:   "input_files entry '/etc/passwd' must be relative to the project root",
		},
		{
			name: "parent escape in context pattern",
			values: config.TierValues{
				config.KeyContextPattern: config.StringValue("../secrets/*"),
			},
			expectAllow: false,
			expectMsg:   "context_pattern entry '../secrets/*' escapes the project root",
		},
		{
			name: "escape after cleaning",
			values: config.TierValues{
				config.KeyContextFiles: config.ListValue("data/../../x.md"),
			},
			expectAllow: false,
			expectMsg:   "escapes the project root",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eng.Admit(context.Background(), testNode("draft", tt.values))
			if tt.expectAllow {
				if err != nil {
					t.Fatalf("Expected admission, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Expected denial, got nil")
			}
			if !strings.Contains(err.Error(), tt.expectMsg) {
				t.Errorf("Expected message containing %q, got %q", tt.expectMsg, err.Error())
			}
			if !strings.Contains(err.Error(), "project-paths") {
				t.Errorf("Expected policy name in %q", err.Error())
			}
		})
	}
}

func TestAdmit_DependencyNames(t *testing.T) {
	eng := newTestEngine(t)

	if err := eng.Admit(context.Background(), testNode("draft", nil, "outline", "research-2")); err != nil {
		t.Fatalf("Expected admission, got %v", err)
	}

	err := eng.Admit(context.Background(), testNode("draft", nil, "../outline"))
	if err == nil {
		t.Fatal("Expected denial for path-like dependency")
	}
	if !strings.Contains(err.Error(), "dependency '../outline' is not a workflow name") {
		t.Errorf("Unexpected error: %v", err)
	}
}

func TestEvaluate_Input(t *testing.T) {
	node := testNode("draft", config.TierValues{
		config.KeyTemperature: config.NumberValue(0.3),
		config.KeyInputFiles:  config.ListValue("data/./a.txt"),
	}, "outline")

	input := NewInput(node, "execute", testTime)
	if input.Config[config.KeyTemperature] != 0.3 {
		t.Errorf("Expected numeric temperature 0.3, got %v", input.Config[config.KeyTemperature])
	}
	if input.Config[config.KeyModel] != "claude-sonnet-4-5" {
		t.Errorf("Expected default model, got %v", input.Config[config.KeyModel])
	}
	if len(input.Files) != 1 || input.Files[0].Clean != "data/a.txt" {
		t.Errorf("Expected cleaned file ref data/a.txt, got %+v", input.Files)
	}
	if len(input.Dependencies) != 1 || input.Dependencies[0] != "outline" {
		t.Errorf("Expected dependencies [outline], got %v", input.Dependencies)
	}
}

func TestLoadPolicies_Custom(t *testing.T) {
	eng := newTestEngine(t)
	dir := t.TempDir()

	rego := `# Keep the expensive model out of this project
package cascade.policies.models

deny contains msg if {
	input.config.model == "expensive-model"
	msg := sprintf("%s: expensive-model is not allowed", [input.workflow])
}

deny contains v if {
	input.config.max_tokens > 10000
	v := {"message": "large token budget", "severity": "warning"}
}
`
	if err := os.WriteFile(filepath.Join(dir, "models.rego"), []byte(rego), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := eng.LoadPolicies(context.Background(), []string{dir}); err != nil {
		t.Fatalf("Failed to load policies: %v", err)
	}

	p, err := eng.GetPolicy("models")
	if err != nil {
		t.Fatalf("Expected models policy: %v", err)
	}
	if p.Description != "Keep the expensive model out of this project" {
		t.Errorf("Unexpected description %q", p.Description)
	}

	err = eng.Admit(context.Background(), testNode("draft", config.TierValues{
		config.KeyModel: config.StringValue("expensive-model"),
	}))
	if err == nil || !strings.Contains(err.Error(), "draft: expensive-model is not allowed") {
		t.Fatalf("Expected custom denial, got %v", err)
	}

	result, err := eng.Evaluate(context.Background(), NewInput(testNode("draft", config.TierValues{
		config.KeyMaxTokens: config.NumberValue(20000),
	}), "execute", testTime))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("Expected warning-only result to be allowed, got %+v", result.Violations)
	}
	if len(result.Warnings) != 1 || result.Warnings[0].Message != "large token budget" {
		t.Errorf("Expected one warning, got %+v", result.Warnings)
	}
	if len(result.EvaluatedPolicies) != 3 {
		t.Errorf("Expected 3 evaluated policies, got %v", result.EvaluatedPolicies)
	}
}

func TestLoadPolicies_InvalidRego(t *testing.T) {
	eng := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "broken.rego")
	if err := os.WriteFile(path, []byte("package broken\n\ndeny contains msg if {"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := eng.LoadPolicies(context.Background(), []string{path}); err == nil {
		t.Fatal("Expected compile error")
	}
}

func TestEnableDisablePolicy(t *testing.T) {
	eng := newTestEngine(t)
	node := testNode("draft", config.TierValues{config.KeyInputFiles: config.ListValue("/abs")})

	if err := eng.DisablePolicy("project-paths"); err != nil {
		t.Fatalf("Failed to disable: %v", err)
	}
	if err := eng.Admit(context.Background(), node); err != nil {
		t.Errorf("Expected admission with policy disabled, got %v", err)
	}

	if err := eng.EnablePolicy("project-paths"); err != nil {
		t.Fatalf("Failed to enable: %v", err)
	}
	if err := eng.Admit(context.Background(), node); err == nil {
		t.Error("Expected denial with policy enabled")
	}

	if err := eng.DisablePolicy("nope"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestReloadPolicies(t *testing.T) {
	eng := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "deny_all.rego")
	write := func(body string) {
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("package cascade.policies.all\n\ndeny contains \"no\" if { input.workflow == \"a\" }\n")
	if err := eng.LoadPolicies(context.Background(), []string{path}); err != nil {
		t.Fatalf("Failed to load: %v", err)
	}
	if err := eng.Admit(context.Background(), testNode("a", nil)); err == nil {
		t.Fatal("Expected denial before reload")
	}

	write("package cascade.policies.all\n\ndeny contains \"no\" if { input.workflow == \"b\" }\n")
	if err := eng.ReloadPolicies(context.Background()); err != nil {
		t.Fatalf("Failed to reload: %v", err)
	}
	if err := eng.Admit(context.Background(), testNode("a", nil)); err != nil {
		t.Errorf("Expected admission after reload, got %v", err)
	}
	if len(eng.ListPolicies()) != 3 {
		t.Errorf("Expected 3 policies after reload, got %d", len(eng.ListPolicies()))
	}
}
