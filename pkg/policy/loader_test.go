package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var testTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func writePolicyFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadFromFile_Rego(t *testing.T) {
	dir := t.TempDir()
	path := writePolicyFile(t, dir, "naming.rego", "# Naming rules\n# for workflows\npackage cascade.naming\n\ndeny contains \"x\" if { false }\n")

	policy, err := NewLoader(zerolog.Nop()).loadFromFile(path)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policy.Name != "naming" {
		t.Errorf("Expected name naming, got %s", policy.Name)
	}
	if policy.Description != "Naming rules for workflows" {
		t.Errorf("Expected description from comments, got %q", policy.Description)
	}
	if policy.Severity != SeverityError || !policy.Enabled {
		t.Errorf("Expected enabled error policy, got %s enabled=%v", policy.Severity, policy.Enabled)
	}
	if policy.Source != path {
		t.Errorf("Expected source %s, got %s", path, policy.Source)
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	dir := t.TempDir()
	path := writePolicyFile(t, dir, "limits.json", `{
  "description": "token limits",
  "rego": "package cascade.limits\n\ndeny contains \"x\" if { false }\n",
  "severity": "warning",
  "enabled": true
}`)

	policy, err := NewLoader(zerolog.Nop()).loadFromFile(path)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policy.Name != "limits" {
		t.Errorf("Expected name from file, got %s", policy.Name)
	}
	if policy.Severity != SeverityWarning {
		t.Errorf("Expected warning severity, got %s", policy.Severity)
	}
}

func TestLoadFromFile_InvalidJSON(t *testing.T) {
	path := writePolicyFile(t, t.TempDir(), "bad.json", "{")
	if _, err := NewLoader(zerolog.Nop()).loadFromFile(path); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

func TestLoadFromFile_UnsupportedType(t *testing.T) {
	path := writePolicyFile(t, t.TempDir(), "policy.txt", "x")
	if _, err := NewLoader(zerolog.Nop()).loadFromFile(path); err == nil {
		t.Error("Expected error for unsupported file type")
	}
}

func TestLoadFromDirectory_Recursive(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "b.rego", "package b\n")
	writePolicyFile(t, dir, "nested/a.rego", "package a\n")
	writePolicyFile(t, dir, "broken.json", "{")
	writePolicyFile(t, dir, "README.md", "ignored")

	policies, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("Expected 2 policies, got %d", len(policies))
	}
	if policies[0].Name != "b" || policies[1].Name != "a" {
		t.Errorf("Expected path order [b a], got [%s %s]", policies[0].Name, policies[1].Name)
	}
}

func TestLoadFromPath_NonExistent(t *testing.T) {
	_, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(), []string{"/nonexistent/policies"})
	if err == nil {
		t.Error("Expected error for missing path")
	}
}

func TestExtractDescription(t *testing.T) {
	tests := []struct {
		content  string
		expected string
	}{
		{"# One\n# Two\npackage x\n", "One Two"},
		{"package x\n# later\n", ""},
		{"\n# After blank\n\npackage x", "After blank"},
	}
	for _, tt := range tests {
		if got := extractDescription(tt.content); got != tt.expected {
			t.Errorf("extractDescription(%q) = %q, expected %q", tt.content, got, tt.expected)
		}
	}
}

func TestLoadFromFile_SeverityDirective(t *testing.T) {
	dir := t.TempDir()
	path := writePolicyFile(t, dir, "style.rego", "# Style hints\n# Severity: Warning\npackage cascade.style\n")

	policy, err := NewLoader(zerolog.Nop()).loadFromFile(path)
	if err != nil {
		t.Fatalf("Failed to load policy: %v", err)
	}
	if policy.Severity != SeverityWarning {
		t.Errorf("Expected warning severity, got %s", policy.Severity)
	}
	if policy.Severity.Blocks() {
		t.Error("Expected advisory policy not to block")
	}
	if policy.Description != "Style hints" {
		t.Errorf("Expected directive excluded from description, got %q", policy.Description)
	}

	bad := writePolicyFile(t, dir, "bad.rego", "# severity: fatal\npackage cascade.bad\n")
	if _, err := NewLoader(zerolog.Nop()).loadFromFile(bad); err == nil {
		t.Error("Expected error for unknown severity")
	}
}

func TestLoadFromFile_JSONValidation(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
	}{
		{"empty-rego.json", `{"description": "nothing"}`},
		{"bad-severity.json", `{"rego": "package x\n", "severity": "loud"}`},
	}
	for _, tt := range tests {
		path := writePolicyFile(t, dir, tt.name, tt.content)
		if _, err := NewLoader(zerolog.Nop()).loadFromFile(path); err == nil {
			t.Errorf("Expected error for %s", tt.name)
		}
	}
}

func TestLoadFromDirectory_SkipsHidden(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "visible.rego", "package visible\n")
	writePolicyFile(t, dir, ".draft.rego", "package draft\n")
	writePolicyFile(t, dir, ".git/hooks.rego", "package hooks\n")

	policies, err := NewLoader(zerolog.Nop()).LoadFromPaths(context.Background(), []string{dir})
	if err != nil {
		t.Fatalf("Failed to load directory: %v", err)
	}
	if len(policies) != 1 || policies[0].Name != "visible" {
		t.Errorf("Expected only the visible policy, got %+v", policies)
	}
}

func TestLoadFromPaths_Canceled(t *testing.T) {
	dir := t.TempDir()
	writePolicyFile(t, dir, "a.rego", "package a\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewLoader(zerolog.Nop()).LoadFromPaths(ctx, []string{dir}); err == nil {
		t.Error("Expected error for canceled context")
	}
}
