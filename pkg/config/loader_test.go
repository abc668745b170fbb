package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	l, err := NewLoader()
	if err != nil {
		t.Fatalf("failed to create loader: %v", err)
	}
	return l
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	l := newTestLoader(t)

	tests := []struct {
		name         string
		content      string
		want         TierValues
		wantWarnings []string
	}{
		{
			name: "flat mapping",
			content: `
model: claude-opus-4
temperature: 0.20
max_tokens: 4096
depends_on: [outline, research]
`,
			want: TierValues{
				KeyModel:       StringValue("claude-opus-4"),
				KeyTemperature: StringValue("0.2"),
				KeyMaxTokens:   StringValue("4096"),
				KeyDependsOn:   ListValue("outline", "research"),
			},
		},
		{
			name:    "empty values are no opinion",
			content: "model: \"\"\nsystem_prompts: []\noutput_format: ~\n",
			want:    TierValues{},
		},
		{
			name:    "scalar for list key becomes a single item",
			content: "depends_on: outline\n",
			want:    TierValues{KeyDependsOn: ListValue("outline")},
		},
		{
			name:         "unknown key is ignored with a warning",
			content:      "model: m\nfavourite_colour: blue\n",
			want:         TierValues{KeyModel: StringValue("m")},
			wantWarnings: []string{"favourite_colour: unknown key ignored"},
		},
		{
			name:         "wrong type drops only that key",
			content:      "temperature: warm\nmodel: m\n",
			want:         TierValues{KeyModel: StringValue("m")},
			wantWarnings: []string{"temperature: key temperature expects number"},
		},
		{
			name:         "nested values are rejected",
			content:      "model:\n  name: m\n",
			want:         TierValues{},
			wantWarnings: []string{"model: nested values are not supported"},
		},
		{
			name:         "top level list",
			content:      "- a\n- b\n",
			want:         TierValues{},
			wantWarnings: []string{"top level must be a mapping"},
		},
		{
			name:         "malformed yaml",
			content:      "model: [unclosed\n",
			want:         TierValues{},
			wantWarnings: []string{"malformed"},
		},
		{
			name:    "empty document",
			content: "",
			want:    TierValues{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, warnings := l.LoadYAML("tier.yaml", []byte(tt.content))
			want := normalizedOrFail(t, tt.want)
			if !equalValues(got, want) {
				t.Errorf("values = %v, want %v", dump(got), dump(want))
			}
			if len(warnings) != len(tt.wantWarnings) {
				t.Fatalf("warnings = %v, want %d", warnings, len(tt.wantWarnings))
			}
			for i, w := range warnings {
				if w.Source != "tier.yaml" {
					t.Errorf("warning source = %q", w.Source)
				}
				if !strings.Contains(w.String(), tt.wantWarnings[i]) {
					t.Errorf("warning %q does not mention %q", w.String(), tt.wantWarnings[i])
				}
			}
		})
	}
}

func TestLoadCUE(t *testing.T) {
	l := newTestLoader(t)

	t.Run("concrete struct", func(t *testing.T) {
		got, warnings := l.LoadCUE("tier.cue", []byte(`
model:          "claude-opus-4"
temperature:    0.5
system_prompts: ["base", "terse"]
input_pattern:  null
`))
		if len(warnings) != 0 {
			t.Fatalf("unexpected warnings: %v", warnings)
		}
		want := TierValues{
			KeyModel:         StringValue("claude-opus-4"),
			KeyTemperature:   NumberValue(0.5),
			KeySystemPrompts: ListValue("base", "terse"),
		}
		if !equalValues(got, want) {
			t.Errorf("values = %v, want %v", dump(got), dump(want))
		}
	})

	t.Run("non-concrete source contributes nothing", func(t *testing.T) {
		got, warnings := l.LoadCUE("tier.cue", []byte("model: string\ntemperature: 0.5\n"))
		if len(got) != 0 {
			t.Errorf("values = %v, want none", dump(got))
		}
		if len(warnings) != 1 || !strings.Contains(warnings[0].Message, "malformed") {
			t.Errorf("warnings = %v", warnings)
		}
	})

	t.Run("schema conflict", func(t *testing.T) {
		got, warnings := l.LoadCUE("tier.cue", []byte("model: 3\n"))
		if len(got) != 0 || len(warnings) != 1 {
			t.Errorf("values = %v, warnings = %v", dump(got), warnings)
		}
	})

	t.Run("syntax error", func(t *testing.T) {
		_, warnings := l.LoadCUE("tier.cue", []byte("model: {"))
		if len(warnings) != 1 {
			t.Errorf("warnings = %v", warnings)
		}
	})
}

func TestLoadFile(t *testing.T) {
	l := newTestLoader(t)
	dir := t.TempDir()

	values, warnings := l.LoadFile(filepath.Join(dir, "missing.yaml"))
	if len(values) != 0 || len(warnings) != 0 {
		t.Errorf("missing file: values = %v, warnings = %v", dump(values), warnings)
	}

	values, _ = l.LoadFile(writeSource(t, dir, "a.yaml", "model: from-yaml\n"))
	if values[KeyModel].String() != "from-yaml" {
		t.Errorf("yaml model = %q", values[KeyModel].String())
	}

	values, _ = l.LoadFile(writeSource(t, dir, "b.cue", `model: "from-cue"`))
	if values[KeyModel].String() != "from-cue" {
		t.Errorf("cue model = %q", values[KeyModel].String())
	}
}

func TestFindSource(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "config")

	if got := FindSource(base); got != "" {
		t.Errorf("FindSource() = %q, want empty", got)
	}

	cuePath := writeSource(t, dir, "config.cue", "")
	if got := FindSource(base); got != cuePath {
		t.Errorf("FindSource() = %q, want %q", got, cuePath)
	}

	yamlPath := writeSource(t, dir, "config.yaml", "")
	if got := FindSource(base); got != yamlPath {
		t.Errorf("yaml should take precedence, got %q", got)
	}
}

func TestParseAssignments(t *testing.T) {
	got, err := ParseAssignments([]string{"model=opus", "temperature= 0.30", "depends_on=a, b,,c", "input_pattern="})
	if err != nil {
		t.Fatalf("ParseAssignments() error = %v", err)
	}
	want := TierValues{
		KeyModel:       StringValue("opus"),
		KeyTemperature: StringValue("0.3"),
		KeyDependsOn:   ListValue("a", "b", "c"),
	}
	if !equalValues(got, normalizedOrFail(t, want)) {
		t.Errorf("values = %v", dump(got))
	}

	for _, bad := range []string{"model", "=x", "colour=blue", "max_tokens=lots"} {
		if _, err := ParseAssignments([]string{bad}); err == nil {
			t.Errorf("ParseAssignments(%q) should fail", bad)
		}
	}
}

func TestTierSchemaCompiles(t *testing.T) {
	sr, err := NewSchemaRegistry(nil)
	if err != nil {
		t.Fatalf("NewSchemaRegistry() error = %v", err)
	}
	for _, k := range Keys() {
		if !strings.Contains(tierSchema(), k.Name+"?:") {
			t.Errorf("schema misses key %s", k.Name)
		}
	}
	if sr.tier.Err() != nil {
		t.Errorf("schema has errors: %v", sr.tier.Err())
	}
}

// normalizedOrFail coerces expected values the way the loader does.
func normalizedOrFail(t *testing.T, in TierValues) TierValues {
	t.Helper()
	raw := make(map[string]Value, len(in))
	for k, v := range in {
		raw[k] = v
	}
	out, warnings := normalize("expected", raw)
	if len(warnings) > 0 {
		t.Fatalf("bad expectation: %v", warnings)
	}
	return out
}

func equalValues(a, b TierValues) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if o, ok := b[k]; !ok || !v.Equal(o) {
			return false
		}
	}
	return true
}

func dump(values TierValues) map[string]interface{} {
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		if v.IsList() {
			out[k] = v.Items()
		} else {
			out[k] = v.String()
		}
	}
	return out
}
