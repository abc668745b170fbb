package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// Warning is a non-fatal problem found while loading a tier source.
type Warning struct {
	Source  string `json:"source"`
	Key     string `json:"key,omitempty"`
	Message string `json:"message"`
}

// String formats the warning for logs.
func (w Warning) String() string {
	if w.Key != "" {
		return fmt.Sprintf("%s: %s: %s", w.Source, w.Key, w.Message)
	}
	return fmt.Sprintf("%s: %s", w.Source, w.Message)
}

// Loader is the TierLoader: it reads one tier source into a flat key map.
// Malformed sources never fail resolution; they contribute nothing and
// produce a Warning instead.
type Loader struct {
	cue     *cue.Context
	schemas *SchemaRegistry
}

// NewLoader creates a loader with a fresh CUE context.
func NewLoader() (*Loader, error) {
	ctx := cuecontext.New()
	schemas, err := NewSchemaRegistry(ctx)
	if err != nil {
		return nil, err
	}
	return &Loader{cue: ctx, schemas: schemas}, nil
}

// SourceExtensions lists recognized tier source extensions in lookup order.
var SourceExtensions = []string{".yaml", ".yml", ".cue"}

// FindSource returns the first existing "<base><ext>" path, or "" if none exists.
func FindSource(base string) string {
	for _, ext := range SourceExtensions {
		path := base + ext
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}

// LoadFile reads a tier source. A missing file is an empty contribution
// without a warning.
func (l *Loader) LoadFile(path string) (TierValues, []Warning) {
	if path == "" {
		return TierValues{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return TierValues{}, nil
		}
		return TierValues{}, []Warning{{Source: path, Message: fmt.Sprintf("unreadable: %v", err)}}
	}
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		return l.LoadCUE(path, data)
	}
	return l.LoadYAML(path, data)
}

// LoadYAML parses a flat YAML mapping of key to scalar or scalar sequence.
func (l *Loader) LoadYAML(source string, data []byte) (TierValues, []Warning) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return TierValues{}, []Warning{{Source: source, Message: fmt.Sprintf("malformed: %v", err)}}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return TierValues{}, nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return TierValues{}, []Warning{{Source: source, Message: "malformed: top level must be a mapping"}}
	}

	raw := make(map[string]Value, len(root.Content)/2)
	var warnings []Warning
	for i := 0; i+1 < len(root.Content); i += 2 {
		keyNode, valNode := root.Content[i], root.Content[i+1]
		name := keyNode.Value
		switch valNode.Kind {
		case yaml.ScalarNode:
			if valNode.Tag == "!!null" {
				continue
			}
			raw[name] = StringValue(valNode.Value)
		case yaml.SequenceNode:
			items := make([]string, 0, len(valNode.Content))
			ok := true
			for _, item := range valNode.Content {
				if item.Kind != yaml.ScalarNode {
					ok = false
					break
				}
				items = append(items, item.Value)
			}
			if !ok {
				warnings = append(warnings, Warning{Source: source, Key: name, Message: "list items must be scalars"})
				continue
			}
			raw[name] = ListValue(items...)
		default:
			warnings = append(warnings, Warning{Source: source, Key: name, Message: "nested values are not supported"})
		}
	}

	values, more := normalize(source, raw)
	return values, append(warnings, more...)
}

// LoadCUE evaluates a CUE tier source. The source must unify with #Tier and be
// concrete; anything else makes the whole tier empty.
func (l *Loader) LoadCUE(source string, data []byte) (TierValues, []Warning) {
	val := l.cue.CompileBytes(data, cue.Filename(source))
	if err := val.Err(); err != nil {
		return TierValues{}, []Warning{{Source: source, Message: fmt.Sprintf("malformed: %v", err)}}
	}
	if err := l.schemas.ValidateTier(val); err != nil {
		return TierValues{}, []Warning{{Source: source, Message: fmt.Sprintf("malformed: %v", err)}}
	}

	iter, err := val.Fields()
	if err != nil {
		return TierValues{}, []Warning{{Source: source, Message: fmt.Sprintf("malformed: %v", err)}}
	}
	raw := make(map[string]Value)
	var warnings []Warning
	for iter.Next() {
		name := iter.Selector().String()
		v, ok, err := cueToValue(iter.Value())
		if err != nil {
			warnings = append(warnings, Warning{Source: source, Key: name, Message: err.Error()})
			continue
		}
		if ok {
			raw[name] = v
		}
	}

	values, more := normalize(source, raw)
	return values, append(warnings, more...)
}

// cueToValue converts a concrete CUE value. ok is false for null.
func cueToValue(v cue.Value) (Value, bool, error) {
	switch v.Kind() {
	case cue.NullKind:
		return Value{}, false, nil
	case cue.ListKind:
		items, err := v.List()
		if err != nil {
			return Value{}, false, err
		}
		var out []string
		for items.Next() {
			s, err := cueScalar(items.Value())
			if err != nil {
				return Value{}, false, err
			}
			out = append(out, s)
		}
		return ListValue(out...), true, nil
	default:
		s, err := cueScalar(v)
		if err != nil {
			return Value{}, false, err
		}
		return StringValue(s), true, nil
	}
}

func cueScalar(v cue.Value) (string, error) {
	switch v.Kind() {
	case cue.StringKind:
		return v.String()
	case cue.IntKind, cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return "", err
		}
		return strconv.FormatBool(b), nil
	default:
		return "", fmt.Errorf("unsupported value kind %s", v.Kind())
	}
}

// ParseAssignments turns "key=value" strings (the cli tier) into TierValues.
// List values are comma separated. Unlike file sources, invalid assignments
// are errors: they come straight from the user's command line.
func ParseAssignments(assignments []string) (TierValues, error) {
	raw := make(map[string]Value, len(assignments))
	for _, a := range assignments {
		name, value, ok := strings.Cut(a, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid assignment %q: expected key=value", a)
		}
		k, known := Lookup(name)
		if !known {
			return nil, fmt.Errorf("invalid assignment %q: unknown key %s", a, name)
		}
		if k.Type == TypeList {
			var items []string
			for _, item := range strings.Split(value, ",") {
				if item = strings.TrimSpace(item); item != "" {
					items = append(items, item)
				}
			}
			raw[name] = ListValue(items...)
			continue
		}
		raw[name] = StringValue(strings.TrimSpace(value))
	}
	values, warnings := normalize("cli", raw)
	if len(warnings) > 0 {
		return nil, fmt.Errorf("invalid assignment: %s", warnings[0].String())
	}
	return values, nil
}

// normalize drops unknown keys, coerces values to their declared types, and
// removes empty values so they are indistinguishable from absent ones.
func normalize(source string, raw map[string]Value) (TierValues, []Warning) {
	out := make(TierValues, len(raw))
	var warnings []Warning
	for name, v := range raw {
		k, ok := Lookup(name)
		if !ok {
			warnings = append(warnings, Warning{Source: source, Key: name, Message: "unknown key ignored"})
			continue
		}
		if v.IsEmpty() {
			continue
		}
		coerced, err := coerce(k, v)
		if err != nil {
			warnings = append(warnings, Warning{Source: source, Key: name, Message: err.Error()})
			continue
		}
		if coerced.IsEmpty() {
			continue
		}
		out[name] = coerced
	}
	sortWarnings(warnings)
	return out, warnings
}

func sortWarnings(ws []Warning) {
	sort.SliceStable(ws, func(i, j int) bool { return ws[i].Key < ws[j].Key })
}
