package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// severityDirective is the Rego comment that overrides a file's default
// severity, e.g. "# severity: warning".
const severityDirective = "severity:"

// Loader reads project policies from .rego and .json files.
type Loader struct {
	logger zerolog.Logger
}

// NewLoader creates a new policy loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "policy-loader").Logger(),
	}
}

// LoadFromPaths loads policies from files or directories, in path order.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	var all []Policy
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		policies, err := l.loadFromPath(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load policies from %s: %w", path, err)
		}
		all = append(all, policies...)
	}

	l.logger.Debug().
		Int("policies", len(all)).
		Int("sources", len(paths)).
		Msg("Project policies loaded")

	return all, nil
}

func (l *Loader) loadFromPath(path string) ([]Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}
	if info.IsDir() {
		return l.loadFromDirectory(path)
	}
	policy, err := l.loadFromFile(path)
	if err != nil {
		return nil, err
	}
	return []Policy{*policy}, nil
}

// loadFromDirectory loads every policy file below dir in lexical path order.
// Hidden entries are ignored and broken files are skipped with a warning, so
// one bad policy does not disable the rest.
func (l *Loader) loadFromDirectory(dir string) ([]Policy, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && isPolicyFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	sort.Strings(files)

	policies := make([]Policy, 0, len(files))
	for _, path := range files {
		policy, err := l.loadFromFile(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Skipping policy file")
			continue
		}
		policies = append(policies, *policy)
	}
	return policies, nil
}

func isPolicyFile(path string) bool {
	switch filepath.Ext(path) {
	case ".rego", ".json":
		return true
	}
	return false
}

func (l *Loader) loadFromFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var policy *Policy
	switch filepath.Ext(path) {
	case ".rego":
		policy, err = parseRego(path, data)
	case ".json":
		policy, err = parseJSON(path, data)
	default:
		err = fmt.Errorf("unsupported file type: %s", path)
	}
	if err != nil {
		return nil, err
	}

	l.logger.Debug().
		Str("path", path).
		Str("policy", policy.Name).
		Str("severity", string(policy.Severity)).
		Msg("Policy loaded")

	return policy, nil
}

// parseRego turns a .rego file into a Policy named after the file. The
// leading comment block becomes the description; a severity directive in it
// sets the default severity.
func parseRego(path string, data []byte) (*Policy, error) {
	content := string(data)
	severity, err := extractSeverity(content)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return &Policy{
		Name:        strings.TrimSuffix(filepath.Base(path), ".rego"),
		Description: extractDescription(content),
		Rego:        content,
		Severity:    severity,
		Enabled:     true,
		Source:      path,
	}, nil
}

func parseJSON(path string, data []byte) (*Policy, error) {
	var policy Policy
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse JSON policy: %w", err)
	}
	if strings.TrimSpace(policy.Rego) == "" {
		return nil, fmt.Errorf("%s: policy has no rego source", filepath.Base(path))
	}
	if policy.Name == "" {
		policy.Name = strings.TrimSuffix(filepath.Base(path), ".json")
	}
	if policy.Severity == "" {
		policy.Severity = SeverityError
	} else if !validSeverity(policy.Severity) {
		return nil, fmt.Errorf("%s: unknown severity %q", filepath.Base(path), policy.Severity)
	}
	policy.Source = path
	return &policy, nil
}

func validSeverity(s Severity) bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// headerComments returns the text of the comment lines before the first
// non-blank, non-comment line.
func headerComments(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if !strings.HasPrefix(trimmed, "#") {
			break
		}
		out = append(out, strings.TrimSpace(strings.TrimPrefix(trimmed, "#")))
	}
	return out
}

func isSeverityDirective(comment string) (string, bool) {
	if len(comment) < len(severityDirective) || !strings.EqualFold(comment[:len(severityDirective)], severityDirective) {
		return "", false
	}
	return strings.ToLower(strings.TrimSpace(comment[len(severityDirective):])), true
}

// extractSeverity reads the severity directive from the header comments,
// defaulting to error.
func extractSeverity(content string) (Severity, error) {
	for _, comment := range headerComments(content) {
		level, ok := isSeverityDirective(comment)
		if !ok {
			continue
		}
		s := Severity(level)
		if !validSeverity(s) {
			return "", fmt.Errorf("unknown severity %q", level)
		}
		return s, nil
	}
	return SeverityError, nil
}

// extractDescription joins the header comments, minus any directive.
func extractDescription(content string) string {
	var parts []string
	for _, comment := range headerComments(content) {
		if comment == "" {
			continue
		}
		if _, ok := isSeverityDirective(comment); ok {
			continue
		}
		parts = append(parts, comment)
	}
	return strings.Join(parts, " ")
}
