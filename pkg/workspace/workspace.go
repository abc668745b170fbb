package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/openfroyo/cascade/pkg/config"
	"github.com/openfroyo/cascade/pkg/telemetry"
)

// Layout names.
const (
	DirName       = ".cascade"
	WorkflowsDir  = "workflows"
	PoliciesDir   = "policies"
	HistoryFile   = "history.db"
	TaskFileName  = "task.md"
	ConfigBase    = "config"
	OutputBase    = "output"
	EnvConfigHome = "CASCADE_CONFIG_HOME"
)

// ErrNoProject is returned when no .cascade directory encloses the start path.
var ErrNoProject = errors.New("not inside a cascade project (no .cascade directory found)")

// Workspace is an opened project.
type Workspace struct {
	root       string
	configHome string
	logger     *telemetry.Logger
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger.
func WithLogger(l *telemetry.Logger) Option {
	return func(w *Workspace) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithConfigHome overrides the global tier directory.
func WithConfigHome(dir string) Option {
	return func(w *Workspace) { w.configHome = dir }
}

// Open opens the project rooted at root.
func Open(root string, opts ...Option) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	info, err := os.Stat(filepath.Join(abs, DirName))
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", abs, ErrNoProject)
	}

	w := &Workspace{
		root:       abs,
		configHome: defaultConfigHome(),
		logger:     telemetry.NopLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.NewComponentLogger("workspace")
	return w, nil
}

// Discover walks up from start to the first directory containing .cascade.
func Discover(start string, opts ...Option) (*Workspace, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", start, err)
	}
	for {
		if info, err := os.Stat(filepath.Join(dir, DirName)); err == nil && info.IsDir() {
			return Open(dir, opts...)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, ErrNoProject
		}
		dir = parent
	}
}

func defaultConfigHome() string {
	if dir := os.Getenv(EnvConfigHome); dir != "" {
		return dir
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "cascade")
	}
	return ""
}

// Root returns the project root directory.
func (w *Workspace) Root() string { return w.root }

// Dir returns the .cascade directory.
func (w *Workspace) Dir() string { return filepath.Join(w.root, DirName) }

// WorkflowsDir returns the directory holding one subdirectory per workflow.
func (w *Workspace) WorkflowsDir() string { return filepath.Join(w.Dir(), WorkflowsDir) }

// WorkflowDir returns the directory of a workflow.
func (w *Workspace) WorkflowDir(id string) string { return filepath.Join(w.WorkflowsDir(), id) }

// PoliciesDir returns the project policy directory.
func (w *Workspace) PoliciesDir() string { return filepath.Join(w.Dir(), PoliciesDir) }

// HistoryPath returns the run history database path.
func (w *Workspace) HistoryPath() string { return filepath.Join(w.Dir(), HistoryFile) }

// TaskPath returns the task specification path of a workflow.
func (w *Workspace) TaskPath(id string) string {
	return filepath.Join(w.WorkflowDir(id), TaskFileName)
}

// OutputPath returns where a workflow's output goes for the given format.
func (w *Workspace) OutputPath(id, format string) string {
	if format == "" {
		format = "md"
	}
	return filepath.Join(w.WorkflowDir(id), OutputBase+"."+format)
}

// ConfigHome returns the global tier directory, possibly empty.
func (w *Workspace) ConfigHome() string { return w.configHome }

// GlobalSource returns the global tier source, or "" if there is none.
func (w *Workspace) GlobalSource() string {
	if w.configHome == "" {
		return ""
	}
	return config.FindSource(filepath.Join(w.configHome, ConfigBase))
}

// ProjectSource returns the project tier source, or "".
func (w *Workspace) ProjectSource() string {
	return config.FindSource(filepath.Join(w.Dir(), ConfigBase))
}

// WorkflowSource returns the workflow tier source, or "".
func (w *Workspace) WorkflowSource(id string) string {
	return config.FindSource(filepath.Join(w.WorkflowDir(id), ConfigBase))
}

// AncestorSources returns the tier sources of enclosing projects, outermost
// first.
func (w *Workspace) AncestorSources() []string {
	var found []string
	dir := w.root
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
		if src := config.FindSource(filepath.Join(dir, DirName, ConfigBase)); src != "" {
			found = append(found, src)
		}
	}
	// Collected closest first.
	for i, j := 0, len(found)-1; i < j; i, j = i+1, j-1 {
		found[i], found[j] = found[j], found[i]
	}
	return found
}

// Sources returns the shared tier sources for config.NewCascade.
func (w *Workspace) Sources() config.Sources {
	return config.Sources{
		Global:    w.GlobalSource(),
		Ancestors: w.AncestorSources(),
		Project:   w.ProjectSource(),
	}
}

// ValidateID checks that id can name a workflow directory.
func ValidateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("workflow id is required")
	case id == "." || id == "..":
		return fmt.Errorf("invalid workflow id %q", id)
	case strings.HasPrefix(id, "."):
		return fmt.Errorf("invalid workflow id %q: must not start with '.'", id)
	case strings.ContainsAny(id, `/\`):
		return fmt.Errorf("invalid workflow id %q: must not contain path separators", id)
	}
	return nil
}

// Exists reports whether a workflow directory exists.
func (w *Workspace) Exists(id string) bool {
	if ValidateID(id) != nil {
		return false
	}
	info, err := os.Stat(w.WorkflowDir(id))
	return err == nil && info.IsDir()
}

// ListWorkflows returns every workflow id, sorted.
func (w *Workspace) ListWorkflows() ([]string, error) {
	entries, err := os.ReadDir(w.WorkflowsDir())
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || ValidateID(e.Name()) != nil {
			continue
		}
		ids = append(ids, e.Name())
	}
	sort.Strings(ids)
	return ids, nil
}
