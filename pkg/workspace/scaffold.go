package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const projectTemplate = `# Project tier. Every key is optional; empty values defer to lower tiers.
#
# model: claude-sonnet-4-5
# temperature: 1
# max_tokens: 8192
# system_prompts: [base]
# output_format: md
# command: [my-llm-cli, --stdin]
# timeout: 600
`

// Scaffold creates a project at root and opens it. Existing files are kept.
func Scaffold(root string, opts ...Option) (*Workspace, error) {
	dirs := []string{
		filepath.Join(root, DirName, WorkflowsDir),
		filepath.Join(root, DirName, PoliciesDir),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := writeIfAbsent(filepath.Join(root, DirName, ConfigBase+".yaml"), []byte(projectTemplate)); err != nil {
		return nil, err
	}
	return Open(root, opts...)
}

// workflowConfig is the scaffolded workflow tier.
type workflowConfig struct {
	DependsOn []string `yaml:"depends_on,omitempty"`
}

// ScaffoldWorkflow creates workflows/<id> with a config and an empty task.
func (w *Workspace) ScaffoldWorkflow(id string, dependsOn []string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	if w.Exists(id) {
		return fmt.Errorf("workflow %s already exists", id)
	}
	for _, dep := range dependsOn {
		if err := ValidateID(dep); err != nil {
			return fmt.Errorf("invalid dependency: %w", err)
		}
	}

	if err := os.MkdirAll(w.WorkflowDir(id), 0o755); err != nil {
		return fmt.Errorf("failed to create workflow directory: %w", err)
	}

	data, err := yaml.Marshal(workflowConfig{DependsOn: dependsOn})
	if err != nil {
		return fmt.Errorf("failed to encode workflow config: %w", err)
	}
	header := []byte("# Workflow tier for " + id + "\n")
	if len(dependsOn) == 0 {
		data = nil
	}
	if err := writeIfAbsent(filepath.Join(w.WorkflowDir(id), ConfigBase+".yaml"), append(header, data...)); err != nil {
		return err
	}

	task := fmt.Sprintf("# %s\n\nDescribe the task here.\n", id)
	if err := writeIfAbsent(w.TaskPath(id), []byte(task)); err != nil {
		return err
	}

	w.logger.WithWorkflow(id).Info("Workflow created")
	return nil
}

func writeIfAbsent(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
