// Package executor runs workflows through an external command.
//
// The resolved "command" key is an argv list. The assembled prompt is
// written to the command's stdin and its stdout becomes the workflow output.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/openfroyo/cascade/pkg/config"
	"github.com/openfroyo/cascade/pkg/engine"
	"github.com/openfroyo/cascade/pkg/stores"
	"github.com/openfroyo/cascade/pkg/telemetry"
)

// Environment variables passed to the command.
const (
	EnvModel       = "CASCADE_MODEL"
	EnvTemperature = "CASCADE_TEMPERATURE"
	EnvMaxTokens   = "CASCADE_MAX_TOKENS"
	EnvWorkflow    = "CASCADE_WORKFLOW"
	EnvRunID       = "CASCADE_RUN_ID"
	EnvFormat      = "CASCADE_OUTPUT_FORMAT"
)

// ErrNoCommand is the failure detail of a workflow without a command.
const ErrNoCommand = "no command configured"

// maxStderr bounds how much stderr ends up in a failure detail.
const maxStderr = 2048

// CommandExecutor implements engine.Executor by running the resolved command.
type CommandExecutor struct {
	logger *telemetry.Logger

	// waitDelay bounds how long Wait blocks on pipes after the process is
	// killed.
	waitDelay time.Duration
}

// NewCommandExecutor creates an executor.
func NewCommandExecutor(logger *telemetry.Logger) *CommandExecutor {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &CommandExecutor{
		logger:    logger.NewComponentLogger("executor"),
		waitDelay: 2 * time.Second,
	}
}

// Execute assembles the prompt, runs the command, and writes its stdout to
// the node's output file. Command failures are reported in the result; an
// error is returned only when the executor itself cannot proceed.
func (e *CommandExecutor) Execute(ctx context.Context, req *engine.ExecutionRequest) (*engine.ExecutorResult, error) {
	node := req.Node
	settings, err := node.Config.Settings()
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", node.ID, err)
	}
	if len(settings.Command) == 0 {
		return &engine.ExecutorResult{Success: false, Detail: ErrNoCommand}, nil
	}

	prompt, err := BuildPrompt(req, settings)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: failed to assemble prompt: %w", node.ID, err)
	}

	runCtx := ctx
	if settings.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(settings.Timeout*float64(time.Second)))
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, settings.Command[0], settings.Command[1:]...)
	cmd.Dir = node.Root
	cmd.Stdin = strings.NewReader(prompt)
	cmd.Env = append(os.Environ(),
		EnvModel+"="+settings.Model,
		EnvTemperature+"="+strconv.FormatFloat(settings.Temperature, 'g', -1, 64),
		EnvMaxTokens+"="+strconv.Itoa(settings.MaxTokens),
		EnvWorkflow+"="+node.ID,
		EnvRunID+"="+req.RunID,
		EnvFormat+"="+settings.OutputFormat,
	)
	cmd.WaitDelay = e.waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := e.logger.WithWorkflow(node.ID).WithField("command", settings.Command[0])
	logger.Debug("Running workflow command")

	start := time.Now()
	err = cmd.Run()
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return &engine.ExecutorResult{
				Success: false,
				Detail:  fmt.Sprintf("command timed out after %s", time.Duration(settings.Timeout*float64(time.Second))),
			}, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail := fmt.Sprintf("command exited with code %d", exitErr.ExitCode())
			if msg := strings.TrimSpace(stderr.String()); msg != "" {
				if len(msg) > maxStderr {
					msg = msg[:maxStderr] + "..."
				}
				detail += ": " + msg
			}
			logger.WithField("exit_code", exitErr.ExitCode()).Warn("Workflow command failed")
			return &engine.ExecutorResult{Success: false, Detail: detail}, nil
		}
		return &engine.ExecutorResult{Success: false, Detail: fmt.Sprintf("failed to run command: %v", err)}, nil
	}

	if err := stores.WriteFileAtomic(node.OutputFile, stdout.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("workflow %s: failed to write output: %w", node.ID, err)
	}

	logger.WithFields(map[string]interface{}{
		"duration_ms": duration.Milliseconds(),
		"bytes":       stdout.Len(),
	}).Info("Workflow command completed")

	return &engine.ExecutorResult{
		OutputPath: node.OutputFile,
		Success:    true,
	}, nil
}

// BuildPrompt assembles the prompt for a workflow: system prompt names,
// context files, dependency outputs, input files, then the task.
func BuildPrompt(req *engine.ExecutionRequest, settings config.Settings) (string, error) {
	node := req.Node
	var b strings.Builder

	if len(settings.SystemPrompts) > 0 {
		fmt.Fprintf(&b, "<!-- system: %s -->\n\n", strings.Join(settings.SystemPrompts, ", "))
	}

	if err := writeSection(&b, "Context", node.Root, node.ContextFiles); err != nil {
		return "", err
	}

	if len(req.Dependencies) > 0 {
		b.WriteString("# Dependencies\n\n")
		for _, dep := range req.Dependencies {
			data, err := os.ReadFile(dep.OutputFile)
			if err != nil {
				return "", fmt.Errorf("dependency %s output: %w", dep.ID, err)
			}
			fmt.Fprintf(&b, "## %s\n\n%s\n\n", dep.ID, strings.TrimRight(string(data), "\n"))
		}
	}

	if err := writeSection(&b, "Inputs", node.Root, node.InputFiles); err != nil {
		return "", err
	}

	task, err := os.ReadFile(node.TaskFile)
	if err != nil {
		return "", fmt.Errorf("task file: %w", err)
	}
	b.WriteString("# Task\n\n")
	b.Write(task)
	if len(task) > 0 && task[len(task)-1] != '\n' {
		b.WriteByte('\n')
	}
	return b.String(), nil
}

func writeSection(b *strings.Builder, title, root string, files []string) error {
	if len(files) == 0 {
		return nil
	}
	fmt.Fprintf(b, "# %s\n\n", title)
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		name := f
		if rel, err := filepath.Rel(root, f); err == nil {
			name = filepath.ToSlash(rel)
		}
		fmt.Fprintf(b, "## %s\n\n%s\n\n", name, strings.TrimRight(string(data), "\n"))
	}
	return nil
}
