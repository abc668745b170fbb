package executor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openfroyo/cascade/pkg/config"
	"github.com/openfroyo/cascade/pkg/engine"
)

func testNode(t *testing.T, root, id string, values config.TierValues) *engine.WorkflowNode {
	t.Helper()
	dir := filepath.Join(root, "workflows", id)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "task.md"), []byte("Write about "+id), 0o644))

	resolved := config.ResolveAll([]config.Layer{{
		Tier:   config.Tier{Kind: config.TierWorkflow},
		Values: values,
	}})
	return &engine.WorkflowNode{
		ID:         id,
		Config:     resolved,
		Root:       root,
		TaskFile:   filepath.Join(dir, "task.md"),
		OutputFile: filepath.Join(dir, "output.md"),
	}
}

func TestExecuteWritesStdout(t *testing.T) {
	root := t.TempDir()
	node := testNode(t, root, "report", config.TierValues{
		config.KeyCommand: config.ListValue("sh", "-c", "cat; echo \"model=$CASCADE_MODEL wf=$CASCADE_WORKFLOW tokens=$CASCADE_MAX_TOKENS\""),
		config.KeyModel:   config.StringValue("test-model"),
	})

	res, err := NewCommandExecutor(nil).Execute(context.Background(), &engine.ExecutionRequest{RunID: "r1", Node: node})
	require.NoError(t, err)
	require.True(t, res.Success, res.Detail)
	assert.Equal(t, node.OutputFile, res.OutputPath)

	out, err := os.ReadFile(node.OutputFile)
	require.NoError(t, err)
	assert.Contains(t, string(out), "# Task\n\nWrite about report")
	assert.Contains(t, string(out), "model=test-model wf=report tokens=8192")
}

func TestExecuteWithoutCommand(t *testing.T) {
	node := testNode(t, t.TempDir(), "a", nil)

	res, err := NewCommandExecutor(nil).Execute(context.Background(), &engine.ExecutionRequest{Node: node})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ErrNoCommand, res.Detail)
	assert.NoFileExists(t, node.OutputFile)
}

func TestExecuteCommandFailure(t *testing.T) {
	node := testNode(t, t.TempDir(), "a", config.TierValues{
		config.KeyCommand: config.ListValue("sh", "-c", "echo partial; echo quota exceeded >&2; exit 3"),
	})

	res, err := NewCommandExecutor(nil).Execute(context.Background(), &engine.ExecutionRequest{Node: node})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "command exited with code 3: quota exceeded", res.Detail)
	assert.NoFileExists(t, node.OutputFile, "failed runs leave no output")
}

func TestExecuteTimeout(t *testing.T) {
	node := testNode(t, t.TempDir(), "a", config.TierValues{
		config.KeyCommand: config.ListValue("sleep", "5"),
		config.KeyTimeout: config.NumberValue(0.1),
	})

	start := time.Now()
	res, err := NewCommandExecutor(nil).Execute(context.Background(), &engine.ExecutionRequest{Node: node})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.True(t, strings.HasPrefix(res.Detail, "command timed out"), res.Detail)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestExecuteCancelled(t *testing.T) {
	node := testNode(t, t.TempDir(), "a", config.TierValues{
		config.KeyCommand: config.ListValue("sleep", "5"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := NewCommandExecutor(nil).Execute(ctx, &engine.ExecutionRequest{Node: node})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildPromptOrder(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data", "in.txt"), []byte("input body\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data", "ctx.md"), []byte("context body"), 0o644))

	dep := testNode(t, root, "outline", nil)
	require.NoError(t, os.WriteFile(dep.OutputFile, []byte("outline output\n"), 0o644))

	node := testNode(t, root, "draft", config.TierValues{
		config.KeySystemPrompts: config.ListValue("base", "editor"),
	})
	node.InputFiles = []string{filepath.Join(root, "data", "in.txt")}
	node.ContextFiles = []string{filepath.Join(root, "data", "ctx.md")}

	settings, err := node.Config.Settings()
	require.NoError(t, err)

	prompt, err := BuildPrompt(&engine.ExecutionRequest{Node: node, Dependencies: []*engine.WorkflowNode{dep}}, settings)
	require.NoError(t, err)

	expected := "<!-- system: base, editor -->\n\n" +
		"# Context\n\n## data/ctx.md\n\ncontext body\n\n" +
		"# Dependencies\n\n## outline\n\noutline output\n\n" +
		"# Inputs\n\n## data/in.txt\n\ninput body\n\n" +
		"# Task\n\nWrite about draft\n"
	assert.Equal(t, expected, prompt)
}

func TestBuildPromptMissingDependencyOutput(t *testing.T) {
	root := t.TempDir()
	dep := testNode(t, root, "outline", nil)
	node := testNode(t, root, "draft", nil)
	settings, err := node.Config.Settings()
	require.NoError(t, err)

	_, err = BuildPrompt(&engine.ExecutionRequest{Node: node, Dependencies: []*engine.WorkflowNode{dep}}, settings)
	assert.Error(t, err)
}
