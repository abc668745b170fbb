package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/openfroyo/cascade/pkg/engine"
	"github.com/openfroyo/cascade/pkg/telemetry"
)

// RecordFileName is the name of the per-workflow execution record.
const RecordFileName = "execution.json"

var recordValidator = validator.New()

// FileExecutionLog stores execution records as <dir>/<workflow>/execution.json.
type FileExecutionLog struct {
	dir    string
	logger *telemetry.Logger
}

// NewFileExecutionLog creates a log rooted at the workflows directory.
func NewFileExecutionLog(workflowsDir string, logger *telemetry.Logger) *FileExecutionLog {
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &FileExecutionLog{
		dir:    workflowsDir,
		logger: logger.NewComponentLogger("execlog"),
	}
}

// Path returns the record path for a workflow.
func (l *FileExecutionLog) Path(id string) string {
	return filepath.Join(l.dir, id, RecordFileName)
}

// Get returns the record for id, or nil if there is none. A record that
// cannot be parsed or fails validation is treated as absent, so the workflow
// runs again and overwrites it.
func (l *FileExecutionLog) Get(_ context.Context, id string) (*engine.ExecutionRecord, error) {
	path := l.Path(id)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read execution record %s: %w", path, err)
	}

	rec := &engine.ExecutionRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		l.logger.WithWorkflow(id).WithError(err).Warn("Ignoring malformed execution record")
		return nil, nil
	}
	if err := recordValidator.Struct(rec); err != nil {
		l.logger.WithWorkflow(id).WithError(err).Warn("Ignoring invalid execution record")
		return nil, nil
	}
	if rec.Workflow != id {
		l.logger.WithWorkflow(id).WithField("recorded_workflow", rec.Workflow).Warn("Ignoring execution record of another workflow")
		return nil, nil
	}
	return rec, nil
}

// Put validates rec and replaces the stored record atomically.
func (l *FileExecutionLog) Put(_ context.Context, rec *engine.ExecutionRecord) error {
	if err := recordValidator.Struct(rec); err != nil {
		return fmt.Errorf("invalid execution record: %w", err)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode execution record: %w", err)
	}
	if err := WriteFileAtomic(l.Path(rec.Workflow), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write execution record: %w", err)
	}
	return nil
}

// Delete removes the record for id. Deleting a missing record is not an error.
func (l *FileExecutionLog) Delete(_ context.Context, id string) error {
	err := os.Remove(l.Path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete execution record: %w", err)
	}
	return nil
}
