// Package persistence provides the storage backends used by the local
// gateway: workflow definitions, executions, and execution logs.
package persistence

import (
	"github.com/petrijr/flowcanvas/pkg/api"
)

// WorkflowStore handles storage of workflow definitions.
type WorkflowStore interface {
	// SaveWorkflow inserts a new definition. The caller has already
	// assigned id, version and timestamps.
	SaveWorkflow(def api.WorkflowDefinition) error

	// UpdateWorkflow replaces an existing definition.
	// Returns api.ErrWorkflowNotFound if the id is unknown.
	UpdateWorkflow(def api.WorkflowDefinition) error

	// GetWorkflow returns the definition for an id.
	GetWorkflow(id string) (api.WorkflowDefinition, error)

	// ListWorkflows returns all stored definitions.
	ListWorkflows() ([]api.WorkflowDefinition, error)
}

// ExecutionStore handles storage of workflow executions and their logs.
type ExecutionStore interface {
	SaveExecution(exec *api.WorkflowExecution) error

	// UpdateExecution replaces an existing execution.
	// Returns api.ErrExecutionNotFound if the id is unknown.
	UpdateExecution(exec *api.WorkflowExecution) error

	GetExecution(id string) (*api.WorkflowExecution, error)

	// AppendLog adds one log entry to an execution's timeline.
	AppendLog(executionID string, entry api.ExecutionLogEntry) error

	// GetLogs returns an execution's log entries ordered by timestamp.
	GetLogs(executionID string) ([]api.ExecutionLogEntry, error)
}

// Persistence bundles the stores a gateway needs.
type Persistence struct {
	Workflows  WorkflowStore
	Executions ExecutionStore
}
