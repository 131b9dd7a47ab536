package api

import (
	"context"
	"errors"
	"time"
)

// StepType identifies the kind of work a step performs. The set is closed;
// the validation engine accepts unknown values but applies no field checks
// to them.
type StepType string

const (
	StepStart        StepType = "start"
	StepEnd          StepType = "end"
	StepAIProcess    StepType = "ai_process"
	StepDecision     StepType = "decision"
	StepAction       StepType = "action"
	StepData         StepType = "data"
	StepWebhook      StepType = "webhook"
	StepEmail        StepType = "email"
	StepNotification StepType = "notification"
)

// Status represents the lifecycle state of a workflow execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further status changes can occur.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Position is the canvas location of a step. It is owned by the canvas
// layer and opaque to validation.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// WorkflowStep is a single node in the workflow graph.
type WorkflowStep struct {
	ID          string   `json:"id"`
	Type        StepType `json:"type"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Position    Position `json:"position"`

	// Config is an open key/value map interpreted per Type; for example an
	// ai_process step expects a "prompt" string.
	Config map[string]any `json:"config,omitempty"`

	// ValidationErrors is a view field populated for the canvas boundary
	// so errors can be rendered inline next to the step. It is never
	// persisted.
	ValidationErrors []string `json:"validationErrors,omitempty"`
}

// Connection is a directed edge between two steps. Multiple connections
// between the same ordered pair are permitted and carry distinct ids.
type Connection struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label,omitempty"`
}

// WorkflowDefinition is the persistence shape of a workflow graph.
//
// Invariant: every Connection's Source and Target reference an existing
// step id within the same definition. The graph model enforces this by
// cascading connection removal on step deletion.
type WorkflowDefinition struct {
	ID          string         `json:"id,omitempty"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Steps       []WorkflowStep `json:"steps"`
	Connections []Connection   `json:"connections"`

	// Parameters describes externally supplied execution inputs.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Version is assigned by the gateway and incremented on each
	// successful save.
	Version   int       `json:"version,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// Step returns the step with the given id, or nil if absent.
func (d *WorkflowDefinition) Step(id string) *WorkflowStep {
	for i := range d.Steps {
		if d.Steps[i].ID == id {
			return &d.Steps[i]
		}
	}
	return nil
}

// ValidationError describes a single structural or semantic violation.
// All validation errors are blocking; there is no warning tier.
type ValidationError struct {
	// StepID is empty for whole-graph errors.
	StepID  string `json:"stepId,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.StepID == "" {
		return e.Message
	}
	return e.StepID + ": " + e.Message
}

// WorkflowExecution is the client-visible state of a remote execution.
type WorkflowExecution struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflowId"`
	Status     Status `json:"status"`

	StartedAt   time.Time  `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// Duration is derived server-side and only present once the execution
	// has completed.
	Duration time.Duration `json:"duration,omitempty"`

	// ErrorMessage is present only when Status is failed.
	ErrorMessage string `json:"errorMessage,omitempty"`

	InputData map[string]any `json:"inputData,omitempty"`
}

// ExecutionLogEntry is one step-level record of an execution, ordered by
// timestamp. The client treats the log as append-only: it is derived from
// a bounded remote fetch, not streamed incrementally.
type ExecutionLogEntry struct {
	ID         string         `json:"id"`
	StepName   string         `json:"stepName"`
	StepType   StepType       `json:"stepType"`
	InputData  map[string]any `json:"inputData,omitempty"`
	OutputData map[string]any `json:"outputData,omitempty"`
	DurationMS int64          `json:"durationMs"`
	Timestamp  time.Time      `json:"timestamp"`

	ErrorMessage string `json:"errorMessage,omitempty"`
}

var (
	// ErrStepNotFound is returned when an operation references an unknown step id.
	ErrStepNotFound = errors.New("step not found")

	// ErrInvalidConnection is returned when a connection endpoint does not exist.
	ErrInvalidConnection = errors.New("invalid connection")

	// ErrWorkflowNotFound is returned when a workflow definition is not found.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrExecutionNotFound is returned when a workflow execution is not found.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrValidationFailed blocks save/execute while validation errors are present.
	ErrValidationFailed = errors.New("workflow has validation errors")

	// ErrNotSaved is returned when execute is attempted before the
	// definition has been persisted.
	ErrNotSaved = errors.New("workflow has not been saved")
)

// Gateway is the persistence/execution boundary. Concrete transports are
// interchangeable; all calls are request/response and failures surface as
// ordinary errors which the tracker treats opaquely as a failed fetch.
type Gateway interface {
	// CreateWorkflow persists a new definition, assigning its id and
	// initial version.
	CreateWorkflow(ctx context.Context, def WorkflowDefinition) (WorkflowDefinition, error)

	// UpdateWorkflow replaces an existing definition and bumps its version.
	UpdateWorkflow(ctx context.Context, id string, def WorkflowDefinition) (WorkflowDefinition, error)

	// GetWorkflow fetches a definition by id.
	GetWorkflow(ctx context.Context, id string) (WorkflowDefinition, error)

	// ExecuteWorkflow starts a remote execution of a persisted workflow.
	// The returned execution starts in the pending or running status.
	ExecuteWorkflow(ctx context.Context, workflowID string, inputData map[string]any) (WorkflowExecution, error)

	// GetExecution fetches the current state of an execution.
	GetExecution(ctx context.Context, executionID string) (WorkflowExecution, error)

	// GetExecutionLogs fetches the step-level log of an execution.
	GetExecutionLogs(ctx context.Context, executionID string) ([]ExecutionLogEntry, error)
}
