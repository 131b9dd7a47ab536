package flowcanvas

import (
	"context"
	"database/sql"
	"time"

	"github.com/petrijr/flowcanvas/internal/editor"
	"github.com/petrijr/flowcanvas/internal/gateway"
	"github.com/petrijr/flowcanvas/internal/graph"
	"github.com/petrijr/flowcanvas/internal/persistence"
	"github.com/petrijr/flowcanvas/internal/tracker"
	"github.com/petrijr/flowcanvas/internal/validate"
	"github.com/petrijr/flowcanvas/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	StepType           = api.StepType
	Status             = api.Status
	Position           = api.Position
	WorkflowStep       = api.WorkflowStep
	Connection         = api.Connection
	WorkflowDefinition = api.WorkflowDefinition
	ValidationError    = api.ValidationError
	WorkflowExecution  = api.WorkflowExecution
	ExecutionLogEntry  = api.ExecutionLogEntry
	Gateway            = api.Gateway

	TrackerObserver          = api.TrackerObserver
	NoopTrackerObserver      = api.NoopTrackerObserver
	CompositeTrackerObserver = api.CompositeTrackerObserver
	LoggingTrackerObserver   = api.LoggingTrackerObserver
	PollMetrics              = api.PollMetrics
	PollMetricsSnapshot      = api.PollMetricsSnapshot

	Graph      = graph.Graph
	StepUpdate = graph.StepUpdate
	Editor     = editor.Editor

	Tracker       = tracker.Tracker
	TrackerConfig = tracker.Config
	TrackerState  = tracker.State

	StepHandler        = gateway.StepHandler
	LocalGateway       = gateway.Local
	LocalGatewayConfig = gateway.LocalConfig
	HTTPGateway        = gateway.HTTP
	HTTPGatewayConfig  = gateway.HTTPConfig
)

// Re-export common observer helpers.

var (
	NewCompositeTrackerObserver = api.NewCompositeTrackerObserver
	NewLoggingTrackerObserver   = api.NewLoggingTrackerObserver
)

// Re-export step type values for convenience.

const (
	StepStart        = api.StepStart
	StepEnd          = api.StepEnd
	StepAIProcess    = api.StepAIProcess
	StepDecision     = api.StepDecision
	StepAction       = api.StepAction
	StepData         = api.StepData
	StepWebhook      = api.StepWebhook
	StepEmail        = api.StepEmail
	StepNotification = api.StepNotification
)

// Re-export execution status values for convenience.

const (
	StatusPending   = api.StatusPending
	StatusRunning   = api.StatusRunning
	StatusCompleted = api.StatusCompleted
	StatusFailed    = api.StatusFailed
)

// Re-export tracker states for convenience.

const (
	TrackerIdle     = tracker.StateIdle
	TrackerFetching = tracker.StateFetching
	TrackerTerminal = tracker.StateTerminal
	TrackerGivenUp  = tracker.StateGivenUp
	TrackerStopped  = tracker.StateStopped
)

// Re-export sentinel errors.

var (
	ErrStepNotFound      = api.ErrStepNotFound
	ErrInvalidConnection = api.ErrInvalidConnection
	ErrWorkflowNotFound  = api.ErrWorkflowNotFound
	ErrExecutionNotFound = api.ErrExecutionNotFound
	ErrValidationFailed  = api.ErrValidationFailed
	ErrNotSaved          = api.ErrNotSaved
)

// Graph constructors
// These wrap the internal packages so external callers never need to
// import them.

// NewGraph returns a graph seeded with one start and one end step, the
// shape a freshly created workflow has on the canvas.
func NewGraph(name, description string) *Graph {
	return graph.New(name, description)
}

// NewEmptyGraph returns a graph with no steps.
func NewEmptyGraph(name, description string) *Graph {
	return graph.NewEmpty(name, description)
}

// GraphFromDefinition rebuilds a graph from a persisted definition,
// dropping connections with missing endpoints.
func GraphFromDefinition(def WorkflowDefinition) *Graph {
	return graph.FromDefinition(def)
}

// Validate inspects a definition snapshot and returns all blocking
// violations. An empty result means the workflow may be saved and executed.
func Validate(def WorkflowDefinition) []ValidationError {
	return validate.Validate(def)
}

// StepErrors returns the type-specific required-field violations for a
// single step.
func StepErrors(step WorkflowStep) []string {
	return validate.StepErrors(step)
}

// Editor constructors

// NewEditor creates an editor around a freshly seeded workflow.
func NewEditor(gw Gateway, name, description string) *Editor {
	return editor.New(gw, name, description)
}

// OpenEditor loads a persisted workflow into a new editor.
func OpenEditor(ctx context.Context, gw Gateway, workflowID string) (*Editor, error) {
	return editor.Open(ctx, gw, workflowID)
}

// Tracker constructors

// NewTracker creates a tracker for the given execution id. Call Start to
// begin polling.
func NewTracker(gw Gateway, executionID string, cfg TrackerConfig) *Tracker {
	return tracker.New(gw, executionID, cfg)
}

// TrackExecution creates a tracker and starts it immediately.
func TrackExecution(ctx context.Context, gw Gateway, executionID string, cfg TrackerConfig) *Tracker {
	t := tracker.New(gw, executionID, cfg)
	t.Start(ctx)
	return t
}

// PollInterval returns the delay before poll attempt n+1 under the default
// backoff settings: min(2s * 1.5^n, 30s).
func PollInterval(n int) time.Duration {
	return tracker.Interval(tracker.DefaultBaseInterval, tracker.DefaultMaxInterval, n)
}

// Gateway constructors

// NewLocalGateway returns a local gateway backed entirely by in-memory
// stores. Non-durable, best for tests and development.
func NewLocalGateway(cfg LocalGatewayConfig) *LocalGateway {
	mem := persistence.NewMemoryStore()
	return gateway.NewLocal(persistence.Persistence{
		Workflows:  mem,
		Executions: mem,
	}, cfg)
}

// NewSQLiteGateway returns a local gateway that persists workflows,
// executions and logs in a SQLite database. The caller is responsible for
// importing a SQLite driver, e.g.:
//
//	import _ "modernc.org/sqlite"
func NewSQLiteGateway(db *sql.DB, cfg LocalGatewayConfig) (*LocalGateway, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	return gateway.NewLocal(persistence.Persistence{
		Workflows:  store,
		Executions: store,
	}, cfg), nil
}

// NewHTTPGateway returns a gateway that talks JSON/REST to a remote
// backend.
func NewHTTPGateway(cfg HTTPGatewayConfig) *HTTPGateway {
	return gateway.NewHTTP(cfg)
}
