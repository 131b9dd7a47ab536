// Package gateway provides implementations of the api.Gateway contract: a
// local in-process gateway backed by pluggable stores, and an HTTP client
// for a remote execution backend.
package gateway

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/petrijr/flowcanvas/internal/persistence"
	"github.com/petrijr/flowcanvas/internal/validate"
	"github.com/petrijr/flowcanvas/pkg/api"
)

// StepHandler executes one step of a workflow in the local gateway. input
// is the output of the previous step (or the execution input for the first
// step); the returned map becomes the next step's input.
type StepHandler func(ctx context.Context, step api.WorkflowStep, input map[string]any) (map[string]any, error)

// LocalConfig describes how to construct a Local gateway. The zero value
// is usable.
type LocalConfig struct {
	// StepDelay is a simulated per-step latency, useful when a consumer
	// wants to observe the running status before completion.
	StepDelay time.Duration

	Logger *slog.Logger
}

// Local is an in-process api.Gateway: definitions and executions are kept
// in the configured stores and executions are run asynchronously by walking
// the workflow graph from its start step. It is a development and test
// stand-in for the remote execution backend, in the same spirit as an
// in-memory engine.
type Local struct {
	stores persistence.Persistence
	cfg    LocalConfig

	mu       sync.RWMutex
	handlers map[api.StepType]StepHandler

	wg sync.WaitGroup
}

// Ensure Local implements the gateway contract.
var _ api.Gateway = (*Local)(nil)

// NewLocal creates a local gateway over the given stores.
func NewLocal(stores persistence.Persistence, cfg LocalConfig) *Local {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Local{
		stores:   stores,
		cfg:      cfg,
		handlers: make(map[api.StepType]StepHandler),
	}
}

// RegisterHandler installs the handler used for steps of the given type.
// Types without a handler pass their input through unchanged.
func (g *Local) RegisterHandler(stepType api.StepType, h StepHandler) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers[stepType] = h
}

// Wait blocks until all in-flight executions have finished. Intended for
// tests and shutdown.
func (g *Local) Wait() {
	g.wg.Wait()
}

func (g *Local) CreateWorkflow(ctx context.Context, def api.WorkflowDefinition) (api.WorkflowDefinition, error) {
	now := time.Now()
	def.ID = "wf-" + shortID()
	def.Version = 1
	def.CreatedAt = now
	def.UpdatedAt = now

	if err := g.stores.Workflows.SaveWorkflow(def); err != nil {
		return api.WorkflowDefinition{}, fmt.Errorf("create workflow: %w", err)
	}
	return def, nil
}

func (g *Local) UpdateWorkflow(ctx context.Context, id string, def api.WorkflowDefinition) (api.WorkflowDefinition, error) {
	existing, err := g.stores.Workflows.GetWorkflow(id)
	if err != nil {
		return api.WorkflowDefinition{}, err
	}

	def.ID = existing.ID
	def.Version = existing.Version + 1
	def.CreatedAt = existing.CreatedAt
	def.UpdatedAt = time.Now()

	if err := g.stores.Workflows.UpdateWorkflow(def); err != nil {
		return api.WorkflowDefinition{}, fmt.Errorf("update workflow %s: %w", id, err)
	}
	return def, nil
}

func (g *Local) GetWorkflow(ctx context.Context, id string) (api.WorkflowDefinition, error) {
	return g.stores.Workflows.GetWorkflow(id)
}

func (g *Local) ExecuteWorkflow(ctx context.Context, workflowID string, inputData map[string]any) (api.WorkflowExecution, error) {
	def, err := g.stores.Workflows.GetWorkflow(workflowID)
	if err != nil {
		return api.WorkflowExecution{}, err
	}
	if errs := validate.Validate(def); len(errs) > 0 {
		return api.WorkflowExecution{}, fmt.Errorf("%w: %s", api.ErrValidationFailed, errs[0].Message)
	}

	exec := api.WorkflowExecution{
		ID:         "ex-" + shortID(),
		WorkflowID: workflowID,
		Status:     api.StatusPending,
		StartedAt:  time.Now(),
		InputData:  inputData,
	}
	if err := g.stores.Executions.SaveExecution(&exec); err != nil {
		return api.WorkflowExecution{}, fmt.Errorf("save execution: %w", err)
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.run(def, exec)
	}()

	return exec, nil
}

func (g *Local) GetExecution(ctx context.Context, executionID string) (api.WorkflowExecution, error) {
	exec, err := g.stores.Executions.GetExecution(executionID)
	if err != nil {
		return api.WorkflowExecution{}, err
	}
	return *exec, nil
}

func (g *Local) GetExecutionLogs(ctx context.Context, executionID string) ([]api.ExecutionLogEntry, error) {
	return g.stores.Executions.GetLogs(executionID)
}

// run walks the graph from the start step, invoking the handler for each
// step and recording one log entry per step. The walk is detached from the
// caller's context: an execution, once started, runs to completion or
// failure on its own.
func (g *Local) run(def api.WorkflowDefinition, exec api.WorkflowExecution) {
	ctx := context.Background()

	exec.Status = api.StatusRunning
	if err := g.stores.Executions.UpdateExecution(&exec); err != nil {
		g.cfg.Logger.Error("execution_update_failed",
			slog.String("execution_id", exec.ID),
			slog.Any("error", err),
		)
		return
	}

	current := firstStepOfType(def, api.StepStart)
	input := exec.InputData
	visited := make(map[string]bool, len(def.Steps))

	for current != nil {
		if visited[current.ID] {
			g.finish(exec, fmt.Errorf("cycle detected at step %s", current.ID))
			return
		}
		visited[current.ID] = true

		if g.cfg.StepDelay > 0 {
			time.Sleep(g.cfg.StepDelay)
		}

		output, err := g.runStep(ctx, *current, input)
		g.appendLog(exec.ID, *current, input, output, err)
		if err != nil {
			g.finish(exec, fmt.Errorf("step %s: %w", current.Name, err))
			return
		}

		if current.Type == api.StepEnd {
			break
		}
		input = output
		current = g.nextStep(def, *current, output)
	}

	g.finish(exec, nil)
}

func (g *Local) runStep(ctx context.Context, step api.WorkflowStep, input map[string]any) (map[string]any, error) {
	g.mu.RLock()
	handler := g.handlers[step.Type]
	g.mu.RUnlock()

	if handler == nil {
		return input, nil
	}
	return handler(ctx, step, input)
}

// nextStep picks the connection to follow out of a step. Decision steps
// follow the connection whose label matches the handler's "branch" output;
// everything else (and unmatched branches) follows the first outgoing
// connection in insertion order. No outgoing connection ends the walk.
func (g *Local) nextStep(def api.WorkflowDefinition, step api.WorkflowStep, output map[string]any) *api.WorkflowStep {
	var outgoing []api.Connection
	for _, c := range def.Connections {
		if c.Source == step.ID {
			outgoing = append(outgoing, c)
		}
	}
	if len(outgoing) == 0 {
		return nil
	}

	chosen := outgoing[0]
	if step.Type == api.StepDecision {
		if branch, ok := output["branch"].(string); ok {
			for _, c := range outgoing {
				if c.Label == branch {
					chosen = c
					break
				}
			}
		}
	}
	return def.Step(chosen.Target)
}

func (g *Local) appendLog(executionID string, step api.WorkflowStep, input, output map[string]any, stepErr error) {
	entry := api.ExecutionLogEntry{
		ID:         "log-" + shortID(),
		StepName:   step.Name,
		StepType:   step.Type,
		InputData:  input,
		OutputData: output,
		Timestamp:  time.Now(),
		DurationMS: g.cfg.StepDelay.Milliseconds(),
	}
	if stepErr != nil {
		entry.ErrorMessage = stepErr.Error()
	}
	if err := g.stores.Executions.AppendLog(executionID, entry); err != nil {
		g.cfg.Logger.Error("execution_log_append_failed",
			slog.String("execution_id", executionID),
			slog.Any("error", err),
		)
	}
}

func (g *Local) finish(exec api.WorkflowExecution, runErr error) {
	now := time.Now()
	exec.CompletedAt = &now
	exec.Duration = now.Sub(exec.StartedAt)
	if runErr != nil {
		exec.Status = api.StatusFailed
		exec.ErrorMessage = runErr.Error()
	} else {
		exec.Status = api.StatusCompleted
	}

	if err := g.stores.Executions.UpdateExecution(&exec); err != nil {
		g.cfg.Logger.Error("execution_update_failed",
			slog.String("execution_id", exec.ID),
			slog.Any("error", err),
		)
	}
}

func firstStepOfType(def api.WorkflowDefinition, t api.StepType) *api.WorkflowStep {
	for i := range def.Steps {
		if def.Steps[i].Type == t {
			return &def.Steps[i]
		}
	}
	return nil
}

func shortID() string {
	return uuid.NewString()[:8]
}
