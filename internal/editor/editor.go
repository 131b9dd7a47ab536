// Package editor couples a workflow graph with the validation engine and a
// persistence gateway. It is the surface the canvas layer drives: every
// mutation re-validates the graph, and save/execute are blocked while any
// validation error is present.
package editor

import (
	"context"
	"fmt"
	"sync"

	"github.com/petrijr/flowcanvas/internal/graph"
	"github.com/petrijr/flowcanvas/internal/tracker"
	"github.com/petrijr/flowcanvas/internal/validate"
	"github.com/petrijr/flowcanvas/pkg/api"
)

// Editor owns one workflow being edited. It is goroutine-safe.
type Editor struct {
	gateway api.Gateway

	mu      sync.Mutex
	graph   *graph.Graph
	errs    []api.ValidationError
	stepErr map[string][]string

	workflowID string
	version    int
}

// New creates an editor around a freshly seeded workflow (one start step,
// one end step).
func New(gw api.Gateway, name, description string) *Editor {
	e := &Editor{
		gateway: gw,
		graph:   graph.New(name, description),
		stepErr: map[string][]string{},
	}
	e.revalidate()
	return e
}

// Open loads a persisted workflow into a new editor.
func Open(ctx context.Context, gw api.Gateway, workflowID string) (*Editor, error) {
	def, err := gw.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	e := &Editor{
		gateway:    gw,
		graph:      graph.FromDefinition(def),
		stepErr:    map[string][]string{},
		workflowID: def.ID,
		version:    def.Version,
	}
	e.revalidate()
	return e, nil
}

// AddStep inserts a step and returns its id.
func (e *Editor) AddStep(stepType api.StepType, pos api.Position) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.graph.AddStep(stepType, pos)
	e.revalidate()
	return id
}

// UpdateStep merges partial fields into a step. Unknown ids are a no-op.
func (e *Editor) UpdateStep(stepID string, upd graph.StepUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.graph.UpdateStep(stepID, upd)
	e.revalidate()
}

// MoveStep updates a step's canvas position. Position changes cannot affect
// validity but re-validation is still triggered on every mutation.
func (e *Editor) MoveStep(stepID string, pos api.Position) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.graph.MoveStep(stepID, pos)
	e.revalidate()
}

// RemoveStep removes a step, cascading to its connections.
func (e *Editor) RemoveStep(stepID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.graph.RemoveStep(stepID)
	e.revalidate()
}

// Connect adds a connection between two existing steps.
func (e *Editor) Connect(sourceID, targetID, label string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, err := e.graph.Connect(sourceID, targetID, label)
	if err != nil {
		return "", err
	}
	e.revalidate()
	return id, nil
}

// Disconnect removes a connection by id.
func (e *Editor) Disconnect(connectionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.graph.Disconnect(connectionID)
	e.revalidate()
}

// Errors returns the aggregate validation error list from the last
// mutation.
func (e *Editor) Errors() []api.ValidationError {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]api.ValidationError, len(e.errs))
	copy(out, e.errs)
	return out
}

// StepErrors returns the validation messages attached to one step.
func (e *Editor) StepErrors(stepID string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	msgs := e.stepErr[stepID]
	out := make([]string, len(msgs))
	copy(out, msgs)
	return out
}

// CanSave reports whether the workflow is currently valid.
func (e *Editor) CanSave() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.errs) == 0
}

// WorkflowID returns the persisted id, or "" before the first save.
func (e *Editor) WorkflowID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.workflowID
}

// Version returns the persisted version, or 0 before the first save.
func (e *Editor) Version() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// Snapshot returns the current definition for the canvas boundary, with
// per-step validation errors attached for inline display.
func (e *Editor) Snapshot() api.WorkflowDefinition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Save persists the workflow: the first save creates it, later saves update
// it and bump the version. It fails with api.ErrValidationFailed while any
// validation error is present.
func (e *Editor) Save(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.errs) > 0 {
		return fmt.Errorf("%w: %s", api.ErrValidationFailed, e.errs[0].Message)
	}

	def := e.graph.Snapshot()
	var saved api.WorkflowDefinition
	var err error
	if e.workflowID == "" {
		saved, err = e.gateway.CreateWorkflow(ctx, def)
	} else {
		saved, err = e.gateway.UpdateWorkflow(ctx, e.workflowID, def)
	}
	if err != nil {
		return err
	}

	e.workflowID = saved.ID
	e.version = saved.Version
	return nil
}

// Execute starts a remote execution of the saved workflow and returns a
// started tracker bound to it. The workflow must be valid and saved; a
// graph mutated since the last save executes its last saved version.
func (e *Editor) Execute(ctx context.Context, inputData map[string]any, cfg tracker.Config) (*tracker.Tracker, error) {
	e.mu.Lock()
	if len(e.errs) > 0 {
		msg := e.errs[0].Message
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", api.ErrValidationFailed, msg)
	}
	if e.workflowID == "" {
		e.mu.Unlock()
		return nil, api.ErrNotSaved
	}
	workflowID := e.workflowID
	e.mu.Unlock()

	exec, err := e.gateway.ExecuteWorkflow(ctx, workflowID, inputData)
	if err != nil {
		return nil, err
	}

	t := tracker.New(e.gateway, exec.ID, cfg)
	t.Start(ctx)
	return t, nil
}

// revalidate recomputes the aggregate and per-step error lists.
// Callers must hold e.mu.
func (e *Editor) revalidate() {
	def := e.graph.Snapshot()
	e.errs = validate.Validate(def)
	e.stepErr = make(map[string][]string, len(e.errs))
	for _, verr := range e.errs {
		if verr.StepID == "" {
			continue
		}
		e.stepErr[verr.StepID] = append(e.stepErr[verr.StepID], verr.Message)
	}
}

func (e *Editor) snapshotLocked() api.WorkflowDefinition {
	def := e.graph.Snapshot()
	def.ID = e.workflowID
	def.Version = e.version
	for i := range def.Steps {
		def.Steps[i].ValidationErrors = e.stepErr[def.Steps[i].ID]
	}
	return def
}
