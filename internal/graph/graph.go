package graph

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/petrijr/flowcanvas/pkg/api"
)

// Graph owns the canonical in-memory representation of a workflow: a set of
// steps and a set of directed connections between them. It is pure data plus
// mutation operations; it performs no I/O.
//
// Steps and connections live in id-keyed maps so lookups and cascade deletes
// are O(1); insertion-order slices preserve a stable snapshot order. All
// operations are goroutine-safe, so canvas-driven mutations may proceed
// while an execution poll is in flight elsewhere.
type Graph struct {
	mu sync.RWMutex

	name        string
	description string
	parameters  map[string]any

	steps     map[string]*api.WorkflowStep
	stepOrder []string

	connections map[string]*api.Connection
	connOrder   []string
}

// StepUpdate is a partial update of a step. Nil fields are left unchanged;
// Config, when non-nil, is merged key by key into the existing config.
type StepUpdate struct {
	Name        *string
	Description *string
	Position    *api.Position
	Config      map[string]any
}

// New creates a graph seeded with one start and one end step, matching the
// shape a freshly created workflow has on the canvas.
func New(name, description string) *Graph {
	g := NewEmpty(name, description)
	g.AddStep(api.StepStart, api.Position{X: 100, Y: 200})
	g.AddStep(api.StepEnd, api.Position{X: 500, Y: 200})
	return g
}

// NewEmpty creates a graph with no steps.
func NewEmpty(name, description string) *Graph {
	return &Graph{
		name:        name,
		description: description,
		steps:       make(map[string]*api.WorkflowStep),
		connections: make(map[string]*api.Connection),
	}
}

// FromDefinition rebuilds a graph from a persisted definition, dropping any
// connection whose endpoints are missing so the dangling-connection
// invariant holds even for definitions produced elsewhere.
func FromDefinition(def api.WorkflowDefinition) *Graph {
	g := NewEmpty(def.Name, def.Description)
	if len(def.Parameters) > 0 {
		g.parameters = make(map[string]any, len(def.Parameters))
		for k, v := range def.Parameters {
			g.parameters[k] = v
		}
	}
	for _, s := range def.Steps {
		step := s
		step.Config = copyConfig(s.Config)
		step.ValidationErrors = nil
		g.steps[step.ID] = &step
		g.stepOrder = append(g.stepOrder, step.ID)
	}
	for _, c := range def.Connections {
		if _, ok := g.steps[c.Source]; !ok {
			continue
		}
		if _, ok := g.steps[c.Target]; !ok {
			continue
		}
		conn := c
		g.connections[conn.ID] = &conn
		g.connOrder = append(g.connOrder, conn.ID)
	}
	return g
}

// Name returns the workflow name.
func (g *Graph) Name() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.name
}

// Rename sets the workflow name and description.
func (g *Graph) Rename(name, description string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.name = name
	g.description = description
}

// SetParameter records an externally supplied input parameter description.
func (g *Graph) SetParameter(key string, value any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.parameters == nil {
		g.parameters = make(map[string]any)
	}
	g.parameters[key] = value
}

// AddStep inserts a step of the given type with type-appropriate defaults
// and returns its freshly generated id. Ids embed a random suffix, so they
// are unique and never reused. Connections are not touched.
func (g *Graph) AddStep(stepType api.StepType, pos api.Position) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := fmt.Sprintf("%s-%s", stepType, shortID())
	step := &api.WorkflowStep{
		ID:       id,
		Type:     stepType,
		Name:     defaultName(stepType),
		Position: pos,
		Config:   defaultConfig(stepType),
	}
	g.steps[id] = step
	g.stepOrder = append(g.stepOrder, id)
	return id
}

// UpdateStep merges the given fields into the step. Unknown ids are a
// silent no-op; callers must not assume an error is raised.
func (g *Graph) UpdateStep(stepID string, upd StepUpdate) {
	g.mu.Lock()
	defer g.mu.Unlock()

	step, ok := g.steps[stepID]
	if !ok {
		return
	}
	if upd.Name != nil {
		step.Name = *upd.Name
	}
	if upd.Description != nil {
		step.Description = *upd.Description
	}
	if upd.Position != nil {
		step.Position = *upd.Position
	}
	if upd.Config != nil {
		if step.Config == nil {
			step.Config = make(map[string]any, len(upd.Config))
		}
		for k, v := range upd.Config {
			step.Config[k] = v
		}
	}
}

// MoveStep updates only the step's canvas position. No-op on unknown ids.
func (g *Graph) MoveStep(stepID string, pos api.Position) {
	g.UpdateStep(stepID, StepUpdate{Position: &pos})
}

// RemoveStep removes the step and cascades: every connection whose source
// or target equals stepID is removed too. A dangling connection is an
// invariant violation, so the cascade is mandatory.
func (g *Graph) RemoveStep(stepID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.steps[stepID]; !ok {
		return
	}
	delete(g.steps, stepID)
	g.stepOrder = removeID(g.stepOrder, stepID)

	for id, conn := range g.connections {
		if conn.Source == stepID || conn.Target == stepID {
			delete(g.connections, id)
			g.connOrder = removeID(g.connOrder, id)
		}
	}
}

// Connect appends a directed connection between two existing steps and
// returns its id. It returns ErrInvalidConnection if either endpoint does
// not exist. Connection ids carry a random suffix so a second connection
// between the same ordered pair never collides.
func (g *Graph) Connect(sourceID, targetID, label string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.steps[sourceID]; !ok {
		return "", fmt.Errorf("%w: unknown source %s", api.ErrInvalidConnection, sourceID)
	}
	if _, ok := g.steps[targetID]; !ok {
		return "", fmt.Errorf("%w: unknown target %s", api.ErrInvalidConnection, targetID)
	}

	id := fmt.Sprintf("%s-%s-%s", sourceID, targetID, shortID())
	g.connections[id] = &api.Connection{
		ID:     id,
		Source: sourceID,
		Target: targetID,
		Label:  label,
	}
	g.connOrder = append(g.connOrder, id)
	return id, nil
}

// Disconnect removes a connection by id. No-op if absent.
func (g *Graph) Disconnect(connectionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.connections[connectionID]; !ok {
		return
	}
	delete(g.connections, connectionID)
	g.connOrder = removeID(g.connOrder, connectionID)
}

// Step returns a copy of the step with the given id.
func (g *Graph) Step(stepID string) (api.WorkflowStep, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	step, ok := g.steps[stepID]
	if !ok {
		return api.WorkflowStep{}, false
	}
	out := *step
	out.Config = copyConfig(step.Config)
	return out, true
}

// StepCount returns the number of steps.
func (g *Graph) StepCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.steps)
}

// ConnectionCount returns the number of connections.
func (g *Graph) ConnectionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.connections)
}

// Snapshot projects the current steps and connections into the persistence
// shape. The returned definition shares no memory with the graph.
func (g *Graph) Snapshot() api.WorkflowDefinition {
	g.mu.RLock()
	defer g.mu.RUnlock()

	def := api.WorkflowDefinition{
		Name:        g.name,
		Description: g.description,
		Steps:       make([]api.WorkflowStep, 0, len(g.stepOrder)),
		Connections: make([]api.Connection, 0, len(g.connOrder)),
	}
	if len(g.parameters) > 0 {
		def.Parameters = make(map[string]any, len(g.parameters))
		for k, v := range g.parameters {
			def.Parameters[k] = v
		}
	}
	for _, id := range g.stepOrder {
		step := *g.steps[id]
		step.Config = copyConfig(step.Config)
		def.Steps = append(def.Steps, step)
	}
	for _, id := range g.connOrder {
		def.Connections = append(def.Connections, *g.connections[id])
	}
	return def
}

func defaultName(t api.StepType) string {
	switch t {
	case api.StepStart:
		return "Start"
	case api.StepEnd:
		return "End"
	case api.StepAIProcess:
		return "AI Process"
	default:
		// "ai_process" style types read fine with underscores swapped out.
		words := strings.Split(string(t), "_")
		for i, w := range words {
			if w != "" {
				words[i] = strings.ToUpper(w[:1]) + w[1:]
			}
		}
		return strings.Join(words, " ")
	}
}

func defaultConfig(t api.StepType) map[string]any {
	switch t {
	case api.StepAIProcess:
		return map[string]any{"prompt": ""}
	case api.StepDecision:
		return map[string]any{"condition": ""}
	case api.StepWebhook:
		return map[string]any{"url": "", "method": "POST"}
	case api.StepEmail:
		return map[string]any{"to": "", "subject": ""}
	default:
		return map[string]any{}
	}
}

func copyConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	return out
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

func shortID() string {
	return uuid.NewString()[:8]
}
