package flowcanvas

import (
	"fmt"

	"github.com/petrijr/flowcanvas/pkg/api"
)

// DefinitionBuilder provides a fluent API for composing workflow
// definitions in code, typically in tests or to seed a gateway:
//
//	def := flowcanvas.NewDefinition("Onboarding").
//	    Step("s1", flowcanvas.StepStart, "Start", nil).
//	    Step("a1", flowcanvas.StepAIProcess, "Summarize", map[string]any{"prompt": "..."}).
//	    Step("e1", flowcanvas.StepEnd, "End", nil).
//	    Connect("s1", "a1").
//	    Connect("a1", "e1").
//	    Definition()
//
// Interactive editing should go through Graph or Editor instead; the
// builder trades their silent-no-op mutation contract for fail-fast panics
// on wiring mistakes.
type DefinitionBuilder struct {
	def api.WorkflowDefinition
}

// NewDefinition creates a new definition builder with the given name.
func NewDefinition(name string) *DefinitionBuilder {
	return &DefinitionBuilder{
		def: api.WorkflowDefinition{
			Name:        name,
			Steps:       make([]api.WorkflowStep, 0),
			Connections: make([]api.Connection, 0),
		},
	}
}

// Name returns the workflow name.
func (b *DefinitionBuilder) Name() string {
	return b.def.Name
}

// Describe sets the workflow description.
func (b *DefinitionBuilder) Describe(description string) *DefinitionBuilder {
	b.def.Description = description
	return b
}

// Parameter declares an externally supplied execution input.
func (b *DefinitionBuilder) Parameter(key string, value any) *DefinitionBuilder {
	if b.def.Parameters == nil {
		b.def.Parameters = make(map[string]any)
	}
	b.def.Parameters[key] = value
	return b
}

// Step appends a step with an explicit id so it can be referenced by
// Connect. Panics on an empty or duplicate id.
func (b *DefinitionBuilder) Step(id string, stepType api.StepType, name string, config map[string]any) *DefinitionBuilder {
	return b.StepAt(id, stepType, name, config, api.Position{})
}

// StepAt is Step with an explicit canvas position.
func (b *DefinitionBuilder) StepAt(id string, stepType api.StepType, name string, config map[string]any, pos api.Position) *DefinitionBuilder {
	if id == "" {
		panic("flowcanvas: step id must not be empty")
	}
	if b.def.Step(id) != nil {
		panic(fmt.Sprintf("flowcanvas: duplicate step id %q", id))
	}

	b.def.Steps = append(b.def.Steps, api.WorkflowStep{
		ID:       id,
		Type:     stepType,
		Name:     name,
		Position: pos,
		Config:   config,
	})
	return b
}

// Connect appends a connection between two previously declared steps.
// Panics if either endpoint is unknown.
func (b *DefinitionBuilder) Connect(sourceID, targetID string) *DefinitionBuilder {
	return b.ConnectLabeled(sourceID, targetID, "")
}

// ConnectLabeled is Connect with an edge label, used by decision branches.
func (b *DefinitionBuilder) ConnectLabeled(sourceID, targetID, label string) *DefinitionBuilder {
	if b.def.Step(sourceID) == nil {
		panic(fmt.Sprintf("flowcanvas: connection source %q is not a declared step", sourceID))
	}
	if b.def.Step(targetID) == nil {
		panic(fmt.Sprintf("flowcanvas: connection target %q is not a declared step", targetID))
	}

	id := fmt.Sprintf("%s-%s-%d", sourceID, targetID, len(b.def.Connections))
	b.def.Connections = append(b.def.Connections, api.Connection{
		ID:     id,
		Source: sourceID,
		Target: targetID,
		Label:  label,
	})
	return b
}

// Definition returns the composed WorkflowDefinition.
func (b *DefinitionBuilder) Definition() WorkflowDefinition {
	return b.def
}

// Validate runs the validation engine over the composed definition.
func (b *DefinitionBuilder) Validate() []ValidationError {
	return Validate(b.def)
}

// MustValidate panics if the composed definition has validation errors.
// Useful for initialization in main().
func (b *DefinitionBuilder) MustValidate() *DefinitionBuilder {
	if errs := b.Validate(); len(errs) > 0 {
		panic(fmt.Sprintf("flowcanvas: invalid definition %q: %s", b.def.Name, errs[0].Message))
	}
	return b
}
