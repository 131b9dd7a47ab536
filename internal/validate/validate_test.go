package validate

import (
	"strings"
	"testing"

	"github.com/petrijr/flowcanvas/internal/graph"
	"github.com/petrijr/flowcanvas/pkg/api"
)

func containsMessage(errs []api.ValidationError, fragment string) bool {
	for _, e := range errs {
		if strings.Contains(e.Message, fragment) {
			return true
		}
	}
	return false
}

func errorsForStep(errs []api.ValidationError, stepID string) []api.ValidationError {
	var out []api.ValidationError
	for _, e := range errs {
		if e.StepID == stepID {
			out = append(out, e)
		}
	}
	return out
}

// A freshly seeded workflow (one start, one end, no connections) must be
// valid.
func TestValidate_SeededDefinitionIsClean(t *testing.T) {
	def := graph.New("wf", "").Snapshot()

	errs := Validate(def)
	if len(errs) != 0 {
		t.Fatalf("expected no errors on seeded definition, got %v", errs)
	}
}

func TestValidate_MissingStart(t *testing.T) {
	def := api.WorkflowDefinition{
		Name: "wf",
		Steps: []api.WorkflowStep{
			{ID: "e1", Type: api.StepEnd, Name: "End"},
		},
	}

	errs := Validate(def)
	if !containsMessage(errs, "start node") {
		t.Fatalf("expected missing-start error, got %v", errs)
	}
}

func TestValidate_MissingEnd(t *testing.T) {
	def := api.WorkflowDefinition{
		Name: "wf",
		Steps: []api.WorkflowStep{
			{ID: "s1", Type: api.StepStart, Name: "Start"},
		},
	}

	errs := Validate(def)
	if !containsMessage(errs, "end node") {
		t.Fatalf("expected missing-end error, got %v", errs)
	}
}

// All rules are applied independently; an empty definition reports both
// missing-start and missing-end.
func TestValidate_CollectsAllViolations(t *testing.T) {
	errs := Validate(api.WorkflowDefinition{Name: "wf"})
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors for empty definition, got %v", errs)
	}
}

func TestValidate_DisconnectedStep(t *testing.T) {
	def := api.WorkflowDefinition{
		Name: "wf",
		Steps: []api.WorkflowStep{
			{ID: "s1", Type: api.StepStart, Name: "Start"},
			{ID: "a1", Type: api.StepAction, Name: "Orphan"},
			{ID: "e1", Type: api.StepEnd, Name: "End"},
		},
		Connections: []api.Connection{
			{ID: "c1", Source: "s1", Target: "e1"},
		},
	}

	errs := Validate(def)
	if len(errorsForStep(errs, "a1")) != 1 {
		t.Fatalf("expected exactly one disconnected error for a1, got %v", errs)
	}
}

// Start and end steps are exempt from the connectivity rule.
func TestValidate_StartAndEndExemptFromConnectivity(t *testing.T) {
	def := api.WorkflowDefinition{
		Name: "wf",
		Steps: []api.WorkflowStep{
			{ID: "s1", Type: api.StepStart, Name: "Start"},
			{ID: "e1", Type: api.StepEnd, Name: "End"},
		},
	}

	errs := Validate(def)
	if len(errs) != 0 {
		t.Fatalf("expected no connectivity errors for unconnected start/end, got %v", errs)
	}
}

// Regression guard for the sink exemption: a step with an incoming
// connection but no outgoing one is NOT flagged as disconnected. This
// mirrors the full editing scenario: s1 -> a1 -> e1 validates clean, and
// after removing a1 -> e1 the a1 step still has an incoming connection, so
// the connectivity rule leaves it alone.
func TestValidate_SinkStepNotFlagged(t *testing.T) {
	def := api.WorkflowDefinition{
		Name: "wf",
		Steps: []api.WorkflowStep{
			{ID: "s1", Type: api.StepStart, Name: "Start"},
			{ID: "a1", Type: api.StepAIProcess, Name: "Summarize", Config: map[string]any{"prompt": "x"}},
			{ID: "e1", Type: api.StepEnd, Name: "End"},
		},
		Connections: []api.Connection{
			{ID: "c1", Source: "s1", Target: "a1"},
			{ID: "c2", Source: "a1", Target: "e1"},
		},
	}

	if errs := Validate(def); len(errs) != 0 {
		t.Fatalf("expected fully connected definition to be clean, got %v", errs)
	}

	// Remove a1 -> e1: a1 becomes a sink.
	def.Connections = def.Connections[:1]

	errs := Validate(def)
	if len(errorsForStep(errs, "a1")) != 0 {
		t.Fatalf("sink step a1 must not be flagged, got %v", errs)
	}
	if len(errorsForStep(errs, "e1")) != 0 {
		t.Fatalf("end step e1 is exempt by type, got %v", errs)
	}
}

func TestStepErrors_AIProcessRequiresPrompt(t *testing.T) {
	step := api.WorkflowStep{ID: "a1", Type: api.StepAIProcess, Name: "AI"}

	if errs := StepErrors(step); len(errs) != 1 {
		t.Fatalf("expected prompt error for missing config, got %v", errs)
	}

	step.Config = map[string]any{"prompt": ""}
	if errs := StepErrors(step); len(errs) != 1 {
		t.Fatalf("expected prompt error for empty prompt, got %v", errs)
	}

	step.Config["prompt"] = "summarize"
	if errs := StepErrors(step); len(errs) != 0 {
		t.Fatalf("expected no errors with prompt set, got %v", errs)
	}
}

func TestStepErrors_PerTypeRequiredFields(t *testing.T) {
	cases := []struct {
		stepType api.StepType
		key      string
	}{
		{api.StepDecision, "condition"},
		{api.StepWebhook, "url"},
		{api.StepEmail, "to"},
	}

	for _, tc := range cases {
		step := api.WorkflowStep{ID: "x", Type: tc.stepType, Name: string(tc.stepType)}
		if errs := StepErrors(step); len(errs) != 1 {
			t.Fatalf("%s: expected one error without %s, got %v", tc.stepType, tc.key, errs)
		}

		step.Config = map[string]any{tc.key: "value"}
		if errs := StepErrors(step); len(errs) != 0 {
			t.Fatalf("%s: expected no errors with %s set, got %v", tc.stepType, tc.key, errs)
		}
	}
}

// Unknown types are accepted without field checks.
func TestStepErrors_UnknownTypeAccepted(t *testing.T) {
	step := api.WorkflowStep{ID: "x", Type: "custom_widget", Name: "Custom"}
	if errs := StepErrors(step); len(errs) != 0 {
		t.Fatalf("expected unknown type to pass, got %v", errs)
	}
}

// Per-step errors surface in the aggregate list with the step id attached.
func TestValidate_AttachesStepIDToConfigErrors(t *testing.T) {
	def := api.WorkflowDefinition{
		Name: "wf",
		Steps: []api.WorkflowStep{
			{ID: "s1", Type: api.StepStart, Name: "Start"},
			{ID: "a1", Type: api.StepAIProcess, Name: "AI"},
			{ID: "e1", Type: api.StepEnd, Name: "End"},
		},
		Connections: []api.Connection{
			{ID: "c1", Source: "s1", Target: "a1"},
			{ID: "c2", Source: "a1", Target: "e1"},
		},
	}

	errs := Validate(def)
	stepErrs := errorsForStep(errs, "a1")
	if len(stepErrs) != 1 {
		t.Fatalf("expected one config error attached to a1, got %v", errs)
	}
	if !strings.Contains(stepErrs[0].Message, "prompt") {
		t.Fatalf("expected prompt message, got %q", stepErrs[0].Message)
	}
}
