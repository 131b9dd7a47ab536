// Package validate inspects workflow definition snapshots and reports
// structural and semantic violations. It is pure: no I/O, no mutation.
package validate

import (
	"fmt"

	"github.com/petrijr/flowcanvas/pkg/api"
)

// Validate applies every rule independently and collects all violations;
// it never short-circuits. An empty result means the definition may be
// saved and executed.
//
// Rules:
//  1. At least one start step must exist.
//  2. At least one end step must exist.
//  3. A step that is neither start nor end, has no outgoing connection and
//     is not the target of any connection is disconnected. A step with
//     incoming connections but no outgoing ones is a sink and is
//     intentionally not flagged.
//  4. Per-type required config fields (see StepErrors).
func Validate(def api.WorkflowDefinition) []api.ValidationError {
	var errs []api.ValidationError

	hasStart := false
	hasEnd := false
	for _, s := range def.Steps {
		switch s.Type {
		case api.StepStart:
			hasStart = true
		case api.StepEnd:
			hasEnd = true
		}
	}
	if !hasStart {
		errs = append(errs, api.ValidationError{Message: "Workflow must have a start node"})
	}
	if !hasEnd {
		errs = append(errs, api.ValidationError{Message: "Workflow must have an end node"})
	}

	hasOutgoing := make(map[string]bool, len(def.Steps))
	isTarget := make(map[string]bool, len(def.Steps))
	for _, c := range def.Connections {
		hasOutgoing[c.Source] = true
		isTarget[c.Target] = true
	}
	for _, s := range def.Steps {
		if s.Type == api.StepStart || s.Type == api.StepEnd {
			continue
		}
		if !hasOutgoing[s.ID] && !isTarget[s.ID] {
			errs = append(errs, api.ValidationError{
				StepID:  s.ID,
				Message: fmt.Sprintf("Step %q is not connected to the workflow", s.Name),
			})
		}
	}

	for _, s := range def.Steps {
		for _, msg := range StepErrors(s) {
			errs = append(errs, api.ValidationError{StepID: s.ID, Message: msg})
		}
	}

	return errs
}

// StepErrors applies the type-specific required-field checks for a single
// step. Unknown types are accepted without field checks.
func StepErrors(step api.WorkflowStep) []string {
	var errs []string

	require := func(key, what string) {
		if !hasNonEmptyString(step.Config, key) {
			errs = append(errs, fmt.Sprintf("%s step requires a %s", step.Type, what))
		}
	}

	switch step.Type {
	case api.StepAIProcess:
		require("prompt", "prompt")
	case api.StepDecision:
		require("condition", "condition")
	case api.StepWebhook:
		require("url", "url")
	case api.StepEmail:
		require("to", "recipient")
	}

	return errs
}

func hasNonEmptyString(cfg map[string]any, key string) bool {
	v, ok := cfg[key]
	if !ok {
		return false
	}
	s, ok := v.(string)
	return ok && s != ""
}
