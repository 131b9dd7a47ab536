// Package flowcanvas is the core of a visual workflow builder: a typed
// step/connection graph model, a structural validation engine, and an
// execution tracker that polls a remote backend until an execution
// finishes.
//
// # Core Concepts
//
// The flowcanvas programming model is intentionally small and idiomatic:
//
//  1. Graph
//  2. Editor
//  3. Validate
//  4. Tracker
//  5. Gateway
//
// # Graph
//
// A Graph holds the canonical in-memory workflow: steps (start, end,
// ai_process, decision, action, data, webhook, email, notification) and the
// directed connections between them. Mutations are plain method calls:
//
//	g := flowcanvas.NewGraph("Onboarding", "")
//	ai := g.AddStep(flowcanvas.StepAIProcess, flowcanvas.Position{X: 300, Y: 200})
//
// Removing a step cascades to every connection referencing it, so a
// dangling connection never exists.
//
// # Editor
//
// An Editor wraps a Graph, re-validates it after every mutation, and talks
// to a Gateway for saving and executing. Save and Execute are blocked while
// validation errors are present; per-step errors are attached to snapshots
// so a canvas can render them inline.
//
// # Validate
//
// Validate is a pure function from a definition snapshot to a list of
// blocking violations: missing start or end steps, disconnected steps, and
// missing per-type config fields (an ai_process step needs a prompt, a
// webhook needs a url, and so on).
//
// # Tracker
//
// A Tracker is bound to one execution id. It polls the gateway for status
// until the execution completes or fails, retrying transport failures with
// exponential backoff (2s base, 1.5 multiplier, 30s cap) and giving up
// after five consecutive failures; a consumer can Reset it to resume. While
// the execution is running it also keeps a bounded buffer of step-level
// logs. Stop cancels tracking and discards any in-flight response.
//
// # Gateway
//
// Gateway is the persistence/execution boundary. Two implementations ship
// with the module:
//
//   - NewLocalGateway: an in-process stand-in backed by in-memory or SQLite
//     stores that actually walks the graph, for development and tests.
//   - NewHTTPGateway: a thin JSON/REST client for a remote backend.
//
// For examples, see example_test.go.
package flowcanvas
