// Package api defines the shared types of the flowcanvas core: the workflow
// graph data model, execution statuses, the Gateway persistence/execution
// contract, and the TrackerObserver callbacks.
//
// Most users should import the root flowcanvas package, which re-exports
// everything here.
package api
