package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// TrackerObserver receives callbacks from an execution tracker for logging
// and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay the polling loop.
type TrackerObserver interface {
	// OnPoll is called before each status fetch. attempt counts fetches
	// from 1, including retries.
	OnPoll(ctx context.Context, executionID string, attempt int)

	// OnStatus is called after each successful status fetch, terminal or not.
	OnStatus(ctx context.Context, exec *WorkflowExecution)

	// OnTransportError is called when a status fetch fails. retries is the
	// failure count so far; nextDelay is the scheduled backoff before the
	// next attempt, or zero when retries are exhausted.
	OnTransportError(ctx context.Context, executionID string, err error, retries int, nextDelay time.Duration)

	// OnLogs is called after each successful log fetch with the current
	// bounded log buffer.
	OnLogs(ctx context.Context, executionID string, logs []ExecutionLogEntry)

	// OnCompleted is called exactly once when the execution reaches a
	// terminal status (completed or failed).
	OnCompleted(ctx context.Context, exec *WorkflowExecution)

	// OnGiveUp is called when transport retries are exhausted and the
	// tracker enters its terminal error state.
	OnGiveUp(ctx context.Context, executionID string, err error)
}

// NoopTrackerObserver is a TrackerObserver that does nothing.
// It is used as the default when no observer is configured.
type NoopTrackerObserver struct{}

func (NoopTrackerObserver) OnPoll(ctx context.Context, executionID string, attempt int) {}
func (NoopTrackerObserver) OnStatus(ctx context.Context, exec *WorkflowExecution)       {}
func (NoopTrackerObserver) OnTransportError(ctx context.Context, executionID string, err error, retries int, nextDelay time.Duration) {
}
func (NoopTrackerObserver) OnLogs(ctx context.Context, executionID string, logs []ExecutionLogEntry) {
}
func (NoopTrackerObserver) OnCompleted(ctx context.Context, exec *WorkflowExecution)      {}
func (NoopTrackerObserver) OnGiveUp(ctx context.Context, executionID string, err error) {}

// CompositeTrackerObserver fans out events to multiple observers.
type CompositeTrackerObserver struct {
	observers []TrackerObserver
}

// NewCompositeTrackerObserver creates a TrackerObserver that forwards events
// to each non-nil observer in obs.
func NewCompositeTrackerObserver(obs ...TrackerObserver) TrackerObserver {
	filtered := make([]TrackerObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopTrackerObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeTrackerObserver{observers: filtered}
}

func (c *CompositeTrackerObserver) OnPoll(ctx context.Context, executionID string, attempt int) {
	for _, o := range c.observers {
		o.OnPoll(ctx, executionID, attempt)
	}
}

func (c *CompositeTrackerObserver) OnStatus(ctx context.Context, exec *WorkflowExecution) {
	for _, o := range c.observers {
		o.OnStatus(ctx, exec)
	}
}

func (c *CompositeTrackerObserver) OnTransportError(ctx context.Context, executionID string, err error, retries int, nextDelay time.Duration) {
	for _, o := range c.observers {
		o.OnTransportError(ctx, executionID, err, retries, nextDelay)
	}
}

func (c *CompositeTrackerObserver) OnLogs(ctx context.Context, executionID string, logs []ExecutionLogEntry) {
	for _, o := range c.observers {
		o.OnLogs(ctx, executionID, logs)
	}
}

func (c *CompositeTrackerObserver) OnCompleted(ctx context.Context, exec *WorkflowExecution) {
	for _, o := range c.observers {
		o.OnCompleted(ctx, exec)
	}
}

func (c *CompositeTrackerObserver) OnGiveUp(ctx context.Context, executionID string, err error) {
	for _, o := range c.observers {
		o.OnGiveUp(ctx, executionID, err)
	}
}

// LoggingTrackerObserver writes structured logs using log/slog.
type LoggingTrackerObserver struct {
	Logger *slog.Logger
}

// NewLoggingTrackerObserver creates a TrackerObserver that logs poll
// lifecycle events using the provided slog.Logger. If logger is nil,
// slog.Default() is used.
func NewLoggingTrackerObserver(logger *slog.Logger) TrackerObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingTrackerObserver{Logger: logger}
}

func (o *LoggingTrackerObserver) OnPoll(ctx context.Context, executionID string, attempt int) {
	o.Logger.DebugContext(ctx, "execution_poll",
		slog.String("execution_id", executionID),
		slog.Int("attempt", attempt),
	)
}

func (o *LoggingTrackerObserver) OnStatus(ctx context.Context, exec *WorkflowExecution) {
	o.Logger.DebugContext(ctx, "execution_status",
		slog.String("execution_id", exec.ID),
		slog.String("status", string(exec.Status)),
	)
}

func (o *LoggingTrackerObserver) OnTransportError(ctx context.Context, executionID string, err error, retries int, nextDelay time.Duration) {
	o.Logger.WarnContext(ctx, "execution_poll_failed",
		slog.String("execution_id", executionID),
		slog.Int("retries", retries),
		slog.Duration("next_delay", nextDelay),
		slog.Any("error", err),
	)
}

func (o *LoggingTrackerObserver) OnLogs(ctx context.Context, executionID string, logs []ExecutionLogEntry) {
	o.Logger.DebugContext(ctx, "execution_logs",
		slog.String("execution_id", executionID),
		slog.Int("entries", len(logs)),
	)
}

func (o *LoggingTrackerObserver) OnCompleted(ctx context.Context, exec *WorkflowExecution) {
	level := slog.LevelInfo
	if exec.Status == StatusFailed {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "execution_finished",
		slog.String("execution_id", exec.ID),
		slog.String("status", string(exec.Status)),
		slog.Duration("duration", exec.Duration),
		slog.String("error_message", exec.ErrorMessage),
	)
}

func (o *LoggingTrackerObserver) OnGiveUp(ctx context.Context, executionID string, err error) {
	o.Logger.ErrorContext(ctx, "execution_tracking_abandoned",
		slog.String("execution_id", executionID),
		slog.Any("error", err),
	)
}

// PollMetrics collects simple counters about tracker activity.
// It implements TrackerObserver, and can be combined with
// LoggingTrackerObserver via NewCompositeTrackerObserver.
type PollMetrics struct {
	NoopTrackerObserver

	polls           atomic.Int64
	transportErrors atomic.Int64
	completed       atomic.Int64
	failed          atomic.Int64
	abandoned       atomic.Int64
}

// PollMetricsSnapshot is an immutable snapshot of PollMetrics.
type PollMetricsSnapshot struct {
	Polls           int64
	TransportErrors int64
	Completed       int64
	Failed          int64
	Abandoned       int64
}

func (m *PollMetrics) OnPoll(ctx context.Context, executionID string, attempt int) {
	m.polls.Add(1)
}

func (m *PollMetrics) OnTransportError(ctx context.Context, executionID string, err error, retries int, nextDelay time.Duration) {
	m.transportErrors.Add(1)
}

func (m *PollMetrics) OnCompleted(ctx context.Context, exec *WorkflowExecution) {
	if exec.Status == StatusFailed {
		m.failed.Add(1)
		return
	}
	m.completed.Add(1)
}

func (m *PollMetrics) OnGiveUp(ctx context.Context, executionID string, err error) {
	m.abandoned.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *PollMetrics) Snapshot() PollMetricsSnapshot {
	return PollMetricsSnapshot{
		Polls:           m.polls.Load(),
		TransportErrors: m.transportErrors.Load(),
		Completed:       m.completed.Load(),
		Failed:          m.failed.Load(),
		Abandoned:       m.abandoned.Load(),
	}
}
