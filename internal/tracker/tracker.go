// Package tracker polls a gateway for the status of one workflow execution
// until it reaches a terminal state, applying bounded exponential backoff on
// transport failure.
package tracker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/petrijr/flowcanvas/pkg/api"
)

// State is the tracker's position in its polling state machine.
type State string

const (
	// StateIdle means the tracker is waiting for its next scheduled poll.
	StateIdle State = "idle"

	// StateFetching means a status fetch is in flight. At most one fetch
	// is outstanding per tracker at any time.
	StateFetching State = "fetching"

	// StateTerminal means the execution reached completed or failed and
	// polling has stopped for good.
	StateTerminal State = "terminal"

	// StateGivenUp means transport retries were exhausted. Polling has
	// stopped but may be resumed with Reset.
	StateGivenUp State = "given_up"

	// StateStopped means Stop was called by the consumer.
	StateStopped State = "stopped"
)

// Defaults for Config fields left at their zero value.
const (
	DefaultBaseInterval = 2000 * time.Millisecond
	DefaultMaxInterval  = 30000 * time.Millisecond
	DefaultMaxRetries   = 5
	DefaultLogLimit     = 500
)

// Config describes how to construct a Tracker. The zero value is usable;
// unset fields take the defaults above.
type Config struct {
	BaseInterval time.Duration
	MaxInterval  time.Duration

	// MaxRetries is the number of consecutive transport failures tolerated
	// before the tracker gives up.
	MaxRetries int

	// LogLimit bounds the in-memory log buffer; only the most recent
	// entries are kept.
	LogLimit int

	Observer api.TrackerObserver

	// Logger receives swallowed log-fetch failures. If nil, they are
	// discarded.
	Logger *slog.Logger

	// OnComplete, if set, is invoked exactly once with the final execution
	// when a terminal status is observed.
	OnComplete func(*api.WorkflowExecution)

	// OnGiveUp, if set, is invoked each time transport retries are
	// exhausted (so once more after every Reset that fails again).
	OnGiveUp func(error)
}

func (c Config) withDefaults() Config {
	if c.BaseInterval <= 0 {
		c.BaseInterval = DefaultBaseInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = DefaultMaxInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.LogLimit <= 0 {
		c.LogLimit = DefaultLogLimit
	}
	if c.Observer == nil {
		c.Observer = api.NoopTrackerObserver{}
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// Tracker is bound to exactly one execution id. The polling loop runs in a
// single goroutine, so the next fetch is only ever scheduled after the
// previous one resolves and there is never more than one pending timer.
type Tracker struct {
	gateway api.Gateway
	execID  string
	cfg     Config

	mu       sync.Mutex
	state    State
	exec     *api.WorkflowExecution
	logs     []api.ExecutionLogEntry
	retries  int
	attempts int
	lastErr  error
	started  bool
	stopped  bool
	done     chan struct{}

	ctx      context.Context
	stopOnce sync.Once
	stopCh   chan struct{}
	complete sync.Once
}

// New creates a tracker for the given execution id. Call Start to begin
// polling.
func New(gw api.Gateway, executionID string, cfg Config) *Tracker {
	return &Tracker{
		gateway: gw,
		execID:  executionID,
		cfg:     cfg.withDefaults(),
		state:   StateIdle,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins polling immediately. It is a no-op if called more than once.
// The context bounds every fetch issued by the tracker; cancelling it counts
// as transport failure on the in-flight fetch.
func (t *Tracker) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started || t.stopped {
		return
	}
	t.started = true
	t.ctx = ctx
	go t.loop(ctx, t.done)
}

// Stop cancels tracking. It is idempotent and safe to call from any
// goroutine. Any pending scheduled poll is cancelled; a response from an
// already-in-flight fetch is discarded rather than applied.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		t.stopped = true
		t.state = StateStopped
		t.mu.Unlock()
		close(t.stopCh)
	})
}

// Reset resumes polling after the tracker has given up on transport errors.
// The retry counter starts again from zero. It is a no-op in any other
// state.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateGivenUp || t.stopped {
		return
	}
	t.state = StateIdle
	t.retries = 0
	t.lastErr = nil
	t.done = make(chan struct{})
	go t.loop(t.ctx, t.done)
}

// Wait blocks until polling stops for any reason (terminal status, retries
// exhausted, Stop, or context cancellation) and returns the last known
// execution. The error is non-nil when the tracker gave up on transport
// failures.
func (t *Tracker) Wait(ctx context.Context) (*api.WorkflowExecution, error) {
	t.mu.Lock()
	done := t.done
	t.mu.Unlock()

	select {
	case <-ctx.Done():
		return t.Execution(), ctx.Err()
	case <-done:
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateGivenUp {
		return t.exec, fmt.Errorf("tracking execution %s: %w", t.execID, t.lastErr)
	}
	return t.exec, nil
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Execution returns the most recently fetched execution, or nil before the
// first successful fetch.
func (t *Tracker) Execution() *api.WorkflowExecution {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exec
}

// Logs returns a copy of the bounded log buffer.
func (t *Tracker) Logs() []api.ExecutionLogEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]api.ExecutionLogEntry, len(t.logs))
	copy(out, t.logs)
	return out
}

// Retries returns the current consecutive transport-failure count.
func (t *Tracker) Retries() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.retries
}

// Err returns the transport error that exhausted the retry budget, if any.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

func (t *Tracker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if !t.enterFetching() {
			return
		}

		t.mu.Lock()
		t.attempts++
		attempt := t.attempts
		t.mu.Unlock()
		t.cfg.Observer.OnPoll(ctx, t.execID, attempt)

		exec, err := t.gateway.GetExecution(ctx, t.execID)

		var delay time.Duration
		if err != nil {
			terminal, d := t.applyFailure(ctx, err)
			if terminal {
				return
			}
			delay = d
		} else {
			terminal, d := t.applySuccess(ctx, &exec)
			if terminal {
				return
			}
			delay = d
		}

		if !t.sleep(ctx, delay) {
			return
		}
	}
}

// enterFetching transitions Idle -> Fetching unless tracking has stopped.
func (t *Tracker) enterFetching() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.state = StateFetching
	return true
}

// applySuccess records a fetched execution. A response that lands after
// Stop is discarded. Returns whether polling is over and, if not, the
// delay before the next poll.
func (t *Tracker) applySuccess(ctx context.Context, exec *api.WorkflowExecution) (terminal bool, delay time.Duration) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return true, 0
	}
	t.retries = 0
	t.exec = exec
	isTerminal := exec.Status.IsTerminal()
	if isTerminal {
		t.state = StateTerminal
	} else {
		t.state = StateIdle
	}
	t.mu.Unlock()

	t.cfg.Observer.OnStatus(ctx, exec)

	// Best-effort log fetch while the execution is producing or has
	// produced output. Failures must not affect the state machine.
	if exec.Status == api.StatusRunning || exec.Status == api.StatusCompleted {
		t.fetchLogs(ctx)
	}

	if isTerminal {
		t.complete.Do(func() {
			t.cfg.Observer.OnCompleted(ctx, exec)
			if t.cfg.OnComplete != nil {
				t.cfg.OnComplete(exec)
			}
		})
		return true, 0
	}
	return false, Interval(t.cfg.BaseInterval, t.cfg.MaxInterval, 0)
}

// applyFailure records a transport failure, giving up once the retry budget
// is exhausted.
func (t *Tracker) applyFailure(ctx context.Context, err error) (terminal bool, delay time.Duration) {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return true, 0
	}
	t.retries++
	retries := t.retries
	exhausted := retries >= t.cfg.MaxRetries
	if exhausted {
		t.state = StateGivenUp
		t.lastErr = err
	} else {
		t.state = StateIdle
	}
	t.mu.Unlock()

	if exhausted {
		t.cfg.Observer.OnTransportError(ctx, t.execID, err, retries, 0)
		t.cfg.Observer.OnGiveUp(ctx, t.execID, err)
		if t.cfg.OnGiveUp != nil {
			t.cfg.OnGiveUp(err)
		}
		return true, 0
	}

	delay = Interval(t.cfg.BaseInterval, t.cfg.MaxInterval, retries)
	t.cfg.Observer.OnTransportError(ctx, t.execID, err, retries, delay)
	return false, delay
}

func (t *Tracker) fetchLogs(ctx context.Context) {
	logs, err := t.gateway.GetExecutionLogs(ctx, t.execID)
	if err != nil {
		t.cfg.Logger.DebugContext(ctx, "execution_log_fetch_failed",
			slog.String("execution_id", t.execID),
			slog.Any("error", err),
		)
		return
	}
	if len(logs) > t.cfg.LogLimit {
		logs = logs[len(logs)-t.cfg.LogLimit:]
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.logs = logs
	t.mu.Unlock()

	t.cfg.Observer.OnLogs(ctx, t.execID, logs)
}

// sleep waits for the next scheduled poll. Returns false if tracking was
// stopped or the context cancelled while waiting; the pending timer is
// always released before returning.
func (t *Tracker) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-t.stopCh:
		return false
	case <-ctx.Done():
		t.mu.Lock()
		if !t.stopped {
			t.state = StateStopped
			t.stopped = true
		}
		t.mu.Unlock()
		return false
	}
}
