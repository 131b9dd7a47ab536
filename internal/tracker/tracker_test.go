package tracker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/petrijr/flowcanvas/pkg/api"
)

// scriptedGateway serves a fixed sequence of status-fetch results; the last
// result repeats once the script is exhausted. Only the execution-related
// calls are implemented.
type scriptedGateway struct {
	mu      sync.Mutex
	script  []fetchResult
	fetches int

	logs       []api.ExecutionLogEntry
	logErr     error
	logFetches int

	// blockFetch, if non-nil, is closed by the test to release an
	// in-flight GetExecution; fetchStarted is signalled when the fetch
	// begins.
	blockFetch   chan struct{}
	fetchStarted chan struct{}
}

type fetchResult struct {
	exec api.WorkflowExecution
	err  error
}

func statusOK(status api.Status) fetchResult {
	exec := api.WorkflowExecution{ID: "ex-1", WorkflowID: "wf-1", Status: status, StartedAt: time.Now()}
	if status.IsTerminal() {
		now := time.Now()
		exec.CompletedAt = &now
		exec.Duration = 42 * time.Millisecond
	}
	if status == api.StatusFailed {
		exec.ErrorMessage = "step exploded"
	}
	return fetchResult{exec: exec}
}

func statusErr(msg string) fetchResult {
	return fetchResult{err: errors.New(msg)}
}

func (g *scriptedGateway) GetExecution(ctx context.Context, id string) (api.WorkflowExecution, error) {
	g.mu.Lock()
	idx := g.fetches
	g.fetches++
	if idx >= len(g.script) {
		idx = len(g.script) - 1
	}
	res := g.script[idx]
	started := g.fetchStarted
	block := g.blockFetch
	g.mu.Unlock()

	if started != nil {
		select {
		case started <- struct{}{}:
		default:
		}
	}
	if block != nil {
		<-block
	}
	return res.exec, res.err
}

func (g *scriptedGateway) GetExecutionLogs(ctx context.Context, id string) ([]api.ExecutionLogEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.logFetches++
	if g.logErr != nil {
		return nil, g.logErr
	}
	return g.logs, nil
}

func (g *scriptedGateway) fetchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fetches
}

func (g *scriptedGateway) logFetchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.logFetches
}

func (g *scriptedGateway) setScript(script ...fetchResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.script = script
	g.fetches = 0
}

func (g *scriptedGateway) CreateWorkflow(ctx context.Context, def api.WorkflowDefinition) (api.WorkflowDefinition, error) {
	panic("not used")
}

func (g *scriptedGateway) UpdateWorkflow(ctx context.Context, id string, def api.WorkflowDefinition) (api.WorkflowDefinition, error) {
	panic("not used")
}

func (g *scriptedGateway) GetWorkflow(ctx context.Context, id string) (api.WorkflowDefinition, error) {
	panic("not used")
}

func (g *scriptedGateway) ExecuteWorkflow(ctx context.Context, workflowID string, inputData map[string]any) (api.WorkflowExecution, error) {
	panic("not used")
}

func fastConfig() Config {
	return Config{
		BaseInterval: time.Millisecond,
		MaxInterval:  10 * time.Millisecond,
	}
}

// The canonical happy path: pending, then running, then completed. The
// tracker must perform exactly three status fetches (including the initial
// one) and invoke the completion callback exactly once.
func TestTracker_PendingRunningCompleted(t *testing.T) {
	gw := &scriptedGateway{
		logs: []api.ExecutionLogEntry{{ID: "log-1", StepName: "Start", Timestamp: time.Now()}},
	}
	gw.setScript(statusOK(api.StatusPending), statusOK(api.StatusRunning), statusOK(api.StatusCompleted))

	var callbacks atomic.Int64
	var final *api.WorkflowExecution
	cfg := fastConfig()
	cfg.OnComplete = func(exec *api.WorkflowExecution) {
		callbacks.Add(1)
		final = exec
	}

	tr := New(gw, "ex-1", cfg)
	tr.Start(context.Background())

	exec, err := tr.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if exec.Status != api.StatusCompleted {
		t.Fatalf("expected completed, got %s", exec.Status)
	}
	if exec.Duration == 0 {
		t.Fatalf("expected duration on completed execution")
	}
	if got := callbacks.Load(); got != 1 {
		t.Fatalf("completion callback invoked %d times, want 1", got)
	}
	if final == nil || final.Status != api.StatusCompleted {
		t.Fatalf("callback received %+v, want completed execution", final)
	}
	if got := gw.fetchCount(); got != 3 {
		t.Fatalf("performed %d status fetches, want exactly 3", got)
	}
	if tr.State() != StateTerminal {
		t.Fatalf("expected terminal state, got %s", tr.State())
	}
}

// No poll may occur after the tick that detected the terminal status.
func TestTracker_StopsPollingAfterTerminal(t *testing.T) {
	gw := &scriptedGateway{}
	gw.setScript(statusOK(api.StatusCompleted))

	tr := New(gw, "ex-1", fastConfig())
	tr.Start(context.Background())

	if _, err := tr.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	fetches := gw.fetchCount()

	time.Sleep(20 * time.Millisecond)
	if got := gw.fetchCount(); got != fetches {
		t.Fatalf("tracker kept polling after terminal: %d -> %d fetches", fetches, got)
	}
}

// A failed execution is a successful fetch reporting a business failure:
// it terminates polling normally and is not a transport error.
func TestTracker_RemoteFailureIsTerminal(t *testing.T) {
	gw := &scriptedGateway{}
	gw.setScript(statusOK(api.StatusRunning), statusOK(api.StatusFailed))

	var callbacks atomic.Int64
	cfg := fastConfig()
	cfg.OnComplete = func(exec *api.WorkflowExecution) { callbacks.Add(1) }

	tr := New(gw, "ex-1", cfg)
	tr.Start(context.Background())

	exec, err := tr.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait returned transport error for business failure: %v", err)
	}
	if exec.Status != api.StatusFailed {
		t.Fatalf("expected failed, got %s", exec.Status)
	}
	if exec.ErrorMessage == "" {
		t.Fatalf("expected error message on failed execution")
	}
	if callbacks.Load() != 1 {
		t.Fatalf("completion callback invoked %d times, want 1", callbacks.Load())
	}
}

// Transport failures are retried with backoff and escalate to a terminal
// error state once the budget is exhausted.
func TestTracker_GivesUpAfterMaxRetries(t *testing.T) {
	gw := &scriptedGateway{}
	gw.setScript(statusErr("connection refused"))

	var giveUps atomic.Int64
	cfg := fastConfig()
	cfg.MaxRetries = 3
	cfg.OnGiveUp = func(err error) { giveUps.Add(1) }

	tr := New(gw, "ex-1", cfg)
	tr.Start(context.Background())

	_, err := tr.Wait(context.Background())
	if err == nil {
		t.Fatalf("expected Wait to surface the transport error")
	}
	if tr.State() != StateGivenUp {
		t.Fatalf("expected given_up state, got %s", tr.State())
	}
	if got := gw.fetchCount(); got != 3 {
		t.Fatalf("performed %d fetches with MaxRetries=3, want 3", got)
	}
	if giveUps.Load() != 1 {
		t.Fatalf("OnGiveUp invoked %d times, want 1", giveUps.Load())
	}
}

// A transient failure resets to zero retries on the next success instead of
// accumulating toward the budget.
func TestTracker_RetryCounterResetsOnSuccess(t *testing.T) {
	gw := &scriptedGateway{}
	gw.setScript(
		statusErr("blip"),
		statusErr("blip"),
		statusOK(api.StatusPending),
		statusOK(api.StatusCompleted),
	)

	cfg := fastConfig()
	cfg.MaxRetries = 3

	tr := New(gw, "ex-1", cfg)
	tr.Start(context.Background())

	exec, err := tr.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if exec.Status != api.StatusCompleted {
		t.Fatalf("expected completed, got %s", exec.Status)
	}
	if got := tr.Retries(); got != 0 {
		t.Fatalf("retry counter = %d after success, want 0", got)
	}
	if got := gw.fetchCount(); got != 4 {
		t.Fatalf("performed %d fetches, want 4", got)
	}
}

// Reset resumes polling after the tracker gave up.
func TestTracker_ResetResumesAfterGiveUp(t *testing.T) {
	gw := &scriptedGateway{}
	gw.setScript(statusErr("down"))

	cfg := fastConfig()
	cfg.MaxRetries = 2

	tr := New(gw, "ex-1", cfg)
	tr.Start(context.Background())

	if _, err := tr.Wait(context.Background()); err == nil {
		t.Fatalf("expected give-up error")
	}

	gw.setScript(statusOK(api.StatusCompleted))
	tr.Reset()

	exec, err := tr.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait after Reset failed: %v", err)
	}
	if exec.Status != api.StatusCompleted {
		t.Fatalf("expected completed after reset, got %s", exec.Status)
	}
	if got := tr.Retries(); got != 0 {
		t.Fatalf("retry counter = %d after reset, want 0", got)
	}
}

// A response that lands after Stop must be discarded, not applied.
func TestTracker_StopDiscardsInFlightResponse(t *testing.T) {
	gw := &scriptedGateway{
		blockFetch:   make(chan struct{}),
		fetchStarted: make(chan struct{}, 1),
	}
	gw.setScript(statusOK(api.StatusCompleted))

	var callbacks atomic.Int64
	cfg := fastConfig()
	cfg.OnComplete = func(exec *api.WorkflowExecution) { callbacks.Add(1) }

	tr := New(gw, "ex-1", cfg)
	tr.Start(context.Background())

	<-gw.fetchStarted
	tr.Stop()
	close(gw.blockFetch)

	if _, err := tr.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if exec := tr.Execution(); exec != nil {
		t.Fatalf("stale response applied after Stop: %+v", exec)
	}
	if callbacks.Load() != 0 {
		t.Fatalf("completion callback fired after Stop")
	}
	if tr.State() != StateStopped {
		t.Fatalf("expected stopped state, got %s", tr.State())
	}
}

func TestTracker_StopIsIdempotent(t *testing.T) {
	gw := &scriptedGateway{}
	gw.setScript(statusOK(api.StatusPending))

	tr := New(gw, "ex-1", fastConfig())
	tr.Start(context.Background())

	tr.Stop()
	tr.Stop()

	if tr.State() != StateStopped {
		t.Fatalf("expected stopped state, got %s", tr.State())
	}
}

// Logs are fetched only while the execution is running or completed, never
// for pending polls.
func TestTracker_LogFetchOnlyWhenProducing(t *testing.T) {
	gw := &scriptedGateway{
		logs: []api.ExecutionLogEntry{
			{ID: "log-1", StepName: "Start", Timestamp: time.Now()},
			{ID: "log-2", StepName: "End", Timestamp: time.Now()},
		},
	}
	gw.setScript(statusOK(api.StatusPending), statusOK(api.StatusPending), statusOK(api.StatusCompleted))

	tr := New(gw, "ex-1", fastConfig())
	tr.Start(context.Background())

	if _, err := tr.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if got := gw.logFetchCount(); got != 1 {
		t.Fatalf("performed %d log fetches, want 1 (completed only)", got)
	}
	if got := len(tr.Logs()); got != 2 {
		t.Fatalf("log buffer holds %d entries, want 2", got)
	}
}

// Log-fetch failures are swallowed and never disturb the state machine.
func TestTracker_LogFetchFailureIsNonFatal(t *testing.T) {
	gw := &scriptedGateway{logErr: errors.New("log endpoint down")}
	gw.setScript(statusOK(api.StatusRunning), statusOK(api.StatusCompleted))

	tr := New(gw, "ex-1", fastConfig())
	tr.Start(context.Background())

	exec, err := tr.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if exec.Status != api.StatusCompleted {
		t.Fatalf("expected completed despite log failures, got %s", exec.Status)
	}
	if got := len(tr.Logs()); got != 0 {
		t.Fatalf("expected empty log buffer, got %d entries", got)
	}
	if got := tr.Retries(); got != 0 {
		t.Fatalf("log failures leaked into retry counter: %d", got)
	}
}

// The log buffer is bounded to the configured limit, keeping the most
// recent entries.
func TestTracker_LogBufferBounded(t *testing.T) {
	var logs []api.ExecutionLogEntry
	for i := 0; i < 10; i++ {
		logs = append(logs, api.ExecutionLogEntry{
			ID:        string(rune('a' + i)),
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
		})
	}
	gw := &scriptedGateway{logs: logs}
	gw.setScript(statusOK(api.StatusCompleted))

	cfg := fastConfig()
	cfg.LogLimit = 4

	tr := New(gw, "ex-1", cfg)
	tr.Start(context.Background())

	if _, err := tr.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	buffered := tr.Logs()
	if len(buffered) != 4 {
		t.Fatalf("log buffer holds %d entries, want 4", len(buffered))
	}
	if buffered[0].ID != logs[6].ID {
		t.Fatalf("expected most recent entries kept, first is %q", buffered[0].ID)
	}
}

// An observer sees the poll lifecycle.
func TestTracker_ObserverMetrics(t *testing.T) {
	gw := &scriptedGateway{}
	gw.setScript(statusErr("blip"), statusOK(api.StatusPending), statusOK(api.StatusCompleted))

	metrics := &api.PollMetrics{}
	cfg := fastConfig()
	cfg.Observer = metrics

	tr := New(gw, "ex-1", cfg)
	tr.Start(context.Background())

	if _, err := tr.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	snap := metrics.Snapshot()
	if snap.Polls != 3 {
		t.Fatalf("observer saw %d polls, want 3", snap.Polls)
	}
	if snap.TransportErrors != 1 {
		t.Fatalf("observer saw %d transport errors, want 1", snap.TransportErrors)
	}
	if snap.Completed != 1 {
		t.Fatalf("observer saw %d completions, want 1", snap.Completed)
	}
}

func TestTracker_StartTwiceIsNoop(t *testing.T) {
	gw := &scriptedGateway{}
	gw.setScript(statusOK(api.StatusCompleted))

	tr := New(gw, "ex-1", fastConfig())
	tr.Start(context.Background())
	tr.Start(context.Background())

	if _, err := tr.Wait(context.Background()); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	if got := gw.fetchCount(); got != 1 {
		t.Fatalf("double Start produced %d fetches, want 1", got)
	}
}
