package persistence

import (
	"sort"
	"sync"

	"github.com/petrijr/flowcanvas/pkg/api"
)

// MemoryStore is a simple, goroutine-safe implementation of WorkflowStore
// and ExecutionStore backed by maps. It is non-durable and intended for
// tests and development.
type MemoryStore struct {
	mu         sync.RWMutex
	workflows  map[string]api.WorkflowDefinition
	executions map[string]*api.WorkflowExecution
	logs       map[string][]api.ExecutionLogEntry
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows:  make(map[string]api.WorkflowDefinition),
		executions: make(map[string]*api.WorkflowExecution),
		logs:       make(map[string][]api.ExecutionLogEntry),
	}
}

// Ensure MemoryStore implements the interfaces.
var _ WorkflowStore = (*MemoryStore)(nil)

var _ ExecutionStore = (*MemoryStore)(nil)

func (s *MemoryStore) SaveWorkflow(def api.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workflows[def.ID] = def
	return nil
}

func (s *MemoryStore) UpdateWorkflow(def api.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[def.ID]; !ok {
		return api.ErrWorkflowNotFound
	}
	s.workflows[def.ID] = def
	return nil
}

func (s *MemoryStore) GetWorkflow(id string) (api.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	def, ok := s.workflows[id]
	if !ok {
		return api.WorkflowDefinition{}, api.ErrWorkflowNotFound
	}
	return def, nil
}

func (s *MemoryStore) ListWorkflows() ([]api.WorkflowDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]api.WorkflowDefinition, 0, len(s.workflows))
	for _, def := range s.workflows {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SaveExecution(exec *api.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *exec
	s.executions[exec.ID] = &copied
	return nil
}

func (s *MemoryStore) UpdateExecution(exec *api.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.executions[exec.ID]; !ok {
		return api.ErrExecutionNotFound
	}
	copied := *exec
	s.executions[exec.ID] = &copied
	return nil
}

func (s *MemoryStore) GetExecution(id string) (*api.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.executions[id]
	if !ok {
		return nil, api.ErrExecutionNotFound
	}
	copied := *exec
	return &copied, nil
}

func (s *MemoryStore) AppendLog(executionID string, entry api.ExecutionLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs[executionID] = append(s.logs[executionID], entry)
	return nil
}

func (s *MemoryStore) GetLogs(executionID string) ([]api.ExecutionLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.logs[executionID]
	out := make([]api.ExecutionLogEntry, len(entries))
	copy(out, entries)
	return out, nil
}
