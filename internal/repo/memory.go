package repo

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/Hookflow/internal/domain"
)

// MemoryWorkflowRepo — in-memory хранилище workflow.
// Используется в тестах и в режиме без БД.
type MemoryWorkflowRepo struct {
	mu        sync.RWMutex
	workflows map[uuid.UUID]*domain.Workflow
	byName    map[string]uuid.UUID
}

// NewMemoryWorkflowRepo создаёт пустое in-memory хранилище workflow.
func NewMemoryWorkflowRepo() *MemoryWorkflowRepo {
	return &MemoryWorkflowRepo{
		workflows: make(map[uuid.UUID]*domain.Workflow),
		byName:    make(map[string]uuid.UUID),
	}
}

func (r *MemoryWorkflowRepo) Create(ctx context.Context, wf *domain.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[wf.Name]; exists {
		return fmt.Errorf("%w: workflow %q", ErrAlreadyExists, wf.Name)
	}
	clone := *wf
	r.workflows[wf.ID] = &clone
	r.byName[wf.Name] = wf.ID
	return nil
}

func (r *MemoryWorkflowRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, ok := r.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *wf
	return &clone, nil
}

func (r *MemoryWorkflowRepo) GetByName(ctx context.Context, name string) (*domain.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[name]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *r.workflows[id]
	return &clone, nil
}

func (r *MemoryWorkflowRepo) List(ctx context.Context) ([]domain.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workflows := make([]domain.Workflow, 0, len(r.workflows))
	for _, wf := range r.workflows {
		workflows = append(workflows, *wf)
	}
	return workflows, nil
}

func (r *MemoryWorkflowRepo) Update(ctx context.Context, wf *domain.Workflow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.workflows[wf.ID]; !ok {
		return ErrNotFound
	}
	clone := *wf
	r.workflows[wf.ID] = &clone
	return nil
}

func (r *MemoryWorkflowRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	wf, ok := r.workflows[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byName, wf.Name)
	delete(r.workflows, id)
	return nil
}

// MemoryExecutionRepo — in-memory хранилище executions.
// Реализует порт Recorder движка.
type MemoryExecutionRepo struct {
	mu         sync.RWMutex
	executions map[uuid.UUID]*domain.Execution
	order      []uuid.UUID
}

// NewMemoryExecutionRepo создаёт пустое in-memory хранилище executions.
func NewMemoryExecutionRepo() *MemoryExecutionRepo {
	return &MemoryExecutionRepo{
		executions: make(map[uuid.UUID]*domain.Execution),
	}
}

func (r *MemoryExecutionRepo) CreateExecution(ctx context.Context, ex *domain.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *ex
	r.executions[ex.ID] = &clone
	r.order = append(r.order, ex.ID)
	return nil
}

func (r *MemoryExecutionRepo) UpdateExecution(ctx context.Context, ex *domain.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.executions[ex.ID]; !ok {
		return ErrNotFound
	}
	clone := *ex
	r.executions[ex.ID] = &clone
	return nil
}

func (r *MemoryExecutionRepo) GetExecution(ctx context.Context, id string) (*domain.Execution, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: bad execution id %q", ErrNotFound, id)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ex, ok := r.executions[uid]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *ex
	return &clone, nil
}

func (r *MemoryExecutionRepo) ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = 50
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var executions []domain.Execution
	for i := len(r.order) - 1; i >= 0 && len(executions) < limit; i-- {
		ex := r.executions[r.order[i]]
		if ex.WorkflowID == workflowID {
			executions = append(executions, *ex)
		}
	}
	return executions, nil
}
