package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shaiso/Hookflow/internal/domain"
	"github.com/shaiso/Hookflow/internal/engine"
)

// WorkflowStore — хранилище workflow-определений.
// Реализации: repo.WorkflowRepo (Postgres), repo.MemoryWorkflowRepo.
type WorkflowStore interface {
	Create(ctx context.Context, wf *domain.Workflow) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
	GetByName(ctx context.Context, name string) (*domain.Workflow, error)
	List(ctx context.Context) ([]domain.Workflow, error)
	Update(ctx context.Context, wf *domain.Workflow) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// ExecutionStore — чтение execution-записей.
// Реализации: repo.ExecutionRepo, repo.MemoryExecutionRepo.
type ExecutionStore interface {
	GetExecution(ctx context.Context, id string) (*domain.Execution, error)
	ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit int) ([]domain.Execution, error)
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	workflows  WorkflowStore
	executions ExecutionStore
	engine     *engine.Engine
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Workflows  WorkflowStore
	Executions ExecutionStore
	Engine     *engine.Engine
	Logger     *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		workflows:  cfg.Workflows,
		executions: cfg.Executions,
		engine:     cfg.Engine,
		logger:     cfg.Logger,
	}
}
