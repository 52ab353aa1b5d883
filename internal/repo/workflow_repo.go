package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Hookflow/internal/domain"
)

// WorkflowRepo — репозиторий workflow-определений.
//
// Граф хранится в JSONB-колонке: схема узлов произвольная,
// реляционная декомпозиция ничего не даёт.
type WorkflowRepo struct {
	pool *pgxpool.Pool
}

// NewWorkflowRepo создаёт новый WorkflowRepo.
func NewWorkflowRepo(pool *pgxpool.Pool) *WorkflowRepo {
	return &WorkflowRepo{pool: pool}
}

// Create создаёт новый workflow. Имя уникально: оно же имя хука.
func (r *WorkflowRepo) Create(ctx context.Context, wf *domain.Workflow) error {
	graph, err := json.Marshal(wf.Graph)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}

	query := `
		INSERT INTO workflows (id, name, graph, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.pool.Exec(ctx, query,
		wf.ID,
		wf.Name,
		graph,
		wf.IsActive,
		wf.CreatedAt,
		wf.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: workflow %q", ErrAlreadyExists, wf.Name)
		}
		return fmt.Errorf("insert workflow: %w", err)
	}
	return nil
}

// GetByID возвращает workflow по ID.
func (r *WorkflowRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error) {
	query := `
		SELECT id, name, graph, is_active, created_at, updated_at
		FROM workflows
		WHERE id = $1
	`
	return r.scanWorkflow(r.pool.QueryRow(ctx, query, id))
}

// GetByName возвращает workflow по имени хука.
func (r *WorkflowRepo) GetByName(ctx context.Context, name string) (*domain.Workflow, error) {
	query := `
		SELECT id, name, graph, is_active, created_at, updated_at
		FROM workflows
		WHERE name = $1
	`
	return r.scanWorkflow(r.pool.QueryRow(ctx, query, name))
}

// List возвращает все workflow, новые первыми.
func (r *WorkflowRepo) List(ctx context.Context) ([]domain.Workflow, error) {
	query := `
		SELECT id, name, graph, is_active, created_at, updated_at
		FROM workflows
		ORDER BY created_at DESC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var workflows []domain.Workflow
	for rows.Next() {
		wf, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, *wf)
	}
	return workflows, rows.Err()
}

// Update обновляет граф и флаг активности workflow.
func (r *WorkflowRepo) Update(ctx context.Context, wf *domain.Workflow) error {
	graph, err := json.Marshal(wf.Graph)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}

	query := `
		UPDATE workflows
		SET graph = $2, is_active = $3, updated_at = $4
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query, wf.ID, graph, wf.IsActive, wf.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет workflow.
func (r *WorkflowRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanWorkflow читает workflow из строки результата.
func (r *WorkflowRepo) scanWorkflow(row pgx.Row) (*domain.Workflow, error) {
	var wf domain.Workflow
	var graph []byte

	err := row.Scan(
		&wf.ID,
		&wf.Name,
		&graph,
		&wf.IsActive,
		&wf.CreatedAt,
		&wf.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan workflow: %w", err)
	}

	if err := json.Unmarshal(graph, &wf.Graph); err != nil {
		return nil, fmt.Errorf("unmarshal graph: %w", err)
	}
	return &wf, nil
}

// isUniqueViolation определяет конфликт уникальности по коду Postgres.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "23505")
}
