package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/Hookflow/internal/domain"
)

// ExecutionRepo — репозиторий execution-записей.
// Реализует порт Recorder движка.
//
// result_data пишется целиком при каждом обновлении: чтение-изменение-
// запись не защищено от конкурентных апдейтов, возможна потеря
// обновления. Записи аудиторные, движок пишет их best-effort.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

// CreateExecution создаёт запись execution.
func (r *ExecutionRepo) CreateExecution(ctx context.Context, ex *domain.Execution) error {
	trigger, err := json.Marshal(ex.TriggerData)
	if err != nil {
		return fmt.Errorf("marshal trigger data: %w", err)
	}

	query := `
		INSERT INTO executions (id, workflow_id, status, trigger_data, started_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = r.pool.Exec(ctx, query,
		ex.ID,
		ex.WorkflowID,
		string(ex.Status),
		trigger,
		ex.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// UpdateExecution записывает текущее состояние execution.
func (r *ExecutionRepo) UpdateExecution(ctx context.Context, ex *domain.Execution) error {
	resultData, err := json.Marshal(ex.ResultData)
	if err != nil {
		return fmt.Errorf("marshal result data: %w", err)
	}

	query := `
		UPDATE executions
		SET status = $2,
		    executed_nodes = $3,
		    current_node_id = $4,
		    error_details = $5,
		    result_data = $6,
		    finished_at = $7
		WHERE id = $1
	`
	tag, err := r.pool.Exec(ctx, query,
		ex.ID,
		string(ex.Status),
		ex.ExecutedNodes,
		ex.CurrentNodeID,
		ex.ErrorDetails,
		resultData,
		ex.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetExecution возвращает execution по ID.
func (r *ExecutionRepo) GetExecution(ctx context.Context, id string) (*domain.Execution, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: bad execution id %q", ErrNotFound, id)
	}

	query := `
		SELECT id, workflow_id, status, trigger_data, executed_nodes,
		       current_node_id, error_details, result_data, started_at, finished_at
		FROM executions
		WHERE id = $1
	`
	return r.scanExecution(r.pool.QueryRow(ctx, query, uid))
}

// ListByWorkflow возвращает executions одного workflow, новые первыми.
func (r *ExecutionRepo) ListByWorkflow(ctx context.Context, workflowID uuid.UUID, limit int) ([]domain.Execution, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, workflow_id, status, trigger_data, executed_nodes,
		       current_node_id, error_details, result_data, started_at, finished_at
		FROM executions
		WHERE workflow_id = $1
		ORDER BY started_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, workflowID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var executions []domain.Execution
	for rows.Next() {
		ex, err := r.scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *ex)
	}
	return executions, rows.Err()
}

// scanExecution читает execution из строки результата.
func (r *ExecutionRepo) scanExecution(row pgx.Row) (*domain.Execution, error) {
	var ex domain.Execution
	var status string
	var trigger, resultData []byte

	err := row.Scan(
		&ex.ID,
		&ex.WorkflowID,
		&status,
		&trigger,
		&ex.ExecutedNodes,
		&ex.CurrentNodeID,
		&ex.ErrorDetails,
		&resultData,
		&ex.StartedAt,
		&ex.FinishedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	ex.Status = domain.ExecutionStatus(status)
	if len(trigger) > 0 {
		if err := json.Unmarshal(trigger, &ex.TriggerData); err != nil {
			return nil, fmt.Errorf("unmarshal trigger data: %w", err)
		}
	}
	if len(resultData) > 0 {
		if err := json.Unmarshal(resultData, &ex.ResultData); err != nil {
			return nil, fmt.Errorf("unmarshal result data: %w", err)
		}
	}
	return &ex, nil
}
