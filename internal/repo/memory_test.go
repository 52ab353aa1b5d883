package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Hookflow/internal/domain"
)

func TestMemoryWorkflowRepo_CRUD(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryWorkflowRepo()

	wf := &domain.Workflow{ID: uuid.New(), Name: "hook-a", IsActive: true}
	if err := r.Create(ctx, wf); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Дубликат имени
	dup := &domain.Workflow{ID: uuid.New(), Name: "hook-a"}
	if err := r.Create(ctx, dup); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}

	got, err := r.GetByID(ctx, wf.ID)
	if err != nil || got.Name != "hook-a" {
		t.Fatalf("GetByID: %v, %v", got, err)
	}

	got, err = r.GetByName(ctx, "hook-a")
	if err != nil || got.ID != wf.ID {
		t.Fatalf("GetByName: %v, %v", got, err)
	}

	// Возвращается копия: мутация не затрагивает хранилище
	got.Name = "mutated"
	if again, _ := r.GetByID(ctx, wf.ID); again.Name != "hook-a" {
		t.Error("repo must return clones")
	}

	wf.IsActive = false
	if err := r.Update(ctx, wf); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got, _ := r.GetByID(ctx, wf.ID); got.IsActive {
		t.Error("update should persist")
	}

	list, err := r.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("List: %v, %v", list, err)
	}

	if err := r.Delete(ctx, wf.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := r.GetByID(ctx, wf.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	// Имя освобождается после удаления
	if err := r.Create(ctx, &domain.Workflow{ID: uuid.New(), Name: "hook-a"}); err != nil {
		t.Errorf("name should be reusable after delete: %v", err)
	}
}

func TestMemoryWorkflowRepo_NotFound(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryWorkflowRepo()

	if _, err := r.GetByName(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := r.Update(ctx, &domain.Workflow{ID: uuid.New()}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := r.Delete(ctx, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryExecutionRepo(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryExecutionRepo()

	wfID := uuid.New()
	ex := domain.NewExecution(wfID, map[string]any{"k": "v"})
	if err := r.CreateExecution(ctx, ex); err != nil {
		t.Fatalf("create: %v", err)
	}

	ex.Finish(domain.ExecutionStatusCompleted, "")
	if err := r.UpdateExecution(ctx, ex); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := r.GetExecution(ctx, ex.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.ExecutionStatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}

	if _, err := r.GetExecution(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("bad id should map to ErrNotFound, got %v", err)
	}
}

func TestMemoryExecutionRepo_ListByWorkflow(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryExecutionRepo()

	wfID := uuid.New()
	otherID := uuid.New()

	var last *domain.Execution
	for i := 0; i < 3; i++ {
		last = domain.NewExecution(wfID, nil)
		r.CreateExecution(ctx, last)
	}
	r.CreateExecution(ctx, domain.NewExecution(otherID, nil))

	// Новые первыми, чужие workflow отфильтрованы
	list, err := r.ListByWorkflow(ctx, wfID, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 executions, got %d", len(list))
	}
	if list[0].ID != last.ID {
		t.Error("latest execution should come first")
	}

	list, _ = r.ListByWorkflow(ctx, wfID, 2)
	if len(list) != 2 {
		t.Errorf("limit should cap the result, got %d", len(list))
	}
}
