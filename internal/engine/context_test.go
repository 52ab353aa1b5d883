package engine

import (
	"fmt"
	"testing"

	"github.com/shaiso/Hookflow/internal/domain"
)

func TestAliasKeys(t *testing.T) {
	tests := []struct {
		name     string
		node     *domain.Node
		ordinal  int
		expected []string
	}{
		{
			name:     "first http task with label",
			node:     &domain.Node{ID: "n1", Type: domain.NodeTypeHTTPTask, Label: "Fetch Users"},
			ordinal:  1,
			expected: []string{"n1", "HTTP 1", "HTTP", "Fetch Users"},
		},
		{
			name:     "second gpt task without label",
			node:     &domain.Node{ID: "n2", Type: domain.NodeTypeGPTTask},
			ordinal:  2,
			expected: []string{"n2", "GPT 2"},
		},
		{
			name:     "first transform",
			node:     &domain.Node{ID: "n3", Type: domain.NodeTypeDataTransform},
			ordinal:  1,
			expected: []string{"n3", "Transform 1", "Transform"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			keys := AliasKeys(tt.node, tt.ordinal)
			if len(keys) != len(tt.expected) {
				t.Fatalf("expected %d keys, got %d: %v", len(tt.expected), len(keys), keys)
			}
			for i, k := range tt.expected {
				if keys[i] != k {
					t.Errorf("key %d: expected %q, got %q", i, k, keys[i])
				}
			}
		})
	}
}

func TestExecutionContext_SetGet(t *testing.T) {
	ec := NewExecutionContext()

	ec.Set("a", 1)
	ec.Set("b", 2)
	ec.Set("a", 3)

	v, ok := ec.Get("a")
	if !ok || v != 3 {
		t.Errorf("expected a=3, got %v", v)
	}

	// Порядок первой вставки, без дублей
	keys := ec.Keys()
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("unexpected key order: %v", keys)
	}
}

func TestExecutionContext_SeedTrigger(t *testing.T) {
	ec := NewExecutionContext()
	payload := map[string]any{"prompt1": "hi", "user": "alice"}
	ec.SeedTrigger(payload)

	// Поля payload в корне
	if v, _ := ec.Get("prompt1"); v != "hi" {
		t.Errorf("expected prompt1 hoisted to root, got %v", v)
	}

	// originalRequest
	req, ok := ec.Get("originalRequest")
	if !ok {
		t.Fatal("originalRequest should be set")
	}
	if m, ok := req.(map[string]any); !ok || m["user"] != "alice" {
		t.Errorf("unexpected originalRequest: %v", req)
	}

	// Алиасы Trigger 1..10
	for i := 1; i <= 10; i++ {
		key := fmt.Sprintf("Trigger %d", i)
		v, ok := ec.Get(key)
		if !ok {
			t.Fatalf("%s should be set", key)
		}
		if m, ok := v.(map[string]any); !ok || m["prompt1"] != "hi" {
			t.Errorf("%s should point at the payload", key)
		}
	}
}

func TestExecutionContext_SeedTrigger_Nil(t *testing.T) {
	ec := NewExecutionContext()
	ec.SeedTrigger(nil)

	req, ok := ec.Get("originalRequest")
	if !ok || req == nil {
		t.Error("originalRequest should be a non-nil map even for nil payload")
	}
}

func TestExecutionContext_AddResult(t *testing.T) {
	ec := NewExecutionContext()

	n1 := &domain.Node{ID: "h1", Type: domain.NodeTypeHTTPTask}
	n2 := &domain.Node{ID: "h2", Type: domain.NodeTypeHTTPTask}
	n3 := &domain.Node{ID: "g1", Type: domain.NodeTypeGPTTask}

	if ord := ec.AddResult(n1, map[string]any{"x": 1}); ord != 1 {
		t.Errorf("expected ordinal 1, got %d", ord)
	}
	if ord := ec.AddResult(n2, map[string]any{"x": 2}); ord != 2 {
		t.Errorf("expected ordinal 2, got %d", ord)
	}
	// Счётчики независимы по типам
	if ord := ec.AddResult(n3, map[string]any{"x": 3}); ord != 1 {
		t.Errorf("expected gpt ordinal 1, got %d", ord)
	}

	// Результат доступен под всеми алиасами
	for _, key := range []string{"h1", "HTTP 1", "HTTP"} {
		v, ok := ec.Get(key)
		if !ok {
			t.Fatalf("%s should be set", key)
		}
		if m := v.(map[string]any); m["x"] != 1 {
			t.Errorf("%s should hold the first result", key)
		}
	}
	if v, _ := ec.Get("HTTP 2"); v.(map[string]any)["x"] != 2 {
		t.Error("HTTP 2 should hold the second result")
	}
}

func TestExecutionContext_Snapshot(t *testing.T) {
	ec := NewExecutionContext()
	ec.Set("a", 1)
	ec.AddResult(&domain.Node{ID: "h1", Type: domain.NodeTypeHTTPTask}, map[string]any{"x": 1})

	snap := ec.Snapshot()

	// Записи в снапшот не видны оригиналу
	snap.Set("b", 2)
	if _, ok := ec.Get("b"); ok {
		t.Error("snapshot writes should not leak into the original")
	}

	// Счётчики ординалов скопированы
	if ord := snap.AddResult(&domain.Node{ID: "h2", Type: domain.NodeTypeHTTPTask}, nil); ord != 2 {
		t.Errorf("snapshot should carry type ordinals, got %d", ord)
	}
}
