package engine

import (
	"reflect"
	"testing"

	json "github.com/goccy/go-json"
)

func TestResolveValue_NoPlaceholders(t *testing.T) {
	ec := NewExecutionContext()

	tests := []struct {
		name  string
		value any
	}{
		{name: "plain string", value: "no placeholders here"},
		{name: "number", value: float64(42)},
		{name: "bool", value: true},
		{name: "nil", value: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ResolveValue(tt.value, ec)
			if !reflect.DeepEqual(result, tt.value) {
				t.Errorf("expected %v unchanged, got %v", tt.value, result)
			}
		})
	}
}

func TestResolveValue_WholePlaceholder(t *testing.T) {
	ec := NewExecutionContext()
	obj := map[string]any{"k": float64(1)}
	ec.Set("obj", obj)
	ec.Set("num", float64(5))

	// Типизированная подстановка: значение возвращается как есть
	result := ResolveValue("{{obj}}", ec)
	if !reflect.DeepEqual(result, obj) {
		t.Errorf("expected the object itself, got %v", result)
	}

	if v := ResolveValue("{{num}}", ec); v != float64(5) {
		t.Errorf("expected 5, got %v", v)
	}

	// Окружающие пробелы не мешают типизированной подстановке
	if v := ResolveValue("  {{num}}  ", ec); v != float64(5) {
		t.Errorf("expected 5 for padded placeholder, got %v", v)
	}

	// Отсутствующая ссылка — пустая строка
	if v := ResolveValue("{{missing}}", ec); v != "" {
		t.Errorf("expected empty string for missing ref, got %v", v)
	}
}

func TestResolveValue_TextSubstitution(t *testing.T) {
	ec := NewExecutionContext()
	ec.Set("name", "alice")
	ec.Set("num", float64(5))
	ec.Set("obj", map[string]any{"k": "v"})

	tests := []struct {
		name     string
		template string
		expected string
	}{
		{
			name:     "quoted string",
			template: `{"a": "{{name}}"}`,
			expected: `{"a": "alice"}`,
		},
		{
			name:     "quoted number becomes content",
			template: `{"a": "{{num}}"}`,
			expected: `{"a": "5"}`,
		},
		{
			name:     "unquoted number stays typed",
			template: `{"n": {{num}}}`,
			expected: `{"n": 5}`,
		},
		{
			name:     "unquoted object embeds as JSON",
			template: `{"o": {{obj}}}`,
			expected: `{"o": {"k":"v"}}`,
		},
		{
			name:     "missing inside quotes",
			template: `{"a": "{{missing}}"}`,
			expected: `{"a": ""}`,
		},
		{
			name:     "missing outside quotes",
			template: `{"a": {{missing}}}`,
			expected: `{"a": ""}`,
		},
		{
			name:     "multiple placeholders",
			template: `{{name}} has {{num}}`,
			expected: `"alice" has 5`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ResolveValue(tt.template, ec)
			s, ok := result.(string)
			if !ok {
				t.Fatalf("expected string, got %T", result)
			}
			if s != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, s)
			}
		})
	}
}

// Разрешённый шаблон остаётся валидным JSON и при отсутствующих ссылках.
func TestResolveValue_MissingKeepsJSONValid(t *testing.T) {
	ec := NewExecutionContext()

	for _, template := range []string{
		`{"a": "{{missing}}"}`,
		`{"a": {{missing}}}`,
	} {
		s := ResolveValue(template, ec).(string)
		var parsed map[string]any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			t.Errorf("resolved %q is not valid JSON: %v", s, err)
		}
	}
}

func TestResolveValue_Containers(t *testing.T) {
	ec := NewExecutionContext()
	ec.Set("url", "https://example.com")

	config := map[string]any{
		"method": "POST",
		"nested": map[string]any{"u": "{{url}}"},
		"list":   []any{"{{url}}", float64(1)},
	}

	result, ok := ResolveValue(config, ec).(map[string]any)
	if !ok {
		t.Fatal("expected map result")
	}
	if result["method"] != "POST" {
		t.Errorf("plain values should pass through, got %v", result["method"])
	}
	nested := result["nested"].(map[string]any)
	if nested["u"] != "https://example.com" {
		t.Errorf("whole-string nested value should be typed, got %v", nested["u"])
	}
	list := result["list"].([]any)
	if list[0] != "https://example.com" || list[1] != float64(1) {
		t.Errorf("unexpected list resolution: %v", list)
	}
}

func TestResolveConfig_Nil(t *testing.T) {
	result := ResolveConfig(nil, NewExecutionContext())
	if result == nil || len(result) != 0 {
		t.Errorf("expected empty map, got %v", result)
	}
}

func TestResolveTriggerRef(t *testing.T) {
	ec := NewExecutionContext()
	ec.SeedTrigger(map[string]any{"prompt1": "hi"})

	// Любой номер триггера ведёт к payload
	for _, expr := range []string{"{{Trigger 1.prompt1}}", "{{Trigger 7.prompt1}}"} {
		if v := ResolveValue(expr, ec); v != "hi" {
			t.Errorf("%s: expected hi, got %v", expr, v)
		}
	}
}

func TestResolveTriggerRef_AliasOrder(t *testing.T) {
	// Поле есть только в одном из алиасов: побеждает меньший номер
	ec := NewExecutionContext()
	ec.Set("Trigger 9", map[string]any{"field": "nine"})
	ec.Set("Trigger 2", map[string]any{"field": "two"})

	if v := ResolveValue("{{Trigger 5.field}}", ec); v != "two" {
		t.Errorf("expected the lowest-numbered alias to win, got %v", v)
	}
}

func TestResolveKeyPath(t *testing.T) {
	ec := NewExecutionContext()
	ec.Set("HTTP 1", map[string]any{
		"response": map[string]any{"body": map[string]any{"id": float64(7)}},
		"success":  true,
	})

	if v := ResolveValue("{{HTTP 1.success}}", ec); v != true {
		t.Errorf("expected true, got %v", v)
	}
	if v := ResolveValue("{{HTTP 1.response.body.id}}", ec); v != float64(7) {
		t.Errorf("expected 7, got %v", v)
	}
}

func TestResolveKeyPath_LongestPrefixWins(t *testing.T) {
	ec := NewExecutionContext()
	ec.Set("Fetch", map[string]any{"Users": map[string]any{"id": float64(1)}})
	ec.Set("Fetch.Users", map[string]any{"id": float64(2)})

	if v := ResolveValue("{{Fetch.Users.id}}", ec); v != float64(2) {
		t.Errorf("expected the longer key to win, got %v", v)
	}
}

// При нескольких GPT-результатах ссылка "{{GPT 10.result}}" обязана
// выбрать ключ "GPT 10", а не более короткий "GPT 1".
func TestResolveKeyPath_GPTNumberTieBreak(t *testing.T) {
	ec := NewExecutionContext()
	ec.Set("GPT 1", map[string]any{"result": "one"})
	ec.Set("GPT 2", map[string]any{"result": "two"})
	ec.Set("GPT 10", map[string]any{"result": "ten"})

	if v := ResolveValue("{{GPT 10.result}}", ec); v != "ten" {
		t.Errorf(`expected "GPT 10" to resolve to ten, got %v`, v)
	}
	if v := ResolveValue("{{GPT 1.result}}", ec); v != "one" {
		t.Errorf(`expected "GPT 1" to resolve to one, got %v`, v)
	}
	if v := ResolveValue("{{GPT 2.result}}", ec); v != "two" {
		t.Errorf(`expected "GPT 2" to resolve to two, got %v`, v)
	}
}

// Ключ с цифрой выигрывает у ключа без цифры, даже когда путь через
// ключ без цифры тоже разрешим.
func TestResolveKeyPath_DigitKeyWins(t *testing.T) {
	ec := NewExecutionContext()
	ec.Set("Fetch", map[string]any{
		"2": map[string]any{"value": "through plain key"},
	})
	ec.Set("Fetch.2", map[string]any{"value": "through numbered key"})

	if v := ResolveValue("{{Fetch.2.value}}", ec); v != "through numbered key" {
		t.Errorf("expected the digit key to win, got %v", v)
	}
}

func TestResolveKeyPath_SliceIndex(t *testing.T) {
	ec := NewExecutionContext()
	ec.Set("result", map[string]any{"items": []any{"a", "b", "c"}})

	if v := ResolveValue("{{result.items.1}}", ec); v != "b" {
		t.Errorf("expected b, got %v", v)
	}
	if v := ResolveValue("{{result.items.9}}", ec); v != "" {
		t.Errorf("out-of-range index should resolve empty, got %v", v)
	}
}

func TestUnwrapResponse(t *testing.T) {
	tests := []struct {
		name     string
		result   map[string]any
		expected any
	}{
		{
			name:     "http_response body",
			result:   map[string]any{"http_response": map[string]any{"body": "payload"}},
			expected: "payload",
		},
		{
			name:     "direct body",
			result:   map[string]any{"body": "payload", "status": float64(200)},
			expected: "payload",
		},
		{
			name:     "nested response body",
			result:   map[string]any{"response": map[string]any{"body": "payload"}},
			expected: "payload",
		},
		{
			name:     "scalar response",
			result:   map[string]any{"response": "payload"},
			expected: "payload",
		},
		{
			name:     "error envelope collapses to message",
			result:   map[string]any{"EntityID": "e1", "Message": "not found"},
			expected: "not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ec := NewExecutionContext()
			ec.Set("HTTP 1", map[string]any{"response": tt.result})

			v := ResolveValue("{{HTTP 1.response}}", ec)
			if !reflect.DeepEqual(v, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, v)
			}
		})
	}
}

func TestResolveGPTFuzzy(t *testing.T) {
	ec := NewExecutionContext()
	ec.Set("GPT 1", map[string]any{"result": "one"})
	ec.Set("GPT 10", map[string]any{"result": "ten"})

	tests := []struct {
		name     string
		expr     string
		expected any
	}{
		{name: "exact compact number", expr: "{{gpt10.result}}", expected: "ten"},
		{name: "number one not confused with ten", expr: "{{gpt1.result}}", expected: "one"},
		{name: "gpt task form", expr: "{{gpttask10.result}}", expected: "ten"},
		{name: "spaced head", expr: "{{gpt 10.result}}", expected: "ten"},
		{name: "no number falls back to first", expr: "{{gptresult.result}}", expected: "one"},
		{name: "unknown number", expr: "{{gpt99.result}}", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := ResolveValue(tt.expr, ec)
			if v != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, v)
			}
		})
	}
}
