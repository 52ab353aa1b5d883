package dispatch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shaiso/Hookflow/internal/domain"
)

func TestHTTPDispatcher_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("X-Token") != "secret" {
			t.Error("custom header should be forwarded")
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Error("json content type should be set for bodies")
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"name":"alice"`) {
			t.Errorf("unexpected request body: %s", body)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 7}`))
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.Client())
	result, err := d.Dispatch(context.Background(), map[string]any{
		"method":  "POST",
		"url":     srv.URL,
		"headers": map[string]any{"X-Token": "secret"},
		"body":    map[string]any{"name": "alice"},
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result["status_code"] != 200 {
		t.Errorf("expected status 200, got %v", result["status_code"])
	}
	body, ok := result["body"].(map[string]any)
	if !ok || body["id"] != float64(7) {
		t.Errorf("expected parsed JSON body, got %v", result["body"])
	}
	if _, hasErr := result["error"]; hasErr {
		t.Error("2xx response should not carry an error field")
	}
}

func TestHTTPDispatcher_NonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("plain text"))
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.Client())
	result, err := d.Dispatch(context.Background(), map[string]any{"url": srv.URL}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["body"] != "plain text" {
		t.Errorf("non-JSON body should stay a string, got %v", result["body"])
	}
}

func TestHTTPDispatcher_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "nope"}`))
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.Client())
	result, err := d.Dispatch(context.Background(), map[string]any{"url": srv.URL}, nil)

	// Статус >= 400 — не авария вызова: результат сохраняется
	if err != nil {
		t.Fatalf("4xx must not be a dispatch error: %v", err)
	}
	if result["status_code"] != 404 {
		t.Errorf("expected 404, got %v", result["status_code"])
	}
	if _, hasErr := result["error"]; !hasErr {
		t.Error("4xx result should carry an error field")
	}
}

func TestHTTPDispatcher_MissingURL(t *testing.T) {
	d := NewHTTPDispatcher(nil)
	_, err := d.Dispatch(context.Background(), map[string]any{}, nil)
	if !errors.Is(err, ErrHTTPRequest) {
		t.Errorf("expected ErrHTTPRequest, got %v", err)
	}
}

func TestRegistry_Dispatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	r := NewRegistry()
	r.Register(domain.NodeTypeHTTPTask, NewHTTPDispatcher(srv.Client()))

	result, err := r.Dispatch(context.Background(), domain.NodeTypeHTTPTask, map[string]any{"url": srv.URL}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["status_code"] != 200 {
		t.Errorf("expected 200, got %v", result["status_code"])
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Dispatch(context.Background(), domain.NodeType("weird"), nil, nil)
	if !errors.Is(err, ErrUnknownTaskType) {
		t.Errorf("expected ErrUnknownTaskType, got %v", err)
	}
}
