package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// WorkflowResponse — workflow из API.
type WorkflowResponse struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Graph     map[string]any `json:"graph"`
	IsActive  bool           `json:"is_active"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
}

// ExecutionResponse — execution из API.
type ExecutionResponse struct {
	ID            string         `json:"id"`
	WorkflowID    string         `json:"workflow_id"`
	Status        string         `json:"status"`
	ExecutedNodes []string       `json:"executed_nodes,omitempty"`
	CurrentNodeID string         `json:"current_node_id,omitempty"`
	ErrorDetails  string         `json:"error_details,omitempty"`
	ResultData    map[string]any `json:"result_data,omitempty"`
	StartedAt     string         `json:"started_at"`
	FinishedAt    string         `json:"finished_at,omitempty"`
}

// --- Request types ---

// CreateWorkflowRequest — создание workflow.
type CreateWorkflowRequest struct {
	Name     string          `json:"name"`
	Graph    json.RawMessage `json:"graph,omitempty"`
	IsActive bool            `json:"is_active"`
}

// UpdateWorkflowRequest — обновление workflow.
type UpdateWorkflowRequest struct {
	Graph    json.RawMessage `json:"graph,omitempty"`
	IsActive *bool           `json:"is_active,omitempty"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Hookflow API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // триггер хука ждёт завершения workflow
		},
	}
}

// --- Workflows ---

// ListWorkflows возвращает все workflow.
func (c *Client) ListWorkflows() ([]WorkflowResponse, error) {
	var workflows []WorkflowResponse
	err := c.list("/api/v1/workflows", nil, &workflows)
	return workflows, err
}

// CreateWorkflow создаёт новый workflow.
func (c *Client) CreateWorkflow(req CreateWorkflowRequest) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.post("/api/v1/workflows", req, &wf)
	return &wf, err
}

// GetWorkflow возвращает workflow по ID.
func (c *Client) GetWorkflow(id string) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.get("/api/v1/workflows/"+id, &wf)
	return &wf, err
}

// UpdateWorkflow обновляет workflow.
func (c *Client) UpdateWorkflow(id string, req UpdateWorkflowRequest) (*WorkflowResponse, error) {
	var wf WorkflowResponse
	err := c.put("/api/v1/workflows/"+id, req, &wf)
	return &wf, err
}

// DeleteWorkflow удаляет workflow.
func (c *Client) DeleteWorkflow(id string) error {
	return c.delete("/api/v1/workflows/" + id)
}

// --- Executions ---

// ListExecutions возвращает executions одного workflow.
func (c *Client) ListExecutions(workflowID string, limit int) ([]ExecutionResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", limit))
	}

	var executions []ExecutionResponse
	err := c.list("/api/v1/workflows/"+workflowID+"/executions", params, &executions)
	return executions, err
}

// GetExecution возвращает execution по ID.
func (c *Client) GetExecution(id string) (*ExecutionResponse, error) {
	var ex ExecutionResponse
	err := c.get("/api/v1/executions/"+id, &ex)
	return &ex, err
}

// --- Hooks ---

// TriggerHook запускает хук с payload и возвращает сырой ответ.
// Тело ответа отдаётся как есть: его формирует webhookResponse-узел.
func (c *Client) TriggerHook(name string, payload json.RawMessage) (int, json.RawMessage, error) {
	resp, err := c.do(http.MethodPost, "/api/v1/hooks/"+name, payload)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}

	return resp.StatusCode, body, nil
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) put(path string, body any, result any) error {
	return c.doData(http.MethodPut, path, body, result)
}

func (c *Client) delete(path string) error {
	resp, err := c.do(http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return c.checkError(resp)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		switch b := body.(type) {
		case json.RawMessage:
			if len(b) > 0 {
				bodyReader = bytes.NewReader(b)
			}
		default:
			data, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request: %w", err)
			}
			bodyReader = bytes.NewReader(data)
		}
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
