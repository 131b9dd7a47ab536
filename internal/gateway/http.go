package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/petrijr/flowcanvas/pkg/api"
)

// HTTPConfig describes how to construct an HTTP gateway.
type HTTPConfig struct {
	// BaseURL is the root of the backend API, e.g. "https://host/api/v1".
	BaseURL string

	// Client, if nil, defaults to an http.Client with a 30s timeout.
	Client *http.Client
}

// HTTP is an api.Gateway that talks to a remote execution backend over
// plain request/response REST:
//
//	POST /workflows
//	PUT  /workflows/{id}
//	GET  /workflows/{id}
//	POST /workflows/{id}/execute
//	GET  /executions/{id}
//	GET  /executions/{id}/logs
//
// Any transport or non-2xx failure surfaces as an ordinary error with no
// structured retry metadata; the execution tracker treats it opaquely as a
// failed fetch.
type HTTP struct {
	baseURL string
	client  *http.Client
}

var _ api.Gateway = (*HTTP)(nil)

// NewHTTP creates an HTTP gateway.
func NewHTTP(cfg HTTPConfig) *HTTP {
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTP{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
	}
}

func (g *HTTP) CreateWorkflow(ctx context.Context, def api.WorkflowDefinition) (api.WorkflowDefinition, error) {
	var out api.WorkflowDefinition
	err := g.do(ctx, http.MethodPost, "/workflows", def, &out)
	return out, err
}

func (g *HTTP) UpdateWorkflow(ctx context.Context, id string, def api.WorkflowDefinition) (api.WorkflowDefinition, error) {
	var out api.WorkflowDefinition
	err := g.do(ctx, http.MethodPut, "/workflows/"+url.PathEscape(id), def, &out)
	return out, err
}

func (g *HTTP) GetWorkflow(ctx context.Context, id string) (api.WorkflowDefinition, error) {
	var out api.WorkflowDefinition
	err := g.do(ctx, http.MethodGet, "/workflows/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (g *HTTP) ExecuteWorkflow(ctx context.Context, workflowID string, inputData map[string]any) (api.WorkflowExecution, error) {
	var out api.WorkflowExecution
	body := map[string]any{"inputData": inputData}
	err := g.do(ctx, http.MethodPost, "/workflows/"+url.PathEscape(workflowID)+"/execute", body, &out)
	return out, err
}

func (g *HTTP) GetExecution(ctx context.Context, executionID string) (api.WorkflowExecution, error) {
	var out api.WorkflowExecution
	err := g.do(ctx, http.MethodGet, "/executions/"+url.PathEscape(executionID), nil, &out)
	return out, err
}

func (g *HTTP) GetExecutionLogs(ctx context.Context, executionID string) ([]api.ExecutionLogEntry, error) {
	var out []api.ExecutionLogEntry
	err := g.do(ctx, http.MethodGet, "/executions/"+url.PathEscape(executionID)+"/logs", nil, &out)
	return out, err
}

func (g *HTTP) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("gateway: encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return notFoundError(path)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway: %s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway: decode %s %s: %w", method, path, err)
	}
	return nil
}

// notFoundError maps 404s onto the matching sentinel so callers can use
// errors.Is regardless of transport.
func notFoundError(path string) error {
	if strings.HasPrefix(path, "/executions/") {
		return api.ErrExecutionNotFound
	}
	return api.ErrWorkflowNotFound
}
