// Package httprequest provides the HTTP_REQUEST node executor. Network
// timeouts and 5xx responses are retried a bounded number of times; any
// other non-2xx response fails the node.
package httprequest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/protocol"
	"github.com/campushq/flowline/pkg/template"
)

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 2 * time.Second
)

type Executor struct {
	nodeID  string
	method  string
	url     string
	headers map[string]string
	body    string

	attempts int
	delay    time.Duration

	caller protocol.HTTPCaller
	sleep  func(time.Duration)
}

func NewExecutor(node *models.WorkflowNode, caller protocol.HTTPCaller) (*Executor, error) {
	url, ok := node.Config["url"].(string)
	if !ok || url == "" {
		return nil, errors.New("missing required field 'url'")
	}

	method, _ := node.Config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}

	body, _ := node.Config["body"].(string)

	headers := make(map[string]string)

	if headersConfig, ok := node.Config["headers"].(map[string]any); ok {
		for k, v := range headersConfig {
			if strVal, ok := v.(string); ok {
				headers[k] = strVal
			}
		}
	}

	attempts := defaultRetryAttempts
	delay := defaultRetryDelay

	if retryConfig, ok := node.Config["retry"].(map[string]any); ok {
		if raw, ok := retryConfig["attempts"].(float64); ok && raw > 0 {
			attempts = int(raw)
		}

		if raw, ok := retryConfig["delay"].(float64); ok && raw >= 0 {
			delay = time.Duration(raw) * time.Second
		}
	}

	return &Executor{
		nodeID:   node.ID,
		method:   strings.ToUpper(method),
		url:      url,
		headers:  headers,
		body:     body,
		attempts: attempts,
		delay:    delay,
		caller:   caller,
		sleep:    time.Sleep,
	}, nil
}

func (e *Executor) Execute(
	ctx context.Context,
	execCtx *models.ExecutionContext,
	logger *slog.Logger,
) (*models.NodeResult, error) {
	logger = logger.With("module", "http_request_executor", "method", e.method)

	url, headers, body, err := e.render(execCtx)
	if err != nil {
		return &models.NodeResult{
			Status:       models.ExecutionLogStatusFailed,
			ErrorMessage: err.Error(),
		}, nil
	}

	var (
		resp    *protocol.HTTPResponse
		lastErr error
	)

	for attempt := 1; attempt <= e.attempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, "Retrying HTTP request", "attempt", attempt, "max_attempts", e.attempts)
			e.sleep(e.delay)
		}

		resp, lastErr = e.caller.Call(ctx, e.method, url, headers, body)
		if lastErr != nil {
			if protocol.IsTransient(lastErr) {
				continue
			}

			break
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			lastErr = fmt.Errorf("server error: status %d", resp.StatusCode)

			continue
		}

		break
	}

	if lastErr != nil {
		logger.ErrorContext(ctx, "HTTP request failed", "error", lastErr)

		return &models.NodeResult{
			Status:       models.ExecutionLogStatusFailed,
			ErrorMessage: fmt.Sprintf("http request failed: %v", lastErr),
		}, nil
	}

	output := map[string]any{
		"status_code": resp.StatusCode,
		"body":        resp.Body,
		"headers":     flattenHeaders(resp.Headers),
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		return &models.NodeResult{
			Status:       models.ExecutionLogStatusFailed,
			Output:       output,
			ErrorMessage: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}, nil
	}

	logger.InfoContext(ctx, "HTTP request completed", "status_code", resp.StatusCode)

	return &models.NodeResult{
		Status: models.ExecutionLogStatusSuccess,
		Output: output,
	}, nil
}

func (e *Executor) render(execCtx *models.ExecutionContext) (string, map[string]string, string, error) {
	url, err := template.RenderString(e.url, execCtx)
	if err != nil {
		return "", nil, "", fmt.Errorf("failed to render url: %w", err)
	}

	headers := make(map[string]string, len(e.headers))

	for name, value := range e.headers {
		rendered, err := template.RenderString(value, execCtx)
		if err != nil {
			return "", nil, "", fmt.Errorf("failed to render header %s: %w", name, err)
		}

		headers[name] = rendered
	}

	body := ""
	if e.body != "" {
		body, err = template.RenderString(e.body, execCtx)
		if err != nil {
			return "", nil, "", fmt.Errorf("failed to render body: %w", err)
		}
	}

	return url, headers, body, nil
}

func flattenHeaders(headers http.Header) map[string]any {
	flat := make(map[string]any, len(headers))
	for name, values := range headers {
		flat[name] = strings.Join(values, ", ")
	}

	return flat
}
