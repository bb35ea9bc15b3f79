// Package httpcall provides the outbound HTTP collaborator used by
// HTTP_REQUEST nodes. It shapes responses into the engine's HTTPResponse
// and marks network-level failures as transient so executors retry them.
package httpcall

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/campushq/flowline/pkg/protocol"
)

const defaultTimeout = 30 * time.Second

type Caller struct {
	client *http.Client
}

func NewCaller(timeout time.Duration) *Caller {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Caller{client: &http.Client{Timeout: timeout}}
}

// Call performs the request. Transport errors (DNS, refused connections,
// client timeouts) come back wrapped as transient; any response that
// arrived, whatever its status code, is returned for the executor to
// classify.
func (c *Caller) Call(
	ctx context.Context,
	method, url string,
	headers map[string]string,
	body string,
) (*protocol.HTTPResponse, error) {
	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	for name, value := range headers {
		req.Header.Set(name, value)
	}

	if body != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, protocol.Transient(err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, protocol.Transient(fmt.Errorf("failed to read response body: %w", err))
	}

	return &protocol.HTTPResponse{
		StatusCode: resp.StatusCode,
		Body:       parseBody(respBody),
		Headers:    resp.Header,
	}, nil
}

// parseBody decodes JSON when the payload is JSON, otherwise returns the
// raw text.
func parseBody(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		return decoded
	}

	return string(raw)
}
