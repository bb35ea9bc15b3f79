package protocol

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// MessageChannel selects the outbound channel a message goes through.
type MessageChannel string

const (
	ChannelEmail    MessageChannel = "email"
	ChannelWhatsApp MessageChannel = "whatsapp"
	ChannelCombot   MessageChannel = "combot"
)

// ErrTransient marks collaborator failures that are safe to retry:
// throttling, timeouts, 5xx responses. Executors wrap such failures with
// this sentinel; anything else is treated as a permanent rejection.
var ErrTransient = errors.New("transient collaborator failure")

// Transient wraps err as retryable.
func Transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err is safe to retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// DataSource runs parameterized reads for QUERY nodes.
type DataSource interface {
	RunQuery(ctx context.Context, queryID string, params map[string]any) ([]map[string]any, error)
}

// Message is one outbound delivery request.
type Message struct {
	Channel   MessageChannel
	Template  string
	Variables map[string]any
	Recipient string
}

// DeliveryResult reports what the provider did with a message.
type DeliveryResult struct {
	ProviderID string
	Accepted   bool
}

// Messenger delivers messages for SEND_* and NOTIFICATION nodes. Transport
// and templating internals live behind this interface.
type Messenger interface {
	SendMessage(ctx context.Context, msg Message) (*DeliveryResult, error)
}

// HTTPResponse is the shaped response an HTTP_REQUEST node binds.
type HTTPResponse struct {
	StatusCode int
	Body       any
	Headers    http.Header
}

// HTTPCaller performs outbound HTTP calls for HTTP_REQUEST nodes.
type HTTPCaller interface {
	Call(ctx context.Context, method, url string, headers map[string]string, body string) (*HTTPResponse, error)
}

// RecordStore applies mutations for DB_UPDATE nodes.
type RecordStore interface {
	PersistUpdate(ctx context.Context, table string, criteria, values map[string]any) (int64, error)
}

// Collaborators bundles everything executors may call out to.
type Collaborators struct {
	DataSource  DataSource
	Messenger   Messenger
	HTTPCaller  HTTPCaller
	RecordStore RecordStore
}
