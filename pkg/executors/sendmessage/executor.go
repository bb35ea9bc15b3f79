// Package sendmessage provides the SEND_EMAIL, SEND_WHATSAPP and
// NOTIFICATION node executors. All three delegate to the messenger
// collaborator with resolved template variables; they differ only in the
// outbound channel. Transient transport failures (throttling, timeouts)
// are retried with a bounded backoff; permanent provider rejections fail
// the node.
package sendmessage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/protocol"
	"github.com/campushq/flowline/pkg/template"
)

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = 2 * time.Second
)

// RetryConfig bounds retries of transient transport failures.
type RetryConfig struct {
	Attempts int
	Delay    time.Duration
}

type Executor struct {
	nodeID    string
	channel   protocol.MessageChannel
	template  string
	recipient string
	variables map[string]any
	retry     RetryConfig

	messenger protocol.Messenger

	// sleep is replaceable in tests.
	sleep func(time.Duration)
}

func NewExecutor(node *models.WorkflowNode, channel protocol.MessageChannel, messenger protocol.Messenger) (*Executor, error) {
	templateID, ok := node.Config["template"].(string)
	if !ok || templateID == "" {
		return nil, errors.New("missing required field 'template'")
	}

	recipient, ok := node.Config["recipient"].(string)
	if !ok || recipient == "" {
		return nil, errors.New("missing required field 'recipient'")
	}

	variables, _ := node.Config["variables"].(map[string]any)

	retry := RetryConfig{Attempts: defaultRetryAttempts, Delay: defaultRetryDelay}
	if retryConfig, ok := node.Config["retry"].(map[string]any); ok {
		if attempts, ok := retryConfig["attempts"].(float64); ok && attempts > 0 {
			retry.Attempts = int(attempts)
		}

		if delay, ok := retryConfig["delay"].(float64); ok && delay >= 0 {
			retry.Delay = time.Duration(delay) * time.Second
		}
	}

	return &Executor{
		nodeID:    node.ID,
		channel:   channel,
		template:  templateID,
		recipient: recipient,
		variables: variables,
		retry:     retry,
		messenger: messenger,
		sleep:     time.Sleep,
	}, nil
}

func (e *Executor) Execute(
	ctx context.Context,
	execCtx *models.ExecutionContext,
	logger *slog.Logger,
) (*models.NodeResult, error) {
	logger = logger.With("module", "send_message_executor", "channel", string(e.channel))

	msg, err := e.buildMessage(execCtx)
	if err != nil {
		return &models.NodeResult{
			Status:       models.ExecutionLogStatusFailed,
			ErrorMessage: err.Error(),
		}, nil
	}

	var lastErr error

	for attempt := 1; attempt <= e.retry.Attempts; attempt++ {
		if attempt > 1 {
			logger.InfoContext(ctx, "Retrying message delivery",
				"attempt", attempt, "max_attempts", e.retry.Attempts)
			e.sleep(e.retry.Delay)
		}

		result, err := e.messenger.SendMessage(ctx, *msg)
		if err == nil {
			return &models.NodeResult{
				Status: models.ExecutionLogStatusSuccess,
				Output: map[string]any{
					"provider_id": result.ProviderID,
					"accepted":    result.Accepted,
					"recipient":   msg.Recipient,
					"channel":     string(e.channel),
				},
			}, nil
		}

		lastErr = err

		if !protocol.IsTransient(err) {
			break
		}
	}

	logger.ErrorContext(ctx, "Message delivery failed", "error", lastErr)

	return &models.NodeResult{
		Status:       models.ExecutionLogStatusFailed,
		ErrorMessage: fmt.Sprintf("delivery via %s failed: %v", e.channel, lastErr),
	}, nil
}

func (e *Executor) buildMessage(execCtx *models.ExecutionContext) (*protocol.Message, error) {
	recipient, err := template.RenderString(e.recipient, execCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to render recipient: %w", err)
	}

	variables := make(map[string]any, len(e.variables))

	for name, value := range e.variables {
		str, ok := value.(string)
		if !ok {
			variables[name] = value

			continue
		}

		rendered, err := template.RenderWithContext(str, execCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to render variable %s: %w", name, err)
		}

		variables[name] = rendered
	}

	return &protocol.Message{
		Channel:   e.channel,
		Template:  e.template,
		Variables: variables,
		Recipient: recipient,
	}, nil
}
