// Package logmessenger is the development Messenger: it logs deliveries
// instead of sending them. Useful with the file persistence backend for
// local runs and demos.
package logmessenger

import (
	"context"
	"log/slog"

	"github.com/campushq/flowline/pkg/protocol"
	"github.com/google/uuid"
)

type Messenger struct {
	logger *slog.Logger
}

func NewMessenger(logger *slog.Logger) *Messenger {
	return &Messenger{logger: logger.With("module", "log_messenger")}
}

func (m *Messenger) SendMessage(ctx context.Context, msg protocol.Message) (*protocol.DeliveryResult, error) {
	m.logger.InfoContext(ctx, "Message delivery (dev mode, not sent)",
		"channel", string(msg.Channel),
		"recipient", msg.Recipient,
		"template", msg.Template,
		"variables", msg.Variables)

	return &protocol.DeliveryResult{
		ProviderID: "dev-" + uuid.New().String(),
		Accepted:   true,
	}, nil
}
