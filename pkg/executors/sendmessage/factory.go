package sendmessage

import (
	"context"
	"fmt"

	"github.com/campushq/flowline/pkg/models"
	"github.com/campushq/flowline/pkg/protocol"
)

// Factory creates send executors for one (kind, channel) pairing.
type Factory struct {
	kind      models.NodeKind
	channel   protocol.MessageChannel
	messenger protocol.Messenger
}

// NewEmailFactory serves SEND_EMAIL nodes.
func NewEmailFactory(messenger protocol.Messenger) *Factory {
	return &Factory{kind: models.NodeKindSendEmail, channel: protocol.ChannelEmail, messenger: messenger}
}

// NewWhatsAppFactory serves SEND_WHATSAPP nodes.
func NewWhatsAppFactory(messenger protocol.Messenger) *Factory {
	return &Factory{kind: models.NodeKindSendWhatsApp, channel: protocol.ChannelWhatsApp, messenger: messenger}
}

// NewNotificationFactory serves NOTIFICATION nodes over the combot channel.
func NewNotificationFactory(messenger protocol.Messenger) *Factory {
	return &Factory{kind: models.NodeKindNotification, channel: protocol.ChannelCombot, messenger: messenger}
}

func (f *Factory) Create(_ context.Context, node *models.WorkflowNode, _ *models.Workflow) (protocol.NodeExecutor, error) {
	return NewExecutor(node, f.channel, f.messenger)
}

func (f *Factory) Kind() models.NodeKind {
	return f.kind
}

func (f *Factory) Name() string {
	return fmt.Sprintf("Send %s", f.channel)
}

func (f *Factory) Description() string {
	return fmt.Sprintf("Delivers a templated message over the %s channel", f.channel)
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"template": map[string]any{
				"type":        "string",
				"description": "Provider-side template identifier",
			},
			"recipient": map[string]any{
				"type":        "string",
				"description": "Recipient address or phone; rendered against the execution context",
			},
			"variables": map[string]any{
				"type":        "object",
				"description": "Template variables; string values are rendered against the execution context",
			},
			"retry": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"attempts": map[string]any{"type": "number"},
					"delay":    map[string]any{"type": "number"},
				},
			},
		},
		"required": []any{"template", "recipient"},
	}
}
