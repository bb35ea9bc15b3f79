package cmd

import (
	"log/slog"

	"github.com/campushq/flowline/pkg/executors/dbupdate"
	"github.com/campushq/flowline/pkg/executors/httprequest"
	"github.com/campushq/flowline/pkg/executors/iterator"
	"github.com/campushq/flowline/pkg/executors/query"
	"github.com/campushq/flowline/pkg/executors/sendmessage"
	"github.com/campushq/flowline/pkg/executors/switchnode"
	"github.com/campushq/flowline/pkg/executors/transform"
	"github.com/campushq/flowline/pkg/executors/trigger"
	"github.com/campushq/flowline/pkg/protocol"
	"github.com/campushq/flowline/pkg/registry"
)

// NewRegistry builds the executor registry with every node kind wired to
// its collaborators. The iterator dispatches body nodes back through the
// registry itself.
func NewRegistry(logger *slog.Logger, collaborators protocol.Collaborators) *registry.Registry {
	reg := registry.NewRegistry(logger)

	reg.Register(trigger.NewFactory())
	reg.Register(query.NewFactory(collaborators.DataSource))
	reg.Register(transform.NewFactory())
	reg.Register(switchnode.NewFactory())
	reg.Register(iterator.NewFactory(reg))
	reg.Register(httprequest.NewFactory(collaborators.HTTPCaller))
	reg.Register(dbupdate.NewFactory(collaborators.RecordStore))

	reg.Register(sendmessage.NewWhatsAppFactory(collaborators.Messenger))
	reg.Register(sendmessage.NewEmailFactory(collaborators.Messenger))
	reg.Register(sendmessage.NewNotificationFactory(collaborators.Messenger))

	logger.Info("Registered node executors", "kinds", reg.Kinds())

	return reg
}
