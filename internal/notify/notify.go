package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/taskdeck/apiserver/internal/mq"
)

// Channel is the broker channel notification events travel on.
const Channel = "notifications"

// Event kinds.
const (
	KindUserRegistered = "user.registered"
	KindUserDeleted    = "user.deleted"
)

// Event is the payload published for account lifecycle notifications.
type Event struct {
	Kind  string `json:"kind"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Notifier delivers account lifecycle notifications. Deliveries are
// fire-and-forget: implementations never return an error to the caller.
type Notifier interface {
	UserRegistered(ctx context.Context, email, name string)
	UserDeleted(ctx context.Context, email, name string)
}

// MQNotifier publishes notification events onto the message queue.
// Publish failures are logged and swallowed so they cannot fail the
// request that triggered them.
type MQNotifier struct {
	mq     *mq.MQ
	logger *slog.Logger
}

func NewMQNotifier(queue *mq.MQ, logger *slog.Logger) *MQNotifier {
	return &MQNotifier{mq: queue, logger: logger}
}

func (n *MQNotifier) UserRegistered(ctx context.Context, email, name string) {
	n.publish(ctx, Event{Kind: KindUserRegistered, Email: email, Name: name})
}

func (n *MQNotifier) UserDeleted(ctx context.Context, email, name string) {
	n.publish(ctx, Event{Kind: KindUserDeleted, Email: email, Name: name})
}

func (n *MQNotifier) publish(ctx context.Context, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		n.logger.Warn("encode notification failed", "kind", event.Kind, "error", err)
		return
	}
	if _, err := n.mq.Publish(ctx, Channel, data, map[string]string{"kind": event.Kind}); err != nil {
		n.logger.Warn("publish notification failed", "kind", event.Kind, "error", err)
	}
}

// NopNotifier drops notifications. Used when no MQ backend is configured.
type NopNotifier struct {
	logger *slog.Logger
}

func NewNopNotifier(logger *slog.Logger) *NopNotifier {
	return &NopNotifier{logger: logger}
}

func (n *NopNotifier) UserRegistered(ctx context.Context, email, name string) {
	n.logger.Debug("notifications disabled, dropping event", "kind", KindUserRegistered, "email", email)
}

func (n *NopNotifier) UserDeleted(ctx context.Context, email, name string) {
	n.logger.Debug("notifications disabled, dropping event", "kind", KindUserDeleted, "email", email)
}
