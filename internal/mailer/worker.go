package mailer

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/taskdeck/apiserver/internal/mq"
	"github.com/taskdeck/apiserver/internal/notify"
)

// Sender delivers the account lifecycle emails. Satisfied by Mailer.
type Sender interface {
	SendWelcome(email, name string) error
	SendGoodbye(email, name string) error
}

// Worker consumes notification events from the queue and turns them
// into emails. Run blocks until the context is canceled.
type Worker struct {
	mq     *mq.MQ
	mailer Sender
	logger *slog.Logger
}

func NewWorker(queue *mq.MQ, mailer Sender, logger *slog.Logger) *Worker {
	return &Worker{mq: queue, mailer: mailer, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	return w.mq.Subscribe(ctx, notify.Channel, w.handle)
}

func (w *Worker) handle(ctx context.Context, msg mq.Message) error {
	var event notify.Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		// Malformed payloads can never succeed on redelivery; ack and log.
		w.logger.Warn("discarding malformed notification", "id", msg.ID, "error", err)
		return nil
	}

	switch event.Kind {
	case notify.KindUserRegistered:
		if err := w.mailer.SendWelcome(event.Email, event.Name); err != nil {
			w.logger.Warn("welcome email failed", "email", event.Email, "error", err)
			return err
		}
	case notify.KindUserDeleted:
		if err := w.mailer.SendGoodbye(event.Email, event.Name); err != nil {
			w.logger.Warn("goodbye email failed", "email", event.Email, "error", err)
			return err
		}
	default:
		w.logger.Warn("discarding notification with unknown kind", "kind", event.Kind, "id", msg.ID)
	}
	return nil
}
