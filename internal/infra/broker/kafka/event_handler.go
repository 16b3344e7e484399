package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"rentsync/internal/domain/requests"
	"rentsync/internal/infra/wire"
)

// Inbox records delivery ids. Seen reports true for an id recorded before.
type Inbox interface {
	Seen(ctx context.Context, deliveryID string) (bool, error)
}

type Publisher interface {
	Publish(ctx context.Context, ev requests.RealtimeEvent)
}

// EventHandler decodes CloudEvents request messages and republishes them.
// Redeliveries with a known id are skipped; the reconciler is idempotent
// anyway, the inbox only spares the work.
type EventHandler struct {
	Publisher Publisher
	Inbox     Inbox
	Logger    *slog.Logger
	Now       func() time.Time
}

func (h *EventHandler) Handle(ctx context.Context, msg *sarama.ConsumerMessage) error {
	ev, frame, err := wire.DecodeFrame(msg.Value, h.now())
	if err != nil {
		if !errors.Is(err, wire.ErrUnknownEvent) && h.Logger != nil {
			h.Logger.Warn("broker message dropped", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
		// poison messages are acknowledged
		return nil
	}
	id := frame.DeliveryID()
	if id == "" {
		id = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	if h.Inbox != nil {
		seen, err := h.Inbox.Seen(ctx, id)
		if err != nil {
			if h.Logger != nil {
				h.Logger.Error("inbox check failed", "delivery_id", id, "error", err)
			}
			return err
		}
		if seen {
			return nil
		}
	}
	h.Publisher.Publish(ctx, ev)
	return nil
}

func (h *EventHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}
