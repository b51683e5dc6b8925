package amqp

import (
	"context"
	"log/slog"
	"time"
)

// Notifier publishes notifications without letting delivery problems reach
// the caller.
type Notifier struct {
	client *Client
}

func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) Notify(ctx context.Context, msg Notification) {
	if n == nil || n.client == nil {
		return
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if err := n.client.PublishNotification(ctx, msg); err != nil {
		slog.WarnContext(ctx, "Failed to publish notification",
			"kind", msg.Kind,
			"family_id", msg.FamilyID,
			"error", err)
	}
}
