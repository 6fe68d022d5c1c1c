package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/MusawenkosiMagagula/caps-resources-website/internal/app/store"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/mailer"
)

// GrantNotificationConsumer turns relayed grant events into purchase emails.
type GrantNotificationConsumer struct {
	mailer mailer.Mailer
	logger *zap.Logger
}

func NewGrantNotificationConsumer(m mailer.Mailer, l *zap.Logger) *GrantNotificationConsumer {
	return &GrantNotificationConsumer{mailer: m, logger: l}
}

func (c *GrantNotificationConsumer) HandleMessage(ctx context.Context, message []byte) error {
	var event store.GrantNotificationEvent
	if err := json.Unmarshal(message, &event); err != nil {
		c.logger.Error("Failed to unmarshal grant notification event", zap.Error(err))
		return fmt.Errorf("failed to unmarshal grant notification event: %w", err)
	}
	if event.OrderID == "" || event.Email == "" {
		c.logger.Warn("Grant notification event missing order id or email, skipping")
		return nil
	}

	// Email failures are logged and dropped rather than retried: the grants
	// are already persisted and the customer can still reach them through the
	// order endpoint.
	if err := c.mailer.SendPurchaseEmail(&event); err != nil {
		c.logger.Error("Purchase email delivery failed, grants remain valid",
			zap.String("order_id", event.OrderID),
			zap.Error(err))
	}
	return nil
}
