package order_repo

import (
	"context"
	"time"

	"github.com/MusawenkosiMagagula/caps-resources-website/internal/domain"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/repository/outbox_repo"
)

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id string) (*domain.Order, error)
	GetOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error)

	// CompleteOrderWithGrants applies the pending -> completed transition,
	// inserts the grants and the notification outbox message in the same
	// transaction. Returns false with a nil error when the order was already
	// completed (idempotent replay), domain.ErrStateConflict when it sits in a
	// different terminal state.
	CompleteOrderWithGrants(ctx context.Context, orderID, paymentReference string, grants []domain.DownloadGrant, msg *outbox_repo.OutboxMessage) (bool, error)

	// FailOrder applies pending -> failed with the same replay semantics.
	FailOrder(ctx context.Context, orderID, paymentReference string) (bool, error)

	// RefundOrder applies the administrative completed -> refunded transition.
	RefundOrder(ctx context.Context, orderID string) error

	// ConsumeGrant validates and spends one unit of quota as a single
	// conditional update. Two concurrent calls racing for the last unit can
	// never both succeed. Failures classify as domain.ErrUnknownToken,
	// domain.ErrGrantExpired or domain.ErrQuotaExhausted and leave the grant
	// untouched.
	ConsumeGrant(ctx context.Context, tokenValue string, now time.Time) (*domain.DownloadGrant, error)
}
