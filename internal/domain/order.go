package domain

import (
	"errors"
	"math"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// OrderItem is a price snapshot taken at checkout. The snapshot never changes
// after the order is created, even if the catalog price does.
type OrderItem struct {
	ProductID string
	Price     float64
}

type Order struct {
	ID               string
	UserID           string
	Email            string
	Items            []OrderItem
	TotalAmount      float64
	PaymentStatus    PaymentStatus
	PaymentReference string
	Grants           []DownloadGrant
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func NewOrder(id, userID, email string, items []OrderItem, totalAmount float64) (*Order, error) {
	if id == "" || userID == "" || email == "" || len(items) == 0 {
		return nil, errors.New("invalid order data")
	}
	var sum float64
	for _, item := range items {
		if item.ProductID == "" || item.Price < 0 {
			return nil, errors.New("invalid order item")
		}
		sum += item.Price
	}
	// Snapshot prices must add up to the stated total.
	if math.Abs(sum-totalAmount) > 0.005 {
		return nil, errors.New("order total does not match sum of item prices")
	}
	now := time.Now()
	return &Order{
		ID:            id,
		UserID:        userID,
		Email:         email,
		Items:         items,
		TotalAmount:   totalAmount,
		PaymentStatus: PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (o *Order) IsTerminal() bool {
	return o.PaymentStatus != PaymentStatusPending
}

func (o *Order) MarkAsCompleted(paymentReference string) error {
	if o.PaymentStatus != PaymentStatusPending {
		return errors.New("order must be pending to become completed")
	}
	o.PaymentStatus = PaymentStatusCompleted
	o.PaymentReference = paymentReference
	o.UpdatedAt = time.Now()
	return nil
}

func (o *Order) MarkAsFailed(paymentReference string) error {
	if o.PaymentStatus != PaymentStatusPending {
		return errors.New("order must be pending to become failed")
	}
	o.PaymentStatus = PaymentStatusFailed
	o.PaymentReference = paymentReference
	o.UpdatedAt = time.Now()
	return nil
}

func (o *Order) MarkAsRefunded() error {
	if o.PaymentStatus != PaymentStatusCompleted {
		return errors.New("only completed orders can be refunded")
	}
	o.PaymentStatus = PaymentStatusRefunded
	o.UpdatedAt = time.Now()
	return nil
}
