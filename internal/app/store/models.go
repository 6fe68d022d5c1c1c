package store

import (
	"time"

	"github.com/MusawenkosiMagagula/caps-resources-website/internal/payfast"
)

type CheckoutRequest struct {
	UserID string   `json:"user_id"`
	Name   string   `json:"name"`
	Email  string   `json:"email"`
	Items  []string `json:"items"`
}

type CheckoutResponse struct {
	OrderID     string                  `json:"order_id"`
	TotalAmount float64                 `json:"total_amount"`
	Payment     *payfast.PaymentRequest `json:"payment"`
}

type OrderItemResponse struct {
	ProductID string  `json:"product_id"`
	Price     float64 `json:"price"`
}

type GrantResponse struct {
	ProductID  string    `json:"product_id"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	QuotaLimit int       `json:"quota_limit"`
	QuotaUsed  int       `json:"quota_used"`
}

type OrderResponse struct {
	ID               string              `json:"id"`
	UserID           string              `json:"user_id"`
	Email            string              `json:"email"`
	Items            []OrderItemResponse `json:"items"`
	TotalAmount      float64             `json:"total_amount"`
	PaymentStatus    string              `json:"payment_status"`
	PaymentReference string              `json:"payment_reference,omitempty"`
	Grants           []GrantResponse     `json:"grants,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

type DownloadResult struct {
	ProductID string
	Title     string
	FileName  string
	Path      string
}

type CreateProductRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Grade       string  `json:"grade"`
	Subject     string  `json:"subject"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
	PDFFileName string  `json:"pdf_file_name"`
}

type ProductResponse struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Grade       string  `json:"grade"`
	Subject     string  `json:"subject"`
	Category    string  `json:"category"`
	Price       float64 `json:"price"`
}

// GrantNotificationEvent is the outbox payload relayed to Kafka once an order
// completes; the mailer consumer turns it into the purchase email.
type GrantNotificationEvent struct {
	OrderID     string              `json:"order_id"`
	Email       string              `json:"email"`
	TotalAmount float64             `json:"total_amount"`
	Timestamp   time.Time           `json:"timestamp"`
	Grants      []GrantNotification `json:"grants"`
}

type GrantNotification struct {
	ProductID  string    `json:"product_id"`
	Title      string    `json:"title"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expires_at"`
	QuotaLimit int       `json:"quota_limit"`
}
