package payfast

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MusawenkosiMagagula/caps-resources-website/internal/domain"
)

const (
	liveProcessURL  = "https://www.payfast.co.za/eng/process"
	liveValidateURL = "https://www.payfast.co.za/eng/query/validate"

	sandboxProcessURL  = "https://sandbox.payfast.co.za/eng/process"
	sandboxValidateURL = "https://sandbox.payfast.co.za/eng/query/validate"
)

type Config struct {
	MerchantID  string
	MerchantKey string
	Passphrase  string
	Sandbox     bool

	ReturnURL string
	CancelURL string
	NotifyURL string

	// ProcessURL and ValidateURL override the endpoints derived from Sandbox.
	ProcessURL  string
	ValidateURL string

	ValidateTimeout time.Duration
}

func (c Config) processURL() string {
	if c.ProcessURL != "" {
		return c.ProcessURL
	}
	if c.Sandbox {
		return sandboxProcessURL
	}
	return liveProcessURL
}

func (c Config) validateURL() string {
	if c.ValidateURL != "" {
		return c.ValidateURL
	}
	if c.Sandbox {
		return sandboxValidateURL
	}
	return liveValidateURL
}

// PaymentRequest is the signed field set the frontend posts to the gateway to
// start a payment.
type PaymentRequest struct {
	URL    string `json:"url"`
	Fields Fields `json:"fields"`
}

// Client talks to the PayFast gateway: it signs outgoing payment requests and
// performs the out-of-band confirmation of inbound notifications.
type Client struct {
	cfg    Config
	codec  *Codec
	http   *http.Client
	logger *zap.Logger
}

func NewClient(cfg Config, codec *Codec, logger *zap.Logger) *Client {
	timeout := cfg.ValidateTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		cfg:    cfg,
		codec:  codec,
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// BuildPaymentRequest assembles and signs the redirect payload for an order.
// Field order matters: PayFast computes its own digest over the same sequence.
func (c *Client) BuildPaymentRequest(order *domain.Order, buyerFirstName, buyerLastName string) *PaymentRequest {
	fields := Fields{
		{Key: "merchant_id", Value: c.cfg.MerchantID},
		{Key: "merchant_key", Value: c.cfg.MerchantKey},
		{Key: "return_url", Value: c.cfg.ReturnURL},
		{Key: "cancel_url", Value: c.cfg.CancelURL},
		{Key: "notify_url", Value: c.cfg.NotifyURL},
		{Key: "m_payment_id", Value: order.ID},
		{Key: "amount", Value: fmt.Sprintf("%.2f", order.TotalAmount)},
		{Key: "item_name", Value: fmt.Sprintf("CAPS Resources - Order %s", order.ID)},
		{Key: "item_description", Value: fmt.Sprintf("%d educational resource(s)", len(order.Items))},
		{Key: "email_address", Value: order.Email},
		{Key: "name_first", Value: buyerFirstName},
		{Key: "name_last", Value: buyerLastName},
		{Key: "email_confirmation", Value: "1"},
		{Key: "confirmation_address", Value: order.Email},
	}
	fields = append(fields, Field{Key: SignatureField, Value: c.codec.Sign(fields, c.cfg.Passphrase)})

	return &PaymentRequest{URL: c.cfg.processURL(), Fields: fields}
}

// ValidateNotification echoes the received fields (minus the digest) back to
// the gateway's validation endpoint. Anything other than an affirmative VALID
// response rejects the notification: a timeout or transport error is treated
// the same as an explicit INVALID.
func (c *Client) ValidateNotification(ctx context.Context, fields Fields) error {
	var b strings.Builder
	for _, field := range fields.Without(SignatureField) {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(field.Key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(field.Value))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.validateURL(), strings.NewReader(b.String()))
	if err != nil {
		return fmt.Errorf("failed to build validation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("PayFast validation request failed", zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrExternalValidationFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		c.logger.Warn("Failed to read PayFast validation response", zap.Error(err))
		return fmt.Errorf("%w: %v", domain.ErrExternalValidationFailed, err)
	}

	if resp.StatusCode != http.StatusOK || strings.TrimSpace(string(body)) != "VALID" {
		c.logger.Warn("PayFast rejected notification",
			zap.Int("status_code", resp.StatusCode),
			zap.String("body", strings.TrimSpace(string(body))))
		return domain.ErrExternalValidationFailed
	}
	return nil
}
