package payfast

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/MusawenkosiMagagula/caps-resources-website/internal/domain"
)

const paymentStatusComplete = "COMPLETE"

// PaymentOutcome is the normalized result of a verified notification. It is
// the only channel by which payment truth reaches the order state machine.
type PaymentOutcome struct {
	OrderID   string
	Reference string
	Success   bool
}

type NotificationValidator interface {
	ValidateNotification(ctx context.Context, fields Fields) error
}

// Verifier checks an inbound payment notification before anything acts on it:
// required fields, then the keyed digest, then the out-of-band confirmation
// with the gateway. Every step fails closed. The verifier never touches order
// state, so a rejected or replayed notification has no side effects here.
type Verifier struct {
	codec      *Codec
	passphrase string
	validator  NotificationValidator
	logger     *zap.Logger
}

func NewVerifier(codec *Codec, passphrase string, validator NotificationValidator, logger *zap.Logger) *Verifier {
	return &Verifier{
		codec:      codec,
		passphrase: passphrase,
		validator:  validator,
		logger:     logger,
	}
}

func (v *Verifier) Verify(ctx context.Context, fields Fields) (*PaymentOutcome, error) {
	orderID, _ := fields.Get("m_payment_id")
	reference, _ := fields.Get("pf_payment_id")
	status, _ := fields.Get("payment_status")
	if orderID == "" || reference == "" || status == "" {
		v.logger.Warn("Payment notification missing required fields",
			zap.String("order_id", orderID),
			zap.String("payment_reference", reference))
		return nil, domain.ErrMissingNotificationFields
	}

	digest, _ := fields.Get(SignatureField)
	if !v.codec.Verify(fields, digest, v.passphrase) {
		v.logger.Warn("Payment notification signature mismatch", zap.String("order_id", orderID))
		return nil, domain.ErrInvalidSignature
	}

	if err := v.validator.ValidateNotification(ctx, fields); err != nil {
		v.logger.Warn("Payment notification failed gateway validation",
			zap.String("order_id", orderID),
			zap.Error(err))
		return nil, fmt.Errorf("gateway validation for order %s: %w", orderID, err)
	}

	return &PaymentOutcome{
		OrderID:   orderID,
		Reference: reference,
		Success:   status == paymentStatusComplete,
	}, nil
}
