package payfast

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MusawenkosiMagagula/caps-resources-website/internal/domain"
)

type stubValidator struct {
	err    error
	called bool
}

func (s *stubValidator) ValidateNotification(ctx context.Context, fields Fields) error {
	s.called = true
	return s.err
}

func signedNotification(t *testing.T, codec *Codec, passphrase, status string) Fields {
	t.Helper()
	fields := Fields{
		{Key: "m_payment_id", Value: "order-42"},
		{Key: "pf_payment_id", Value: "pf-987"},
		{Key: "payment_status", Value: status},
		{Key: "amount_gross", Value: "250.00"},
	}
	return append(fields, Field{Key: SignatureField, Value: codec.Sign(fields, passphrase)})
}

func TestVerifierAcceptsValidNotification(t *testing.T) {
	codec := NewCodec()
	validator := &stubValidator{}
	v := NewVerifier(codec, "secret", validator, zap.NewNop())

	outcome, err := v.Verify(context.Background(), signedNotification(t, codec, "secret", "COMPLETE"))
	require.NoError(t, err)
	assert.True(t, validator.called)
	assert.Equal(t, "order-42", outcome.OrderID)
	assert.Equal(t, "pf-987", outcome.Reference)
	assert.True(t, outcome.Success)
}

func TestVerifierNormalizesNonCompleteStatus(t *testing.T) {
	codec := NewCodec()
	v := NewVerifier(codec, "secret", &stubValidator{}, zap.NewNop())

	outcome, err := v.Verify(context.Background(), signedNotification(t, codec, "secret", "CANCELLED"))
	require.NoError(t, err)
	assert.False(t, outcome.Success)
}

func TestVerifierRejections(t *testing.T) {
	codec := NewCodec()

	tests := []struct {
		name         string
		fields       func(t *testing.T) Fields
		validatorErr error
		wantErr      error
		wantValidate bool
	}{
		{
			name: "missing order reference",
			fields: func(t *testing.T) Fields {
				f := signedNotification(t, codec, "secret", "COMPLETE")
				return f.Without("m_payment_id")
			},
			wantErr: domain.ErrMissingNotificationFields,
		},
		{
			name: "missing payment status",
			fields: func(t *testing.T) Fields {
				f := signedNotification(t, codec, "secret", "COMPLETE")
				return f.Without("payment_status")
			},
			wantErr: domain.ErrMissingNotificationFields,
		},
		{
			name: "tampered amount",
			fields: func(t *testing.T) Fields {
				f := signedNotification(t, codec, "secret", "COMPLETE")
				for i := range f {
					if f[i].Key == "amount_gross" {
						f[i].Value = "0.01"
					}
				}
				return f
			},
			wantErr: domain.ErrInvalidSignature,
		},
		{
			name: "signed with wrong passphrase",
			fields: func(t *testing.T) Fields {
				return signedNotification(t, codec, "other", "COMPLETE")
			},
			wantErr: domain.ErrInvalidSignature,
		},
		{
			name: "gateway validation fails closed",
			fields: func(t *testing.T) Fields {
				return signedNotification(t, codec, "secret", "COMPLETE")
			},
			validatorErr: domain.ErrExternalValidationFailed,
			wantErr:      domain.ErrExternalValidationFailed,
			wantValidate: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			validator := &stubValidator{err: tt.validatorErr}
			v := NewVerifier(codec, "secret", validator, zap.NewNop())

			outcome, err := v.Verify(context.Background(), tt.fields(t))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
			assert.Nil(t, outcome)
			assert.Equal(t, tt.wantValidate, validator.called,
				"out-of-band validation must only run after the signature checks out")
		})
	}
}

func TestClientValidateNotification(t *testing.T) {
	codec := NewCodec()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr bool
	}{
		{
			name: "affirmative VALID response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
				body, _ := io.ReadAll(r.Body)
				assert.NotContains(t, string(body), "signature=",
					"digest must be stripped before echoing fields to the gateway")
				w.Write([]byte("VALID"))
			},
		},
		{
			name: "explicit INVALID response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("INVALID"))
			},
			wantErr: true,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := NewClient(Config{ValidateURL: server.URL}, codec, zap.NewNop())
			err := client.ValidateNotification(context.Background(), signedNotification(t, codec, "secret", "COMPLETE"))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrExternalValidationFailed)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClientValidateNotificationTimesOut(t *testing.T) {
	codec := NewCodec()
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer func() {
		close(release)
		server.Close()
	}()

	client := NewClient(Config{ValidateURL: server.URL, ValidateTimeout: 50 * time.Millisecond}, codec, zap.NewNop())

	start := time.Now()
	err := client.ValidateNotification(context.Background(), signedNotification(t, codec, "secret", "COMPLETE"))
	assert.ErrorIs(t, err, domain.ErrExternalValidationFailed)
	assert.Less(t, time.Since(start), 5*time.Second, "timeout must be bounded, never an indefinite wait")
}

func TestBuildPaymentRequestSignsLast(t *testing.T) {
	codec := NewCodec()
	client := NewClient(Config{
		MerchantID:  "10000100",
		MerchantKey: "46f0cd694581a",
		Passphrase:  "secret",
		Sandbox:     true,
		ReturnURL:   "https://shop.example/payment/success",
		CancelURL:   "https://shop.example/payment/cancel",
		NotifyURL:   "https://shop.example/payment/webhook",
	}, codec, zap.NewNop())

	order := &domain.Order{
		ID:          "order-7",
		Email:       "teacher@example.com",
		TotalAmount: 149.5,
		Items:       []domain.OrderItem{{ProductID: "p1", Price: 149.5}},
	}

	req := client.BuildPaymentRequest(order, "Thandi", "Nkosi")
	assert.Equal(t, "https://sandbox.payfast.co.za/eng/process", req.URL)

	last := req.Fields[len(req.Fields)-1]
	require.Equal(t, SignatureField, last.Key)
	assert.True(t, codec.Verify(req.Fields, last.Value, "secret"))

	amount, ok := req.Fields.Get("amount")
	require.True(t, ok)
	assert.Equal(t, "149.50", amount)
}
