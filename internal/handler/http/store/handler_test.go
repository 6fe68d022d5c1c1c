package store

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	app "github.com/MusawenkosiMagagula/caps-resources-website/internal/app/store"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/domain"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/payfast"
)

// stubService lets each test pin the outcome of the one operation it
// exercises; everything else answers a zero value.
type stubService struct {
	notifyErr   error
	downloadRes *app.DownloadResult
	downloadErr error
	checkoutRes *app.CheckoutResponse
	checkoutErr error
}

func (s *stubService) Checkout(ctx context.Context, req *app.CheckoutRequest) (*app.CheckoutResponse, error) {
	return s.checkoutRes, s.checkoutErr
}

func (s *stubService) GetOrder(ctx context.Context, orderID string) (*app.OrderResponse, error) {
	return nil, domain.ErrOrderNotFound
}

func (s *stubService) GetOrdersByUserID(ctx context.Context, userID string) ([]*app.OrderResponse, error) {
	return nil, nil
}

func (s *stubService) HandlePaymentNotification(ctx context.Context, fields payfast.Fields) error {
	return s.notifyErr
}

func (s *stubService) RequestDownload(ctx context.Context, tokenValue string) (*app.DownloadResult, error) {
	return s.downloadRes, s.downloadErr
}

func (s *stubService) RefundOrder(ctx context.Context, orderID string) error { return nil }

func (s *stubService) ProcessOutbox(ctx context.Context) error { return nil }

func (s *stubService) CreateProduct(ctx context.Context, req *app.CreateProductRequest) (*app.ProductResponse, error) {
	return nil, nil
}

func (s *stubService) GetProduct(ctx context.Context, productID string) (*app.ProductResponse, error) {
	return nil, domain.ErrProductNotFound
}

func (s *stubService) GetAllProducts(ctx context.Context) ([]*app.ProductResponse, error) {
	return nil, nil
}

func newRouter(s app.StoreService) http.Handler {
	r := chi.NewRouter()
	RegisterRoutes(r, s, zap.NewNop())
	return r
}

func TestPaymentWebhookStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{name: "applied", serviceErr: nil, wantStatus: http.StatusOK},
		{name: "missing fields", serviceErr: domain.ErrMissingNotificationFields, wantStatus: http.StatusBadRequest},
		{name: "bad signature", serviceErr: domain.ErrInvalidSignature, wantStatus: http.StatusBadRequest},
		{name: "gateway validation failed", serviceErr: domain.ErrExternalValidationFailed, wantStatus: http.StatusBadRequest},
		{name: "unknown order", serviceErr: domain.ErrOrderNotFound, wantStatus: http.StatusNotFound},
		{name: "state conflict", serviceErr: domain.ErrStateConflict, wantStatus: http.StatusConflict},
		{name: "storage failure", serviceErr: assertAnError, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(&stubService{notifyErr: tt.serviceErr})

			body := strings.NewReader("m_payment_id=order-1&payment_status=COMPLETE&signature=abc")
			req := httptest.NewRequest(http.MethodPost, "/payment/webhook", body)
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "OK", rec.Body.String())
			}
		})
	}
}

func TestPaymentWebhookRejectsMalformedBody(t *testing.T) {
	router := newRouter(&stubService{})

	req := httptest.NewRequest(http.MethodPost, "/payment/webhook", strings.NewReader("a=%zz"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDownloadStatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		serviceErr error
		wantStatus int
	}{
		{name: "unknown token", serviceErr: domain.ErrUnknownToken, wantStatus: http.StatusNotFound},
		{name: "expired grant", serviceErr: domain.ErrGrantExpired, wantStatus: http.StatusGone},
		{name: "quota exhausted", serviceErr: domain.ErrQuotaExhausted, wantStatus: http.StatusForbidden},
		{name: "storage failure", serviceErr: assertAnError, wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(&stubService{downloadErr: tt.serviceErr})

			req := httptest.NewRequest(http.MethodGet, "/download/sometoken", nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestDownloadServesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grade4-maths.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 fake"), 0o644))

	router := newRouter(&stubService{downloadRes: &app.DownloadResult{
		ProductID: "p1",
		Title:     "Grade 4 Maths Workbook",
		FileName:  "grade4-maths.pdf",
		Path:      path,
	}})

	req := httptest.NewRequest(http.MethodGet, "/download/sometoken", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="grade4-maths.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.4 fake", rec.Body.String())
}

func TestCheckoutStatusMapping(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		router := newRouter(&stubService{checkoutRes: &app.CheckoutResponse{OrderID: "o1", TotalAmount: 49.90}})

		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"user_id":"u1","email":"t@example.com","items":["p1"]}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"order_id":"o1"`)
	})

	t.Run("unknown product", func(t *testing.T) {
		router := newRouter(&stubService{checkoutErr: domain.ErrProductNotFound})

		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader(`{"user_id":"u1","email":"t@example.com","items":["nope"]}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		router := newRouter(&stubService{})

		req := httptest.NewRequest(http.MethodPost, "/orders", strings.NewReader("{"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

var assertAnError = errors.New("boom")
