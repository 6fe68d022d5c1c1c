package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	app "github.com/MusawenkosiMagagula/caps-resources-website/internal/app/store"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/domain"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/payfast"
)

// Webhook bodies are small form posts; anything bigger is not PayFast.
const maxWebhookBody = 64 * 1024

type StoreHandler struct {
	service app.StoreService
	logger  *zap.Logger
}

func NewStoreHandler(s app.StoreService, l *zap.Logger) *StoreHandler {
	return &StoreHandler{service: s, logger: l}
}

func (h *StoreHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req app.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for Checkout", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.service.Checkout(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidCheckout):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, domain.ErrProductNotFound):
			http.Error(w, "Some products not found", http.StatusBadRequest)
		default:
			h.logger.Error("Error creating order", zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(res)
}

// PaymentWebhook receives PayFast's server-to-server notification. The body
// is parsed with field order preserved; the signature is computed over that
// order. Replays of an already-applied notification answer 200 so the gateway
// stops retrying.
func (h *StoreHandler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.logger.Warn("Failed to read webhook body", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	fields, err := payfast.ParseForm(string(body))
	if err != nil {
		h.logger.Warn("Malformed webhook body", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.service.HandlePaymentNotification(r.Context(), fields); err != nil {
		switch {
		case errors.Is(err, domain.ErrMissingNotificationFields),
			errors.Is(err, domain.ErrInvalidSignature):
			http.Error(w, "Invalid signature", http.StatusBadRequest)
		case errors.Is(err, domain.ErrExternalValidationFailed):
			http.Error(w, "Validation failed", http.StatusBadRequest)
		case errors.Is(err, domain.ErrOrderNotFound):
			http.Error(w, "Order not found", http.StatusNotFound)
		case errors.Is(err, domain.ErrStateConflict):
			h.logger.Error("Payment notification conflicts with order state, manual review required", zap.Error(err))
			http.Error(w, "Order state conflict", http.StatusConflict)
		default:
			h.logger.Error("Error handling payment notification", zap.Error(err))
			http.Error(w, "Server error", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *StoreHandler) Download(w http.ResponseWriter, r *http.Request) {
	tokenValue := chi.URLParam(r, "token")

	res, err := h.service.RequestDownload(r.Context(), tokenValue)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownToken):
			http.Error(w, "Invalid download link", http.StatusNotFound)
		case errors.Is(err, domain.ErrGrantExpired):
			http.Error(w, "Download link has expired", http.StatusGone)
		case errors.Is(err, domain.ErrQuotaExhausted):
			http.Error(w, "Download limit reached", http.StatusForbidden)
		default:
			h.logger.Error("Error serving download", zap.Error(err))
			http.Error(w, "Error downloading file", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.FileName))
	http.ServeFile(w, r, res.Path)
}

func (h *StoreHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	if orderID == "" {
		http.Error(w, "Order ID is required", http.StatusBadRequest)
		return
	}

	res, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			http.Error(w, "Order not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Error getting order", zap.String("order_id", orderID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func (h *StoreHandler) GetOrdersByUserID(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "User ID is required", http.StatusBadRequest)
		return
	}

	res, err := h.service.GetOrdersByUserID(r.Context(), userID)
	if err != nil {
		h.logger.Error("Error getting orders for user", zap.String("user_id", userID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func (h *StoreHandler) RefundOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	if err := h.service.RefundOrder(r.Context(), orderID); err != nil {
		switch {
		case errors.Is(err, domain.ErrOrderNotFound):
			http.Error(w, "Order not found", http.StatusNotFound)
		case errors.Is(err, domain.ErrStateConflict):
			http.Error(w, "Only completed orders can be refunded", http.StatusConflict)
		default:
			h.logger.Error("Error refunding order", zap.String("order_id", orderID), zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *StoreHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req app.CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	res, err := h.service.CreateProduct(r.Context(), &req)
	if err != nil {
		if errors.Is(err, app.ErrInvalidProduct) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("Error creating product", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(res)
}

func (h *StoreHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	res, err := h.service.GetProduct(r.Context(), productID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			http.Error(w, "Product not found", http.StatusNotFound)
			return
		}
		h.logger.Error("Error getting product", zap.String("product_id", productID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}

func (h *StoreHandler) GetAllProducts(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.GetAllProducts(r.Context())
	if err != nil {
		h.logger.Error("Error getting products", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res)
}
