package store

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	app "github.com/MusawenkosiMagagula/caps-resources-website/internal/app/store"
)

func RegisterRoutes(r chi.Router, s app.StoreService, l *zap.Logger) {
	handler := NewStoreHandler(s, l.With(zap.String("component", "StoreHTTPHandler")))

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", handler.Checkout)
		r.Get("/{orderID}", handler.GetOrder)
		r.Post("/{orderID}/refund", handler.RefundOrder)
		r.Get("/user/{userID}", handler.GetOrdersByUserID)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", handler.GetAllProducts)
		r.Post("/", handler.CreateProduct)
		r.Get("/{productID}", handler.GetProduct)
	})

	r.Post("/payment/webhook", handler.PaymentWebhook)
	r.Get("/download/{token}", handler.Download)
}
