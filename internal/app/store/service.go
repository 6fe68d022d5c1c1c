package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MusawenkosiMagagula/caps-resources-website/internal/domain"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/files"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/infrastructure/kafka"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/payfast"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/repository/order_repo"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/repository/outbox_repo"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/repository/product_repo"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/token"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/util"
)

var (
	ErrInvalidCheckout = errors.New("invalid checkout data")
	ErrInvalidProduct  = errors.New("invalid product data")
)

// NotificationVerifier authenticates an inbound payment notification and
// normalizes it to an outcome. It never mutates order state.
type NotificationVerifier interface {
	Verify(ctx context.Context, fields payfast.Fields) (*payfast.PaymentOutcome, error)
}

// PaymentRequester builds the signed redirect payload for a new order.
type PaymentRequester interface {
	BuildPaymentRequest(order *domain.Order, buyerFirstName, buyerLastName string) *payfast.PaymentRequest
}

type StoreService interface {
	Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error)
	GetOrder(ctx context.Context, orderID string) (*OrderResponse, error)
	GetOrdersByUserID(ctx context.Context, userID string) ([]*OrderResponse, error)
	HandlePaymentNotification(ctx context.Context, fields payfast.Fields) error
	RequestDownload(ctx context.Context, tokenValue string) (*DownloadResult, error)
	RefundOrder(ctx context.Context, orderID string) error
	ProcessOutbox(ctx context.Context) error

	CreateProduct(ctx context.Context, req *CreateProductRequest) (*ProductResponse, error)
	GetProduct(ctx context.Context, productID string) (*ProductResponse, error)
	GetAllProducts(ctx context.Context) ([]*ProductResponse, error)
}

type storeService struct {
	orderRepo     order_repo.OrderRepository
	productRepo   product_repo.ProductRepository
	outboxRepo    outbox_repo.OutboxRepository
	verifier      NotificationVerifier
	payments      PaymentRequester
	issuer        *token.Issuer
	clock         token.Clock
	locator       files.Locator
	kafkaProducer kafka.Producer
	grantTopic    string
	logger        *zap.Logger
}

func NewStoreService(
	orderRepo order_repo.OrderRepository,
	productRepo product_repo.ProductRepository,
	outboxRepo outbox_repo.OutboxRepository,
	verifier NotificationVerifier,
	payments PaymentRequester,
	issuer *token.Issuer,
	clock token.Clock,
	locator files.Locator,
	kafkaProducer kafka.Producer,
	grantTopic string,
	logger *zap.Logger,
) StoreService {
	return &storeService{
		orderRepo:     orderRepo,
		productRepo:   productRepo,
		outboxRepo:    outboxRepo,
		verifier:      verifier,
		payments:      payments,
		issuer:        issuer,
		clock:         clock,
		locator:       locator,
		kafkaProducer: kafkaProducer,
		grantTopic:    grantTopic,
		logger:        logger,
	}
}

func (s *storeService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutResponse, error) {
	if req.UserID == "" || req.Email == "" || len(req.Items) == 0 {
		return nil, ErrInvalidCheckout
	}

	products, err := s.productRepo.GetProductsByIDs(ctx, req.Items)
	if err != nil {
		s.logger.Error("Failed to load products for checkout", zap.String("user_id", req.UserID), zap.Error(err))
		return nil, errors.New("internal server error")
	}
	byID := make(map[string]*domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	// Snapshot the catalog price of every requested line; the order keeps
	// these prices even if the catalog changes later.
	items := make([]domain.OrderItem, 0, len(req.Items))
	var total float64
	for _, productID := range req.Items {
		product, ok := byID[productID]
		if !ok {
			s.logger.Warn("Checkout references unknown or inactive product",
				zap.String("user_id", req.UserID),
				zap.String("product_id", productID))
			return nil, domain.ErrProductNotFound
		}
		items = append(items, domain.OrderItem{ProductID: product.ID, Price: product.Price})
		total += product.Price
	}

	order, err := domain.NewOrder(util.GenerateUUID(), req.UserID, req.Email, items, total)
	if err != nil {
		s.logger.Warn("Failed to create order domain object", zap.String("user_id", req.UserID), zap.Error(err))
		return nil, ErrInvalidCheckout
	}

	if err := s.orderRepo.CreateOrder(ctx, order); err != nil {
		s.logger.Error("Failed to save order", zap.String("order_id", order.ID), zap.Error(err))
		return nil, errors.New("failed to initiate payment process")
	}

	firstName, lastName := splitName(req.Name)
	payment := s.payments.BuildPaymentRequest(order, firstName, lastName)

	s.logger.Info("Order created, payment request prepared",
		zap.String("order_id", order.ID),
		zap.Float64("total_amount", order.TotalAmount),
		zap.Int("items", len(order.Items)))

	return &CheckoutResponse{OrderID: order.ID, TotalAmount: order.TotalAmount, Payment: payment}, nil
}

// HandlePaymentNotification is the webhook entry point: verify, then apply
// the outcome exactly once. Replays of an already-applied notification return
// nil so the gateway stops retrying.
func (s *storeService) HandlePaymentNotification(ctx context.Context, fields payfast.Fields) error {
	outcome, err := s.verifier.Verify(ctx, fields)
	if err != nil {
		return err
	}

	if !outcome.Success {
		transitioned, err := s.orderRepo.FailOrder(ctx, outcome.OrderID, outcome.Reference)
		if err != nil {
			return err
		}
		if transitioned {
			s.logger.Info("Order marked as failed from payment notification",
				zap.String("order_id", outcome.OrderID),
				zap.String("payment_reference", outcome.Reference))
		}
		return nil
	}

	order, err := s.orderRepo.GetOrderByID(ctx, outcome.OrderID)
	if err != nil {
		return err
	}

	grants, err := s.issuer.Issue(order)
	if err != nil {
		s.logger.Error("Failed to issue download grants", zap.String("order_id", order.ID), zap.Error(err))
		return fmt.Errorf("failed to issue download grants for order %s: %w", order.ID, err)
	}

	msg, err := s.buildGrantNotification(ctx, order, grants)
	if err != nil {
		return err
	}

	transitioned, err := s.orderRepo.CompleteOrderWithGrants(ctx, order.ID, outcome.Reference, grants, msg)
	if err != nil {
		return err
	}
	if !transitioned {
		// A concurrent or earlier delivery already completed the order; the
		// grants minted above are discarded unpersisted.
		return nil
	}

	s.logger.Info("Order completed, download grants issued",
		zap.String("order_id", order.ID),
		zap.String("payment_reference", outcome.Reference),
		zap.Int("grants", len(grants)))
	return nil
}

func (s *storeService) buildGrantNotification(ctx context.Context, order *domain.Order, grants []domain.DownloadGrant) (*outbox_repo.OutboxMessage, error) {
	productIDs := make([]string, 0, len(order.Items))
	for _, item := range order.Items {
		productIDs = append(productIDs, item.ProductID)
	}
	titles := make(map[string]string)
	if products, err := s.productRepo.GetProductsByIDs(ctx, productIDs); err != nil {
		// Titles are decoration; a catalog read failure must not block grant
		// issuance.
		s.logger.Warn("Failed to load product titles for grant notification",
			zap.String("order_id", order.ID), zap.Error(err))
	} else {
		for _, p := range products {
			titles[p.ID] = p.Title
		}
	}

	event := GrantNotificationEvent{
		OrderID:     order.ID,
		Email:       order.Email,
		TotalAmount: order.TotalAmount,
		Timestamp:   s.clock.Now(),
	}
	for _, g := range grants {
		event.Grants = append(event.Grants, GrantNotification{
			ProductID:  g.ProductID,
			Title:      titles[g.ProductID],
			Token:      g.Token,
			ExpiresAt:  g.ExpiresAt,
			QuotaLimit: g.QuotaLimit,
		})
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Failed to marshal grant notification payload", zap.String("order_id", order.ID), zap.Error(err))
		return nil, errors.New("internal server error")
	}

	return &outbox_repo.OutboxMessage{
		ID:        util.GenerateUUID(),
		Topic:     s.grantTopic,
		Payload:   payload,
		Status:    outbox_repo.StatusPending,
		CreatedAt: time.Now(),
	}, nil
}

func (s *storeService) RequestDownload(ctx context.Context, tokenValue string) (*DownloadResult, error) {
	if tokenValue == "" {
		return nil, domain.ErrUnknownToken
	}

	grant, err := s.orderRepo.ConsumeGrant(ctx, tokenValue, s.clock.Now())
	if err != nil {
		return nil, err
	}

	product, err := s.productRepo.GetProductByID(ctx, grant.ProductID)
	if err != nil {
		s.logger.Error("Grant references missing product",
			zap.String("grant_id", grant.ID),
			zap.String("product_id", grant.ProductID),
			zap.Error(err))
		return nil, errors.New("internal server error")
	}

	path, err := s.locator.PathFor(product.PDFFileName)
	if err != nil {
		s.logger.Error("PDF missing from storage",
			zap.String("product_id", product.ID),
			zap.String("file_name", product.PDFFileName),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Download authorized",
		zap.String("grant_id", grant.ID),
		zap.String("product_id", product.ID),
		zap.Int("quota_used", grant.QuotaUsed),
		zap.Int("quota_limit", grant.QuotaLimit))

	return &DownloadResult{
		ProductID: product.ID,
		Title:     product.Title,
		FileName:  product.PDFFileName,
		Path:      path,
	}, nil
}

func (s *storeService) RefundOrder(ctx context.Context, orderID string) error {
	if err := s.orderRepo.RefundOrder(ctx, orderID); err != nil {
		return err
	}
	s.logger.Info("Order refunded", zap.String("order_id", orderID))
	return nil
}

func (s *storeService) GetOrder(ctx context.Context, orderID string) (*OrderResponse, error) {
	order, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			s.logger.Debug("Order not found", zap.String("order_id", orderID))
			return nil, err
		}
		s.logger.Error("Failed to get order from repository", zap.String("order_id", orderID), zap.Error(err))
		return nil, errors.New("internal server error")
	}
	return mapOrderToResponse(order), nil
}

func (s *storeService) GetOrdersByUserID(ctx context.Context, userID string) ([]*OrderResponse, error) {
	orders, err := s.orderRepo.GetOrdersByUserID(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to get orders for user from repository", zap.String("user_id", userID), zap.Error(err))
		return nil, errors.New("internal server error")
	}
	responses := make([]*OrderResponse, len(orders))
	for i, order := range orders {
		responses[i] = mapOrderToResponse(order)
	}
	return responses, nil
}

func (s *storeService) ProcessOutbox(ctx context.Context) error {
	messages, err := s.outboxRepo.GetUnsentMessages(ctx)
	if err != nil {
		s.logger.Error("Failed to get unsent outbox messages", zap.Error(err))
		return fmt.Errorf("failed to get unsent outbox messages: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}

	s.logger.Info("Processing unsent outbox messages", zap.Int("count", len(messages)))

	for _, msg := range messages {
		if err := s.kafkaProducer.Produce(ctx, msg.Topic, msg.Payload); err != nil {
			s.logger.Error("Failed to produce outbox message to Kafka",
				zap.String("message_id", msg.ID),
				zap.String("topic", msg.Topic),
				zap.Error(err))
			continue
		}
		if err := s.outboxRepo.MarkMessageSent(ctx, msg.ID); err != nil {
			s.logger.Error("Failed to mark outbox message as sent",
				zap.String("message_id", msg.ID),
				zap.Error(err))
		}
	}
	return nil
}

func (s *storeService) CreateProduct(ctx context.Context, req *CreateProductRequest) (*ProductResponse, error) {
	product, err := domain.NewProduct(util.GenerateUUID(), req.Title, req.Description, req.Grade, req.Subject, req.Category, req.PDFFileName, req.Price)
	if err != nil {
		s.logger.Warn("Invalid product data", zap.Error(err))
		return nil, ErrInvalidProduct
	}
	if err := s.productRepo.CreateProduct(ctx, product); err != nil {
		s.logger.Error("Failed to save product", zap.String("product_id", product.ID), zap.Error(err))
		return nil, errors.New("internal server error")
	}
	s.logger.Info("Product created", zap.String("product_id", product.ID), zap.String("title", product.Title))
	return mapProductToResponse(product), nil
}

func (s *storeService) GetProduct(ctx context.Context, productID string) (*ProductResponse, error) {
	product, err := s.productRepo.GetProductByID(ctx, productID)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return nil, err
		}
		s.logger.Error("Failed to get product", zap.String("product_id", productID), zap.Error(err))
		return nil, errors.New("internal server error")
	}
	return mapProductToResponse(product), nil
}

func (s *storeService) GetAllProducts(ctx context.Context) ([]*ProductResponse, error) {
	products, err := s.productRepo.GetAllProducts(ctx)
	if err != nil {
		s.logger.Error("Failed to get products", zap.Error(err))
		return nil, errors.New("internal server error")
	}
	responses := make([]*ProductResponse, len(products))
	for i, p := range products {
		responses[i] = mapProductToResponse(p)
	}
	return responses, nil
}

func mapProductToResponse(p *domain.Product) *ProductResponse {
	return &ProductResponse{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Grade:       p.Grade,
		Subject:     p.Subject,
		Category:    p.Category,
		Price:       p.Price,
	}
}

func mapOrderToResponse(order *domain.Order) *OrderResponse {
	resp := &OrderResponse{
		ID:               order.ID,
		UserID:           order.UserID,
		Email:            order.Email,
		TotalAmount:      order.TotalAmount,
		PaymentStatus:    string(order.PaymentStatus),
		PaymentReference: order.PaymentReference,
		CreatedAt:        order.CreatedAt,
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, OrderItemResponse{ProductID: item.ProductID, Price: item.Price})
	}
	for _, g := range order.Grants {
		resp.Grants = append(resp.Grants, GrantResponse{
			ProductID:  g.ProductID,
			Token:      g.Token,
			ExpiresAt:  g.ExpiresAt,
			QuotaLimit: g.QuotaLimit,
			QuotaUsed:  g.QuotaUsed,
		})
	}
	return resp
}

func splitName(name string) (string, string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	if len(parts) == 1 {
		return parts[0], parts[0]
	}
	return parts[0], strings.Join(parts[1:], " ")
}
