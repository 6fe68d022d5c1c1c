package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/MusawenkosiMagagula/caps-resources-website/internal/domain"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/repository/order_repo"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/repository/outbox_repo"
)

type pgOrderRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOrderRepository(db *sql.DB, l *zap.Logger) order_repo.OrderRepository {
	return &pgOrderRepository{db: db, logger: l}
}

func (r *pgOrderRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction for order creation", zap.String("order_id", order.ID), zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Panic during order creation transaction, rolling back", zap.String("order_id", order.ID))
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			r.logger.Warn("Rolling back order creation transaction", zap.String("order_id", order.ID), zap.Error(err))
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
			if err != nil {
				r.logger.Error("Failed to commit order creation transaction", zap.String("order_id", order.ID), zap.Error(err))
			}
		}
	}()

	orderQuery := `INSERT INTO orders (id, user_id, email, total_amount, payment_status, payment_reference, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = tx.ExecContext(ctx, orderQuery,
		order.ID, order.UserID, order.Email, order.TotalAmount, order.PaymentStatus, order.PaymentReference, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("tx failed to create order: %w", err)
	}

	itemQuery := `INSERT INTO order_items (order_id, position, product_id, price) VALUES ($1, $2, $3, $4)`
	for i, item := range order.Items {
		if _, err = tx.ExecContext(ctx, itemQuery, order.ID, i, item.ProductID, item.Price); err != nil {
			return fmt.Errorf("tx failed to create order item: %w", err)
		}
	}

	r.logger.Debug("Order inserted in transaction", zap.String("order_id", order.ID), zap.Int("items", len(order.Items)))
	return err
}

func (r *pgOrderRepository) GetOrderByID(ctx context.Context, id string) (*domain.Order, error) {
	order := &domain.Order{}
	var reference sql.NullString
	query := `SELECT id, user_id, email, total_amount, payment_status, payment_reference, created_at, updated_at FROM orders WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&order.ID, &order.UserID, &order.Email, &order.TotalAmount, &order.PaymentStatus, &reference, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		r.logger.Error("Failed to get order by ID", zap.String("order_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get order by ID %s: %w", id, err)
	}
	order.PaymentReference = reference.String

	if order.Items, err = r.getOrderItems(ctx, id); err != nil {
		return nil, err
	}
	if order.Grants, err = r.getOrderGrants(ctx, id); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *pgOrderRepository) getOrderItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	query := `SELECT product_id, price FROM order_items WHERE order_id = $1 ORDER BY position ASC`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		r.logger.Error("Failed to query order items", zap.String("order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("failed to get items for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Price); err != nil {
			return nil, fmt.Errorf("failed to scan order item row: %w", err)
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

func (r *pgOrderRepository) getOrderGrants(ctx context.Context, orderID string) ([]domain.DownloadGrant, error) {
	query := `SELECT id, order_id, product_id, token, issued_at, expires_at, quota_limit, quota_used
		FROM download_grants WHERE order_id = $1 ORDER BY issued_at ASC, id ASC`
	rows, err := r.db.QueryContext(ctx, query, orderID)
	if err != nil {
		r.logger.Error("Failed to query download grants", zap.String("order_id", orderID), zap.Error(err))
		return nil, fmt.Errorf("failed to get grants for order %s: %w", orderID, err)
	}
	defer rows.Close()

	var grants []domain.DownloadGrant
	for rows.Next() {
		var g domain.DownloadGrant
		if err := rows.Scan(&g.ID, &g.OrderID, &g.ProductID, &g.Token, &g.IssuedAt, &g.ExpiresAt, &g.QuotaLimit, &g.QuotaUsed); err != nil {
			return nil, fmt.Errorf("failed to scan download grant row: %w", err)
		}
		grants = append(grants, g)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return grants, nil
}

func (r *pgOrderRepository) GetOrdersByUserID(ctx context.Context, userID string) ([]*domain.Order, error) {
	query := `SELECT id FROM orders WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to query orders for user", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to get orders by user ID %s: %w", userID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan order id row: %w", err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	orders := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		order, err := r.GetOrderByID(ctx, id)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (r *pgOrderRepository) CompleteOrderWithGrants(ctx context.Context, orderID, paymentReference string, grants []domain.DownloadGrant, msg *outbox_repo.OutboxMessage) (transitioned bool, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Error("Failed to begin transaction for order completion", zap.String("order_id", orderID), zap.Error(err))
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Panic during order completion transaction, rolling back", zap.String("order_id", orderID))
			_ = tx.Rollback()
			panic(p)
		} else if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
			if err != nil {
				r.logger.Error("Failed to commit order completion transaction", zap.String("order_id", orderID), zap.Error(err))
				transitioned = false
			}
		}
	}()

	// Conditional transition: only a pending order moves. A replayed
	// notification affects zero rows and is classified below without ever
	// overwriting terminal state.
	updateQuery := `UPDATE orders SET payment_status = $2, payment_reference = $3, updated_at = $4
		WHERE id = $1 AND payment_status = $5`
	res, err := tx.ExecContext(ctx, updateQuery,
		orderID, domain.PaymentStatusCompleted, paymentReference, time.Now(), domain.PaymentStatusPending)
	if err != nil {
		return false, fmt.Errorf("tx failed to complete order %s: %w", orderID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check update result: %w", err)
	}

	if affected == 0 {
		status, classifyErr := r.currentStatusTx(ctx, tx, orderID)
		if classifyErr != nil {
			err = classifyErr
			return false, err
		}
		if status == domain.PaymentStatusCompleted {
			r.logger.Info("Order already completed, ignoring replayed notification", zap.String("order_id", orderID))
			return false, nil
		}
		r.logger.Warn("Success notification for order in conflicting state",
			zap.String("order_id", orderID),
			zap.String("current_status", string(status)))
		err = domain.ErrStateConflict
		return false, err
	}

	grantQuery := `INSERT INTO download_grants (id, order_id, product_id, token, issued_at, expires_at, quota_limit, quota_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for _, g := range grants {
		if _, err = tx.ExecContext(ctx, grantQuery,
			g.ID, g.OrderID, g.ProductID, g.Token, g.IssuedAt, g.ExpiresAt, g.QuotaLimit, g.QuotaUsed); err != nil {
			return false, fmt.Errorf("tx failed to create download grant: %w", err)
		}
	}

	outboxQuery := `INSERT INTO outbox_messages (id, topic, payload, status, created_at) VALUES ($1, $2, $3, $4, $5)`
	if _, err = tx.ExecContext(ctx, outboxQuery, msg.ID, msg.Topic, msg.Payload, msg.Status, msg.CreatedAt); err != nil {
		return false, fmt.Errorf("tx failed to create outbox message: %w", err)
	}

	transitioned = true
	r.logger.Debug("Order completed with grants in transaction",
		zap.String("order_id", orderID),
		zap.Int("grants", len(grants)))
	return transitioned, err
}

func (r *pgOrderRepository) FailOrder(ctx context.Context, orderID, paymentReference string) (bool, error) {
	query := `UPDATE orders SET payment_status = $2, payment_reference = $3, updated_at = $4
		WHERE id = $1 AND payment_status = $5`
	res, err := r.db.ExecContext(ctx, query,
		orderID, domain.PaymentStatusFailed, paymentReference, time.Now(), domain.PaymentStatusPending)
	if err != nil {
		r.logger.Error("Failed to mark order as failed", zap.String("order_id", orderID), zap.Error(err))
		return false, fmt.Errorf("failed to mark order %s as failed: %w", orderID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check update result: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	status, err := r.currentStatus(ctx, orderID)
	if err != nil {
		return false, err
	}
	if status == domain.PaymentStatusFailed {
		r.logger.Info("Order already failed, ignoring replayed notification", zap.String("order_id", orderID))
		return false, nil
	}
	r.logger.Warn("Failure notification for order in conflicting state",
		zap.String("order_id", orderID),
		zap.String("current_status", string(status)))
	return false, domain.ErrStateConflict
}

func (r *pgOrderRepository) RefundOrder(ctx context.Context, orderID string) error {
	query := `UPDATE orders SET payment_status = $2, updated_at = $3 WHERE id = $1 AND payment_status = $4`
	res, err := r.db.ExecContext(ctx, query, orderID, domain.PaymentStatusRefunded, time.Now(), domain.PaymentStatusCompleted)
	if err != nil {
		r.logger.Error("Failed to refund order", zap.String("order_id", orderID), zap.Error(err))
		return fmt.Errorf("failed to refund order %s: %w", orderID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		status, statusErr := r.currentStatus(ctx, orderID)
		if statusErr != nil {
			return statusErr
		}
		r.logger.Warn("Refund requested for order that is not completed",
			zap.String("order_id", orderID),
			zap.String("current_status", string(status)))
		return domain.ErrStateConflict
	}
	return nil
}

func (r *pgOrderRepository) ConsumeGrant(ctx context.Context, tokenValue string, now time.Time) (*domain.DownloadGrant, error) {
	// Single conditional read-modify-write: the WHERE clause carries both the
	// quota and expiry checks, so a concurrent request racing for the last
	// unit sees zero rows affected instead of over-counting.
	query := `UPDATE download_grants SET quota_used = quota_used + 1
		WHERE token = $1 AND quota_used < quota_limit AND expires_at > $2
		RETURNING id, order_id, product_id, token, issued_at, expires_at, quota_limit, quota_used`

	grant := &domain.DownloadGrant{}
	err := r.db.QueryRowContext(ctx, query, tokenValue, now).Scan(
		&grant.ID, &grant.OrderID, &grant.ProductID, &grant.Token,
		&grant.IssuedAt, &grant.ExpiresAt, &grant.QuotaLimit, &grant.QuotaUsed)
	if err == nil {
		r.logger.Debug("Download quota consumed",
			zap.String("grant_id", grant.ID),
			zap.Int("quota_used", grant.QuotaUsed),
			zap.Int("quota_limit", grant.QuotaLimit))
		return grant, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		r.logger.Error("Failed to consume download grant", zap.Error(err))
		return nil, fmt.Errorf("failed to consume download grant: %w", err)
	}

	// The update matched nothing; a second read classifies why. Reads do not
	// mutate, so the classification cannot race with another consumer.
	classifyQuery := `SELECT expires_at, quota_limit, quota_used FROM download_grants WHERE token = $1`
	var expiresAt time.Time
	var quotaLimit, quotaUsed int
	err = r.db.QueryRowContext(ctx, classifyQuery, tokenValue).Scan(&expiresAt, &quotaLimit, &quotaUsed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUnknownToken
		}
		r.logger.Error("Failed to classify rejected download grant", zap.Error(err))
		return nil, fmt.Errorf("failed to classify rejected download grant: %w", err)
	}
	if now.After(expiresAt) {
		return nil, domain.ErrGrantExpired
	}
	return nil, domain.ErrQuotaExhausted
}

func (r *pgOrderRepository) currentStatus(ctx context.Context, orderID string) (domain.PaymentStatus, error) {
	var status domain.PaymentStatus
	err := r.db.QueryRowContext(ctx, `SELECT payment_status FROM orders WHERE id = $1`, orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrOrderNotFound
		}
		return "", fmt.Errorf("failed to read status for order %s: %w", orderID, err)
	}
	return status, nil
}

func (r *pgOrderRepository) currentStatusTx(ctx context.Context, tx *sql.Tx, orderID string) (domain.PaymentStatus, error) {
	var status domain.PaymentStatus
	err := tx.QueryRowContext(ctx, `SELECT payment_status FROM orders WHERE id = $1`, orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", domain.ErrOrderNotFound
		}
		return "", fmt.Errorf("failed to read status for order %s: %w", orderID, err)
	}
	return status, nil
}
