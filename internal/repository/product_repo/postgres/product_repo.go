package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/MusawenkosiMagagula/caps-resources-website/internal/domain"
	"github.com/MusawenkosiMagagula/caps-resources-website/internal/repository/product_repo"
)

type pgProductRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewProductRepository(db *sql.DB, l *zap.Logger) product_repo.ProductRepository {
	return &pgProductRepository{db: db, logger: l}
}

const productColumns = `id, title, description, grade, subject, category, price, pdf_file_name, active, created_at`

func (r *pgProductRepository) CreateProduct(ctx context.Context, product *domain.Product) error {
	query := `INSERT INTO products (` + productColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, query,
		product.ID, product.Title, product.Description, product.Grade, product.Subject,
		product.Category, product.Price, product.PDFFileName, product.Active, product.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to create product", zap.String("product_id", product.ID), zap.Error(err))
		return fmt.Errorf("failed to create product: %w", err)
	}
	r.logger.Debug("Product created", zap.String("product_id", product.ID))
	return nil
}

func (r *pgProductRepository) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`
	product, err := r.scanProduct(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrProductNotFound
		}
		r.logger.Error("Failed to get product by ID", zap.String("product_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get product by ID %s: %w", id, err)
	}
	return product, nil
}

func (r *pgProductRepository) GetProductsByIDs(ctx context.Context, ids []string) ([]*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1) AND active`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		r.logger.Error("Failed to query products by IDs", zap.Error(err))
		return nil, fmt.Errorf("failed to get products by IDs: %w", err)
	}
	defer rows.Close()
	return r.collectProducts(rows)
}

func (r *pgProductRepository) GetAllProducts(ctx context.Context) ([]*domain.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE active ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to query all products", zap.Error(err))
		return nil, fmt.Errorf("failed to get all products: %w", err)
	}
	defer rows.Close()
	return r.collectProducts(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *pgProductRepository) scanProduct(row rowScanner) (*domain.Product, error) {
	product := &domain.Product{}
	err := row.Scan(
		&product.ID, &product.Title, &product.Description, &product.Grade, &product.Subject,
		&product.Category, &product.Price, &product.PDFFileName, &product.Active, &product.CreatedAt)
	if err != nil {
		return nil, err
	}
	return product, nil
}

func (r *pgProductRepository) collectProducts(rows *sql.Rows) ([]*domain.Product, error) {
	var products []*domain.Product
	for rows.Next() {
		product, err := r.scanProduct(rows)
		if err != nil {
			r.logger.Error("Failed to scan product row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan product row: %w", err)
		}
		products = append(products, product)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("Rows error while reading products", zap.Error(err))
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return products, nil
}
