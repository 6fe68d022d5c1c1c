package product_repo

import (
	"context"

	"github.com/MusawenkosiMagagula/caps-resources-website/internal/domain"
)

type ProductRepository interface {
	CreateProduct(ctx context.Context, product *domain.Product) error
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	// GetProductsByIDs returns only active products; callers compare lengths
	// to detect unknown or inactive items.
	GetProductsByIDs(ctx context.Context, ids []string) ([]*domain.Product, error)
	GetAllProducts(ctx context.Context) ([]*domain.Product, error)
}
