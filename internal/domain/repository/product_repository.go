package repository

import (
	"context"

	"tradelink/internal/domain/entity"
)

// ProductRepository is the read-only view of the catalog that messaging
// needs for scoping threads to a product.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*entity.Product, error)
}
