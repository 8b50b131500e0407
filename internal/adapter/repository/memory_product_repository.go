package repository

import (
	"context"
	"sync"

	"tradelink/internal/domain/entity"
	"tradelink/internal/domain/repository"
	apperrors "tradelink/pkg/errors"
)

type MemoryProductRepository struct {
	mu       sync.RWMutex
	products map[string]*entity.Product
}

func NewMemoryProductRepository() *MemoryProductRepository {
	return &MemoryProductRepository{products: make(map[string]*entity.Product)}
}

func (r *MemoryProductRepository) Put(product *entity.Product) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *product
	r.products[product.ID] = &copied
}

func (r *MemoryProductRepository) GetByID(ctx context.Context, id string) (*entity.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.products[id]
	if !ok {
		return nil, apperrors.New(apperrors.CodeBadRequest, "Product not found", 404, nil)
	}
	copied := *product
	return &copied, nil
}

var _ repository.ProductRepository = (*MemoryProductRepository)(nil)
