package repository

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tradelink/internal/domain/entity"
	"tradelink/internal/domain/repository"
	apperrors "tradelink/pkg/errors"
)

type FirestoreProductRepository struct {
	client *firestore.Client
}

func NewFirestoreProductRepository(client *firestore.Client) *FirestoreProductRepository {
	return &FirestoreProductRepository{client: client}
}

func (r *FirestoreProductRepository) GetByID(ctx context.Context, id string) (*entity.Product, error) {
	doc, err := r.client.Collection("products").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperrors.New(apperrors.CodeBadRequest, "Product not found", 404, err)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	var product entity.Product
	if err := doc.DataTo(&product); err != nil {
		return nil, fmt.Errorf("failed to parse product: %w", err)
	}
	return &product, nil
}

var _ repository.ProductRepository = (*FirestoreProductRepository)(nil)
