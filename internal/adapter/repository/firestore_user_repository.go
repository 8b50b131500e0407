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

type FirestoreUserRepository struct {
	client *firestore.Client
}

func NewFirestoreUserRepository(client *firestore.Client) *FirestoreUserRepository {
	return &FirestoreUserRepository{client: client}
}

func (r *FirestoreUserRepository) GetByID(ctx context.Context, id string) (*entity.User, error) {
	doc, err := r.client.Collection("users").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, apperrors.New(apperrors.CodeBadRequest, "User not found", 404, err)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var user entity.User
	if err := doc.DataTo(&user); err != nil {
		return nil, fmt.Errorf("failed to parse user: %w", err)
	}
	return &user, nil
}

var _ repository.UserRepository = (*FirestoreUserRepository)(nil)
