package repository

import (
	"context"

	"tradelink/internal/domain/entity"
)

// UserRepository is the read-only view of the identity service's records
// that messaging needs.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
}
