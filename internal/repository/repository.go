// Package repository declares the storage contracts the service layer depends on.
// Concrete stores live in the memory, sqlite and postgres subpackages.
package repository

import (
	"context"

	"github.com/ivanlozanoq/PoP-OAuth2/internal/model"
)

// UserRepository persists local users keyed by provider identity.
//
// Lookups return an error matching apperror.ErrNotFound when nothing matches.
// Implementations must be safe for concurrent use.
type UserRepository interface {
	FindByProviderIdentity(ctx context.Context, providerID, provider string) (*model.User, error)

	// FindByEmail matches case-insensitively.
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	GetByID(ctx context.Context, id string) (*model.User, error)

	// Create assigns an ID when empty and stamps CreatedAt and UpdatedAt.
	// A duplicate ID or provider identity fails with apperror.ErrConflict.
	Create(ctx context.Context, user *model.User) error

	// Update persists Name and Email and stamps UpdatedAt. An unknown ID
	// fails with an error matching both apperror.ErrConflict and ErrNotFound.
	Update(ctx context.Context, user *model.User) error
}

// StateRepository tracks issued state values so a callback can be matched to
// the login that started it.
type StateRepository interface {
	Save(ctx context.Context, state model.PendingState) error

	// Consume deletes the state and fails with apperror.ErrInvalidRequest when
	// it is unknown, expired, or was issued for another provider.
	Consume(ctx context.Context, state, provider string) error
}
