package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/xid"

	"github.com/ivanlozanoq/PoP-OAuth2/internal/apperror"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/model"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

const userColumns = `id, provider, provider_id, email, name, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	err := row.Scan(
		&u.ID,
		&u.Provider,
		&u.ProviderID,
		&u.Email,
		&u.Name,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindByProviderIdentity returns the user linked to (provider, providerID).
func (db *DB) FindByProviderIdentity(ctx context.Context, providerID, provider string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider = ? AND provider_id = ?`,
		provider, providerID,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", provider+"/"+providerID)
		}
		return nil, fmt.Errorf("sqlite: finding user %s/%s: %w", provider, providerID, err)
	}
	return u, nil
}

// FindByEmail matches case-insensitively and returns the oldest match.
func (db *DB) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if strings.TrimSpace(email) == "" {
		return nil, apperror.NotFound("user", email)
	}

	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE email = ? COLLATE NOCASE
		 ORDER BY created_at, id
		 LIMIT 1`,
		email,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlite: finding user by email: %w", err)
	}
	return u, nil
}

// GetByID retrieves a user by internal ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// Create inserts a new user. The UNIQUE constraints turn a duplicate id or a
// second row for the same provider identity into apperror.ErrConflict.
func (db *DB) Create(ctx context.Context, user *model.User) error {
	if strings.TrimSpace(user.ID) == "" {
		user.ID = xid.New().String()
	}
	now := db.now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.Provider,
		user.ProviderID,
		user.Email,
		user.Name,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isConstraintError(err) {
			return apperror.Conflict("user", user.ID)
		}
		return fmt.Errorf("sqlite: inserting user (%s/%s): %w", user.Provider, user.ProviderID, err)
	}
	return nil
}

// Update writes name and email and refreshes updated_at, never earlier than
// created_at. The stored row is read back into user so identity fields and
// timestamps stay canonical.
func (db *DB) Update(ctx context.Context, user *model.User) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, updated_at = MAX(?, created_at) WHERE id = ?`,
		user.Name,
		user.Email,
		db.now().UTC(),
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: updating user %s: %w", user.ID, err)
	}
	if n == 0 {
		return apperror.UnknownID("user", user.ID)
	}

	stored, err := db.GetByID(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("sqlite: reloading user %s: %w", user.ID, err)
	}
	*user = *stored
	return nil
}
