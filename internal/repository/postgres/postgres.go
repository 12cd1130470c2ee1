// Package postgres implements repository.UserRepository on PostgreSQL via a
// pgx connection pool. Use it when several service instances share users.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/xid"

	"github.com/ivanlozanoq/PoP-OAuth2/internal/apperror"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/model"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/repository"
)

var _ repository.UserRepository = (*Store)(nil)

const uniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id          TEXT PRIMARY KEY,
	provider    TEXT NOT NULL,
	provider_id TEXT NOT NULL,
	email       TEXT NOT NULL DEFAULT '',
	name        TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (provider, provider_id)
);
CREATE INDEX IF NOT EXISTS idx_users_email_lower ON users (lower(email));
`

const userColumns = `id, provider, provider_id, email, name, created_at, updated_at`

// Store is a pgxpool-backed user store.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// Open connects to dsn, verifies the connection and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool. The caller owns the pool's lifecycle unless
// Close is called.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, now: time.Now}
}

// Migrate creates the users table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: running migrations: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases every pooled connection.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Provider, &u.ProviderID, &u.Email, &u.Name, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) FindByProviderIdentity(ctx context.Context, providerID, provider string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider = $1 AND provider_id = $2`,
		provider, providerID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", provider+"/"+providerID)
		}
		return nil, fmt.Errorf("postgres: finding user %s/%s: %w", provider, providerID, err)
	}
	return u, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if strings.TrimSpace(email) == "" {
		return nil, apperror.NotFound("user", email)
	}

	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE lower(email) = lower($1)
		 ORDER BY created_at, id
		 LIMIT 1`,
		email,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("postgres: finding user by email: %w", err)
	}
	return u, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("postgres: getting user %s: %w", id, err)
	}
	return u, nil
}

func (s *Store) Create(ctx context.Context, user *model.User) error {
	if strings.TrimSpace(user.ID) == "" {
		user.ID = xid.New().String()
	}
	now := s.now().UTC().Truncate(time.Microsecond)
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Provider, user.ProviderID, user.Email, user.Name, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return apperror.Conflict("user", user.ID)
		}
		return fmt.Errorf("postgres: inserting user (%s/%s): %w", user.Provider, user.ProviderID, err)
	}
	return nil
}

// Update writes name and email and returns the stored row into user.
func (s *Store) Update(ctx context.Context, user *model.User) error {
	now := s.now().UTC().Truncate(time.Microsecond)

	stored, err := scanUser(s.pool.QueryRow(ctx,
		`UPDATE users SET name = $1, email = $2, updated_at = GREATEST($3, created_at)
		 WHERE id = $4
		 RETURNING `+userColumns,
		user.Name, user.Email, now, user.ID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperror.UnknownID("user", user.ID)
		}
		return fmt.Errorf("postgres: updating user %s: %w", user.ID, err)
	}
	*user = *stored
	return nil
}
