package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ivanlozanoq/PoP-OAuth2/internal/apperror"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/model"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/repository"
)

var _ repository.StateRepository = (*DB)(nil)

// Save records an issued state. Expired rows are purged first so the table
// does not grow with abandoned logins.
func (db *DB) Save(ctx context.Context, state model.PendingState) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM oauth_states WHERE expires_at <= ?`, db.now().UnixMilli(),
	); err != nil {
		return fmt.Errorf("sqlite: purging expired states: %w", err)
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO oauth_states (state, provider, expires_at) VALUES (?, ?, ?)`,
		state.State, strings.ToLower(state.Provider), state.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		if isConstraintError(err) {
			return apperror.Conflict("state", state.State)
		}
		return fmt.Errorf("sqlite: saving state: %w", err)
	}
	return nil
}

// Consume deletes the state in the same statement that reads it, so a state
// can be redeemed at most once even under concurrent callbacks.
func (db *DB) Consume(ctx context.Context, state, provider string) error {
	var (
		storedProvider string
		expiresAt      int64
	)
	err := db.conn.QueryRowContext(ctx,
		`DELETE FROM oauth_states WHERE state = ? RETURNING provider, expires_at`, state,
	).Scan(&storedProvider, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.InvalidRequest("state", "unknown or already used state")
		}
		return fmt.Errorf("sqlite: consuming state: %w", err)
	}

	if !strings.EqualFold(storedProvider, provider) {
		return apperror.InvalidRequest("state", "state was issued for another provider")
	}
	if !db.now().Before(time.UnixMilli(expiresAt)) {
		return apperror.InvalidRequest("state", "state has expired")
	}
	return nil
}
