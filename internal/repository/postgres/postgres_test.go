package postgres

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivanlozanoq/PoP-OAuth2/internal/apperror"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/model"
)

// newTestStore connects to POSTGRES_TEST_DSN. The tests are skipped when it
// is unset so the suite runs without a database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	s, err := Open(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// uniqueProvider isolates each test's rows in a shared database.
func uniqueProvider(t *testing.T, s *Store) string {
	t.Helper()
	provider := "test-" + xid.New().String()
	t.Cleanup(func() {
		_, _ = s.pool.Exec(context.Background(), `DELETE FROM users WHERE provider = $1`, provider)
	})
	return provider
}

func TestCreateAndFind(t *testing.T) {
	s := newTestStore(t)
	provider := uniqueProvider(t, s)
	ctx := context.Background()

	email := "Octo." + provider + "@Example.com"
	u := &model.User{Provider: provider, ProviderID: "42", Email: email, Name: "Octo"}
	require.NoError(t, s.Create(ctx, u))
	assert.NotEmpty(t, u.ID)
	assert.True(t, u.UpdatedAt.Equal(u.CreatedAt))

	found, err := s.FindByProviderIdentity(ctx, "42", provider)
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)

	byEmail, err := s.FindByEmail(ctx, strings.ToUpper(email))
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)
}

func TestCreate_DuplicateIdentity(t *testing.T) {
	s := newTestStore(t)
	provider := uniqueProvider(t, s)
	ctx := context.Background()

	require.NoError(t, s.Create(ctx, &model.User{Provider: provider, ProviderID: "1"}))
	err := s.Create(ctx, &model.User{Provider: provider, ProviderID: "1"})

	assert.True(t, errors.Is(err, apperror.ErrConflict), "Create() error = %v", err)
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t)
	provider := uniqueProvider(t, s)
	ctx := context.Background()

	u := &model.User{Provider: provider, ProviderID: "7", Name: "Old"}
	require.NoError(t, s.Create(ctx, u))

	u.Name = "New"
	u.Email = "new@example.com"
	require.NoError(t, s.Update(ctx, u))

	assert.Equal(t, "New", u.Name)
	assert.False(t, u.UpdatedAt.Before(u.CreatedAt))

	err := s.Update(ctx, &model.User{ID: "missing-" + xid.New().String()})
	assert.True(t, errors.Is(err, apperror.ErrConflict), "Update() error = %v", err)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "Update() error = %v", err)
}

func TestFindByProviderIdentity_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.FindByProviderIdentity(context.Background(), "nope", "test-"+xid.New().String())
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "error = %v", err)
}
