// Package memory implements the repository interfaces on in-process maps.
//
// It is the default store for tests and for single-instance deployments that
// do not need users to survive a restart. All methods are safe for
// concurrent use; records are copied in and out so callers never share
// memory with the store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/ivanlozanoq/PoP-OAuth2/internal/apperror"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/model"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/repository"
)

var (
	_ repository.UserRepository  = (*Store)(nil)
	_ repository.StateRepository = (*Store)(nil)
)

type identityKey struct {
	provider   string
	providerID string
}

// Store holds users and pending states.
type Store struct {
	mu         sync.RWMutex
	users      map[string]model.User
	byIdentity map[identityKey]string
	states     map[string]model.PendingState

	now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:      make(map[string]model.User),
		byIdentity: make(map[identityKey]string),
		states:     make(map[string]model.PendingState),
		now:        time.Now,
	}
}

// WithClock replaces the time source used for timestamps and state expiry.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) FindByProviderIdentity(ctx context.Context, providerID, provider string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperror.Canceled("memory: finding user", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byIdentity[identityKey{provider: provider, providerID: providerID}]
	if !ok {
		return nil, apperror.NotFound("user", provider+"/"+providerID)
	}
	u := s.users[id]
	return &u, nil
}

// FindByEmail returns the oldest user whose email equals email ignoring case.
// A blank email never matches.
func (s *Store) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperror.Canceled("memory: finding user by email", err)
	}
	if strings.TrimSpace(email) == "" {
		return nil, apperror.NotFound("user", email)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []model.User
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			matches = append(matches, u)
		}
	}
	if len(matches) == 0 {
		return nil, apperror.NotFound("user", email)
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})
	u := matches[0]
	return &u, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperror.Canceled("memory: getting user", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return &u, nil
}

func (s *Store) Create(ctx context.Context, user *model.User) error {
	if err := ctx.Err(); err != nil {
		return apperror.Canceled("memory: creating user", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(user.ID) == "" {
		user.ID = xid.New().String()
	}
	if _, exists := s.users[user.ID]; exists {
		return apperror.Conflict("user", user.ID)
	}
	key := identityKey{provider: user.Provider, providerID: user.ProviderID}
	if _, exists := s.byIdentity[key]; exists {
		return apperror.Conflict("user", user.Provider+"/"+user.ProviderID)
	}

	now := s.now()
	user.CreatedAt = now
	user.UpdatedAt = now

	s.users[user.ID] = *user
	s.byIdentity[key] = user.ID
	return nil
}

// Update writes Name and Email. Identity fields and CreatedAt keep their
// stored values, which are copied back into user.
func (s *Store) Update(ctx context.Context, user *model.User) error {
	if err := ctx.Err(); err != nil {
		return apperror.Canceled("memory: updating user", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.users[user.ID]
	if !ok {
		return apperror.UnknownID("user", user.ID)
	}

	now := s.now()
	if now.Before(stored.CreatedAt) {
		now = stored.CreatedAt
	}
	stored.Name = user.Name
	stored.Email = user.Email
	stored.UpdatedAt = now

	s.users[stored.ID] = stored
	*user = stored
	return nil
}

func (s *Store) Save(ctx context.Context, state model.PendingState) error {
	if err := ctx.Err(); err != nil {
		return apperror.Canceled("memory: saving state", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneExpired()
	if _, exists := s.states[state.State]; exists {
		return apperror.Conflict("state", state.State)
	}
	s.states[state.State] = state
	return nil
}

func (s *Store) Consume(ctx context.Context, state, provider string) error {
	if err := ctx.Err(); err != nil {
		return apperror.Canceled("memory: consuming state", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pending, ok := s.states[state]
	if !ok {
		return apperror.InvalidRequest("state", "unknown or already used state")
	}
	delete(s.states, state)

	if !strings.EqualFold(pending.Provider, provider) {
		return apperror.InvalidRequest("state", "state was issued for another provider")
	}
	if !s.now().Before(pending.ExpiresAt) {
		return apperror.InvalidRequest("state", "state has expired")
	}
	return nil
}

// pruneExpired drops states whose expiry has passed. Callers hold s.mu.
func (s *Store) pruneExpired() {
	now := s.now()
	for k, st := range s.states {
		if !now.Before(st.ExpiresAt) {
			delete(s.states, k)
		}
	}
}
