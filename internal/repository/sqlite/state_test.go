package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ivanlozanoq/PoP-OAuth2/internal/apperror"
	"github.com/ivanlozanoq/PoP-OAuth2/internal/model"
)

func TestStateSaveAndConsume(t *testing.T) {
	db, clock := newClockedTestDB(t)
	ctx := context.Background()

	err := db.Save(ctx, model.PendingState{
		State:     "state-1",
		Provider:  "GitHub",
		ExpiresAt: clock.Now().Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := db.Consume(ctx, "state-1", "github"); err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	if err := db.Consume(ctx, "state-1", "github"); !errors.Is(err, apperror.ErrInvalidRequest) {
		t.Errorf("second Consume() error = %v, want ErrInvalidRequest", err)
	}
}

func TestStateConsume_Unknown(t *testing.T) {
	db := newTestDB(t)

	err := db.Consume(context.Background(), "never-issued", "github")
	if !errors.Is(err, apperror.ErrInvalidRequest) {
		t.Errorf("Consume() error = %v, want ErrInvalidRequest", err)
	}
}

func TestStateConsume_Expired(t *testing.T) {
	db, clock := newClockedTestDB(t)
	ctx := context.Background()

	if err := db.Save(ctx, model.PendingState{State: "s", Provider: "github", ExpiresAt: clock.Now().Add(time.Minute)}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	clock.Advance(2 * time.Minute)

	if err := db.Consume(ctx, "s", "github"); !errors.Is(err, apperror.ErrInvalidRequest) {
		t.Errorf("Consume() error = %v, want ErrInvalidRequest", err)
	}
}

func TestStateConsume_WrongProvider(t *testing.T) {
	db, clock := newClockedTestDB(t)
	ctx := context.Background()

	if err := db.Save(ctx, model.PendingState{State: "s", Provider: "github", ExpiresAt: clock.Now().Add(time.Minute)}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := db.Consume(ctx, "s", "google"); !errors.Is(err, apperror.ErrInvalidRequest) {
		t.Errorf("Consume() error = %v, want ErrInvalidRequest", err)
	}
	// the state is spent even though the provider did not match
	if err := db.Consume(ctx, "s", "github"); !errors.Is(err, apperror.ErrInvalidRequest) {
		t.Errorf("Consume() after mismatch error = %v, want ErrInvalidRequest", err)
	}
}

func TestStateSave_Duplicate(t *testing.T) {
	db, clock := newClockedTestDB(t)
	ctx := context.Background()
	st := model.PendingState{State: "dup", Provider: "github", ExpiresAt: clock.Now().Add(time.Minute)}

	if err := db.Save(ctx, st); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := db.Save(ctx, st); !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("second Save() error = %v, want ErrConflict", err)
	}
}
