package auth

import (
	"fmt"

	"github.com/google/uuid"
)

// NewState returns a fresh OAuth2 state value: a random (version 4) UUID
// drawn from crypto/rand. Each call yields a new value.
func NewState() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("auth: generating state: %w", err)
	}
	return id.String(), nil
}
