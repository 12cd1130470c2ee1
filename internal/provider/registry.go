package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ivanlozanoq/PoP-OAuth2/internal/apperror"
)

// Registry maps provider names to gateways. Names are matched ignoring case.
type Registry struct {
	mu       sync.RWMutex
	gateways map[string]Gateway
}

func NewRegistry(gateways ...Gateway) (*Registry, error) {
	r := &Registry{gateways: make(map[string]Gateway)}
	for _, g := range gateways {
		if err := r.Register(g); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds g. A second gateway with the same name is rejected.
func (r *Registry) Register(g Gateway) error {
	key := strings.ToLower(strings.TrimSpace(g.Name()))
	if key == "" {
		return fmt.Errorf("provider: gateway has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.gateways[key]; exists {
		return fmt.Errorf("provider: %q registered twice", key)
	}
	r.gateways[key] = g
	return nil
}

// Lookup returns the gateway for name or an apperror.ErrInvalidRequest.
func (r *Registry) Lookup(name string) (Gateway, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.gateways[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, apperror.InvalidRequest("provider", fmt.Sprintf("unknown provider %q", name))
	}
	return g, nil
}

// Names lists registered providers in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.gateways))
	for _, g := range r.gateways {
		names = append(names, g.Name())
	}
	sort.Strings(names)
	return names
}
