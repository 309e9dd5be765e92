// Package registry holds the ordered catalog of supported chains. Order is
// the locator's scan priority: the first chain that reports a transaction
// wins, so the slice order is a configuration concern, not an accident.
package registry

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/paywatch/evmpay/types"
)

// ErrEmpty is returned when the registry would hold no chains at all.
var ErrEmpty = errors.New("chain registry is empty")

var validate = validator.New()

// Registry is the immutable, ordered set of chain configurations.
type Registry struct {
	chains []types.ChainConfig
}

// New validates and freezes the given chain list. The registry is read-only
// after construction.
func New(chains []types.ChainConfig) (*Registry, error) {
	if len(chains) == 0 {
		return nil, ErrEmpty
	}

	seen := make(map[string]struct{}, len(chains))
	for i, c := range chains {
		if err := validate.Struct(c); err != nil {
			return nil, fmt.Errorf("invalid chain config %d (%s): %w", i, c.Name, err)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("duplicate chain id %s", c.ID)
		}
		seen[c.ID] = struct{}{}
	}

	cp := make([]types.ChainConfig, len(chains))
	copy(cp, chains)
	return &Registry{chains: cp}, nil
}

// Chains returns the configurations in scan-priority order.
func (r *Registry) Chains() []types.ChainConfig {
	cp := make([]types.ChainConfig, len(r.chains))
	copy(cp, r.chains)
	return cp
}

// Lookup returns the configuration for a hex chain id.
func (r *Registry) Lookup(id string) (types.ChainConfig, bool) {
	for _, c := range r.chains {
		if c.ID == id {
			return c, true
		}
	}
	return types.ChainConfig{}, false
}

// Len returns the number of registered chains.
func (r *Registry) Len() int { return len(r.chains) }
