package convert

import (
	"fmt"

	"github.com/mvbarbosa/docetl/internal/common"
)

// Registry resolves configured provider names to implementations once at
// startup, so an unknown name fails before the first job, not mid-pipeline.
type Registry struct {
	chain []Provider
}

// NewRegistry builds the fallback chain in the order given. Every name must
// resolve; duplicates are a configuration defect.
func NewRegistry(order []string, available map[string]Provider) (*Registry, error) {
	if len(order) == 0 {
		return nil, common.NewAppError("PROVIDER_CONFIG", "provider order is empty", common.ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(order))
	chain := make([]Provider, 0, len(order))
	for _, name := range order {
		if _, dup := seen[name]; dup {
			return nil, common.NewAppError("PROVIDER_CONFIG",
				fmt.Sprintf("provider %q listed twice", name), common.ErrInvalidInput)
		}
		seen[name] = struct{}{}
		p, ok := available[name]
		if !ok {
			return nil, common.NewAppError("PROVIDER_CONFIG",
				fmt.Sprintf("unknown provider %q", name), common.ErrInvalidInput)
		}
		chain = append(chain, p)
	}
	return &Registry{chain: chain}, nil
}

// Chain returns providers in priority order.
func (r *Registry) Chain() []Provider {
	out := make([]Provider, len(r.chain))
	copy(out, r.chain)
	return out
}
