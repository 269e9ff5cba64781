package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/zyncapp/zync/host/internal/shared/types"
)

// Provider interface for capability implementations.
//
// op is the full envelope type (e.g. "api:fs:read"); params is the
// request payload minus the correlation token.
type Provider interface {
	Definition() types.Capability
	Execute(ctx context.Context, op string, params map[string]interface{}, sctx *types.Context) (*types.Result, error)
}

// Registry maps envelope types to the provider serving them.
//
// The capability surface is a closed set: every operation a sandbox may
// invoke is registered here explicitly, and anything outside the set is
// answered with an unsupported-capability error. Both sandbox kinds use
// this type with different provider sets.
type Registry struct {
	ops      sync.Map // op type -> Provider
	mu       sync.Mutex
	families []types.Capability
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a capability provider, mapping each of its operations.
func (r *Registry) Register(provider Provider) error {
	def := provider.Definition()
	if def.Family == "" {
		return fmt.Errorf("capability family cannot be empty")
	}
	if len(def.Ops) == 0 {
		return fmt.Errorf("capability %s declares no operations", def.Family)
	}

	for _, op := range def.Ops {
		if op.ID == "" {
			return fmt.Errorf("capability %s declares an operation with no id", def.Family)
		}
		r.ops.Store(op.ID, provider)
	}

	r.mu.Lock()
	r.families = append(r.families, def)
	r.mu.Unlock()
	return nil
}

// Lookup finds the provider serving an envelope type.
func (r *Registry) Lookup(opType string) (Provider, bool) {
	val, ok := r.ops.Load(opType)
	if !ok {
		return nil, false
	}
	return val.(Provider), true
}

// Capabilities returns the registered capability definitions.
func (r *Registry) Capabilities() []types.Capability {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.Capability, len(r.families))
	copy(out, r.families)
	return out
}
