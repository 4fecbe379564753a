// Package provider defines the capability that turns an opaque embed link
// into playable streams, and the registry a source uses to pick one per
// server name.
package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/example/mcat-providers/services/resolver/internal/media"
)

// Provider resolves an embed link. Resolve never returns an error: any
// failure is logged by the implementation and reported as nil.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, link string) *media.ProviderResult
}

// State describes how a server name is known to a Registry.
type State int

const (
	Unknown State = iota
	Disabled
	Enabled
)

func (s State) String() string {
	switch s {
	case Enabled:
		return "enabled"
	case Disabled:
		return "disabled"
	}
	return "unknown"
}

// Registry maps lowercase server names to providers. A name registered
// with Disable is known but has no provider.
type Registry struct {
	byName map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Provider)}
}

func normalize(name string) string { return strings.ToLower(strings.TrimSpace(name)) }

// Register binds name to p. Registering the same name twice is an error.
func (r *Registry) Register(name string, p Provider) error {
	if p == nil {
		return fmt.Errorf("provider for %q must not be nil, use Disable", name)
	}
	return r.put(name, p)
}

// Disable records name as a known server with no provider.
func (r *Registry) Disable(name string) error {
	return r.put(name, nil)
}

func (r *Registry) put(name string, p Provider) error {
	key := normalize(name)
	if key == "" {
		return fmt.Errorf("provider name must not be empty")
	}
	if _, ok := r.byName[key]; ok {
		return fmt.Errorf("duplicate provider %q", key)
	}
	r.byName[key] = p
	return nil
}

// Lookup returns the provider for name and its state. The provider is nil
// unless the state is Enabled.
func (r *Registry) Lookup(name string) (Provider, State) {
	p, ok := r.byName[normalize(name)]
	switch {
	case !ok:
		return nil, Unknown
	case p == nil:
		return nil, Disabled
	}
	return p, Enabled
}

// Enabled lists enabled server names in sorted order.
func (r *Registry) Enabled() []string {
	out := make([]string, 0, len(r.byName))
	for name, p := range r.byName {
		if p != nil {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
