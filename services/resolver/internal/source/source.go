// Package source defines listing sites that map a media reference onto
// provider embed links, and the registry used to select one by name.
package source

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/example/mcat-providers/services/resolver/internal/media"
)

// Source scrapes every configured provider for ref. A nil result with a
// nil error never happens: an unresolvable ref is media.ErrNotFound.
type Source interface {
	Name() string
	ScrapeAll(ctx context.Context, ref media.Ref) (*media.AggregatedResult, error)
}

// Registry is a read-only index of sources by lowercase name.
type Registry struct {
	byName map[string]Source
}

func NewRegistry(sources ...Source) (Registry, error) {
	byName := make(map[string]Source, len(sources))
	for _, s := range sources {
		if s == nil {
			return Registry{}, fmt.Errorf("source must not be nil")
		}
		name := strings.ToLower(strings.TrimSpace(s.Name()))
		if name == "" {
			return Registry{}, fmt.Errorf("source name must not be empty")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("duplicate source %q", name)
		}
		byName[name] = s
	}
	return Registry{byName: byName}, nil
}

func (r Registry) Get(name string) (Source, bool) {
	if r.byName == nil {
		return nil, false
	}
	s, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

// Names returns registered keys in sorted order.
func (r Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
