// Package intervention maps tool calls onto human-intervention decisions.
//
// Each tool has a policy mode: never intervene, always intervene, or ask a
// named dynamic resolver. Resolvers are looked up in a Registry; the
// built-in path scope resolver is always present.
package intervention

import (
	"sort"
	"sync"

	"github.com/TheLazyLemur/pathscope/internal/scope"
	"github.com/pkg/errors"
)

// Resolver decides whether a single tool call needs intervention.
type Resolver interface {
	Resolve(args scope.Arguments, md scope.Metadata) bool
}

// Explainer is implemented by resolvers that can name the offending paths.
type Explainer interface {
	Explain(args scope.Arguments, md scope.Metadata) []string
}

// ResolverFunc adapts a plain function to Resolver.
type ResolverFunc func(args scope.Arguments, md scope.Metadata) bool

func (f ResolverFunc) Resolve(args scope.Arguments, md scope.Metadata) bool {
	return f(args, md)
}

var _ Resolver = scope.PathScopeResolver{}
var _ Explainer = scope.PathScopeResolver{}

// Registry holds dynamic resolvers by name. Safe for concurrent use. The zero
// value is an empty registry; NewRegistry adds the built-in resolvers.
type Registry struct {
	mu        sync.RWMutex
	resolvers map[string]Resolver
}

// NewRegistry returns a registry with the built-in resolvers registered.
func NewRegistry() *Registry {
	return &Registry{
		resolvers: map[string]Resolver{
			scope.ResolverName: scope.PathScopeResolver{},
		},
	}
}

// Register adds a resolver under name. Names are unique.
func (r *Registry) Register(name string, resolver Resolver) error {
	if name == "" {
		return errors.New("resolver name required")
	}
	if resolver == nil {
		return errors.Errorf("resolver %q is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolvers == nil {
		r.resolvers = make(map[string]Resolver)
	}
	if _, exists := r.resolvers[name]; exists {
		return errors.Errorf("resolver %q already registered", name)
	}
	r.resolvers[name] = resolver
	return nil
}

// Lookup returns the resolver registered under name.
func (r *Registry) Lookup(name string) (Resolver, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resolver, ok := r.resolvers[name]
	return resolver, ok
}

// Names returns the registered resolver names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.resolvers))
	for name := range r.resolvers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
