package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/suPer8Hu/agentk/internal/store"
)

type ProviderFactory func(ctx context.Context, model string) (Generator, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func normalizeProvider(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = normalizeProvider(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(ctx context.Context, name string, model string) (Generator, error) {
	name = normalizeProvider(name)
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return f(ctx, model)
}

// Names lists the registered providers in lexical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ModelLookup resolves a model id to its catalog row.
type ModelLookup interface {
	Lookup(ctx context.Context, id string) (store.Model, error)
}

// Router is a Generator that picks the adapter for each request from the
// model's provider.
type Router struct {
	models   ModelLookup
	registry *Registry
}

func NewRouter(models ModelLookup, registry *Registry) *Router {
	return &Router{models: models, registry: registry}
}

func (r *Router) Generate(ctx context.Context, req Request) (string, error) {
	m, err := r.models.Lookup(ctx, req.ModelID)
	if err != nil {
		return "", err
	}
	gen, err := r.registry.Get(ctx, m.Provider, m.ID)
	if err != nil {
		return "", err
	}
	return gen.Generate(ctx, req)
}
