package catalog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/suPer8Hu/agentk/internal/logging"
	"github.com/suPer8Hu/agentk/internal/store"
)

var (
	ErrModelNotFound = errors.New("model not found")
	ErrModelDisabled = errors.New("model is disabled")
	ErrInvalidModel  = errors.New("model id and provider are required")
)

// Catalog is the model list the chat core resolves against. Reads go through
// the optional cache; every write invalidates it.
type Catalog struct {
	store *store.Store
	cache Cache
	order []string
	log   *zap.Logger
	now   func() time.Time
}

type Option func(*Catalog)

func WithCache(c Cache) Option {
	return func(cat *Catalog) { cat.cache = c }
}

func WithProviderOrder(order []string) Option {
	return func(cat *Catalog) {
		if len(order) > 0 {
			cat.order = order
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(cat *Catalog) { cat.log = logging.OrNop(l) }
}

func New(st *store.Store, opts ...Option) *Catalog {
	c := &Catalog{
		store: st,
		order: DefaultProviderOrder,
		log:   zap.NewNop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// List returns every model, enabled first.
func (c *Catalog) List(ctx context.Context) ([]store.Model, error) {
	if c.cache != nil {
		models, hit, err := c.cache.Load(ctx)
		if err != nil {
			c.log.Warn("catalog cache load failed", zap.Error(err))
		} else if hit {
			return models, nil
		}
	}

	models, err := c.store.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	SortModels(models)

	if c.cache != nil {
		if err := c.cache.Save(ctx, models); err != nil {
			c.log.Warn("catalog cache save failed", zap.Error(err))
		}
	}
	return models, nil
}

func (c *Catalog) Enabled(ctx context.Context) ([]store.Model, error) {
	all, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]store.Model, 0, len(all))
	for _, m := range all {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out, nil
}

// ByProvider returns the enabled models of one provider, case-insensitively.
func (c *Catalog) ByProvider(ctx context.Context, provider string) ([]store.Model, error) {
	enabled, err := c.Enabled(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]store.Model, 0)
	for _, m := range enabled {
		if strings.EqualFold(m.Provider, strings.TrimSpace(provider)) {
			out = append(out, m)
		}
	}
	return out, nil
}

// Providers lists the distinct providers that have an enabled model.
func (c *Catalog) Providers(ctx context.Context) ([]string, error) {
	enabled, err := c.Enabled(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, m := range enabled {
		if _, ok := seen[m.Provider]; ok {
			continue
		}
		seen[m.Provider] = struct{}{}
		out = append(out, m.Provider)
	}
	less := ProviderLess(c.order)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out, nil
}

// Lookup resolves an enabled model by id.
func (c *Catalog) Lookup(ctx context.Context, id string) (store.Model, error) {
	id = strings.TrimSpace(id)
	all, err := c.List(ctx)
	if err != nil {
		return store.Model{}, err
	}
	for _, m := range all {
		if m.ID != id {
			continue
		}
		if !m.Enabled {
			return m, ErrModelDisabled
		}
		return m, nil
	}
	return store.Model{}, ErrModelNotFound
}

func (c *Catalog) Upsert(ctx context.Context, m store.Model) (store.Model, error) {
	m.ID = strings.TrimSpace(m.ID)
	m.Provider = strings.TrimSpace(m.Provider)
	m.Name = strings.TrimSpace(m.Name)
	if m.ID == "" || m.Provider == "" {
		return store.Model{}, ErrInvalidModel
	}
	m.Updated = c.now().UnixMilli()
	if err := c.store.PutModel(ctx, &m); err != nil {
		return store.Model{}, err
	}
	c.invalidate(ctx)
	return m, nil
}

func (c *Catalog) SetEnabled(ctx context.Context, id string, enabled bool) error {
	return c.update(ctx, id, map[string]any{"enabled": enabled})
}

// Rename sets the display label. A blank name restores the id as label.
func (c *Catalog) Rename(ctx context.Context, id, name string) error {
	return c.update(ctx, id, map[string]any{"name": strings.TrimSpace(name)})
}

func (c *Catalog) update(ctx context.Context, id string, fields map[string]any) error {
	fields["updated"] = c.now().UnixMilli()
	err := c.store.UpdateModel(ctx, strings.TrimSpace(id), fields)
	if errors.Is(err, store.ErrNotFound) {
		return ErrModelNotFound
	}
	if err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// ReplaceAll swaps the whole catalog, as after a provider refresh.
func (c *Catalog) ReplaceAll(ctx context.Context, models []store.Model) error {
	now := c.now().UnixMilli()
	rows := make([]store.Model, 0, len(models))
	seen := make(map[string]struct{}, len(models))
	for _, m := range models {
		m.ID = strings.TrimSpace(m.ID)
		m.Provider = strings.TrimSpace(m.Provider)
		if m.ID == "" || m.Provider == "" {
			return ErrInvalidModel
		}
		if _, dup := seen[m.ID]; dup {
			continue
		}
		seen[m.ID] = struct{}{}
		m.Updated = now
		rows = append(rows, m)
	}
	if err := c.store.ReplaceModels(ctx, rows); err != nil {
		return err
	}
	c.invalidate(ctx)
	c.log.Info("catalog replaced", zap.Int("models", len(rows)))
	return nil
}

func (c *Catalog) Delete(ctx context.Context, provider, id string) (bool, error) {
	n, err := c.store.DeleteModel(ctx, strings.TrimSpace(provider), strings.TrimSpace(id))
	if err != nil {
		return false, err
	}
	c.invalidate(ctx)
	return n > 0, nil
}

func (c *Catalog) invalidate(ctx context.Context) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Invalidate(ctx); err != nil {
		c.log.Warn("catalog cache invalidate failed", zap.Error(err))
	}
}
