package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/suPer8Hu/agentk/internal/ai"
	"github.com/suPer8Hu/agentk/internal/catalog"
	"github.com/suPer8Hu/agentk/internal/chat"
	"github.com/suPer8Hu/agentk/internal/config"
	"github.com/suPer8Hu/agentk/internal/keys"
	"github.com/suPer8Hu/agentk/internal/store"
	"github.com/suPer8Hu/agentk/internal/store/rabbitmq"
)

// App is the wired core shared by the server and the terminal client.
type App struct {
	Store     *store.Store
	Catalog   *catalog.Catalog
	Keys      *keys.Vault
	Providers *ai.Registry
	Sessions  *chat.Registry
	Ledger    *chat.Ledger
	Chat      *chat.Assembler

	closers []func() error
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	st, err := store.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return nil, err
	}
	a := &App{Store: st}
	a.closers = append(a.closers, st.Close)

	if err := st.Migrate(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	catOpts := []catalog.Option{
		catalog.WithLogger(log),
		catalog.WithProviderOrder(cfg.ProviderOrder),
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pctx).Err()
		cancel()
		if err != nil {
			log.Warn("redis unavailable, catalog cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			_ = rdb.Close()
		} else {
			catOpts = append(catOpts, catalog.WithCache(catalog.NewRedisCache(rdb, cfg.CatalogCacheTTL)))
			a.closers = append(a.closers, rdb.Close)
		}
	}
	a.Catalog = catalog.New(st, catOpts...)

	a.Keys, err = keys.NewVault(st, cfg.KeysSecret)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Providers = a.registerProviders(cfg, log)

	var notifier chat.Notifier
	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
		if err != nil {
			log.Warn("rabbitmq unavailable, change events disabled", zap.Error(err))
		} else {
			notifier = pub
			a.closers = append(a.closers, pub.Close)
		}
	}

	a.Sessions = chat.NewRegistry(st, log)
	a.Ledger = chat.NewLedger(st, log)
	a.Chat = chat.NewAssembler(a.Sessions, a.Ledger, ai.NewRouter(a.Catalog, a.Providers), chat.Options{
		Models:   a.Catalog,
		Notifier: notifier,
		Tokens:   ai.TokenPolicy{Mode: cfg.TokenLimitMode, Limit: cfg.TokenLimit},
		Logger:   log,
	})

	a.seedCatalog(ctx, cfg, log)
	return a, nil
}

func (a *App) registerProviders(cfg *config.Config, log *zap.Logger) *ai.Registry {
	reg := ai.NewRegistry()

	reg.Register("ollama", func(ctx context.Context, model string) (ai.Generator, error) {
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, model), nil
	})

	// the vault key wins over the environment
	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Generator, error) {
		apiKey, err := a.Keys.Get(ctx, "openrouter")
		if err != nil {
			if !errors.Is(err, keys.ErrKeyNotFound) && !errors.Is(err, keys.ErrNoSecret) {
				log.Warn("openrouter key lookup failed", zap.Error(err))
			}
			apiKey = cfg.OpenRouterAPIKey
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, apiKey, model, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})
	return reg
}

// seedCatalog fills an empty catalog from the local Ollama host so a first
// run has something to select.
func (a *App) seedCatalog(ctx context.Context, cfg *config.Config, log *zap.Logger) {
	existing, err := a.Catalog.List(ctx)
	if err != nil || len(existing) > 0 {
		return
	}
	if !strings.EqualFold(cfg.DefaultProvider, "ollama") {
		return
	}

	lctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	names, err := ai.NewOllamaProvider(cfg.OllamaBaseURL, "").ListModels(lctx)
	if err != nil {
		log.Info("catalog empty and ollama not reachable", zap.Error(err))
		return
	}
	models := make([]store.Model, 0, len(names))
	for _, n := range names {
		models = append(models, store.Model{ID: n, Provider: "Ollama", Enabled: true})
	}
	if err := a.Catalog.ReplaceAll(ctx, models); err != nil {
		log.Warn("seed catalog failed", zap.Error(err))
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
