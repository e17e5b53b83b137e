package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/doc-extract/internal/cache"
	"github.com/sells-group/doc-extract/internal/cost"
	"github.com/sells-group/doc-extract/internal/document"
	"github.com/sells-group/doc-extract/internal/llm"
	"github.com/sells-group/doc-extract/internal/pipeline"
	"github.com/sells-group/doc-extract/internal/resilience"
	"github.com/sells-group/doc-extract/internal/store"
)

// extractEnv holds the initialized clients and the pipeline needed by the
// extract, eval and serve commands.
type extractEnv struct {
	Pipeline *pipeline.Pipeline
	LLM      *llm.Orchestrator
	Cache    *cache.Client // nil when caching is disabled
}

// Close releases resources held by the environment.
func (e *extractEnv) Close() {
	if e.Cache != nil {
		_ = e.Cache.Close()
	}
}

// initExtractEnv validates the config for mode and builds the pipeline.
// Callers should defer env.Close().
func initExtractEnv(mode string) (*extractEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	extractor, err := document.NewExtractor(cfg.PDF)
	if err != nil {
		return nil, err
	}

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		zap.L().Warn("llm api key not set, every field will be unresolved",
			zap.String("provider", cfg.LLM.Provider))
	}
	orch := llm.New(provider, llm.WithCostCalculator(newCostCalculator()))

	env := &extractEnv{LLM: orch}
	var opts []pipeline.Option
	if cfg.Cache.Enabled {
		client, err := initCache()
		if err != nil {
			return nil, err
		}
		env.Cache = client
		opts = append(opts, pipeline.WithCache(client))
	} else {
		zap.L().Info("result cache disabled")
	}

	resolver := document.NewResolver(cfg.PDF.BasePath)
	env.Pipeline = pipeline.New(resolver, extractor, orch, opts...)

	zap.L().Debug("pipeline initialized",
		zap.String("engine", cfg.PDF.Engine),
		zap.String("provider", cfg.LLM.Provider),
		zap.String("model", orch.Model()),
		zap.Bool("cache", env.Cache != nil),
	)
	return env, nil
}

// newCostCalculator prices tokens with the built-in rates and any
// configured overrides.
func newCostCalculator() *cost.Calculator {
	overrides := make(cost.Rates, len(cfg.Pricing))
	for name, p := range cfg.Pricing {
		overrides[name] = cost.ModelRate{Input: p.Input, Output: p.Output}
	}
	return cost.NewCalculator(overrides)
}

// initCache builds the Redis-backed result cache behind a circuit breaker.
func initCache() (*cache.Client, error) {
	rdb, err := cache.NewRedisClient(cfg.Redis)
	if err != nil {
		return nil, err
	}
	breaker := resilience.New(resilience.FromSettings("redis",
		cfg.Cache.Breaker.FailureThreshold, cfg.Cache.Breaker.ResetTimeoutSecs))
	ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	return cache.New(cache.NewRedisStore(rdb), ttl, breaker), nil
}

// initStore opens and migrates the evaluation run store.
func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite", "":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "extract.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}
