package graph

import (
	"log/slog"

	"github.com/nodeflow/nodeflow/graph/emit"
)

// Option is a functional option for configuring an Executor.
//
// Example:
//
//	ex := graph.NewExecutor(registry,
//	    graph.WithCache(graph.NewMemoryCache()),
//	    graph.WithEmitter(emit.NewLogEmitter(os.Stdout, false)),
//	)
type Option func(*config)

type config struct {
	cache   OutputCache
	emitter emit.Emitter
	metrics *Metrics
	logger  *slog.Logger
}

func defaultConfig() config {
	return config{
		cache:   NewMemoryCache(),
		emitter: emit.NewNullEmitter(),
		logger:  slog.Default(),
	}
}

// WithCache sets the output cache shared across runs. Defaults to a fresh
// MemoryCache.
func WithCache(cache OutputCache) Option {
	return func(cfg *config) {
		if cache != nil {
			cfg.cache = cache
		}
	}
}

// WithEmitter sets the progress event emitter. Use emit.Multi to fan out
// to several backends. Defaults to a NullEmitter.
func WithEmitter(emitter emit.Emitter) Option {
	return func(cfg *config) {
		if emitter != nil {
			cfg.emitter = emitter
		}
	}
}

// WithMetrics attaches Prometheus metrics collection.
func WithMetrics(m *Metrics) Option {
	return func(cfg *config) { cfg.metrics = m }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}
