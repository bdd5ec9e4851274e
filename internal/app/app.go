// Package app holds the process-wide App handle: every constructed
// component, threaded by pointer into the HTTP surface's handlers
// instead of package-level globals, so tests can run several
// independent gateways in one process.
package app

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clawgate/clawgate/internal/config"
	"github.com/clawgate/clawgate/internal/metrics"
	"github.com/clawgate/clawgate/internal/obs"
	"github.com/clawgate/clawgate/internal/provider"
	"github.com/clawgate/clawgate/internal/provider/anthropic"
	"github.com/clawgate/clawgate/internal/provider/google"
	"github.com/clawgate/clawgate/internal/provider/openai"
	"github.com/clawgate/clawgate/internal/routing"
)

// App is the single struct every internal/httpapi handler constructor
// takes a pointer to. It is built once in cmd/clawgate/main.go and never
// duplicated or mutated by handlers after New returns.
type App struct {
	Config   *config.Config
	Registry *provider.Registry
	Router   *routing.Engine
	Metrics  *metrics.Store
	Logger   *zap.Logger
	Tracer   trace.Tracer
	Process  *obs.ProcessMetrics

	tracerShutdown obs.Shutdown
}

// New wires every core component from cfg: the provider registry (one
// Backend per configured provider with a non-empty API key), the
// routing engine, and the metrics store. Router construction happens
// here with a nil classifier; callers that enable llm_classifier
// replace Router via SetRouter once the HTTP surface's callback is
// ready, since internal/app sits below internal/httpapi and must not
// import it.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	registry, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app: building provider registry: %w", err)
	}

	engine, err := routing.NewEngine(cfg, nil, logger)
	if err != nil {
		return nil, fmt.Errorf("app: building routing engine: %w", err)
	}

	var store *metrics.Store
	if cfg.Metrics.Enabled {
		store, err = metrics.Init(cfg.Metrics, logger)
		if err != nil {
			return nil, fmt.Errorf("app: initializing metrics store: %w", err)
		}
	}

	tracer, tracerShutdown, err := obs.InitTracer(ctx, obs.TracerConfig{
		Enabled:      cfg.Tracing.Enabled,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		ServiceName:  "clawgate",
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("app: initializing tracer: %w", err)
	}

	return &App{
		Config:         cfg,
		Registry:       registry,
		Router:         engine,
		Metrics:        store,
		Logger:         logger,
		Tracer:         tracer,
		Process:        obs.NewProcessMetrics(),
		tracerShutdown: tracerShutdown,
	}, nil
}

// SetRouter replaces the routing engine, used by cmd/clawgate/main.go
// once the HTTP surface's LLM-classifier callback has been constructed,
// since internal/routing must not import internal/provider directly.
func (a *App) SetRouter(e *routing.Engine) {
	a.Router = e
}

// buildRegistry constructs one Backend per configured provider whose
// API key resolves to non-empty, concurrently via errgroup.
func buildRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*provider.Registry, error) {
	registry := provider.NewRegistry()

	type built struct {
		name    string
		backend provider.Provider
	}

	names := make([]string, 0, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		if pc.APIKey == "" {
			logger.Warn("skipping provider with empty api key", zap.String("provider", name))
			continue
		}
		names = append(names, name)
	}

	results := make([]built, len(names))
	g, _ := errgroup.WithContext(ctx)
	for i, name := range names {
		i, name := i, name
		pc := cfg.Providers[name]
		g.Go(func() error {
			backend, err := newBackend(pc, cfg.Health.MaxFailures, logger)
			if err != nil {
				return fmt.Errorf("provider %q: %w", name, err)
			}
			results[i] = built{name: name, backend: backend}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, b := range results {
		registry.Register(b.name, b.backend)
	}

	return registry, nil
}

// newBackend constructs the dialect-specific Backend for pc.Dialect.
// An unrecognized dialect is a configuration error caught here rather
// than deferred to a request-time nil-interface panic.
func newBackend(pc config.ProviderConfig, healthMaxFailures int, logger *zap.Logger) (provider.Provider, error) {
	switch pc.Dialect {
	case config.DialectOpenAICompat:
		return openai.NewBackend(pc, healthMaxFailures, logger), nil
	case config.DialectGoogleGenAI:
		return google.NewBackend(pc, healthMaxFailures, logger), nil
	case config.DialectAnthropicCompat:
		return anthropic.NewBackend(pc, healthMaxFailures, logger), nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", pc.Dialect)
	}
}

// Close releases every component the App owns: provider HTTP clients,
// the metrics store's connection pool, and the tracer's exporter.
func (a *App) Close(ctx context.Context) error {
	var firstErr error

	if err := a.Registry.CloseAll(); err != nil && firstErr == nil {
		firstErr = err
	}
	if a.Metrics != nil {
		if err := a.Metrics.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
