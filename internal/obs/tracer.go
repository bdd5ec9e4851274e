package obs

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TracerConfig configures the optional OTLP exporter. A zero-value
// Endpoint disables export and leaves the gateway's spans un-exported
// (the TracerProvider is still installed so instrumentation code never
// needs a nil check).
type TracerConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// Shutdown flushes and tears down the installed TracerProvider.
type Shutdown func(context.Context) error

// InitTracer installs a global TracerProvider. When cfg.Enabled is false
// or dialing the OTLP endpoint fails, it falls back to a TracerProvider
// with no exporter attached - spans are still created (so callers never
// branch on whether tracing is active) but nothing leaves the process.
// Startup never fails over an observability backend: warn and continue.
func InitTracer(ctx context.Context, cfg TracerConfig, logger *zap.Logger) (trace.Tracer, Shutdown, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(cfg.ServiceName)),
	)
	if err != nil {
		res = resource.Default()
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if cfg.Enabled && cfg.OTLPEndpoint != "" {
		dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exporter, err := otlptracegrpc.New(dialCtx,
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			logger.Warn("otlp trace exporter unavailable, tracing spans will not be exported", zap.Error(err))
		} else {
			opts = append(opts, sdktrace.WithBatcher(exporter))
		}
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	return tp.Tracer("clawgate"), tp.Shutdown, nil
}
