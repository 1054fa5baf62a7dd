// Package observability wires OpenTelemetry trace export into Genkit.
//
// Genkit instruments every flow and model call with OTel spans on its own
// TracerProvider. Setup attaches an OTLP HTTP exporter to that provider, so
// the spans reach whatever collector the endpoint points at (an OTel
// collector, a vendor agent listening on localhost:4318, etc). Tracing is
// opt-in: with no endpoint configured, Setup is a no-op.
package observability

import (
	"context"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/austat/austat/internal/log"
)

// Config for trace export.
type Config struct {
	// Endpoint is the OTLP HTTP host:port. Empty disables tracing.
	Endpoint string
	// Environment tags exported spans (dev, staging, prod).
	Environment string
	// ServiceName is the name spans are reported under.
	ServiceName string

	Logger log.Logger
}

// Setup registers an OTLP exporter with Genkit's TracerProvider and returns
// a shutdown function that flushes pending spans. Export failures degrade to
// disabled tracing rather than failing startup.
func Setup(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	noop := func(context.Context) error { return nil }

	if cfg.Endpoint == "" {
		return noop, nil
	}

	// Genkit's TracerProvider reads the service identity from the standard
	// OTel environment variables.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("trace exporter setup failed, tracing disabled", "error", err)
		return noop, nil
	}

	tracing.TracerProvider().RegisterSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter))

	logger.Debug("tracing enabled",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment)

	return tracing.TracerProvider().Shutdown, nil
}
