// Package telemetry provides OpenTelemetry initialization and pool instrumentation.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// MeterName is the instrumentation scope used for pool instruments.
const MeterName = "github.com/coachpo/spawnpool/internal/pool"

const (
	defaultEnvironment    = "development"
	defaultExportInterval = 30 * time.Second
)

// teardownBuckets spans 10µs to 100ms, in milliseconds.
var teardownBuckets = []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 25, 50, 100}

// Config selects whether pool metrics are exported and where to.
type Config struct {
	Enabled        bool
	OTLPEndpoint   string
	OTLPInsecure   bool
	ExportInterval time.Duration
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// DefaultConfig exports nothing until Enabled is set.
func DefaultConfig() Config {
	return Config{
		OTLPEndpoint:   "localhost:4318",
		ExportInterval: defaultExportInterval,
		ServiceName:    "spawnpool",
		ServiceVersion: "1.0.0",
		Environment:    defaultEnvironment,
	}
}

// Provider owns the meter provider, if any, for the life of a run.
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	environment   string
}

// NewProvider builds a periodic OTLP/HTTP metric pipeline and installs it as
// the global meter provider. When cfg is disabled the provider hands out the
// global meters untouched.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	p := &Provider{environment: normalizeEnvironment(cfg.Environment)}
	if !cfg.Enabled {
		return p, nil
	}

	exporter, err := otlpmetrichttp.New(ctx, exporterOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			AttrEnvironment.String(p.environment),
		),
		resource.WithProcessRuntimeName(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("create telemetry resource: %w", err)
	}

	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = defaultExportInterval
	}
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithView(HistogramViews()...),
	)
	otel.SetMeterProvider(p.meterProvider)
	return p, nil
}

// exporterOptions accepts either host:port or a full URL for the endpoint.
func exporterOptions(cfg Config) []otlpmetrichttp.Option {
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	if strings.Contains(endpoint, "://") {
		return []otlpmetrichttp.Option{otlpmetrichttp.WithEndpointURL(endpoint)}
	}
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(endpoint)}
	if cfg.OTLPInsecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	return opts
}

// Shutdown flushes pending exports and stops the pipeline.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.meterProvider == nil {
		return nil
	}
	if err := p.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown meter: %w", err)
	}
	return nil
}

// Meter returns a meter from the owned pipeline, or the global one when
// export is disabled.
func (p *Provider) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if p == nil || p.meterProvider == nil {
		return otel.Meter(name, opts...)
	}
	return p.meterProvider.Meter(name, opts...)
}

// Environment is the lower-cased environment label attached to every series.
func (p *Provider) Environment() string {
	if p == nil {
		return defaultEnvironment
	}
	return p.environment
}

func normalizeEnvironment(env string) string {
	env = strings.ToLower(strings.TrimSpace(env))
	if env == "" {
		return defaultEnvironment
	}
	return env
}

// HistogramViews sets explicit buckets on the teardown duration histogram.
func HistogramViews() []sdkmetric.View {
	return []sdkmetric.View{
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "pool.teardown.duration", Kind: sdkmetric.InstrumentKindHistogram},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: teardownBuckets}},
		),
	}
}
