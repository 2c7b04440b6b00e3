package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	rollupRuns       metric.Int64Counter
	rollupWarnings   metric.Int64Counter
	reportsRendered  metric.Int64Counter
	assistantQueries metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "iaaps"
	}
	meter := provider.Meter(name)

	rollupRuns, err := meter.Int64Counter("iaaps_rollup_runs_total")
	if err != nil {
		return nil, err
	}
	rollupWarnings, err := meter.Int64Counter("iaaps_rollup_warnings_total")
	if err != nil {
		return nil, err
	}
	reportsRendered, err := meter.Int64Counter("iaaps_reports_rendered_total")
	if err != nil {
		return nil, err
	}
	assistantQueries, err := meter.Int64Counter("iaaps_assistant_queries_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		rollupRuns:       rollupRuns,
		rollupWarnings:   rollupWarnings,
		reportsRendered:  reportsRendered,
		assistantQueries: assistantQueries,
	}, nil
}

// RecordRollupRun increments pipeline runs by outcome.
func (m *Metrics) RecordRollupRun(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.rollupRuns.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRollupWarning increments non-fatal data warnings.
func (m *Metrics) RecordRollupWarning(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("warning_kind", strings.TrimSpace(kind)))
	m.rollupWarnings.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReport increments rendered report counts.
func (m *Metrics) RecordReport(ctx context.Context, format string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("format", strings.TrimSpace(format)))
	m.reportsRendered.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordAssistantQuery increments assistant queries by resolved intent.
func (m *Metrics) RecordAssistantQuery(ctx context.Context, intent string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("intent", strings.TrimSpace(intent)))
	m.assistantQueries.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"status":       {},
	"warning_kind": {},
	"format":       {},
	"intent":       {},
	"stage":        {},
	"endpoint":     {},
	"status_code":  {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
