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
	"go.opentelemetry.io/otel/sdk/resource"
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
	projectionReads   metric.Int64Counter
	recomputes        metric.Int64Counter
	recomputeDuration metric.Float64Histogram
	storeWriteFailed  metric.Int64Counter
	malformed         metric.Int64Counter
	learningsLogged   metric.Int64Counter
	refreshEnqueued   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(
		attribute.String("service.name", serviceName(cfg)),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)
	if lc != nil {
		lc.Append(fx.Hook{OnStop: func(ctx context.Context) error {
			log.Info("flushing stats metrics")
			return provider.Shutdown(ctx)
		}})
	}

	log.Info("stats metrics exporting",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
		zap.Duration("interval", exportInterval),
	)
	return provider, nil
}

const exportInterval = 10 * time.Second

func serviceName(cfg Config) string {
	if name := strings.TrimSpace(cfg.ServiceName); name != "" {
		return name
	}
	return "learnboard"
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(serviceName(cfg))

	projectionReads, err := meter.Int64Counter("learnboard_projection_reads_total")
	if err != nil {
		return nil, err
	}
	recomputes, err := meter.Int64Counter("learnboard_projection_recomputes_total")
	if err != nil {
		return nil, err
	}
	recomputeDuration, err := meter.Float64Histogram("learnboard_projection_recompute_duration_seconds")
	if err != nil {
		return nil, err
	}
	storeWriteFailed, err := meter.Int64Counter("learnboard_projection_store_write_failures_total")
	if err != nil {
		return nil, err
	}
	malformed, err := meter.Int64Counter("learnboard_projection_malformed_total")
	if err != nil {
		return nil, err
	}
	learningsLogged, err := meter.Int64Counter("learnboard_learnings_logged_total")
	if err != nil {
		return nil, err
	}
	refreshEnqueued, err := meter.Int64Counter("learnboard_refresh_enqueued_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		projectionReads:   projectionReads,
		recomputes:        recomputes,
		recomputeDuration: recomputeDuration,
		storeWriteFailed:  storeWriteFailed,
		malformed:         malformed,
		learningsLogged:   learningsLogged,
		refreshEnqueued:   refreshEnqueued,
	}, nil
}

// RecordProjectionRead counts a stats read by scope kind and source
// (stored, computed or fallback).
func (m *Metrics) RecordProjectionRead(ctx context.Context, scopeKind, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("scope_kind", strings.TrimSpace(scopeKind)),
		attribute.String("source", strings.TrimSpace(source)),
	)
	m.projectionReads.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRecompute records a projection rebuild and its latency.
func (m *Metrics) RecordRecompute(ctx context.Context, scopeKind string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("scope_kind", strings.TrimSpace(scopeKind)))
	m.recomputes.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.recomputeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordStoreWriteFailure(ctx context.Context, scopeKind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("scope_kind", strings.TrimSpace(scopeKind)))
	m.storeWriteFailed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordMalformedProjection(ctx context.Context, scopeKind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("scope_kind", strings.TrimSpace(scopeKind)))
	m.malformed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLearningLogged counts accepted learning events by activity type.
func (m *Metrics) RecordLearningLogged(ctx context.Context, activityType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("activity_type", strings.TrimSpace(activityType)))
	m.learningsLogged.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordRefreshEnqueued(ctx context.Context, scopeKind, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("scope_kind", strings.TrimSpace(scopeKind)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.refreshEnqueued.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"scope_kind":    {},
	"source":        {},
	"activity_type": {},
	"method":        {},
	"route":         {},
	"status_code":   {},
	"reason":        {},
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
