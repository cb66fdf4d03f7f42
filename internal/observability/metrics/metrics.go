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

// Metrics exposes application-level instruments for the billing core.
type Metrics struct {
	sessionsStarted   metric.Int64Counter
	sessionsCompleted metric.Int64Counter
	sessionsCanceled  metric.Int64Counter
	billedAmount      metric.Int64Counter
	saveConflicts     metric.Int64Counter
	retentionPurged   metric.Int64Counter
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

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "playden"
	}
	meter := provider.Meter(name)

	sessionsStarted, err := meter.Int64Counter("playden_sessions_started_total")
	if err != nil {
		return nil, err
	}
	sessionsCompleted, err := meter.Int64Counter("playden_sessions_completed_total")
	if err != nil {
		return nil, err
	}
	sessionsCanceled, err := meter.Int64Counter("playden_sessions_canceled_total")
	if err != nil {
		return nil, err
	}
	billedAmount, err := meter.Int64Counter("playden_billed_amount_total")
	if err != nil {
		return nil, err
	}
	saveConflicts, err := meter.Int64Counter("playden_session_save_conflicts_total")
	if err != nil {
		return nil, err
	}
	retentionPurged, err := meter.Int64Counter("playden_retention_purged_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		sessionsStarted:   sessionsStarted,
		sessionsCompleted: sessionsCompleted,
		sessionsCanceled:  sessionsCanceled,
		billedAmount:      billedAmount,
		saveConflicts:     saveConflicts,
		retentionPurged:   retentionPurged,
	}, nil
}

// RecordSessionStarted increments started session counts.
func (m *Metrics) RecordSessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsStarted.Add(ctx, 1)
}

// RecordSessionCompleted increments completed session counts and the
// billed amount in the smallest currency unit.
func (m *Metrics) RecordSessionCompleted(ctx context.Context, totalCost int64) {
	if m == nil {
		return
	}
	m.sessionsCompleted.Add(ctx, 1)
	if totalCost > 0 {
		m.billedAmount.Add(ctx, totalCost)
	}
}

// RecordSessionCanceled increments canceled session counts.
func (m *Metrics) RecordSessionCanceled(ctx context.Context) {
	if m == nil {
		return
	}
	m.sessionsCanceled.Add(ctx, 1)
}

// RecordSaveConflict counts optimistic-lock retries per operation.
func (m *Metrics) RecordSaveConflict(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))
	m.saveConflicts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRetentionPurged counts sessions removed by the maintenance job.
func (m *Metrics) RecordRetentionPurged(ctx context.Context, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.retentionPurged.Add(ctx, count)
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
	"operation":   {},
	"status_code": {},
	"route":       {},
	"method":      {},
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
