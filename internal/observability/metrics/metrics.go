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
	pipelineExecutions metric.Int64Counter
	pipelineLatency    metric.Float64Histogram
	authzDenials       metric.Int64Counter
	quotaRejections    metric.Int64Counter
	eventsAppended     metric.Int64Counter
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
		name = "ontology"
	}
	meter := provider.Meter(name)

	pipelineExecutions, err := meter.Int64Counter("ontology_pipeline_executions_total")
	if err != nil {
		return nil, err
	}
	pipelineLatency, err := meter.Float64Histogram("ontology_pipeline_duration_seconds")
	if err != nil {
		return nil, err
	}
	authzDenials, err := meter.Int64Counter("ontology_authorization_denials_total")
	if err != nil {
		return nil, err
	}
	quotaRejections, err := meter.Int64Counter("ontology_quota_rejections_total")
	if err != nil {
		return nil, err
	}
	eventsAppended, err := meter.Int64Counter("ontology_events_appended_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		pipelineExecutions: pipelineExecutions,
		pipelineLatency:    pipelineLatency,
		authzDenials:       authzDenials,
		quotaRejections:    quotaRejections,
		eventsAppended:     eventsAppended,
	}, nil
}

// RecordPipelineExecution increments the per-operation outcome counts and
// observes the execution latency.
func (m *Metrics) RecordPipelineExecution(ctx context.Context, operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("operation", strings.TrimSpace(operation)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.pipelineExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.pipelineLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}

// RecordAuthorizationDenial increments denial counts.
func (m *Metrics) RecordAuthorizationDenial(ctx context.Context, object, action string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("object", strings.TrimSpace(object)),
		attribute.String("action", strings.TrimSpace(action)),
	)
	m.authzDenials.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordQuotaRejection increments quota rejection counts.
func (m *Metrics) RecordQuotaRejection(ctx context.Context, object string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("object", strings.TrimSpace(object)))
	m.quotaRejections.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEventsAppended increments appended event counts.
func (m *Metrics) RecordEventsAppended(ctx context.Context, operation string, count int) {
	if m == nil || count <= 0 {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))
	m.eventsAppended.Add(ctx, int64(count), metric.WithAttributes(attrs...))
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
	"operation": {},
	"outcome":   {},
	"object":    {},
	"action":    {},
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
