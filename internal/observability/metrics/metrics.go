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
	tokensIssued    metric.Int64Counter
	tokenErrors     metric.Int64Counter
	refreshReuse    metric.Int64Counter
	rateLimitDenied metric.Int64Counter
	walletOps       metric.Int64Counter
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
		name = "hyperion"
	}
	meter := provider.Meter(name)

	tokensIssued, err := meter.Int64Counter("hyperion_tokens_issued_total")
	if err != nil {
		return nil, err
	}
	tokenErrors, err := meter.Int64Counter("hyperion_token_errors_total")
	if err != nil {
		return nil, err
	}
	refreshReuse, err := meter.Int64Counter("hyperion_refresh_token_reuse_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("hyperion_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}
	walletOps, err := meter.Int64Counter("hyperion_wallet_operations_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		tokensIssued:    tokensIssued,
		tokenErrors:     tokenErrors,
		refreshReuse:    refreshReuse,
		rateLimitDenied: rateLimitDenied,
		walletOps:       walletOps,
	}, nil
}

// RecordTokenIssued counts successful token responses per grant type.
func (m *Metrics) RecordTokenIssued(ctx context.Context, grantType, clientID string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("grant_type", strings.TrimSpace(grantType)),
		attribute.String("client_id", strings.TrimSpace(clientID)),
	)
	m.tokensIssued.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordTokenError(ctx context.Context, grantType, code string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("grant_type", strings.TrimSpace(grantType)),
		attribute.String("error_code", strings.TrimSpace(code)),
	)
	m.tokenErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRefreshReuse counts presentations of revoked refresh tokens.
func (m *Metrics) RecordRefreshReuse(ctx context.Context, clientID string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("client_id", strings.TrimSpace(clientID)))
	m.refreshReuse.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordWalletOperation counts committed wallet mutations.
func (m *Metrics) RecordWalletOperation(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))
	m.walletOps.Add(ctx, 1, metric.WithAttributes(attrs...))
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
	"grant_type":  {},
	"client_id":   {},
	"error_code":  {},
	"endpoint":    {},
	"operation":   {},
	"method":      {},
	"route":       {},
	"status_code": {},
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
