package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	ResultOK                   = "ok"
	ResultDeadlineExceeded     = "deadline_exceeded"
	ResultDBLockTimeout        = "db_lock_timeout"
	ResultSerializationFailure = "serialization_failure"
	ResultUniqueViolation      = "unique_violation"
	ResultUnknown              = "unknown"
)

const (
	OperationScan     = "scan"
	OperationRefund   = "refund"
	OperationCancel   = "cancel"
	OperationTransfer = "transfer"
)

// PaymentMetrics captures MyECLPay health signals as prometheus series so
// they can be scraped on /metrics or pushed by the metrics pusher.
type PaymentMetrics struct {
	operations   *prometheus.CounterVec
	scanDuration *prometheus.HistogramVec
	volume       *prometheus.CounterVec
}

var (
	paymentMetricsOnce sync.Once
	paymentMetrics     *PaymentMetrics
)

// Payments returns the singleton payment metrics registry.
func Payments() *PaymentMetrics {
	return PaymentsWithConfig(Config{})
}

// PaymentsWithConfig returns the singleton payment metrics registry using config labels.
func PaymentsWithConfig(cfg Config) *PaymentMetrics {
	paymentMetricsOnce.Do(func() {
		paymentMetrics = newPaymentMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return paymentMetrics
}

// NewPaymentMetricsForTest registers on a private registry.
func NewPaymentMetricsForTest(registerer prometheus.Registerer) *PaymentMetrics {
	return newPaymentMetrics(registerer, Config{ServiceName: "hyperion", Environment: "test"})
}

func newPaymentMetrics(registerer prometheus.Registerer, cfg Config) *PaymentMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "hyperion"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	operations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "hyperion_myeclpay_operations_total",
		Help:        "Wallet operations by kind and result.",
		ConstLabels: constLabels,
	}, []string{"operation", "result"})
	scanDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "hyperion_myeclpay_scan_duration_seconds",
		Help:        "Latency of store scans, from payload verification to commit.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	}, []string{"result"})
	volume := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "hyperion_myeclpay_volume_cents_total",
		Help:        "Amount moved between wallets, in cents.",
		ConstLabels: constLabels,
	}, []string{"operation"})

	registerer.MustRegister(operations, scanDuration, volume)

	return &PaymentMetrics{
		operations:   operations,
		scanDuration: scanDuration,
		volume:       volume,
	}
}

// ObserveOperation records one wallet operation outcome. A nil err counts as ok.
func (m *PaymentMetrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, ClassifyPaymentResult(err)).Inc()
}

func (m *PaymentMetrics) ObserveScan(duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.scanDuration.WithLabelValues(ClassifyPaymentResult(err)).Observe(duration.Seconds())
	m.ObserveOperation(OperationScan, err)
}

func (m *PaymentMetrics) AddVolume(operation string, cents int64) {
	if m == nil || cents <= 0 {
		return
	}
	m.volume.WithLabelValues(operation).Add(float64(cents))
}

type codedError interface {
	ErrorCode() string
}

// ClassifyPaymentResult maps an operation error to a low-cardinality result label.
func ClassifyPaymentResult(err error) string {
	if err == nil {
		return ResultOK
	}
	var coded codedError
	if errors.As(err, &coded) {
		if code := strings.TrimSpace(coded.ErrorCode()); code != "" {
			return code
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ResultDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return ResultDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return ResultSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return ResultUniqueViolation
	}
	return ResultUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
