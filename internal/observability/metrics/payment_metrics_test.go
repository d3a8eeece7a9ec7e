package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

type testCodedError struct{ code string }

func (e testCodedError) Error() string     { return e.code }
func (e testCodedError) ErrorCode() string { return e.code }

func TestClassifyPaymentResult(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "ok", err: nil, want: ResultOK},
		{name: "coded", err: testCodedError{code: "insufficient_balance"}, want: "insufficient_balance"},
		{name: "deadline", err: context.DeadlineExceeded, want: ResultDeadlineExceeded},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: ResultDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: ResultSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: ResultUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: ResultUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyPaymentResult(tc.err); got != tc.want {
				t.Fatalf("expected result %q, got %q", tc.want, got)
			}
		})
	}
}

func TestPaymentMetricsCountsOperations(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPaymentMetricsForTest(registry)

	m.ObserveScan(20*time.Millisecond, nil)
	m.ObserveScan(5*time.Millisecond, testCodedError{code: "qr_code_already_used"})
	m.ObserveOperation(OperationRefund, nil)
	m.AddVolume(OperationScan, 500)
	m.AddVolume(OperationScan, 0)

	if got := testutil.ToFloat64(m.operations.WithLabelValues(OperationScan, ResultOK)); got != 1 {
		t.Fatalf("expected 1 successful scan, got %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues(OperationScan, "qr_code_already_used")); got != 1 {
		t.Fatalf("expected 1 replayed scan, got %v", got)
	}
	if got := testutil.ToFloat64(m.volume.WithLabelValues(OperationScan)); got != 500 {
		t.Fatalf("expected 500 cents, got %v", got)
	}
}
