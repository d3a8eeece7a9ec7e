package logger

import (
	"context"
	"testing"
	"time"

	obscontext "github.com/smallbiznis/hyperion/internal/observability/context"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-1")
	ctx = obscontext.WithUserID(ctx, "42")
	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "req-1", fields["request_id"])
	require.Equal(t, "42", fields["user_id"])
	_, hasClient := fields["client_id"]
	require.False(t, hasClient)
}

func TestWithContextSkipsUnknownFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	WithContext(context.Background(), zap.New(core)).Info("hello")

	require.Empty(t, logs.All()[0].Context)
}

func TestSecurityEntriesAreNotSampled(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(SampleExceptSecurity(core, time.Minute, 2, 0))

	for i := 0; i < 10; i++ {
		base.Named("oauth2").Warn("refused scopes")
		Security(base).Warn("refresh token reuse")
		Security(base).Named("myeclpay").Warn("signature mismatch")
	}

	require.Equal(t, 2, logs.FilterMessage("refused scopes").Len())
	require.Equal(t, 10, logs.FilterMessage("refresh token reuse").Len())
	require.Equal(t, 10, logs.FilterMessage("signature mismatch").Len())
	require.Equal(t, SecurityLoggerName, logs.FilterMessage("refresh token reuse").All()[0].LoggerName)
}

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM wallets":                             "SELECT",
		"WITH x AS (SELECT 1) UPDATE wallets SET balance=1": "SELECT",
		"  insert into used_qr_codes values (1)":            "INSERT",
		"":                                                  "UNKNOWN",
	}
	for sql, want := range cases {
		require.Equal(t, want, operationFromSQL(sql), sql)
	}
}
