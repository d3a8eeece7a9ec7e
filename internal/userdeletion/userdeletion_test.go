package userdeletion

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hyperion/internal/myeclpay/domain"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockPayments struct {
	domain.Service
	mock.Mock
}

func (m *mockPayments) WalletBalance(ctx context.Context, userID snowflake.ID) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

type staticChecker struct {
	module string
	reason string
	err    error
}

func (c staticChecker) Module() string { return c.module }

func (c staticChecker) Check(context.Context, snowflake.ID) (string, error) {
	return c.reason, c.err
}

func TestWalletChecker(t *testing.T) {
	ctx := context.Background()
	payments := &mockPayments{}
	payments.On("WalletBalance", ctx, snowflake.ID(1)).Return(int64(0), nil)
	payments.On("WalletBalance", ctx, snowflake.ID(2)).Return(int64(1250), nil)
	checker := NewWalletChecker(payments)

	reason, err := checker.Check(ctx, 1)
	require.NoError(t, err)
	require.Empty(t, reason)

	reason, err = checker.Check(ctx, 2)
	require.NoError(t, err)
	require.Contains(t, reason, "12.50 €")
	payments.AssertExpectations(t)
}

func TestRegistryCollectsReasons(t *testing.T) {
	registry := NewRegistry(Params{
		Log: zap.NewNop(),
		Checkers: []Checker{
			staticChecker{module: "a"},
			staticChecker{module: "b", reason: "pending loan"},
			nil,
		},
	})

	reasons, err := registry.Check(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, []Reason{{Module: "b", Reason: "pending loan"}}, reasons)
}

func TestRegistryPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	registry := NewRegistry(Params{
		Log:      zap.NewNop(),
		Checkers: []Checker{staticChecker{module: "a", err: boom}},
	})

	_, err := registry.Check(context.Background(), 7)
	require.ErrorIs(t, err, boom)
}
