package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/hyperion/internal/myeclpay/domain"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func TestRefundTransaction(t *testing.T) {
	env := newTestEnv(t)
	s := newShop(t, env)
	ctx := context.Background()

	txn, err := env.svc.StoreScan(ctx, s.seller, s.store.ID, env.qrCode(t, s.key, s.deviceID, 400))
	require.NoError(t, err)

	_, err = env.svc.RefundTransaction(ctx, s.seller, txn.ID, domain.RefundRequest{})
	require.ErrorIs(t, err, domain.ErrRefundAmountRequired)
	_, err = env.svc.RefundTransaction(ctx, s.seller, txn.ID, domain.RefundRequest{Amount: int64Ptr(0)})
	require.ErrorIs(t, err, domain.ErrRefundAmountNotPositive)
	_, err = env.svc.RefundTransaction(ctx, s.seller, txn.ID, domain.RefundRequest{Amount: int64Ptr(401)})
	require.ErrorIs(t, err, domain.ErrRefundAmountTooHigh)
	_, err = env.svc.RefundTransaction(ctx, s.buyer, txn.ID, domain.RefundRequest{CompleteRefund: true})
	require.ErrorIs(t, err, domain.ErrRefundForbidden)

	refund, err := env.svc.RefundTransaction(ctx, s.seller, txn.ID, domain.RefundRequest{Amount: int64Ptr(400)})
	require.NoError(t, err)
	require.Equal(t, int64(400), refund.Total)
	require.Equal(t, int64(1000), env.balance(t, s.buyerWallet))
	require.Equal(t, int64(0), env.balance(t, s.store.WalletID))

	stored, err := env.repo.FindTransaction(ctx, env.conn, txn.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TransactionRefunded, stored.Status)
	require.Contains(t, env.notifier.titlesFor(s.buyer), "Remboursement")

	_, err = env.svc.RefundTransaction(ctx, s.seller, txn.ID, domain.RefundRequest{CompleteRefund: true})
	require.ErrorIs(t, err, domain.ErrTransactionNotRefundable)
	require.Equal(t, int64(1000), env.balance(t, s.buyerWallet))
}

func TestRefundPartialAndWindow(t *testing.T) {
	env := newTestEnv(t)
	s := newShop(t, env)
	ctx := context.Background()

	partial, err := env.svc.StoreScan(ctx, s.seller, s.store.ID, env.qrCode(t, s.key, s.deviceID, 300))
	require.NoError(t, err)
	old, err := env.svc.StoreScan(ctx, s.seller, s.store.ID, env.qrCode(t, s.key, s.deviceID, 200))
	require.NoError(t, err)

	_, err = env.svc.RefundTransaction(ctx, s.seller, partial.ID, domain.RefundRequest{Amount: int64Ptr(120)})
	require.NoError(t, err)
	require.Equal(t, int64(620), env.balance(t, s.buyerWallet))
	require.Equal(t, int64(380), env.balance(t, s.store.WalletID))

	env.clock.Advance(domain.RefundWindow)
	_, err = env.svc.RefundTransaction(ctx, s.seller, old.ID, domain.RefundRequest{CompleteRefund: true})
	require.ErrorIs(t, err, domain.ErrTransactionTooOldForRefund)

	_, err = env.svc.RefundTransaction(ctx, s.seller, partial.ID, domain.RefundRequest{CompleteRefund: true})
	require.ErrorIs(t, err, domain.ErrTransactionNotRefundable)
}

func TestRefundNeedsStoreBalance(t *testing.T) {
	env := newTestEnv(t)
	s := newShop(t, env)
	ctx := context.Background()

	txn, err := env.svc.StoreScan(ctx, s.seller, s.store.ID, env.qrCode(t, s.key, s.deviceID, 500))
	require.NoError(t, err)
	ok, err := env.repo.DebitWallet(ctx, env.conn, s.store.WalletID, 450)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = env.svc.RefundTransaction(ctx, s.seller, txn.ID, domain.RefundRequest{CompleteRefund: true})
	require.ErrorIs(t, err, domain.ErrCreditedBalanceTooLow)

	stored, err := env.repo.FindTransaction(ctx, env.conn, txn.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TransactionConfirmed, stored.Status)
	refund, err := env.repo.FindRefundByTransaction(ctx, env.conn, txn.ID)
	require.NoError(t, err)
	require.Nil(t, refund)
}

func TestCancelTransaction(t *testing.T) {
	env := newTestEnv(t)
	s := newShop(t, env)
	ctx := context.Background()

	intern := env.user(t, "intern@school.fr")
	_, err := env.svc.CreateSeller(ctx, s.seller, s.store.ID, domain.CreateSellerRequest{
		UserID:  intern.String(),
		CanBank: true,
	})
	require.NoError(t, err)

	txn, err := env.svc.StoreScan(ctx, s.seller, s.store.ID, env.qrCode(t, s.key, s.deviceID, 250))
	require.NoError(t, err)

	require.ErrorIs(t, env.svc.CancelTransaction(ctx, s.buyer, txn.ID), domain.ErrCancelNotSeller)
	require.ErrorIs(t, env.svc.CancelTransaction(ctx, intern, txn.ID), domain.ErrCancelSellerForbidden)

	env.clock.Advance(domain.CancelWindow)
	require.NoError(t, env.svc.CancelTransaction(ctx, s.seller, txn.ID))
	require.Equal(t, int64(1000), env.balance(t, s.buyerWallet))
	require.Equal(t, int64(0), env.balance(t, s.store.WalletID))
	require.Contains(t, env.notifier.titlesFor(s.buyer), "Paiement annulé")

	require.ErrorIs(t, env.svc.CancelTransaction(ctx, s.seller, txn.ID), domain.ErrCancelNotConfirmed)
	_, err = env.svc.RefundTransaction(ctx, s.seller, txn.ID, domain.RefundRequest{CompleteRefund: true})
	require.ErrorIs(t, err, domain.ErrTransactionNotRefundable)
}

func TestCancelWindowExpires(t *testing.T) {
	env := newTestEnv(t)
	s := newShop(t, env)
	ctx := context.Background()

	txn, err := env.svc.StoreScan(ctx, s.seller, s.store.ID, env.qrCode(t, s.key, s.deviceID, 250))
	require.NoError(t, err)

	env.clock.Advance(domain.CancelWindow + time.Second)
	require.ErrorIs(t, env.svc.CancelTransaction(ctx, s.seller, txn.ID), domain.ErrCancelTooLate)
	require.Equal(t, int64(750), env.balance(t, s.buyerWallet))
}
