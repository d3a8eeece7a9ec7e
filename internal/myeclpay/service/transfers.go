package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/hyperion/internal/myeclpay/domain"
	"github.com/smallbiznis/hyperion/internal/observability/logger"
	"github.com/smallbiznis/hyperion/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// InitTransfer records a pending top-up. The wallet is credited when the
// checkout callback reports the payment.
func (s *Service) InitTransfer(ctx context.Context, userID snowflake.ID, req domain.InitTransferRequest) (*domain.Transfer, error) {
	if req.Amount < domain.MinTransferAmount {
		return nil, domain.ErrTransferAmountTooLow
	}
	payment, err := s.repo.FindUserPayment(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrNotRegisteredLookup
	}
	if !payment.HasSignedLatestTOS() {
		return nil, domain.ErrTOSNotSigned
	}
	wallet, err := s.repo.FindWallet(ctx, s.db, payment.WalletID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, domain.ErrWalletNotFound
	}
	// Checkouts still open count against the cap so they cannot add up past it.
	pending, err := s.repo.SumPendingTransfers(ctx, s.db, wallet.ID, s.clock.Now().Add(-domain.TransferPendingFor))
	if err != nil {
		return nil, err
	}
	if wallet.Balance+pending+req.Amount > s.cfg.MyECLPayMaxWalletBalance {
		return nil, domain.ErrMaxBalanceExceeded
	}

	transfer := &domain.Transfer{
		ID:                 uuid.New(),
		Type:               domain.TransferTypeCheckout,
		TransferIdentifier: uuid.NewString(),
		WalletID:           wallet.ID,
		Total:              req.Amount,
		CreatedAt:          s.clock.Now(),
	}
	if err := s.repo.InsertTransfer(ctx, s.db, transfer); err != nil {
		return nil, err
	}
	logger.WithContext(ctx, s.log).Info("transfer initiated",
		zap.String("transfer_id", transfer.ID.String()),
		zap.String("user_id", userID.String()),
		zap.Int64("total", transfer.Total),
	)
	return transfer, nil
}

// ConfirmTransfer applies a paid checkout to its wallet exactly once.
func (s *Service) ConfirmTransfer(ctx context.Context, cb domain.TransferCallback) (*domain.Transfer, error) {
	transfer, err := s.confirmTransfer(ctx, cb)
	var total int64
	if transfer != nil {
		total = transfer.Total
	}
	s.observe(ctx, metrics.OperationTransfer, total, err)
	return transfer, err
}

func (s *Service) confirmTransfer(ctx context.Context, cb domain.TransferCallback) (*domain.Transfer, error) {
	transfer, err := s.repo.FindTransferByIdentifier(ctx, s.db, cb.CheckoutID)
	if err != nil {
		return nil, err
	}
	if transfer == nil {
		return nil, domain.ErrTransferNotFound
	}
	if transfer.Total != cb.PaidAmount {
		logger.WithContext(ctx, s.security).Warn("transfer paid amount mismatch",
			zap.String("transfer_id", transfer.ID.String()),
			zap.Int64("total", transfer.Total),
			zap.Int64("paid_amount", cb.PaidAmount),
		)
		return nil, domain.ErrTransferTotalMismatch
	}
	if transfer.Confirmed {
		return nil, domain.ErrTransferAlreadyApplied
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.ConfirmTransfer(ctx, tx, transfer.ID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrTransferAlreadyApplied
		}
		return s.repo.CreditWallet(ctx, tx, transfer.WalletID, transfer.Total)
	})
	if err != nil {
		return nil, err
	}
	transfer.Confirmed = true

	logger.WithContext(ctx, s.ledger).Info(formatTransferLog(transfer))
	if payment, err := s.repo.FindUserPaymentByWallet(ctx, s.db, transfer.WalletID); err == nil && payment != nil {
		s.notify(ctx, payment.UserID, "Paiement - recharge", "Votre compte a été rechargé")
	}
	return transfer, nil
}
