package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/hyperion/internal/myeclpay/domain"
	"github.com/smallbiznis/hyperion/internal/myeclpay/receipt"
	"github.com/smallbiznis/hyperion/internal/observability/metrics"
	"gorm.io/gorm"
)

// RefundTransaction gives back all or part of a store transaction. Only a
// seller of the credited store with can_cancel may refund, within 30 days.
func (s *Service) RefundTransaction(ctx context.Context, userID snowflake.ID, transactionID uuid.UUID, req domain.RefundRequest) (*domain.Refund, error) {
	refund, err := s.refundTransaction(ctx, userID, transactionID, req)
	total := int64(0)
	if refund != nil {
		total = refund.Total
	}
	s.observe(ctx, metrics.OperationRefund, total, err)
	return refund, err
}

func (s *Service) refundTransaction(ctx context.Context, userID snowflake.ID, transactionID uuid.UUID, req domain.RefundRequest) (*domain.Refund, error) {
	txn, err := s.repo.FindTransaction(ctx, s.db, transactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, domain.ErrTransactionNotFound
	}
	if txn.Status != domain.TransactionConfirmed {
		return nil, domain.ErrTransactionNotRefundable
	}
	now := s.clock.Now()
	if !txn.CreatedAt.After(now.Add(-domain.RefundWindow)) {
		return nil, domain.ErrTransactionTooOldForRefund
	}

	// The wallet credited by the transaction pays the refund back.
	credited, err := s.repo.FindWallet(ctx, s.db, txn.CreditedWalletID)
	if err != nil {
		return nil, err
	}
	if credited == nil {
		return nil, domain.ErrCreditedWalletNotFound
	}
	if credited.Type != domain.WalletTypeStore {
		return nil, domain.ErrUserCreditedRefund
	}
	store, err := s.repo.FindStoreByWallet(ctx, s.db, credited.ID)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, domain.ErrStoreNotFound
	}
	seller, err := s.repo.FindSeller(ctx, s.db, store.ID, userID)
	if err != nil {
		return nil, err
	}
	if seller == nil || !seller.CanCancel {
		return nil, domain.ErrRefundForbidden
	}

	amount := txn.Total
	if !req.CompleteRefund {
		if req.Amount == nil {
			return nil, domain.ErrRefundAmountRequired
		}
		if *req.Amount > txn.Total {
			return nil, domain.ErrRefundAmountTooHigh
		}
		if *req.Amount <= 0 {
			return nil, domain.ErrRefundAmountNotPositive
		}
		amount = *req.Amount
	}

	debited, err := s.repo.FindWallet(ctx, s.db, txn.DebitedWalletID)
	if err != nil {
		return nil, err
	}
	if debited == nil {
		return nil, domain.ErrRefundedWalletNotFound
	}

	unlock, err := s.lockWallet(ctx, credited.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sellerID := userID
	refund := &domain.Refund{
		ID:               uuid.New(),
		TransactionID:    txn.ID,
		DebitedWalletID:  credited.ID,
		CreditedWalletID: debited.ID,
		SellerUserID:     &sellerID,
		Total:            amount,
		CreatedAt:        now,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := s.repo.UpdateTransactionStatus(ctx, tx, txn.ID, domain.TransactionConfirmed, domain.TransactionRefunded)
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrTransactionNotRefundable
		}
		if err := s.repo.InsertRefund(ctx, tx, refund); err != nil {
			return err
		}
		return s.move(ctx, tx, credited.ID, debited.ID, amount)
	})
	if err != nil {
		return nil, err
	}

	s.ledger.Info(formatRefundLog(refund))
	if payment, err := s.repo.FindUserPaymentByWallet(ctx, s.db, debited.ID); err == nil && payment != nil {
		s.notify(ctx, payment.UserID, "Remboursement", fmt.Sprintf(
			"La transaction pour %s (%s) a été remboursée de %s",
			store.Name, receipt.FormatCents(txn.Total), receipt.FormatCents(amount),
		))
	}
	return refund, nil
}

// CancelTransaction reverses a transaction during its first 30 seconds. The
// credited user, or a seller of the credited store with can_cancel, may
// cancel.
func (s *Service) CancelTransaction(ctx context.Context, userID snowflake.ID, transactionID uuid.UUID) error {
	total, err := s.cancelTransaction(ctx, userID, transactionID)
	s.observe(ctx, metrics.OperationCancel, total, err)
	return err
}

func (s *Service) cancelTransaction(ctx context.Context, userID snowflake.ID, transactionID uuid.UUID) (int64, error) {
	txn, err := s.repo.FindTransaction(ctx, s.db, transactionID)
	if err != nil {
		return 0, err
	}
	if txn == nil {
		return 0, domain.ErrTransactionNotFound
	}
	if s.clock.Now().Sub(txn.CreatedAt) > domain.CancelWindow {
		return 0, domain.ErrCancelTooLate
	}

	credited, err := s.repo.FindWallet(ctx, s.db, txn.CreditedWalletID)
	if err != nil {
		return 0, err
	}
	if credited == nil {
		return 0, domain.ErrCancelWalletNotFound
	}
	if credited.Type == domain.WalletTypeStore {
		store, err := s.repo.FindStoreByWallet(ctx, s.db, credited.ID)
		if err != nil {
			return 0, err
		}
		if store == nil {
			return 0, domain.ErrStoreNotFound
		}
		seller, err := s.repo.FindSeller(ctx, s.db, store.ID, userID)
		if err != nil {
			return 0, err
		}
		if seller == nil {
			return 0, domain.ErrCancelNotSeller
		}
		if !seller.CanCancel {
			return 0, domain.ErrCancelSellerForbidden
		}
	} else {
		owner, err := s.repo.FindUserPaymentByWallet(ctx, s.db, credited.ID)
		if err != nil {
			return 0, err
		}
		if owner == nil {
			return 0, domain.ErrUserNotFound
		}
		if owner.UserID != userID {
			return 0, domain.ErrCancelNotOwner
		}
	}

	if txn.Status != domain.TransactionConfirmed {
		return 0, domain.ErrCancelNotConfirmed
	}
	debited, err := s.repo.FindWallet(ctx, s.db, txn.DebitedWalletID)
	if err != nil {
		return 0, err
	}
	if debited == nil {
		return 0, domain.ErrDebitedWalletMissing
	}

	unlock, err := s.lockWallet(ctx, credited.ID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		moved, err := s.repo.UpdateTransactionStatus(ctx, tx, txn.ID, domain.TransactionConfirmed, domain.TransactionCanceled)
		if err != nil {
			return err
		}
		if !moved {
			return domain.ErrCancelNotConfirmed
		}
		return s.move(ctx, tx, credited.ID, debited.ID, txn.Total)
	})
	if err != nil {
		return 0, err
	}

	s.ledger.Info(formatCancelLog(txn.ID))
	if payment, err := s.repo.FindUserPaymentByWallet(ctx, s.db, debited.ID); err == nil && payment != nil {
		s.notify(ctx, payment.UserID, "Paiement annulé",
			"La transaction de "+receipt.FormatCents(txn.Total)+" a été annulée")
	}
	return txn.Total, nil
}

// move transfers amount between two wallets inside tx. The source balance
// never goes negative.
func (s *Service) move(ctx context.Context, tx *gorm.DB, from, to uuid.UUID, amount int64) error {
	debited, err := s.repo.DebitWallet(ctx, tx, from, amount)
	if err != nil {
		return err
	}
	if !debited {
		return domain.ErrCreditedBalanceTooLow
	}
	return s.repo.CreditWallet(ctx, tx, to, amount)
}
