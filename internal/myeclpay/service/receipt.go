package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/hyperion/internal/myeclpay/domain"
	"github.com/smallbiznis/hyperion/internal/myeclpay/receipt"
)

const receiptDateLayout = "2006-01-02 15:04 MST"

// Receipt renders a transaction for one of its parties: the owner of either
// wallet, or a seller of the credited store.
func (s *Service) Receipt(ctx context.Context, userID snowflake.ID, transactionID uuid.UUID) ([]byte, error) {
	txn, err := s.repo.FindTransaction(ctx, s.db, transactionID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, domain.ErrTransactionNotFound
	}
	allowed, err := s.canSeeTransaction(ctx, userID, txn)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, domain.ErrReceiptForbidden
	}

	names := s.newWalletNames()
	data := receipt.Data{
		TransactionID: txn.ID.String(),
		Date:          txn.CreatedAt.UTC().Format(receiptDateLayout),
		Status:        string(txn.Status),
		Total:         receipt.FormatCents(txn.Total),
	}
	if data.CreditedName, err = names.get(ctx, txn.CreditedWalletID); err != nil {
		return nil, err
	}
	if data.DebitedName, err = names.get(ctx, txn.DebitedWalletID); err != nil {
		return nil, err
	}
	if txn.Status == domain.TransactionRefunded {
		refund, err := s.repo.FindRefundByTransaction(ctx, s.db, txn.ID)
		if err != nil {
			return nil, err
		}
		if refund != nil {
			data.Refund = receipt.FormatCents(refund.Total)
			data.RefundDate = refund.CreatedAt.UTC().Format(receiptDateLayout)
		}
	}
	return s.renderer.Render(ctx, data)
}

func (s *Service) canSeeTransaction(ctx context.Context, userID snowflake.ID, txn *domain.Transaction) (bool, error) {
	payment, err := s.repo.FindUserPayment(ctx, s.db, userID)
	if err != nil {
		return false, err
	}
	if payment != nil && (payment.WalletID == txn.DebitedWalletID || payment.WalletID == txn.CreditedWalletID) {
		return true, nil
	}
	store, err := s.repo.FindStoreByWallet(ctx, s.db, txn.CreditedWalletID)
	if err != nil || store == nil {
		return false, err
	}
	seller, err := s.repo.FindSeller(ctx, s.db, store.ID, userID)
	if err != nil {
		return false, err
	}
	return seller != nil, nil
}
