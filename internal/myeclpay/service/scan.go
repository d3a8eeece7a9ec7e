package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/hyperion/internal/myeclpay/domain"
	"github.com/smallbiznis/hyperion/internal/myeclpay/receipt"
	"github.com/smallbiznis/hyperion/internal/myeclpay/signature"
	"github.com/smallbiznis/hyperion/internal/observability/logger"
	"github.com/smallbiznis/hyperion/internal/observability/metrics"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StoreScan debits the wallet that signed info and credits the store.
//
// Checks run in a fixed order and the first failing one is reported. A
// payload id that was already consumed wins over every other rejection.
// The replay-cache insert, both balance updates and the transaction row
// commit together.
func (s *Service) StoreScan(ctx context.Context, userID, storeID snowflake.ID, info domain.ScanInfo) (*domain.Transaction, error) {
	start := time.Now()
	txn, err := s.storeScan(ctx, userID, storeID, info)
	s.payments.ObserveScan(time.Since(start), err)
	if err == nil {
		s.payments.AddVolume(metrics.OperationScan, txn.Total)
		s.metrics.RecordWalletOperation(ctx, metrics.OperationScan)
	}
	return txn, err
}

func (s *Service) storeScan(ctx context.Context, userID, storeID snowflake.ID, info domain.ScanInfo) (*domain.Transaction, error) {
	log := logger.WithContext(ctx, s.log).With(
		zap.String("store_id", storeID.String()),
		zap.String("qr_code_id", info.ID.String()),
	)

	used, err := s.repo.FindUsedQRCode(ctx, s.db, info.ID)
	if err != nil {
		return nil, err
	}
	if used != nil {
		return nil, domain.ErrQRCodeAlreadyUsed
	}

	store, err := s.repo.FindStore(ctx, s.db, storeID)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, domain.ErrStoreNotFound
	}

	seller, err := s.repo.FindSeller(ctx, s.db, storeID, userID)
	if err != nil {
		return nil, err
	}
	if seller == nil || !seller.CanBank {
		return nil, domain.ErrSellerCannotBank
	}

	device, err := s.repo.FindWalletDevice(ctx, s.db, info.Key)
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, domain.ErrDeviceNotFound
	}
	if device.Status != domain.WalletDeviceActive {
		return nil, domain.ErrDeviceNotActive
	}

	if err := signature.Verify(device.Ed25519PublicKey, info.Signature, info.QRCodeContent); err != nil {
		logger.WithContext(ctx, s.security).Info("invalid signature for QR code",
			zap.String("wallet_device_id", device.ID.String()),
			zap.String("qr_code_id", info.ID.String()),
			zap.Error(err),
		)
		return nil, domain.ErrInvalidSignature
	}

	if !info.Store {
		return nil, domain.ErrQRCodeNotForStore
	}
	if info.Total <= 0 {
		return nil, domain.ErrTotalNotPositive
	}
	if info.Total > domain.MaxTransactionTotal {
		return nil, domain.ErrTotalTooHigh
	}
	now := s.clock.Now()
	if info.IssuedAt.Before(now.Add(-domain.QRCodeExpiration)) {
		return nil, domain.ErrQRCodeExpired
	}

	wallet, err := s.repo.FindWallet(ctx, s.db, device.WalletID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		log.Error("wallet device without wallet", zap.String("wallet_device_id", device.ID.String()))
		return nil, domain.ErrDebitedWalletNotFound
	}
	if wallet.Type == domain.WalletTypeStore {
		return nil, domain.ErrStoreCannotBeDebited
	}
	payment, err := s.repo.FindUserPaymentByWallet(ctx, s.db, wallet.ID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrStoreCannotBeDebited
	}
	if !payment.HasSignedLatestTOS() {
		return nil, domain.ErrDebitedTOSNotSigned
	}
	if wallet.Balance < info.Total {
		return nil, domain.ErrInsufficientBalance
	}

	unlock, err := s.lockWallet(ctx, wallet.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	payload, err := signature.SignableBytes(info.QRCodeContent)
	if err != nil {
		return nil, err
	}
	qrCodeID := info.ID
	deviceID := device.ID
	sellerID := userID
	txn := &domain.Transaction{
		ID:                    uuid.New(),
		DebitedWalletID:       wallet.ID,
		DebitedWalletDeviceID: &deviceID,
		CreditedWalletID:      store.WalletID,
		Type:                  domain.TransactionTypeDirect,
		SellerUserID:          &sellerID,
		Total:                 info.Total,
		Status:                domain.TransactionConfirmed,
		QRCodeID:              &qrCodeID,
		CreatedAt:             now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertUsedQRCode(ctx, tx, &domain.UsedQRCode{
			QRCodeID:       info.ID,
			Total:          info.Total,
			IssuedAt:       info.IssuedAt.UTC(),
			WalletDeviceID: info.Key,
			Store:          info.Store,
			Signature:      info.Signature,
			Payload:        datatypes.JSON(payload),
			CreatedAt:      now,
		}); err != nil {
			return err
		}
		debited, err := s.repo.DebitWallet(ctx, tx, wallet.ID, info.Total)
		if err != nil {
			return err
		}
		if !debited {
			return domain.ErrInsufficientBalance
		}
		if err := s.repo.CreditWallet(ctx, tx, store.WalletID, info.Total); err != nil {
			return err
		}
		return s.repo.InsertTransaction(ctx, tx, txn)
	})
	if err != nil {
		return nil, err
	}

	s.ledger.Info(formatTransactionLog(txn))
	s.notify(ctx, payment.UserID,
		"Paiement - "+store.Name,
		"Une transaction de "+receipt.FormatCents(info.Total)+" a été effectuée",
	)
	return txn, nil
}
