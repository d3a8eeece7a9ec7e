package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/hyperion/internal/myeclpay/domain"
	dbutil "github.com/smallbiznis/hyperion/pkg/db"
	"github.com/smallbiznis/hyperion/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func first[T any](ctx context.Context, db *gorm.DB, query string, args ...any) (*T, error) {
	var row T
	err := db.WithContext(ctx).Where(query, args...).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// page restricts stmt to rows strictly after the cursor in (created_at, id)
// descending order.
func page(stmt *gorm.DB, after *pagination.Cursor, limit int) *gorm.DB {
	if after != nil {
		stmt = stmt.Where("(created_at < ? OR (created_at = ? AND id < ?))", after.CreatedAt, after.CreatedAt, after.ID)
	}
	stmt = stmt.Order("created_at desc, id desc")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}
	return stmt
}

func (r *repo) InsertWallet(ctx context.Context, db *gorm.DB, wallet *domain.Wallet) error {
	return db.WithContext(ctx).Create(wallet).Error
}

func (r *repo) FindWallet(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.Wallet, error) {
	return first[domain.Wallet](ctx, db, "id = ?", id)
}

func (r *repo) DebitWallet(ctx context.Context, db *gorm.DB, id uuid.UUID, amount int64) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.Wallet{}).
		Where("id = ? AND balance >= ?", id, amount).
		UpdateColumn("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) CreditWallet(ctx context.Context, db *gorm.DB, id uuid.UUID, amount int64) error {
	result := db.WithContext(ctx).
		Model(&domain.Wallet{}).
		Where("id = ?", id).
		UpdateColumn("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrWalletNotFound
	}
	return nil
}

func (r *repo) InsertWalletDevice(ctx context.Context, db *gorm.DB, device *domain.WalletDevice) error {
	err := db.WithContext(ctx).Create(device).Error
	if dbutil.IsDuplicateKeyErr(err) {
		return domain.ErrPublicKeyInUse
	}
	return err
}

func (r *repo) FindWalletDevice(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.WalletDevice, error) {
	return first[domain.WalletDevice](ctx, db, "id = ?", id)
}

func (r *repo) FindWalletDeviceByActivationToken(ctx context.Context, db *gorm.DB, token string) (*domain.WalletDevice, error) {
	return first[domain.WalletDevice](ctx, db, "activation_token = ?", token)
}

func (r *repo) ListWalletDevices(ctx context.Context, db *gorm.DB, walletID uuid.UUID) ([]domain.WalletDevice, error) {
	var devices []domain.WalletDevice
	err := db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at asc, id asc").
		Find(&devices).Error
	return devices, err
}

func (r *repo) UpdateWalletDeviceStatus(ctx context.Context, db *gorm.DB, id uuid.UUID, from []domain.WalletDeviceStatus, to domain.WalletDeviceStatus) (bool, error) {
	stmt := db.WithContext(ctx).Model(&domain.WalletDevice{}).Where("id = ?", id)
	if len(from) > 0 {
		stmt = stmt.Where("status IN ?", from)
	}
	result := stmt.UpdateColumn("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) FindUsedQRCode(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.UsedQRCode, error) {
	return first[domain.UsedQRCode](ctx, db, "qr_code_id = ?", id)
}

func (r *repo) InsertUsedQRCode(ctx context.Context, db *gorm.DB, code *domain.UsedQRCode) error {
	err := db.WithContext(ctx).Create(code).Error
	if dbutil.IsDuplicateKeyErr(err) {
		return domain.ErrQRCodeAlreadyUsed
	}
	return err
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, tx *domain.Transaction) error {
	return db.WithContext(ctx).Create(tx).Error
}

func (r *repo) FindTransaction(ctx context.Context, db *gorm.DB, id uuid.UUID) (*domain.Transaction, error) {
	return first[domain.Transaction](ctx, db, "id = ?", id)
}

func (r *repo) UpdateTransactionStatus(ctx context.Context, db *gorm.DB, id uuid.UUID, from, to domain.TransactionStatus) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("id = ? AND status = ?", id, from).
		UpdateColumn("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) ListTransactionsByWallet(ctx context.Context, db *gorm.DB, walletID uuid.UUID, after *pagination.Cursor, limit int) ([]domain.Transaction, error) {
	var rows []domain.Transaction
	stmt := db.WithContext(ctx).
		Model(&domain.Transaction{}).
		Where("(debited_wallet_id = ? OR credited_wallet_id = ?)", walletID, walletID)
	err := page(stmt, after, limit).Find(&rows).Error
	return rows, err
}

func (r *repo) InsertRefund(ctx context.Context, db *gorm.DB, refund *domain.Refund) error {
	err := db.WithContext(ctx).Create(refund).Error
	if dbutil.IsDuplicateKeyErr(err) {
		return domain.ErrTransactionNotRefundable
	}
	return err
}

func (r *repo) FindRefundByTransaction(ctx context.Context, db *gorm.DB, transactionID uuid.UUID) (*domain.Refund, error) {
	return first[domain.Refund](ctx, db, "transaction_id = ?", transactionID)
}

func (r *repo) ListRefundsByWallet(ctx context.Context, db *gorm.DB, walletID uuid.UUID, after *pagination.Cursor, limit int) ([]domain.Refund, error) {
	var rows []domain.Refund
	stmt := db.WithContext(ctx).
		Model(&domain.Refund{}).
		Where("(debited_wallet_id = ? OR credited_wallet_id = ?)", walletID, walletID)
	err := page(stmt, after, limit).Find(&rows).Error
	return rows, err
}

func (r *repo) InsertStore(ctx context.Context, db *gorm.DB, store *domain.Store) error {
	err := db.WithContext(ctx).Create(store).Error
	if dbutil.IsDuplicateKeyErr(err) {
		return domain.ErrStoreNameTaken
	}
	return err
}

func (r *repo) FindStore(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Store, error) {
	return first[domain.Store](ctx, db, "id = ?", id)
}

func (r *repo) FindStoreByWallet(ctx context.Context, db *gorm.DB, walletID uuid.UUID) (*domain.Store, error) {
	return first[domain.Store](ctx, db, "wallet_id = ?", walletID)
}

func (r *repo) InsertSeller(ctx context.Context, db *gorm.DB, seller *domain.Seller) error {
	err := db.WithContext(ctx).Create(seller).Error
	if dbutil.IsDuplicateKeyErr(err) {
		return domain.ErrSellerExists
	}
	return err
}

func (r *repo) FindSeller(ctx context.Context, db *gorm.DB, storeID, userID snowflake.ID) (*domain.Seller, error) {
	return first[domain.Seller](ctx, db, "store_id = ? AND user_id = ?", storeID, userID)
}

func (r *repo) InsertUserPayment(ctx context.Context, db *gorm.DB, payment *domain.UserPayment) error {
	err := db.WithContext(ctx).Create(payment).Error
	if dbutil.IsDuplicateKeyErr(err) {
		return domain.ErrAlreadyRegistered
	}
	return err
}

func (r *repo) FindUserPayment(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.UserPayment, error) {
	return first[domain.UserPayment](ctx, db, "user_id = ?", userID)
}

func (r *repo) FindUserPaymentByWallet(ctx context.Context, db *gorm.DB, walletID uuid.UUID) (*domain.UserPayment, error) {
	return first[domain.UserPayment](ctx, db, "wallet_id = ?", walletID)
}

func (r *repo) UpdateTOS(ctx context.Context, db *gorm.DB, userID snowflake.ID, version int, at time.Time) error {
	result := db.WithContext(ctx).
		Model(&domain.UserPayment{}).
		Where("user_id = ?", userID).
		UpdateColumns(map[string]any{
			"accepted_tos_version":   version,
			"accepted_tos_signature": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotRegistered
	}
	return nil
}

func (r *repo) InsertTransfer(ctx context.Context, db *gorm.DB, transfer *domain.Transfer) error {
	return db.WithContext(ctx).Create(transfer).Error
}

func (r *repo) FindTransferByIdentifier(ctx context.Context, db *gorm.DB, identifier string) (*domain.Transfer, error) {
	return first[domain.Transfer](ctx, db, "transfer_identifier = ?", identifier)
}

func (r *repo) ConfirmTransfer(ctx context.Context, db *gorm.DB, id uuid.UUID) (bool, error) {
	result := db.WithContext(ctx).
		Model(&domain.Transfer{}).
		Where("id = ? AND confirmed = ?", id, false).
		UpdateColumn("confirmed", true)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repo) SumPendingTransfers(ctx context.Context, db *gorm.DB, walletID uuid.UUID, since time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Transfer{}).
		Where("wallet_id = ? AND confirmed = ? AND created_at > ?", walletID, false, since).
		Select("COALESCE(SUM(total), 0)").
		Scan(&total).Error
	return total, err
}

func (r *repo) ListTransfersByWallet(ctx context.Context, db *gorm.DB, walletID uuid.UUID, after *pagination.Cursor, limit int) ([]domain.Transfer, error) {
	var rows []domain.Transfer
	stmt := db.WithContext(ctx).Model(&domain.Transfer{}).Where("wallet_id = ?", walletID)
	err := page(stmt, after, limit).Find(&rows).Error
	return rows, err
}
