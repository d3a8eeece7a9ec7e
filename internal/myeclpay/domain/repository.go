package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/hyperion/pkg/db/pagination"
	"gorm.io/gorm"
)

// Repository takes the connection per call so that a caller can run several
// operations inside one transaction. Finders return nil, nil when no row
// matches.
type Repository interface {
	InsertWallet(ctx context.Context, db *gorm.DB, wallet *Wallet) error
	FindWallet(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Wallet, error)
	// DebitWallet subtracts amount only if the balance covers it and reports
	// whether it did.
	DebitWallet(ctx context.Context, db *gorm.DB, id uuid.UUID, amount int64) (bool, error)
	CreditWallet(ctx context.Context, db *gorm.DB, id uuid.UUID, amount int64) error

	InsertWalletDevice(ctx context.Context, db *gorm.DB, device *WalletDevice) error
	FindWalletDevice(ctx context.Context, db *gorm.DB, id uuid.UUID) (*WalletDevice, error)
	FindWalletDeviceByActivationToken(ctx context.Context, db *gorm.DB, token string) (*WalletDevice, error)
	ListWalletDevices(ctx context.Context, db *gorm.DB, walletID uuid.UUID) ([]WalletDevice, error)
	// UpdateWalletDeviceStatus moves a device from one status to another and
	// reports false when the device was not in the expected status.
	UpdateWalletDeviceStatus(ctx context.Context, db *gorm.DB, id uuid.UUID, from []WalletDeviceStatus, to WalletDeviceStatus) (bool, error)

	FindUsedQRCode(ctx context.Context, db *gorm.DB, id uuid.UUID) (*UsedQRCode, error)
	InsertUsedQRCode(ctx context.Context, db *gorm.DB, code *UsedQRCode) error

	InsertTransaction(ctx context.Context, db *gorm.DB, tx *Transaction) error
	FindTransaction(ctx context.Context, db *gorm.DB, id uuid.UUID) (*Transaction, error)
	UpdateTransactionStatus(ctx context.Context, db *gorm.DB, id uuid.UUID, from, to TransactionStatus) (bool, error)
	ListTransactionsByWallet(ctx context.Context, db *gorm.DB, walletID uuid.UUID, after *pagination.Cursor, limit int) ([]Transaction, error)

	InsertRefund(ctx context.Context, db *gorm.DB, refund *Refund) error
	FindRefundByTransaction(ctx context.Context, db *gorm.DB, transactionID uuid.UUID) (*Refund, error)
	ListRefundsByWallet(ctx context.Context, db *gorm.DB, walletID uuid.UUID, after *pagination.Cursor, limit int) ([]Refund, error)

	InsertStore(ctx context.Context, db *gorm.DB, store *Store) error
	FindStore(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Store, error)
	FindStoreByWallet(ctx context.Context, db *gorm.DB, walletID uuid.UUID) (*Store, error)

	InsertSeller(ctx context.Context, db *gorm.DB, seller *Seller) error
	FindSeller(ctx context.Context, db *gorm.DB, storeID, userID snowflake.ID) (*Seller, error)

	InsertUserPayment(ctx context.Context, db *gorm.DB, payment *UserPayment) error
	FindUserPayment(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*UserPayment, error)
	FindUserPaymentByWallet(ctx context.Context, db *gorm.DB, walletID uuid.UUID) (*UserPayment, error)
	UpdateTOS(ctx context.Context, db *gorm.DB, userID snowflake.ID, version int, at time.Time) error

	InsertTransfer(ctx context.Context, db *gorm.DB, transfer *Transfer) error
	FindTransferByIdentifier(ctx context.Context, db *gorm.DB, identifier string) (*Transfer, error)
	ConfirmTransfer(ctx context.Context, db *gorm.DB, id uuid.UUID) (bool, error)
	// SumPendingTransfers totals the unconfirmed transfers of a wallet
	// created after since.
	SumPendingTransfers(ctx context.Context, db *gorm.DB, walletID uuid.UUID, since time.Time) (int64, error)
	ListTransfersByWallet(ctx context.Context, db *gorm.DB, walletID uuid.UUID, after *pagination.Cursor, limit int) ([]Transfer, error)
}
