// Package domain holds the MyECLPay ledger model: wallets, the devices
// allowed to sign debits for them, and the movements between wallets.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type WalletType string

const (
	WalletTypeUser  WalletType = "USER"
	WalletTypeStore WalletType = "STORE"
)

type WalletDeviceStatus string

const (
	WalletDeviceInactive WalletDeviceStatus = "INACTIVE"
	WalletDeviceActive   WalletDeviceStatus = "ACTIVE"
	WalletDeviceRevoked  WalletDeviceStatus = "REVOKED"
)

type TransactionStatus string

const (
	TransactionConfirmed TransactionStatus = "CONFIRMED"
	TransactionCanceled  TransactionStatus = "CANCELED"
	TransactionRefunded  TransactionStatus = "REFUNDED"
	// TransactionPending is only reported for unconfirmed transfers.
	TransactionPending TransactionStatus = "PENDING"
)

type TransactionType string

const (
	TransactionTypeDirect TransactionType = "DIRECT"
)

type TransferType string

const (
	TransferTypeCheckout TransferType = "CHECKOUT"
)

type HistoryType string

const (
	HistoryGiven          HistoryType = "given"
	HistoryReceived       HistoryType = "received"
	HistoryTransfer       HistoryType = "transfer"
	HistoryRefundCredited HistoryType = "refund_credited"
	HistoryRefundDebited  HistoryType = "refund_debited"
)

const (
	LatestTOSVersion    = 2
	MaxTransactionTotal = 2000
	QRCodeExpiration    = 5 * time.Minute
	CancelWindow        = 30 * time.Second
	RefundWindow        = 30 * 24 * time.Hour
	TransferPendingFor  = 15 * time.Minute
	MinTransferAmount   = 100
)

// Wallet balances are integer cents and never negative.
type Wallet struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Type      WalletType `gorm:"type:text;not null" json:"type"`
	Balance   int64      `gorm:"not null;default:0" json:"balance"`
	CreatedAt time.Time  `gorm:"not null" json:"created_at"`
}

func (Wallet) TableName() string { return "myeclpay_wallets" }

// WalletDevice is a keypair held by a client application. Only ACTIVE
// devices may sign debits.
type WalletDevice struct {
	ID               uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	Name             string             `gorm:"type:text;not null" json:"name"`
	WalletID         uuid.UUID          `gorm:"type:uuid;not null;index" json:"wallet_id"`
	Ed25519PublicKey []byte             `gorm:"not null;uniqueIndex" json:"-"`
	Status           WalletDeviceStatus `gorm:"type:text;not null" json:"status"`
	ActivationToken  string             `gorm:"type:text;not null;uniqueIndex" json:"-"`
	CreatedAt        time.Time          `gorm:"not null" json:"creation"`
}

func (WalletDevice) TableName() string { return "myeclpay_wallet_devices" }

// UsedQRCode is the replay cache. Its primary key is the payload id.
type UsedQRCode struct {
	QRCodeID       uuid.UUID      `gorm:"column:qr_code_id;type:uuid;primaryKey"`
	Total          int64          `gorm:"not null"`
	IssuedAt       time.Time      `gorm:"not null"`
	WalletDeviceID uuid.UUID      `gorm:"type:uuid;not null"`
	Store          bool           `gorm:"not null"`
	Signature      string         `gorm:"type:text;not null"`
	Payload        datatypes.JSON `gorm:"not null"`
	CreatedAt      time.Time      `gorm:"not null"`
}

func (UsedQRCode) TableName() string { return "myeclpay_used_qr_codes" }

type Transaction struct {
	ID                    uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	DebitedWalletID       uuid.UUID         `gorm:"type:uuid;not null;index" json:"debited_wallet_id"`
	DebitedWalletDeviceID *uuid.UUID        `gorm:"type:uuid" json:"debited_wallet_device_id,omitempty"`
	CreditedWalletID      uuid.UUID         `gorm:"type:uuid;not null;index" json:"credited_wallet_id"`
	Type                  TransactionType   `gorm:"column:transaction_type;type:text;not null" json:"transaction_type"`
	SellerUserID          *snowflake.ID     `json:"seller_user_id,omitempty"`
	Total                 int64             `gorm:"not null" json:"total"`
	Status                TransactionStatus `gorm:"type:text;not null" json:"status"`
	QRCodeID              *uuid.UUID        `gorm:"column:qr_code_id;type:uuid;uniqueIndex" json:"qr_code_id,omitempty"`
	StoreNote             *string           `gorm:"type:text" json:"store_note,omitempty"`
	CreatedAt             time.Time         `gorm:"not null;index" json:"creation"`
}

func (Transaction) TableName() string { return "myeclpay_transactions" }

// Refund is unique per transaction.
type Refund struct {
	ID               uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	TransactionID    uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex" json:"transaction_id"`
	DebitedWalletID  uuid.UUID     `gorm:"type:uuid;not null;index" json:"debited_wallet_id"`
	CreditedWalletID uuid.UUID     `gorm:"type:uuid;not null;index" json:"credited_wallet_id"`
	SellerUserID     *snowflake.ID `json:"seller_user_id,omitempty"`
	Total            int64         `gorm:"not null" json:"total"`
	CreatedAt        time.Time     `gorm:"not null" json:"creation"`
}

func (Refund) TableName() string { return "myeclpay_refunds" }

type Store struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:text;not null;uniqueIndex" json:"name"`
	Slug      string       `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	WalletID  uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex" json:"wallet_id"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (Store) TableName() string { return "myeclpay_stores" }

type Seller struct {
	UserID           snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	StoreID          snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"store_id"`
	CanBank          bool         `gorm:"not null" json:"can_bank"`
	CanSeeHistory    bool         `gorm:"not null" json:"can_see_history"`
	CanCancel        bool         `gorm:"not null" json:"can_cancel"`
	CanManageSellers bool         `gorm:"not null" json:"can_manage_sellers"`
}

func (Seller) TableName() string { return "myeclpay_sellers" }

// UserPayment registers a user for MyECLPay and owns their USER wallet.
type UserPayment struct {
	UserID               snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	WalletID             uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex"`
	AcceptedTOSSignature time.Time    `gorm:"column:accepted_tos_signature;not null"`
	AcceptedTOSVersion   int          `gorm:"column:accepted_tos_version;not null"`
}

func (UserPayment) TableName() string { return "myeclpay_user_payments" }

func (u UserPayment) HasSignedLatestTOS() bool {
	return u.AcceptedTOSVersion == LatestTOSVersion
}

// Transfer is a top-up paid through the checkout provider. It credits the
// wallet once the provider callback confirms it. TransferIdentifier is the
// checkout key shared with the provider only; it never leaves the server.
type Transfer struct {
	ID                 uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	Type               TransferType  `gorm:"type:text;not null" json:"type"`
	TransferIdentifier string        `gorm:"type:text;not null;uniqueIndex" json:"-"`
	ApproverUserID     *snowflake.ID `json:"approver_user_id,omitempty"`
	WalletID           uuid.UUID     `gorm:"type:uuid;not null;index" json:"wallet_id"`
	Total              int64         `gorm:"not null" json:"total"`
	Confirmed          bool          `gorm:"not null;default:false" json:"confirmed"`
	CreatedAt          time.Time     `gorm:"not null" json:"creation"`
}

func (Transfer) TableName() string { return "myeclpay_transfers" }

// Models lists every table of the package in creation order.
func Models() []any {
	return []any{
		&Wallet{},
		&WalletDevice{},
		&UsedQRCode{},
		&Transaction{},
		&Refund{},
		&Store{},
		&Seller{},
		&UserPayment{},
		&Transfer{},
	}
}
