package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/hyperion/pkg/db/pagination"
)

// QRCodeContent is what a wallet device signs. Field order of the signed
// JSON is id, tot, iat, key, store.
type QRCodeContent struct {
	ID       uuid.UUID `json:"id"`
	Total    int64     `json:"tot"`
	IssuedAt time.Time `json:"iat"`
	Key      uuid.UUID `json:"key"`
	Store    bool      `json:"store"`

	// RawIssuedAt is iat exactly as the device wrote it. Devices sign their
	// own rendering of the timestamp, so it is reused verbatim.
	RawIssuedAt string `json:"-"`
}

// ScanInfo is a QR code as read by a store terminal.
type ScanInfo struct {
	QRCodeContent
	// Signature is the base64 encoded ed25519 signature of the content.
	Signature string `json:"signature"`
}

func (s *ScanInfo) UnmarshalJSON(data []byte) error {
	type content QRCodeContent
	var wire struct {
		content
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	var raw struct {
		IssuedAt string `json:"iat"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.QRCodeContent = QRCodeContent(wire.content)
	s.RawIssuedAt = raw.IssuedAt
	s.Signature = wire.Signature
	return nil
}

type RefundRequest struct {
	CompleteRefund bool   `json:"complete_refund"`
	Amount         *int64 `json:"amount"`
}

type CreateDeviceRequest struct {
	Name string `json:"name"`
	// Ed25519PublicKey is the base64 encoded raw public key.
	Ed25519PublicKey string `json:"ed25519_public_key"`
}

type CreateStoreRequest struct {
	Name string `json:"name"`
}

type CreateSellerRequest struct {
	UserID           string `json:"user_id"`
	CanBank          bool   `json:"can_bank"`
	CanSeeHistory    bool   `json:"can_see_history"`
	CanCancel        bool   `json:"can_cancel"`
	CanManageSellers bool   `json:"can_manage_sellers"`
}

type InitTransferRequest struct {
	Amount int64 `json:"amount"`
}

// TransferCallback is the payment provider notification for a checkout.
type TransferCallback struct {
	CheckoutID string `json:"checkout_id"`
	PaidAmount int64  `json:"paid_amount"`
}

type TOSStatus struct {
	AcceptedTOSVersion  int   `json:"accepted_tos_version"`
	LatestTOSVersion    int   `json:"latest_tos_version"`
	MaxTransactionTotal int64 `json:"max_transaction_total"`
	MaxWalletBalance    int64 `json:"max_wallet_balance"`
}

type WalletView struct {
	ID        uuid.UUID  `json:"id"`
	Type      WalletType `json:"type"`
	Balance   int64      `json:"balance"`
	OwnerName string     `json:"owner_name,omitempty"`
}

type HistoryRefund struct {
	Total     int64     `json:"total"`
	CreatedAt time.Time `json:"creation"`
}

type HistoryEntry struct {
	ID              uuid.UUID         `json:"id"`
	Type            HistoryType       `json:"type"`
	OtherWalletName string            `json:"other_wallet_name"`
	Total           int64             `json:"total"`
	CreatedAt       time.Time         `json:"creation"`
	Status          TransactionStatus `json:"status"`
	Refund          *HistoryRefund    `json:"refund,omitempty"`
}

type HistoryResponse struct {
	pagination.PageInfo
	Entries []HistoryEntry `json:"entries"`
}

// Service is the MyECLPay API. Every method taking a userID acts on behalf
// of that authenticated user.
type Service interface {
	StoreScan(ctx context.Context, userID snowflake.ID, storeID snowflake.ID, info ScanInfo) (*Transaction, error)
	RefundTransaction(ctx context.Context, userID snowflake.ID, transactionID uuid.UUID, req RefundRequest) (*Refund, error)
	CancelTransaction(ctx context.Context, userID snowflake.ID, transactionID uuid.UUID) error

	Register(ctx context.Context, userID snowflake.ID) error
	SignTOS(ctx context.Context, userID snowflake.ID, version int) error
	GetTOS(ctx context.Context, userID snowflake.ID) (TOSStatus, error)

	GetWallet(ctx context.Context, userID snowflake.ID) (*WalletView, error)
	History(ctx context.Context, userID snowflake.ID, page pagination.Pagination) (HistoryResponse, error)

	CreateDevice(ctx context.Context, userID snowflake.ID, req CreateDeviceRequest) (*WalletDevice, error)
	ListDevices(ctx context.Context, userID snowflake.ID) ([]WalletDevice, error)
	ActivateDevice(ctx context.Context, token string) (*WalletDevice, error)
	RevokeDevice(ctx context.Context, userID snowflake.ID, deviceID uuid.UUID) error

	CreateStore(ctx context.Context, userID snowflake.ID, req CreateStoreRequest) (*Store, error)
	CreateSeller(ctx context.Context, userID snowflake.ID, storeID snowflake.ID, req CreateSellerRequest) (*Seller, error)

	InitTransfer(ctx context.Context, userID snowflake.ID, req InitTransferRequest) (*Transfer, error)
	ConfirmTransfer(ctx context.Context, cb TransferCallback) (*Transfer, error)

	Receipt(ctx context.Context, userID snowflake.ID, transactionID uuid.UUID) ([]byte, error)

	// WalletBalance reports the balance of a registered user, zero otherwise.
	WalletBalance(ctx context.Context, userID snowflake.ID) (int64, error)
}
