package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a rejection of a MyECLPay request. Message is returned verbatim
// to the caller; Code is a stable label for logs and metrics.
type Error struct {
	Status  int
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) ErrorCode() string { return e.Code }

func newError(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func AsError(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

var (
	ErrQRCodeAlreadyUsed     = newError(http.StatusConflict, "qr_code_already_used", "QR Code already used")
	ErrStoreNotFound         = newError(http.StatusNotFound, "store_not_found", "Store does not exist")
	ErrSellerCannotBank      = newError(http.StatusBadRequest, "seller_cannot_bank", "User does not have `can_bank` permission for this store")
	ErrDeviceNotFound        = newError(http.StatusBadRequest, "device_not_found", "Wallet device does not exist")
	ErrDeviceNotActive       = newError(http.StatusBadRequest, "device_not_active", "Wallet device is not active")
	ErrInvalidSignature      = newError(http.StatusBadRequest, "invalid_signature", "Invalid signature")
	ErrQRCodeNotForStore     = newError(http.StatusBadRequest, "qr_code_not_for_store", "QR Code is not intended to be scanned for a store")
	ErrTotalNotPositive      = newError(http.StatusBadRequest, "total_not_positive", "Total must be greater than 0")
	ErrTotalTooHigh          = newError(http.StatusBadRequest, "total_too_high", fmt.Sprintf("Total can not exceed %d", MaxTransactionTotal))
	ErrQRCodeExpired         = newError(http.StatusBadRequest, "qr_code_expired", "QR Code is expired")
	ErrDebitedWalletNotFound = newError(http.StatusBadRequest, "debited_wallet_not_found", "Could not find wallet associated with the debited wallet device")
	ErrStoreCannotBeDebited  = newError(http.StatusBadRequest, "store_cannot_be_debited", "Stores are not allowed to make transaction by QR code")
	ErrDebitedTOSNotSigned   = newError(http.StatusBadRequest, "debited_tos_not_signed", "Debited user has not signed the latest TOS")
	ErrInsufficientBalance   = newError(http.StatusBadRequest, "insufficient_balance", "Insufficient balance in the debited wallet")
)

var (
	ErrTransactionNotFound        = newError(http.StatusNotFound, "transaction_not_found", "Transaction does not exist")
	ErrTransactionNotRefundable   = newError(http.StatusBadRequest, "transaction_not_refundable", "Transaction is not available for refund")
	ErrTransactionTooOldForRefund = newError(http.StatusBadRequest, "transaction_too_old", "Transaction older than 30 days can not be refunded")
	ErrCreditedWalletNotFound     = newError(http.StatusNotFound, "credited_wallet_not_found", "Credited wallet that need to refund the transaction does not exist")
	ErrUserCreditedRefund         = newError(http.StatusForbidden, "user_credited_refund", "Transaction credited to a user can not be refunded")
	ErrRefundForbidden            = newError(http.StatusForbidden, "refund_forbidden", "User does not have the permission to refund this transaction")
	ErrRefundAmountRequired       = newError(http.StatusBadRequest, "refund_amount_required", "Please provide an amount for the refund if it is not a complete refund")
	ErrRefundAmountTooHigh        = newError(http.StatusBadRequest, "refund_amount_too_high", "Refund amount is greater than the transaction total")
	ErrRefundAmountNotPositive    = newError(http.StatusBadRequest, "refund_amount_not_positive", "Refund amount must be greater than 0")
	ErrRefundedWalletNotFound     = newError(http.StatusNotFound, "refunded_wallet_not_found", "The wallet that should be credited during the refund does not exist")
	ErrCreditedBalanceTooLow      = newError(http.StatusBadRequest, "credited_balance_too_low", "Insufficient balance in the credited wallet")
)

var (
	ErrCancelTooLate         = newError(http.StatusBadRequest, "cancel_too_late", "Transaction is older than 30 seconds and can not be canceled")
	ErrCancelWalletNotFound  = newError(http.StatusNotFound, "cancel_wallet_not_found", "Credited wallet does not exist")
	ErrCancelNotSeller       = newError(http.StatusForbidden, "cancel_not_seller", "User does not have the permission to cancel this transaction")
	ErrCancelSellerForbidden = newError(http.StatusBadRequest, "cancel_seller_forbidden", "User does not have the permission to cancel this transaction")
	ErrCancelNotOwner        = newError(http.StatusForbidden, "cancel_not_owner", "User is not allowed to cancel this transaction")
	ErrCancelNotConfirmed    = newError(http.StatusBadRequest, "cancel_not_confirmed", "Only confirmed transactions can be canceled")
	ErrDebitedWalletMissing  = newError(http.StatusNotFound, "debited_wallet_missing", "Debited wallet does not exist")
)

var (
	ErrAlreadyRegistered   = newError(http.StatusBadRequest, "already_registered", "User is already registered for MyECL Pay")
	ErrNotRegistered       = newError(http.StatusBadRequest, "not_registered", "User is not registered for MyECL Pay")
	ErrNotRegisteredLookup = newError(http.StatusNotFound, "not_registered", "User is not registered for MyECL Pay")
	ErrOnlyLatestTOS       = newError(http.StatusBadRequest, "only_latest_tos", fmt.Sprintf("Only the latest TOS version %d can be accepted", LatestTOSVersion))
	ErrTOSNotSigned        = newError(http.StatusBadRequest, "tos_not_signed", "User has not signed the latest TOS")
	ErrWalletNotFound      = newError(http.StatusNotFound, "wallet_not_found", "Wallet does not exist")
	ErrInvalidPublicKey    = newError(http.StatusBadRequest, "invalid_public_key", "Invalid ed25519 public key")
	ErrInvalidDeviceName   = newError(http.StatusBadRequest, "invalid_device_name", "Wallet device name can not be empty")
	ErrPublicKeyInUse      = newError(http.StatusBadRequest, "public_key_in_use", "This public key is already used by a wallet device")
	ErrInvalidToken        = newError(http.StatusNotFound, "invalid_token", "Invalid token")
	ErrDeviceNotInactive   = newError(http.StatusBadRequest, "device_not_inactive", "Wallet device is already activated or revoked")
	ErrDeviceMissing       = newError(http.StatusNotFound, "device_not_found", "Wallet device does not exist")
	ErrDeviceNotOwned      = newError(http.StatusBadRequest, "device_not_owned", "Wallet device does not belong to the user")
)

var (
	ErrStoreCreationForbidden = newError(http.StatusForbidden, "store_creation_forbidden", "User is not allowed to create stores")
	ErrInvalidStoreName       = newError(http.StatusBadRequest, "invalid_store_name", "Store name can not be empty")
	ErrStoreNameTaken         = newError(http.StatusBadRequest, "store_name_taken", "A store with this name already exists")
	ErrManageSellersForbidden = newError(http.StatusForbidden, "manage_sellers_forbidden", "User does not have the permission to manage sellers")
	ErrSellerExists           = newError(http.StatusBadRequest, "seller_exists", "Seller already exists")
	ErrUserNotFound           = newError(http.StatusNotFound, "user_not_found", "User does not exist")
	ErrHistoryForbidden       = newError(http.StatusForbidden, "history_forbidden", "User does not have the permission to see this store history")
	ErrInvalidPageToken       = newError(http.StatusBadRequest, "invalid_page_token", "Invalid page token")
)

var (
	ErrTransferAmountTooLow   = newError(http.StatusBadRequest, "transfer_amount_too_low", "Please give an amount in cents, greater than 1€.")
	ErrMaxBalanceExceeded     = newError(http.StatusForbidden, "max_balance_exceeded", "Wallet balance would exceed the maximum allowed balance")
	ErrTransferNotFound       = newError(http.StatusNotFound, "transfer_not_found", "Transfer does not exist")
	ErrTransferTotalMismatch  = newError(http.StatusBadRequest, "transfer_total_mismatch", "Transfer total does not match the paid amount")
	ErrTransferAlreadyApplied = newError(http.StatusBadRequest, "transfer_already_confirmed", "Transfer is already confirmed")
)

var (
	ErrReceiptForbidden = newError(http.StatusForbidden, "receipt_forbidden", "User is not allowed to see this transaction")
)
