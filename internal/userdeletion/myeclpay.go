package userdeletion

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hyperion/internal/myeclpay/domain"
	"github.com/smallbiznis/hyperion/internal/myeclpay/receipt"
)

// WalletChecker refuses deletion while the user's wallet holds money.
type WalletChecker struct {
	payments domain.Service
}

func NewWalletChecker(payments domain.Service) *WalletChecker {
	return &WalletChecker{payments: payments}
}

func (c *WalletChecker) Module() string { return "myeclpay" }

func (c *WalletChecker) Check(ctx context.Context, userID snowflake.ID) (string, error) {
	balance, err := c.payments.WalletBalance(ctx, userID)
	if err != nil {
		return "", err
	}
	if balance != 0 {
		return "MyECL Pay wallet balance is " + receipt.FormatCents(balance) + ", it must be empty", nil
	}
	return "", nil
}
