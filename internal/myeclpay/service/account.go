package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/smallbiznis/hyperion/internal/myeclpay/domain"
	"github.com/smallbiznis/hyperion/internal/myeclpay/signature"
	"github.com/smallbiznis/hyperion/internal/observability/logger"
	"github.com/smallbiznis/hyperion/internal/providers/email"
	"github.com/smallbiznis/hyperion/pkg/db/pagination"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	activationTokenBytes = 16
	defaultHistoryPage   = 20
)

// Register opens a USER wallet for the user. The TOS still has to be
// signed before the wallet can be used.
func (s *Service) Register(ctx context.Context, userID snowflake.ID) error {
	existing, err := s.repo.FindUserPayment(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if existing != nil {
		return domain.ErrAlreadyRegistered
	}

	now := s.clock.Now()
	wallet := &domain.Wallet{ID: uuid.New(), Type: domain.WalletTypeUser, CreatedAt: now}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.InsertWallet(ctx, tx, wallet); err != nil {
			return err
		}
		return s.repo.InsertUserPayment(ctx, tx, &domain.UserPayment{
			UserID:               userID,
			WalletID:             wallet.ID,
			AcceptedTOSSignature: now,
			AcceptedTOSVersion:   0,
		})
	})
	if err != nil {
		return err
	}
	logger.WithContext(ctx, s.log).Info("user registered for MyECLPay",
		zap.String("user_id", userID.String()),
		zap.String("wallet_id", wallet.ID.String()),
	)
	return nil
}

func (s *Service) SignTOS(ctx context.Context, userID snowflake.ID, version int) error {
	if version != domain.LatestTOSVersion {
		return domain.ErrOnlyLatestTOS
	}
	payment, err := s.repo.FindUserPayment(ctx, s.db, userID)
	if err != nil {
		return err
	}
	if payment == nil {
		return domain.ErrNotRegistered
	}
	if err := s.repo.UpdateTOS(ctx, s.db, userID, version, s.clock.Now()); err != nil {
		return err
	}
	logger.WithContext(ctx, s.log).Info("MyECLPay TOS signed",
		zap.String("user_id", userID.String()),
		zap.Int("version", version),
	)
	if s.cfg.SMTP.Active {
		s.mail(ctx, userID, email.TemplateTOSSigned, map[string]any{"version": version})
	}
	return nil
}

func (s *Service) GetTOS(ctx context.Context, userID snowflake.ID) (domain.TOSStatus, error) {
	payment, err := s.repo.FindUserPayment(ctx, s.db, userID)
	if err != nil {
		return domain.TOSStatus{}, err
	}
	if payment == nil {
		return domain.TOSStatus{}, domain.ErrNotRegistered
	}
	return domain.TOSStatus{
		AcceptedTOSVersion:  payment.AcceptedTOSVersion,
		LatestTOSVersion:    domain.LatestTOSVersion,
		MaxTransactionTotal: domain.MaxTransactionTotal,
		MaxWalletBalance:    s.cfg.MyECLPayMaxWalletBalance,
	}, nil
}

// registeredPayment returns the user's registration, requiring the latest
// TOS to be signed.
func (s *Service) registeredPayment(ctx context.Context, userID snowflake.ID) (*domain.UserPayment, error) {
	payment, err := s.repo.FindUserPayment(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if payment == nil || !payment.HasSignedLatestTOS() {
		return nil, domain.ErrNotRegistered
	}
	return payment, nil
}

func (s *Service) GetWallet(ctx context.Context, userID snowflake.ID) (*domain.WalletView, error) {
	payment, err := s.registeredPayment(ctx, userID)
	if err != nil {
		return nil, err
	}
	wallet, err := s.repo.FindWallet(ctx, s.db, payment.WalletID)
	if err != nil {
		return nil, err
	}
	if wallet == nil {
		return nil, domain.ErrWalletNotFound
	}
	name, err := s.walletOwnerName(ctx, wallet.ID)
	if err != nil {
		return nil, err
	}
	return &domain.WalletView{
		ID:        wallet.ID,
		Type:      wallet.Type,
		Balance:   wallet.Balance,
		OwnerName: name,
	}, nil
}

func (s *Service) WalletBalance(ctx context.Context, userID snowflake.ID) (int64, error) {
	payment, err := s.repo.FindUserPayment(ctx, s.db, userID)
	if err != nil || payment == nil {
		return 0, err
	}
	wallet, err := s.repo.FindWallet(ctx, s.db, payment.WalletID)
	if err != nil || wallet == nil {
		return 0, err
	}
	return wallet.Balance, nil
}

// History merges transactions, transfers and refunds of the user's wallet,
// newest first.
func (s *Service) History(ctx context.Context, userID snowflake.ID, page pagination.Pagination) (domain.HistoryResponse, error) {
	payment, err := s.repo.FindUserPayment(ctx, s.db, userID)
	if err != nil {
		return domain.HistoryResponse{}, err
	}
	if payment == nil {
		return domain.HistoryResponse{}, domain.ErrNotRegisteredLookup
	}

	limit := page.PageSize
	if limit <= 0 {
		limit = defaultHistoryPage
	}
	var after *pagination.Cursor
	if token := strings.TrimSpace(page.PageToken); token != "" {
		after, err = pagination.DecodeCursor(token)
		if err != nil {
			return domain.HistoryResponse{}, domain.ErrInvalidPageToken
		}
	}

	walletID := payment.WalletID
	names := s.newWalletNames()
	now := s.clock.Now()
	entries := make([]domain.HistoryEntry, 0, limit+1)

	transactions, err := s.repo.ListTransactionsByWallet(ctx, s.db, walletID, after, limit+1)
	if err != nil {
		return domain.HistoryResponse{}, err
	}
	for _, t := range transactions {
		entry := domain.HistoryEntry{
			ID:        t.ID,
			Total:     t.Total,
			CreatedAt: t.CreatedAt,
			Status:    t.Status,
		}
		other := t.CreditedWalletID
		entry.Type = domain.HistoryGiven
		if t.CreditedWalletID == walletID {
			other = t.DebitedWalletID
			entry.Type = domain.HistoryReceived
		}
		if entry.OtherWalletName, err = names.get(ctx, other); err != nil {
			return domain.HistoryResponse{}, err
		}
		if t.Status == domain.TransactionRefunded {
			refund, err := s.repo.FindRefundByTransaction(ctx, s.db, t.ID)
			if err != nil {
				return domain.HistoryResponse{}, err
			}
			if refund != nil {
				entry.Refund = &domain.HistoryRefund{Total: refund.Total, CreatedAt: refund.CreatedAt}
			}
		}
		entries = append(entries, entry)
	}

	transfers, err := s.repo.ListTransfersByWallet(ctx, s.db, walletID, after, limit+1)
	if err != nil {
		return domain.HistoryResponse{}, err
	}
	for _, t := range transfers {
		status := domain.TransactionCanceled
		switch {
		case t.Confirmed:
			status = domain.TransactionConfirmed
		case now.Before(t.CreatedAt.Add(domain.TransferPendingFor)):
			status = domain.TransactionPending
		}
		entries = append(entries, domain.HistoryEntry{
			ID:              t.ID,
			Type:            domain.HistoryTransfer,
			OtherWalletName: "Transfer",
			Total:           t.Total,
			CreatedAt:       t.CreatedAt,
			Status:          status,
		})
	}

	refunds, err := s.repo.ListRefundsByWallet(ctx, s.db, walletID, after, limit+1)
	if err != nil {
		return domain.HistoryResponse{}, err
	}
	for _, r := range refunds {
		kind, other := domain.HistoryRefundCredited, r.DebitedWalletID
		if r.DebitedWalletID == walletID {
			kind, other = domain.HistoryRefundDebited, r.CreditedWalletID
		}
		name, err := names.get(ctx, other)
		if err != nil {
			return domain.HistoryResponse{}, err
		}
		entries = append(entries, domain.HistoryEntry{
			ID:              r.ID,
			Type:            kind,
			OtherWalletName: name,
			Total:           r.Total,
			CreatedAt:       r.CreatedAt,
			Status:          domain.TransactionConfirmed,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID.String() > entries[j].ID.String()
	})
	entries, info, err := pagination.Trim(entries, limit, func(e domain.HistoryEntry) pagination.Cursor {
		return pagination.Cursor{ID: e.ID.String(), CreatedAt: e.CreatedAt}
	})
	if err != nil {
		return domain.HistoryResponse{}, err
	}
	return domain.HistoryResponse{PageInfo: info, Entries: entries}, nil
}

// CreateDevice registers an INACTIVE device. It is activated through the
// link sent by email, or logged when SMTP is off.
func (s *Service) CreateDevice(ctx context.Context, userID snowflake.ID, req domain.CreateDeviceRequest) (*domain.WalletDevice, error) {
	payment, err := s.registeredPayment(ctx, userID)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidDeviceName
	}
	publicKey, err := signature.ParsePublicKey(strings.TrimSpace(req.Ed25519PublicKey))
	if err != nil {
		return nil, domain.ErrInvalidPublicKey
	}
	token, err := newActivationToken()
	if err != nil {
		return nil, err
	}

	device := &domain.WalletDevice{
		ID:               uuid.New(),
		Name:             name,
		WalletID:         payment.WalletID,
		Ed25519PublicKey: publicKey,
		Status:           domain.WalletDeviceInactive,
		ActivationToken:  token,
		CreatedAt:        s.clock.Now(),
	}
	if err := s.repo.InsertWalletDevice(ctx, s.db, device); err != nil {
		return nil, err
	}

	link := s.cfg.ClientURL + "myeclpay/devices/activate?token=" + token
	if s.cfg.SMTP.Active {
		s.mail(ctx, userID, email.TemplateActivateDevice, map[string]any{"activation_link": link})
	} else {
		logger.WithContext(ctx, s.ledger).Warn("activate your device using the token",
			zap.String("wallet_device_id", device.ID.String()),
			zap.String("activation_token", token),
		)
	}
	return device, nil
}

func (s *Service) ListDevices(ctx context.Context, userID snowflake.ID) ([]domain.WalletDevice, error) {
	payment, err := s.registeredPayment(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListWalletDevices(ctx, s.db, payment.WalletID)
}

func (s *Service) ActivateDevice(ctx context.Context, token string) (*domain.WalletDevice, error) {
	device, err := s.repo.FindWalletDeviceByActivationToken(ctx, s.db, strings.TrimSpace(token))
	if err != nil {
		return nil, err
	}
	if device == nil {
		return nil, domain.ErrInvalidToken
	}
	if device.Status != domain.WalletDeviceInactive {
		return nil, domain.ErrDeviceNotInactive
	}
	moved, err := s.repo.UpdateWalletDeviceStatus(ctx, s.db, device.ID,
		[]domain.WalletDeviceStatus{domain.WalletDeviceInactive}, domain.WalletDeviceActive)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, domain.ErrDeviceNotInactive
	}
	device.Status = domain.WalletDeviceActive

	payment, err := s.repo.FindUserPaymentByWallet(ctx, s.db, device.WalletID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrWalletNotFound
	}
	logger.WithContext(ctx, s.log).Info("wallet device activated",
		zap.String("wallet_device_id", device.ID.String()),
		zap.String("user_id", payment.UserID.String()),
	)
	s.notify(ctx, payment.UserID, "Paiement - appareil activé", "Vous avez activé l'appareil "+device.Name)
	return device, nil
}

func (s *Service) RevokeDevice(ctx context.Context, userID snowflake.ID, deviceID uuid.UUID) error {
	payment, err := s.registeredPayment(ctx, userID)
	if err != nil {
		return err
	}
	device, err := s.repo.FindWalletDevice(ctx, s.db, deviceID)
	if err != nil {
		return err
	}
	if device == nil {
		return domain.ErrDeviceMissing
	}
	if device.WalletID != payment.WalletID {
		return domain.ErrDeviceNotOwned
	}
	if _, err := s.repo.UpdateWalletDeviceStatus(ctx, s.db, device.ID, nil, domain.WalletDeviceRevoked); err != nil {
		return err
	}
	logger.WithContext(ctx, s.log).Info("wallet device revoked",
		zap.String("wallet_device_id", device.ID.String()),
		zap.String("user_id", userID.String()),
	)
	s.notify(ctx, userID, "Paiement - appareil revoqué", "Vous avez revoqué l'appareil "+device.Name)
	return nil
}

func (s *Service) mail(ctx context.Context, userID snowflake.ID, template string, data map[string]any) {
	if s.mailer == nil {
		return
	}
	user, err := s.users.GetUserByID(ctx, userID.String())
	if err != nil {
		s.log.Warn("mail recipient lookup failed", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}
	go func() {
		if err := s.mailer.SendTemplate(context.WithoutCancel(ctx), []string{user.Email}, template, data); err != nil {
			s.log.Warn("send mail failed", zap.String("template", template), zap.Error(err))
		}
	}()
}

func newActivationToken() (string, error) {
	buf := make([]byte, activationTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
