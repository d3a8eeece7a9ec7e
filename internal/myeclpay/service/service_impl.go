package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	authdomain "github.com/smallbiznis/hyperion/internal/auth/domain"
	"github.com/smallbiznis/hyperion/internal/authorization"
	"github.com/smallbiznis/hyperion/internal/clock"
	"github.com/smallbiznis/hyperion/internal/config"
	"github.com/smallbiznis/hyperion/internal/myeclpay/domain"
	"github.com/smallbiznis/hyperion/internal/myeclpay/receipt"
	"github.com/smallbiznis/hyperion/internal/notification"
	"github.com/smallbiznis/hyperion/internal/observability/logger"
	"github.com/smallbiznis/hyperion/internal/observability/metrics"
	"github.com/smallbiznis/hyperion/internal/providers/email"
	"github.com/smallbiznis/hyperion/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PermissionCreateStore is the group permission required to open a store.
const PermissionCreateStore = "myeclpay_store_admin"

const actionModule = "MyECLPay"

type Params struct {
	fx.In

	DB       *gorm.DB
	Repo     domain.Repository
	Users    authdomain.Service
	Groups   authorization.Service
	Locker   *ratelimit.WalletLocker
	Notifier notification.Notifier
	Mailer   email.Provider
	Renderer receipt.Renderer
	GenID    *snowflake.Node
	Clock    clock.Clock
	Cfg      config.Config
	Log      *zap.Logger
	Payments *metrics.PaymentMetrics `optional:"true"`
	Metrics  *metrics.Metrics        `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	repo     domain.Repository
	users    authdomain.Service
	groups   authorization.Service
	locker   *ratelimit.WalletLocker
	notifier notification.Notifier
	mailer   email.Provider
	renderer receipt.Renderer
	genID    *snowflake.Node
	clock    clock.Clock
	cfg      config.Config
	payments *metrics.PaymentMetrics
	metrics  *metrics.Metrics
	log      *zap.Logger
	// ledger carries the integrity lines (TRANSACTION, REFUND, CANCEL,
	// TRANSFER) and must keep their format stable.
	ledger   *zap.Logger
	security *zap.Logger
}

func NewService(p Params) domain.Service {
	return newService(p)
}

func newService(p Params) *Service {
	return &Service{
		db:       p.DB,
		repo:     p.Repo,
		users:    p.Users,
		groups:   p.Groups,
		locker:   p.Locker,
		notifier: p.Notifier,
		mailer:   p.Mailer,
		renderer: p.Renderer,
		genID:    p.GenID,
		clock:    p.Clock,
		cfg:      p.Cfg,
		payments: p.Payments,
		metrics:  p.Metrics,
		log:      p.Log.Named("myeclpay.service"),
		ledger:   p.Log.Named("hyperion.myeclpay"),
		security: logger.Security(p.Log),
	}
}

// lockWallet serializes balance decrements of a wallet.
func (s *Service) lockWallet(ctx context.Context, walletID uuid.UUID) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	return s.locker.Lock(ctx, walletID.String())
}

func (s *Service) notify(ctx context.Context, userID snowflake.ID, title, content string) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyUser(ctx, userID.String(), notification.Message{
		Title:        title,
		Content:      content,
		ActionModule: actionModule,
	})
}

func (s *Service) observe(ctx context.Context, operation string, total int64, err error) {
	s.payments.ObserveOperation(operation, err)
	if err != nil {
		return
	}
	s.payments.AddVolume(operation, total)
	s.metrics.RecordWalletOperation(ctx, operation)
}

// walletNames resolves display names of wallets, caching lookups for the
// duration of one request.
type walletNames struct {
	s     *Service
	names map[uuid.UUID]string
}

func (s *Service) newWalletNames() *walletNames {
	return &walletNames{s: s, names: map[uuid.UUID]string{}}
}

func (w *walletNames) get(ctx context.Context, walletID uuid.UUID) (string, error) {
	if name, ok := w.names[walletID]; ok {
		return name, nil
	}
	name, err := w.s.walletOwnerName(ctx, walletID)
	if err != nil {
		return "", err
	}
	w.names[walletID] = name
	return name, nil
}

func (s *Service) walletOwnerName(ctx context.Context, walletID uuid.UUID) (string, error) {
	store, err := s.repo.FindStoreByWallet(ctx, s.db, walletID)
	if err != nil {
		return "", err
	}
	if store != nil {
		return store.Name, nil
	}
	payment, err := s.repo.FindUserPaymentByWallet(ctx, s.db, walletID)
	if err != nil {
		return "", err
	}
	if payment == nil {
		return "Unknown", nil
	}
	user, err := s.users.GetUserByID(ctx, payment.UserID.String())
	if err != nil {
		return "Unknown", nil
	}
	return user.FullName(), nil
}

func parseUserID(raw string) (snowflake.ID, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ErrUserNotFound
	}
	return snowflake.ID(id), nil
}

func formatTransactionLog(t *domain.Transaction) string {
	return fmt.Sprintf("TRANSACTION %s %s %s %d", t.ID, t.DebitedWalletID, t.CreditedWalletID, t.Total)
}

func formatRefundLog(r *domain.Refund) string {
	return fmt.Sprintf("REFUND %s %s %d", r.ID, r.TransactionID, r.Total)
}

func formatCancelLog(transactionID uuid.UUID) string {
	return fmt.Sprintf("CANCEL %s", transactionID)
}

func formatTransferLog(t *domain.Transfer) string {
	return fmt.Sprintf("TRANSFER %s %s %d %s", t.ID, t.Type, t.Total, t.WalletID)
}
