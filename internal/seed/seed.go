// Package seed fills a development database with an administrator, the
// store admin permission and a first store.
package seed

import (
	"context"
	"errors"
	"fmt"

	authdomain "github.com/smallbiznis/hyperion/internal/auth/domain"
	"github.com/smallbiznis/hyperion/internal/authorization"
	paydomain "github.com/smallbiznis/hyperion/internal/myeclpay/domain"
	payservice "github.com/smallbiznis/hyperion/internal/myeclpay/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultAdminEmail     = "admin@myecl.fr"
	defaultAdminPassword  = "hyperion-admin"
	defaultAdminFirstname = "Admin"
	defaultAdminName      = "MyECL"
	defaultAdminGroup     = "admin"
	defaultStoreName      = "Cafet"
)

var Module = fx.Module("seed",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Users    authdomain.Service
	Groups   authorization.Service
	Payments paydomain.Service
	Log      *zap.Logger
}

type Seeder struct {
	users    authdomain.Service
	groups   authorization.Service
	payments paydomain.Service
	log      *zap.Logger
}

func New(p Params) *Seeder {
	return &Seeder{
		users:    p.Users,
		groups:   p.Groups,
		payments: p.Payments,
		log:      p.Log.Named("seed"),
	}
}

// Run is idempotent: existing rows are left as they are.
func (s *Seeder) Run(ctx context.Context) error {
	admin, err := s.ensureAdmin(ctx)
	if err != nil {
		return err
	}
	adminID := admin.ID.String()

	if err := s.groups.GrantPermission(ctx, defaultAdminGroup, payservice.PermissionCreateStore); err != nil {
		return fmt.Errorf("grant store permission: %w", err)
	}
	if err := s.groups.AddUserToGroup(ctx, adminID, defaultAdminGroup); err != nil {
		return fmt.Errorf("add admin to group: %w", err)
	}

	if err := s.payments.Register(ctx, admin.ID); err != nil && !errors.Is(err, paydomain.ErrAlreadyRegistered) {
		return fmt.Errorf("register admin wallet: %w", err)
	}
	if err := s.payments.SignTOS(ctx, admin.ID, paydomain.LatestTOSVersion); err != nil {
		return fmt.Errorf("sign tos: %w", err)
	}

	store, err := s.payments.CreateStore(ctx, admin.ID, paydomain.CreateStoreRequest{Name: defaultStoreName})
	switch {
	case errors.Is(err, paydomain.ErrStoreNameTaken):
		s.log.Info("seed store already present", zap.String("store", defaultStoreName))
	case err != nil:
		return fmt.Errorf("create store: %w", err)
	default:
		s.log.Info("seed store created", zap.String("store_id", store.ID.String()), zap.String("slug", store.Slug))
	}

	s.log.Info("development data seeded", zap.String("admin_email", defaultAdminEmail))
	return nil
}

func (s *Seeder) ensureAdmin(ctx context.Context) (*authdomain.User, error) {
	user, err := s.users.CreateUser(ctx, authdomain.CreateUserRequest{
		Email:     defaultAdminEmail,
		Password:  defaultAdminPassword,
		Firstname: defaultAdminFirstname,
		Name:      defaultAdminName,
	})
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, authdomain.ErrUserExists) {
		return nil, fmt.Errorf("create admin: %w", err)
	}
	user, err = s.users.Authenticate(ctx, defaultAdminEmail, defaultAdminPassword)
	if err != nil {
		return nil, fmt.Errorf("load admin: %w", err)
	}
	return user, nil
}
