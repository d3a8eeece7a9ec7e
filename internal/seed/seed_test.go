package seed_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authrepository "github.com/smallbiznis/hyperion/internal/auth/repository"
	authservice "github.com/smallbiznis/hyperion/internal/auth/service"
	"github.com/smallbiznis/hyperion/internal/authorization"
	"github.com/smallbiznis/hyperion/internal/clock"
	"github.com/smallbiznis/hyperion/internal/config"
	"github.com/smallbiznis/hyperion/internal/migration"
	paydomain "github.com/smallbiznis/hyperion/internal/myeclpay/domain"
	"github.com/smallbiznis/hyperion/internal/myeclpay/repository"
	payservice "github.com/smallbiznis/hyperion/internal/myeclpay/service"
	"github.com/smallbiznis/hyperion/internal/providers/email"
	"github.com/smallbiznis/hyperion/internal/ratelimit"
	"github.com/smallbiznis/hyperion/internal/seed"
	"github.com/smallbiznis/hyperion/pkg/db"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSeedIsIdempotent(t *testing.T) {
	ctx := context.Background()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	policyConn, err := db.NewTest()
	require.NoError(t, err)
	enforcer, err := authorization.NewEnforcer(policyConn)
	require.NoError(t, err)
	groups := authorization.NewService(authorization.Params{Log: zap.NewNop(), Enforcer: enforcer})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	users := authservice.New(authservice.Params{Log: zap.NewNop(), Repo: authrepository.New(conn), GenID: node})
	repo := repository.Provide()
	payments := payservice.NewService(payservice.Params{
		DB:     conn,
		Repo:   repo,
		Users:  users,
		Groups: groups,
		Locker: ratelimit.NewWalletLocker(nil),
		Mailer: &email.NoOpProvider{},
		GenID:  node,
		Clock:  clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Cfg:    config.Config{ClientURL: "https://myecl.example.org/", MyECLPayMaxWalletBalance: 5000},
		Log:    zap.NewNop(),
	})

	seeder := seed.New(seed.Params{Users: users, Groups: groups, Payments: payments, Log: zap.NewNop()})
	require.NoError(t, seeder.Run(ctx))
	require.NoError(t, seeder.Run(ctx))

	admin, err := users.Authenticate(ctx, seed.DefaultAdminEmail, seed.DefaultAdminPassword)
	require.NoError(t, err)

	allowed, err := groups.HasPermission(ctx, admin.ID.String(), payservice.PermissionCreateStore)
	require.NoError(t, err)
	require.True(t, allowed)

	tos, err := payments.GetTOS(ctx, admin.ID)
	require.NoError(t, err)
	require.Equal(t, paydomain.LatestTOSVersion, tos.AcceptedTOSVersion)

	var stores []paydomain.Store
	require.NoError(t, conn.Find(&stores).Error)
	require.Len(t, stores, 1)
	require.Equal(t, "cafet", stores[0].Slug)
}
