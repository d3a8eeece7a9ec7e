package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hyperion/internal/auth"
	"github.com/smallbiznis/hyperion/internal/auth/oauth2provider"
	"github.com/smallbiznis/hyperion/internal/authorization"
	"github.com/smallbiznis/hyperion/internal/clock"
	"github.com/smallbiznis/hyperion/internal/config"
	"github.com/smallbiznis/hyperion/internal/metricspush"
	"github.com/smallbiznis/hyperion/internal/migration"
	"github.com/smallbiznis/hyperion/internal/myeclpay"
	"github.com/smallbiznis/hyperion/internal/notification"
	"github.com/smallbiznis/hyperion/internal/observability"
	"github.com/smallbiznis/hyperion/internal/providers/email"
	"github.com/smallbiznis/hyperion/internal/ratelimit"
	"github.com/smallbiznis/hyperion/internal/seed"
	"github.com/smallbiznis/hyperion/internal/server"
	"github.com/smallbiznis/hyperion/internal/userdeletion"
	"github.com/smallbiznis/hyperion/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		ratelimit.Module,
		email.Module,
		notification.Module,
		metricspush.Module,

		// Functional Domains
		authorization.Module,
		auth.Module,
		myeclpay.Module,
		userdeletion.Module,
		seed.Module,
		migration.Module,

		// HTTP
		server.Module,
		oauth2provider.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
