package oauth2provider

import (
	"context"

	"github.com/smallbiznis/hyperion/internal/clock"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("auth.oauth2.provider",
	fx.Provide(NewConfig),
	fx.Provide(NewStore),
	fx.Provide(NewService),
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(purgeOnStart),
)

func purgeOnStart(lc fx.Lifecycle, store Store, clk clock.Clock, log *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			purged, err := store.PurgeExpiredAuthorizationCodes(ctx, clk.Now())
			if err != nil {
				log.Warn("purge expired authorization codes failed", zap.Error(err))
				return nil
			}
			log.Info("expired authorization codes purged", zap.Int64("count", purged))
			return nil
		},
	})
}
