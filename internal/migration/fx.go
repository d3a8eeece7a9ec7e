package migration

import (
	"context"

	"github.com/smallbiznis/hyperion/internal/config"
	"github.com/smallbiznis/hyperion/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, seeder *seed.Seeder, log *zap.Logger) error {
		if err := migrate(conn, cfg); err != nil {
			return err
		}
		log.Info("database schema up to date", zap.String("type", cfg.DBType))

		if !cfg.SeedDevData {
			return nil
		}
		return seeder.Run(context.Background())
	}),
)

func migrate(conn *gorm.DB, cfg config.Config) error {
	if cfg.DBType != "postgres" {
		return AutoMigrate(conn)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}
