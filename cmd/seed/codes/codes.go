package main

import (
	"context"
	"flag"
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"creditplane/pkg/config"
	"creditplane/pkg/db"
	"creditplane/pkg/logger"
	"creditplane/pkg/redis"
	"creditplane/pkg/sequence"
	"creditplane/services/identity"
	"creditplane/services/redemption"
)

var (
	pool  = flag.String("pool", redemption.PoolGift, "code pool to mint into (gift or think)")
	count = flag.Int("count", 10, "number of codes to mint")
)

func main() {
	flag.Parse()

	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		fx.Provide(
			provideSnowflakeNode,
		),
		redemption.Module,
		fx.Invoke(seed),
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideSnowflakeNode(cfg *config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.Economy.SnowflakeNode)
}

func seed(gdb *gorm.DB, svc *redemption.Service, shutdowner fx.Shutdowner) error {
	ctx := context.Background()

	if err := gdb.AutoMigrate(&redemption.RedemptionCode{}); err != nil {
		return err
	}

	seeder := identity.Caller{UserID: "seed", IsAdmin: true}
	codes, err := svc.GenerateCodes(ctx, seeder, *pool, *count)
	if err != nil {
		zap.L().Error("failed to mint codes", zap.Error(err))
		return shutdowner.Shutdown(fx.ExitCode(1))
	}

	for _, code := range codes {
		zap.L().Info("minted code", zap.String("pool", code.Pool), zap.String("code", code.Code))
	}

	return shutdowner.Shutdown()
}
