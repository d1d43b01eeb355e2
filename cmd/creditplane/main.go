package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"creditplane/internal/httpapi"
	"creditplane/pkg/config"
	"creditplane/pkg/db"
	"creditplane/pkg/health"
	"creditplane/pkg/logger"
	"creditplane/pkg/redis"
	"creditplane/pkg/sequence"
	"creditplane/pkg/server"
	"creditplane/pkg/task"
	"creditplane/services/account"
	"creditplane/services/giveaway"
	"creditplane/services/history"
	"creditplane/services/redemption"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		redis.Module,
		task.Client,
		sequence.Module,
		health.Module,
		fx.Provide(
			provideSnowflakeNode,
		),
		fx.Invoke(migrate),
		account.Module,
		redemption.Module,
		giveaway.Module,
		history.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
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

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&account.Account{},
		&redemption.RedemptionCode{},
		&giveaway.GiveawayRun{},
		&giveaway.GiveawayHistoryEntry{},
	)
}
