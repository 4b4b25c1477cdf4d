package main

import (
	"context"
	"log"
	"time"

	"phone-auth/cmd"
	"phone-auth/internal/data/repository"
	"phone-auth/internal/gateway"
	"phone-auth/internal/wire"
	"phone-auth/pkg/database"
	"phone-auth/pkg/middleware"
	"phone-auth/pkg/storage"
	"phone-auth/pkg/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	config, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.InitLogger(config.App.LogPath, config.App.Debug)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("app", config.App.Name),
		zap.String("port", config.App.Port),
		zap.String("env", config.App.Env),
		zap.String("gateway", config.Gateway.Provider),
		zap.Bool("debug", config.App.Debug),
	)

	if config.Database.AutoMigrate {
		if err := database.Migrate(config.Database.DSN(), "up"); err != nil {
			logger.Fatal("Failed to run migrations", zap.Error(err))
		}
		logger.Info("Migrations applied")
	}

	db, err := database.InitDB(config.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connected successfully")

	var limiter middleware.Counter
	if config.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     config.Redis.Addr,
			Password: config.Redis.Password,
			DB:       config.Redis.DB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			// the limiter fails open, so a cold redis only costs throttling
			logger.Warn("Redis ping failed", zap.String("addr", config.Redis.Addr), zap.Error(err))
		}
		cancel()
		limiter = middleware.NewRedisCounter(rdb)
	} else {
		logger.Info("REDIS_ADDR not set, using in-memory rate limiter")
		limiter = middleware.NewMemoryCounter()
	}

	gw, err := gateway.New(context.Background(), config.Gateway, config.OTP, logger)
	if err != nil {
		logger.Fatal("Failed to init verification gateway", zap.Error(err))
	}

	avatars, err := storage.NewLocalStore(config.Avatar.Dir, config.Avatar.BaseURL)
	if err != nil {
		logger.Fatal("Failed to init avatar store", zap.Error(err))
	}

	repos := repository.NewRepository(db, logger)

	app := wire.Wiring(wire.Deps{
		Repo:    repos,
		Gateway: gw,
		Avatars: avatars,
		Limiter: limiter,
	}, config, logger)

	if err := cmd.APIServer(app.Router, config.App.Port, logger); err != nil {
		logger.Error("Server error", zap.Error(err))
	}
}
