// @title                       Blood Donation API
// @version                     1.0
// @description                 Donors, recipients and admins coordinating blood donations.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 "Bearer <token>"
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	_ "github.com/redbank/donation-system/docs"
	"github.com/redbank/donation-system/internal/api"
	"github.com/redbank/donation-system/internal/core/ports"
	"github.com/redbank/donation-system/internal/core/service"
	"github.com/redbank/donation-system/internal/infrastructure/config"
	mongorepo "github.com/redbank/donation-system/internal/infrastructure/db/mongo"
	redisstore "github.com/redbank/donation-system/internal/infrastructure/db/redis"
	"github.com/redbank/donation-system/internal/infrastructure/storage"
	"github.com/redbank/donation-system/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

// run wires the service and blocks until shutdown. Startup failures are
// returned so deferred cleanup still closes what was opened.
func run() error {
	ctx := context.Background()

	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "donation-api",
	})

	mongoClient, db, err := mongorepo.Connect(ctx, mongorepo.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return fmt.Errorf("connect mongodb: %w", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Warn().Err(err).Msg("closing mongodb client failed")
		}
	}()

	userRepo := mongorepo.NewUserRepository(db)
	requestRepo := mongorepo.NewRequestRepository(db)
	if err := mongorepo.EnsureIndexes(ctx, userRepo, requestRepo); err != nil {
		return fmt.Errorf("ensure indexes: %w", err)
	}

	// Redis only backs Idempotency-Key replay; run without it when unreachable.
	var idem ports.IdempotencyStore
	rdb, err := redisstore.Connect(ctx, redisstore.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unavailable, idempotency keys disabled")
	} else {
		defer rdb.Close()
		idem = redisstore.NewIdempotencyStore(rdb, cfg.Redis.IdempotencyTTL)
	}

	images, closeImages, err := buildImageStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("create %s image store: %w", cfg.Storage.Driver, err)
	}
	defer closeImages()

	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTTTL, logger.Component("auth"))
	userService := service.NewUserService(userRepo, images, cfg.Storage.MaxImageBytes, logger.Component("users"))
	donationService := service.NewDonationService(userRepo, idem, logger.Component("ledger"))
	requestService := service.NewRequestService(requestRepo, donationService, logger.Component("requests"))

	if cfg.Admin.Enabled() {
		if _, err := authService.EnsureAdmin(ctx, cfg.Admin.Name, cfg.Admin.Email, cfg.Admin.Password); err != nil {
			return fmt.Errorf("ensure admin account: %w", err)
		}
	}

	deps := api.Deps{
		Log:          log,
		Auth:         authService,
		Users:        userService,
		Donations:    donationService,
		Requests:     requestService,
		Mongo:        db,
		Redis:        rdb,
		AllowOrigins: cfg.AllowOrigins(),
		BodyLimit:    bodyLimit(cfg.Storage.MaxImageBytes),
	}
	if cfg.Storage.Driver == config.StorageLocal {
		deps.StaticPrefix = cfg.Storage.PublicPrefix
		deps.StaticDir = cfg.Storage.LocalDir
	}
	e := api.NewRouter(deps)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
		errCh <- e.Start(":" + cfg.Port)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	return serveErr
}

func buildImageStore(ctx context.Context, cfg *config.Config) (ports.ImageStore, func(), error) {
	if cfg.Storage.Driver == config.StorageGCS {
		gcs, err := storage.NewGCSStore(ctx, cfg.Storage.GCSBucket)
		if err != nil {
			return nil, nil, err
		}
		return gcs, func() { _ = gcs.Close() }, nil
	}

	local, err := storage.NewLocalStore(cfg.Storage.LocalDir, cfg.Storage.PublicPrefix)
	if err != nil {
		return nil, nil, err
	}
	return local, func() {}, nil
}

// bodyLimit leaves room for multipart framing around the largest image.
func bodyLimit(maxImageBytes int64) string {
	return fmt.Sprintf("%dK", (maxImageBytes+(1<<20))/1024)
}
