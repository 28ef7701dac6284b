package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"device-pairing-service/internal/config"
	"device-pairing-service/internal/domain/ports/adapter"
	"device-pairing-service/internal/infra/api"
	pg "device-pairing-service/internal/infra/db/postgres"
	"device-pairing-service/internal/infra/logging"
	"device-pairing-service/internal/infra/metrics"
	red "device-pairing-service/internal/infra/redis"
	"device-pairing-service/internal/infra/sched"
	"device-pairing-service/internal/infra/security"
	"device-pairing-service/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (console logs, relaxed key checks)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis (rate limiter + poll status cache) ----
	var limiter adapter.RateLimiter
	var statusCache adapter.StatusCache
	if cfg.Redis.URL != "" {
		redisClient, err := red.NewClient(ctx, &cfg.Redis)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis")
		}
		defer redisClient.Close()
		limiter = red.NewRateLimiter(redisClient)
		statusCache = red.NewStatusCache(redisClient, cfg.Pairing.StatusCacheTTL)
	} else {
		logger.Warn().Msg("redis.url not set; claim throttling and poll cache disabled")
	}

	// ---- Session tokens ----
	signKey := cfg.Security.SessionSignKey
	if signKey == "" {
		logger.Warn().Msg("security.session_sign_key not set; falling back to dev key (INSECURE)")
		signKey = "dev-only-signing-key"
	}
	tokenSvc, err := security.NewSessionTokenService(signKey, cfg.Security.SessionLifetime)
	if err != nil {
		logger.Fatal().Err(err).Msg("session tokens")
	}

	// ---- Repositories and use case ----
	activationRepo := pg.NewActivationRepo(pool)
	txManager := pg.NewTxManager(pool)
	pairingUC := usecase.NewPairingUseCase(activationRepo, txManager, limiter, statusCache, tokenSvc, cfg.Pairing, logger)

	// ---- Metrics ----
	metrics.MustRegister()

	// ---- Expiry sweep ----
	worker := sched.NewExpiryWorker(cfg.Pairing.SweepInterval, cfg.Pairing.Retention, pairingUC, logger)
	go func() {
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("expiry worker stopped")
		}
	}()

	// ---- HTTP ----
	apiServer := api.NewServer(pairingUC, cfg.Security.ConsumeAPIKey, cfg.Server.RequestTimeout, logger)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: apiServer.Router(),
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("pairing service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
		os.Exit(1)
	}
}
