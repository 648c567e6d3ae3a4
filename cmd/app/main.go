// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"acolheaqui-billing/internal/config"
	"acolheaqui-billing/internal/gateway"
	pg "acolheaqui-billing/internal/infra/db/postgres"
	"acolheaqui-billing/internal/infra/logging"
	"acolheaqui-billing/internal/infra/metrics"
	red "acolheaqui-billing/internal/infra/redis"
	"acolheaqui-billing/internal/infra/sched"
	"acolheaqui-billing/internal/infra/web"
	"acolheaqui-billing/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	replayGuard := red.NewReplayGuard(redisClient, cfg.Redis.EventRetention)

	// ---- Repositories ----
	subRepo := pg.NewSubscriptionRepo(pool)
	payRepo := pg.NewPaymentRepo(pool)
	profileRepo := pg.NewProfileRepo(pool)
	auditRepo := pg.NewAuditLogRepo(pool)
	txm := pg.NewTxManager(pool)

	// ---- Use cases ----
	reconcileUC := usecase.NewReconcileUseCase(subRepo, payRepo, profileRepo, auditRepo, txm, locker, replayGuard, logger)

	// ---- Gateway parsers ----
	parsers := gateway.NewRegistry(gateway.Secrets{
		Stripe:      cfg.Gateways.Stripe.WebhookSecret,
		MercadoPago: cfg.Gateways.MercadoPago.WebhookSecret,
		Asaas:       cfg.Gateways.Asaas.WebhookSecret,
		PagSeguro:   cfg.Gateways.PagSeguro.WebhookSecret,
		Pagarme:     cfg.Gateways.Pagarme.WebhookSecret,
	}, logger)

	// ---- HTTP server ----
	auth := web.NewAuthManager(cfg.Admin.JWTSecret, !cfg.Runtime.Dev, cfg.Admin.SessionTTL)
	srv := web.NewServer(parsers, reconcileUC, subRepo, payRepo, auditRepo, auth, cfg.Admin.APIKey, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info().Int("port", cfg.HTTP.Port).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	// ---- Dunning sweeper ----
	sweeper := sched.NewDunningSweeper(subRepo, profileRepo, auditRepo, txm, cfg.Sweeper.Interval, cfg.Sweeper.GracePeriod, logger)
	go sweeper.Start(ctx)

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}
