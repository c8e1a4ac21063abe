// Package main запускает HTTP-сервер и планировщик выплат расчётного сервиса.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/settlement-core/internal/config"
	"github.com/mmeshcher/settlement-core/internal/handler"
	"github.com/mmeshcher/settlement-core/internal/metrics"
	"github.com/mmeshcher/settlement-core/internal/middleware"
	"github.com/mmeshcher/settlement-core/internal/processor"
	"github.com/mmeshcher/settlement-core/internal/repository"
	"github.com/mmeshcher/settlement-core/internal/scheduler"
	"github.com/mmeshcher/settlement-core/internal/service"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	proc, err := newProcessor(cfg)
	if err != nil {
		sugar.Fatalw("payment processor initialization error", "error", err.Error())
	}

	svc := service.NewService(repo, proc, service.Policy{
		HoldDays:           cfg.HoldDays,
		MinPayoutCents:     cfg.MinPayoutCents,
		DebtThresholdCents: cfg.DebtThresholdCents,
		PayoutConcurrency:  cfg.PayoutConcurrency,
		Currency:           cfg.Currency,
	}, logger, metrics.New(prometheus.DefaultRegisterer))
	defer svc.Close()

	if cfg.AdminToken == "" {
		sugar.Warn("ADMIN_TOKEN is empty, all /api requests will be rejected")
	}
	h := handler.NewHandler(svc, logger, middleware.NewAdminAuth(cfg.AdminToken), prometheus.DefaultGatherer)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		scheduler.New(svc, cfg.SchedulerInterval, logger).Run(ctx)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting settlement server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Errorw("application terminated with error", "error", err)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

// newProcessor выбирает Stripe при наличии ключа, иначе HTTP-шлюз.
func newProcessor(cfg *config.Config) (service.Processor, error) {
	if cfg.StripeAPIKey != "" {
		return processor.NewStripeClient(cfg.StripeAPIKey, cfg.Currency)
	}
	return processor.NewHTTPClient(cfg.ProcessorAddress, cfg.Currency), nil
}
