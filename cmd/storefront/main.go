// Package main запускает HTTP-сервер витрины.
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
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/mmeshcher/storefront/internal/auth"
	"github.com/mmeshcher/storefront/internal/config"
	"github.com/mmeshcher/storefront/internal/gateway"
	"github.com/mmeshcher/storefront/internal/handler"
	"github.com/mmeshcher/storefront/internal/middleware"
	"github.com/mmeshcher/storefront/internal/repository"
	"github.com/mmeshcher/storefront/internal/service"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		sugar.Warnw(".env file not loaded", "error", err.Error())
	}

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}
	if err := cfg.Validate(); err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		sugar.Fatalw("token manager initialization error", "error", err.Error())
	}

	paymentGateway, err := newGateway(cfg)
	if err != nil {
		sugar.Fatalw("payment gateway initialization error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	var attempts service.IdempotencyStore = repo
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		redisClient, err := repository.NewRedisClient(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}
		defer redisClient.Close()
		attempts = repository.NewRedisIdempotencyStore(redisClient)
		sugar.Info("idempotency keys stored in redis")
	}

	svc := service.NewService(repo, tokens, logger)
	defer svc.Close()

	reconciler := service.NewReconciler(repo, attempts, logger, cfg.ReconcileInterval, cfg.ReconcileMaxAttempts)
	checkout := service.NewCheckoutFlow(paymentGateway, repo, attempts, reconciler, logger, service.CheckoutConfig{
		GatewayTimeout:    cfg.PaymentGatewayTimeout,
		IdempotencyWindow: cfg.IdempotencyTTL,
	})

	authMiddleware := middleware.NewAuthMiddleware(tokens, svc, logger)
	limiter := middleware.NewRateLimiter(rate.Limit(cfg.AuthRateLimit), cfg.AuthRateBurst)
	h := handler.NewHandler(svc, checkout, logger, authMiddleware, limiter)

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Повторная запись заказов, оплата которых уже прошла
	g.Go(func() error {
		return reconciler.Run(ctx)
	})

	g.Go(func() error {
		sugar.Infow("starting storefront server", "addr", cfg.RunAddress, "payment_provider", cfg.PaymentProvider)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newGateway(cfg *config.Config) (service.PaymentGateway, error) {
	switch cfg.PaymentProvider {
	case config.ProviderStripe:
		return gateway.NewStripe(gateway.StripeConfig{
			SecretKey: cfg.StripeSecretKey,
			Currency:  cfg.StripeCurrency,
			Timeout:   cfg.PaymentGatewayTimeout,
		})
	default:
		return gateway.NewBraintree(gateway.BraintreeConfig{
			Environment: cfg.BraintreeEnvironment,
			MerchantID:  cfg.BraintreeMerchantID,
			PublicKey:   cfg.BraintreePublicKey,
			PrivateKey:  cfg.BraintreePrivateKey,
			Timeout:     cfg.PaymentGatewayTimeout,
		})
	}
}
