package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"kisan-choice-api/internal/auth"
	"kisan-choice-api/internal/cache"
	"kisan-choice-api/internal/handler"
	"kisan-choice-api/internal/middleware"
	"kisan-choice-api/internal/payment"
	"kisan-choice-api/internal/scheduler"
	"kisan-choice-api/internal/tracing"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the recurring tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close()
	cfg := a.cfg

	if _, err := tracing.InitTracing(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Tracing.Environment,
		Version:     Version,
	}); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn().Err(err).Msg("failed to flush traces")
		}
	}()

	var store cache.Cache = cache.NewInMemoryCache()
	if cfg.Cache.RedisAddr != "" {
		rc, err := cache.NewRedisCache(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			return err
		}
		a.onClose(rc.Close)
		store = rc
		a.logger.Info().Str("addr", cfg.Cache.RedisAddr).Msg("redis dedupe cache enabled")
	}

	h := handler.NewHandler(a.svc, handler.Options{
		Verifier: payment.NewVerifier(cfg.Payment.WebhookSecret, cfg.Payment.Tolerance.Duration),
		Dedupe:   cache.NewEventDeduper(store, cfg.Cache.DedupeTTL.Duration),
		Flags:    a.flags,
		Store:    a.db,
		Logger:   a.logger,
	})

	routerOpts := handler.RouterOptions{
		Logger:         a.logger,
		Verifier:       auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer),
		AllowedOrigins: cfg.Security.Origins(),
		MaxBodySize:    cfg.Security.MaxRequestBodySize,
		Tracing:        cfg.Tracing.Enabled,
	}
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.RateLimit.Rate, time.Duration(cfg.RateLimit.Window)*time.Second)
		defer limiter.Stop()
		routerOpts.RateLimiter = limiter
	}

	runner := scheduler.NewRunner(a.logger, nil)
	a.tasks(runner)
	if cfg.Scheduler.Enabled {
		runner.Start(ctx)
		defer runner.Stop()
	}

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           handler.NewRouter(h, routerOpts),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info().Str("addr", server.Addr).Str("version", Version).Msg("starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
