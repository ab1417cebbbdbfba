package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"kisan-choice-api/internal/config"
	"kisan-choice-api/internal/database"
	"kisan-choice-api/internal/events"
	"kisan-choice-api/internal/features"
	"kisan-choice-api/internal/history"
	"kisan-choice-api/internal/logging"
	"kisan-choice-api/internal/notify"
	"kisan-choice-api/internal/service"
)

// app holds the components shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	db      *database.DB
	flags   *features.Manager
	effects *events.Manager
	svc     *service.Service

	closers []func() error
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Pretty)
	a := &app{cfg: cfg, logger: logger}

	a.db, err = database.Open(ctx, database.Options{
		Driver:       cfg.Database.Driver,
		DSN:          cfg.Database.DSN,
		MaxOpenConns: cfg.Database.MaxOpenConns,
		MaxIdleConns: cfg.Database.MaxIdleConns,
	})
	if err != nil {
		return nil, err
	}
	a.onClose(a.db.Close)
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database ready")

	a.flags = features.NewDefaultManager(map[string]bool{
		features.AutoBlock:     cfg.Features.AutoBlock,
		features.WebhookDedupe: cfg.Features.WebhookDedupe,
		features.Notifications: cfg.Features.Notifications,
		features.DeliverySweep: cfg.Features.DeliverySweep,
	})

	a.effects = events.NewManager(true, logger, events.Options{MaxAttempts: cfg.Notify.MaxAttempts})
	if err := a.subscribe(ctx); err != nil {
		a.close()
		return nil, err
	}

	a.svc = service.NewServiceWithOptions(a.db, service.Options{
		Publisher: a.effects,
		Flags:     a.flags,
		Logger:    logger,
		Policy: service.Policy{
			PriceLockTTL:   cfg.Negotiation.PriceLockTTL.Duration,
			RejectCooldown: cfg.Negotiation.RejectCooldown.Duration,
			BlockThreshold: cfg.Negotiation.BlockThreshold,
			BlockDuration:  cfg.Negotiation.BlockDuration.Duration,
		},
	})
	return a, nil
}

// subscribe wires notification delivery and, when configured, status history.
func (a *app) subscribe(ctx context.Context) error {
	var notifier notify.Notifier = notify.NewLogNotifier(a.logger)
	if brokers := a.cfg.Notify.Brokers(); len(brokers) > 0 {
		kn := notify.NewKafkaNotifier(brokers, a.cfg.Notify.KafkaTopic)
		a.onClose(kn.Close)
		notifier = kn
		a.logger.Info().Strs("brokers", brokers).Str("topic", a.cfg.Notify.KafkaTopic).Msg("kafka notifications enabled")
	}
	notify.NewSubscriber(a.db, notifier, a.flags, a.logger).Register(a.effects)

	if a.cfg.History.MongoURI == "" {
		return nil
	}
	rec, client, err := history.Connect(ctx, a.cfg.History.MongoURI, a.cfg.History.Database, a.cfg.History.Collection, a.logger)
	if err != nil {
		return err
	}
	a.onClose(func() error { return client.Disconnect(context.Background()) })
	rec.Register(a.effects)
	a.logger.Info().Str("database", a.cfg.History.Database).Msg("status history enabled")
	return nil
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// close drains pending effects, then releases resources in reverse order.
func (a *app) close() {
	if a.effects != nil {
		a.effects.Shutdown()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn().Err(err).Msg("error during shutdown")
		}
	}
}
