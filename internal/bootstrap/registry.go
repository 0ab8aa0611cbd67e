package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/ErlanBelekov/triggerd/config"
	"github.com/ErlanBelekov/triggerd/internal/action"
	"github.com/ErlanBelekov/triggerd/internal/email"
	"github.com/ErlanBelekov/triggerd/internal/health"
)

// Actions is the registry plus the connections its handlers hold open.
type Actions struct {
	Registry *action.Registry
	Health   []health.Dependency
	closers  []func()
}

func (a *Actions) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// NewActions registers log, webhook and email unconditionally, redis and
// asynq when REDIS_URL is set, and amqp when AMQP_URL is set.
func NewActions(cfg *config.Config, logger *slog.Logger) (*Actions, error) {
	a := &Actions{Registry: action.NewRegistry(cfg.ActionTimeout(), logger)}

	a.Registry.Register("log", action.NewLogHandler(logger))
	a.Registry.Register("webhook", action.NewWebhook(action.WebhookConfig{
		RatePerSecond:   cfg.WebhookRatePerSec,
		BreakerFailures: cfg.WebhookBreakerFailures,
	}))
	a.Registry.Register("email", action.NewEmail(email.NewSender(cfg.Env, cfg.ResendAPIKey, cfg.ResendFrom, logger)))

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, func() { _ = client.Close() })
		a.Health = append(a.Health, health.Dependency{
			Name:   "redis",
			Pinger: health.PingerFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() }),
		})
		a.Registry.Register("redis", action.NewRedisQueue(client, cfg.RedisKeyPrefix))

		tasks := asynq.NewClient(asynq.RedisClientOpt{
			Network:   opts.Network,
			Addr:      opts.Addr,
			Username:  opts.Username,
			Password:  opts.Password,
			DB:        opts.DB,
			TLSConfig: opts.TLSConfig,
		})
		a.closers = append(a.closers, func() { _ = tasks.Close() })
		a.Registry.Register("asynq", action.NewAsynq(tasks))
	}

	if cfg.AMQPURL != "" {
		conn, publisher, err := action.DialAMQP(cfg.AMQPURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { _ = conn.Close() })
		a.Registry.Register("amqp", publisher)
	}

	logger.Info("actions registered", "kinds", a.Registry.Kinds())
	return a, nil
}
