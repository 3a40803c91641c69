package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/dramauth"
	"github.com/MrEthical07/dramauth/notify"
	"github.com/MrEthical07/dramauth/pgstore"
	"github.com/redis/go-redis/v9"
)

type app struct {
	engine *dramauth.Engine
	store  *pgstore.Store
	redis  *redis.Client
}

func (r *app) Close() {
	if r.engine != nil {
		r.engine.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	if r.store != nil {
		r.store.Close()
	}
}

func openStore(ctx context.Context, c *appConfig) (*pgstore.Store, error) {
	if c.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	return pgstore.New(ctx, c.Database.URL)
}

func newNotifier(c *appConfig) (dramauth.Notifier, error) {
	if c.Mail.Driver == "smtp" {
		return notify.NewSMTP(notify.SMTPConfig{
			Host:     c.Mail.Host,
			Port:     c.Mail.Port,
			Username: c.Mail.Username,
			Password: c.Mail.Password,
			From:     c.Mail.From,
			TLS:      c.Mail.TLS,
			BaseURL:  c.Mail.BaseURL,
		})
	}
	return notify.NewLogNotifier(logger, c.Mail.BaseURL), nil
}

// openApp connects every backend named in the config and builds the engine.
func openApp(ctx context.Context, c *appConfig) (*app, error) {
	engineCfg, err := c.engineConfig()
	if err != nil {
		return nil, err
	}

	rt := &app{}
	rt.store, err = openStore(ctx, c)
	if err != nil {
		return nil, err
	}

	builder := dramauth.New().
		WithConfig(engineCfg).
		WithStore(rt.store).
		WithLogger(logger).
		WithAuditSink(dramauth.NewZapSink(logger.Named("audit")))

	if c.Redis.Addr != "" {
		rt.redis = redis.NewClient(&redis.Options{
			Addr:     c.Redis.Addr,
			Password: c.Redis.Password,
			DB:       c.Redis.DB,
		})
		if err := rt.redis.Ping(ctx).Err(); err != nil {
			rt.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		builder = builder.WithRedis(rt.redis)
	}

	notifier, err := newNotifier(c)
	if err != nil {
		rt.Close()
		return nil, err
	}
	builder = builder.WithNotifier(notifier)

	rt.engine, err = builder.Build()
	if err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}
