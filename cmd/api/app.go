package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"agencyflow/agent"
	"agencyflow/analytics"
	"agencyflow/auth"
	"agencyflow/calendar"
	"agencyflow/config"
	"agencyflow/db"
	"agencyflow/hierarchy"
	"agencyflow/policy"
	"agencyflow/takeaction"
)

// app owns every long-lived dependency built from configuration.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	pool     *pgxpool.Pool
	resolver *hierarchy.Resolver
	engine   *analytics.Engine
	server   *Server
}

func newCache(ctx context.Context, cfg config.Config, log *zap.Logger) (hierarchy.Cache, error) {
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		c, err := hierarchy.NewRedisCache(ctx, cfg.Redis.URL, cfg.Cache.TTL, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return hierarchy.NewMemoryCache(cfg.Cache.TTL, cfg.Cache.SweepInterval), nil
	}
}

func newApp(ctx context.Context, cfg config.Config, log *zap.Logger) (*app, error) {
	zone, err := calendar.NewZone(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("app: timezone: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}

	cache, err := newCache(ctx, cfg, log)
	if err != nil {
		pool.Close()
		return nil, err
	}

	agents := agent.NewRepository(pool)
	policies := policy.NewRepository(pool)
	actions := takeaction.NewRepository(pool)

	resolver := hierarchy.NewResolver(cache, hierarchy.DefaultStrategies(agents)...).WithLogger(log)
	engine := analytics.NewEngine(resolver, policies, actions, zone).WithLogger(log)
	notes := takeaction.NewService(actions, policies)

	srv := &Server{
		engine:         engine,
		resolver:       resolver,
		agents:         agent.NewService(agents),
		policies:       policy.NewService(policies, notes),
		notes:          notes,
		log:            log,
		location:       zone.Location(),
		allowedOrigins: cfg.HTTP.AllowedOrigins,
	}
	if cfg.Auth.JWTSecret != "" {
		srv.tokens = auth.NewService(cfg.Auth.JWTSecret)
	} else {
		log.Warn("auth.jwt_secret is empty; API authentication is disabled")
	}

	return &app{
		cfg:      cfg,
		log:      log,
		pool:     pool,
		resolver: resolver,
		engine:   engine,
		server:   srv,
	}, nil
}

// Close stops the cache sweeper and releases database connections.
func (a *app) Close() {
	if err := a.engine.Close(); err != nil {
		a.log.Warn("close hierarchy cache", zap.Error(err))
	}
	a.pool.Close()
}
