package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/clinicore/clinic-scheduling/internal/appointment"
	"github.com/clinicore/clinic-scheduling/internal/config"
	"github.com/clinicore/clinic-scheduling/internal/db"
	redisclient "github.com/clinicore/clinic-scheduling/internal/redis"
)

type dependencies struct {
	store  appointment.Store
	locker redisclient.Locker
	pgPool *pgxpool.Pool
	redis  *redis.Client
}

// buildDependencies wires the store and booking locker for the configured
// backend. The memory backend runs without Postgres or Redis and uses the
// in-process locker; the postgres backend prefers the Redis locker and
// falls back to in-process when no Redis address is configured.
func buildDependencies(ctx context.Context, cfg config.Config, log zerolog.Logger) (*dependencies, error) {
	deps := &dependencies{}

	if cfg.StoreBackend == config.BackendMemory {
		log.Warn().Msg("memory store backend: data will not survive a restart")
		deps.store = appointment.NewMemStore()
		deps.locker = redisclient.NewLocalBookingLocker()
		return deps, nil
	}

	pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	deps.pgPool = pgPool
	deps.store = appointment.NewPgStore(pgPool)
	log.Info().Msg("connected to Postgres")

	if cfg.RedisAddr == "" {
		log.Warn().Msg("no Redis configured, using in-process booking locks")
		deps.locker = redisclient.NewLocalBookingLocker()
		return deps, nil
	}

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.RedisPoolSize)
	if err != nil {
		pgPool.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	deps.redis = rdb
	deps.locker = redisclient.NewRedisBookingLocker(rdb, cfg.LockTTL)
	log.Info().Msg("connected to Redis")

	return deps, nil
}

func (d *dependencies) close(log zerolog.Logger) {
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}
	if d.pgPool != nil {
		d.pgPool.Close()
	}
}
