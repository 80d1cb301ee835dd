// Package db provides PostgreSQL pool management and schema migrations.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"loyalty-points/internal/config"
)

const (
	defaultConnectTimeout  = 10 * time.Second
	defaultMaxConnLifetime = time.Hour
	defaultMaxConnIdleTime = 30 * time.Minute
	healthCheckPeriod      = 30 * time.Second
	pingTimeout            = 2 * time.Second
)

// Pool wraps pgxpool.Pool so main and the health endpoint share one handle.
type Pool struct {
	*pgxpool.Pool
}

// NewPool opens a connection pool, applies pool limits from cfg and verifies
// the server is reachable.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.PoolSize)
	poolConfig.MinConns = max(int32(cfg.PoolSize/4), 1)
	poolConfig.ConnConfig.ConnectTimeout = orDefault(cfg.ConnectTimeout, defaultConnectTimeout)
	poolConfig.MaxConnLifetime = orDefault(cfg.MaxConnLifetime, defaultMaxConnLifetime)
	poolConfig.MaxConnIdleTime = orDefault(cfg.MaxConnIdleTime, defaultMaxConnIdleTime)
	poolConfig.HealthCheckPeriod = healthCheckPeriod
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "loyalty-points"

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Name).
		Int32("max_conns", poolConfig.MaxConns).
		Msg("Connecting to PostgreSQL")

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	p := &Pool{Pool: pool}
	if err := p.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().Msg("Connected to PostgreSQL")
	return p, nil
}

// Close closes the connection pool.
func (p *Pool) Close() {
	if p.Pool != nil {
		p.Pool.Close()
		log.Info().Msg("PostgreSQL connection pool closed")
	}
}

// Ping checks the database with a bounded wait.
func (p *Pool) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := p.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
