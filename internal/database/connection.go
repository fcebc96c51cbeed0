package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/water-quality-server/internal/domain"
)

const (
	defaultMaxConns  = 10
	pingTimeout      = 5 * time.Second
	idleConnLifetime = 30 * time.Minute
)

// PoolSettings sizes the Postgres pool backing the measurement store.
type PoolSettings struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// PoolSettingsFrom derives pool sizing from the database section. Idle
// connections never outnumber open ones.
func PoolSettingsFrom(cfg domain.DatabaseConfig) PoolSettings {
	s := PoolSettings{
		MaxConns:        int32(cfg.MaxOpenConns),
		MinConns:        int32(cfg.MaxIdleConns),
		MaxConnLifetime: cfg.ConnMaxLifetime,
		MaxConnIdleTime: idleConnLifetime,
	}
	if s.MaxConns <= 0 {
		s.MaxConns = defaultMaxConns
	}
	s.MinConns = min(max(s.MinConns, 0), s.MaxConns)
	return s
}

// Postgres owns the pool shared by the Postgres repository.
type Postgres struct {
	Pool *pgxpool.Pool
	log  *logrus.Logger
}

// OpenPostgres connects to databaseURL and verifies the store answers
// before returning.
func OpenPostgres(ctx context.Context, databaseURL string, settings PoolSettings, logger *logrus.Logger) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolConfig.MaxConns = settings.MaxConns
	poolConfig.MinConns = settings.MinConns
	if settings.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = settings.MaxConnLifetime
	}
	if settings.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = settings.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating measurement store pool: %w", err)
	}
	pg := &Postgres{Pool: pool, log: logger}
	if err := pg.Health(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"host":      poolConfig.ConnConfig.Host,
		"database":  poolConfig.ConnConfig.Database,
		"max_conns": settings.MaxConns,
	}).Info("Measurement store connected")
	return pg, nil
}

// Health pings the store, bounded by pingTimeout.
func (p *Postgres) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := p.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("measurement store unreachable: %w", err)
	}
	return nil
}

func (p *Postgres) Close() {
	if p.Pool == nil {
		return
	}
	p.Pool.Close()
	p.log.Debug("Measurement store pool closed")
}
