// Package pg implementa los repositorios sobre PostgreSQL con pgxpool.
package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/lexguard/internal/domain/repository"
	"github.com/dropDatabas3/lexguard/internal/observability/logger"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config ajusta el pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

// Store agrupa el pool y los repositorios que lo comparten.
type Store struct {
	pool *pgxpool.Pool

	Accounts    repository.AccountRepository
	BackupCodes repository.BackupCodeRepository
	Audit       repository.AuditRepository
	Blacklist   repository.BlacklistRepository
}

// New abre el pool. No falla si el ping inicial falla: la DB puede levantar después.
func New(ctx context.Context, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pcfg.MaxConnIdleTime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	log := logger.L().With(logger.Component("store.pg"))
	if err := pool.Ping(ctx); err != nil {
		log.Warn("pg pool startup ping failed", logger.Err(err))
	} else {
		log.Info("pg pool ready", logger.Int("max_conns", int(pcfg.MaxConns)))
	}

	return &Store{
		pool:        pool,
		Accounts:    &accountRepo{pool: pool},
		BackupCodes: &backupCodeRepo{pool: pool},
		Audit:       &auditRepo{pool: pool},
		Blacklist:   &blacklistRepo{pool: pool},
	}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close cierra el pool (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Stat expone las estadísticas del pool para métricas.
func (s *Store) Stat() *pgxpool.Stat { return s.pool.Stat() }
