package persist

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/acVeli/phaserGame/internal/config"
)

// DB wraps the pgx connection pool shared by all repositories.
type DB struct {
	Pool *pgxpool.Pool
}

func NewDB(ctx context.Context, cfg config.DatabaseConfig, log *zap.Logger) (*DB, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	log.Info("database connected", zap.Int32("max_conns", pc.MaxConns))
	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

// RunMigrations creates the schema if it does not exist yet. Called once at
// boot before the listener starts.
func RunMigrations(ctx context.Context, db *DB) error {
	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS player_positions (
			char_id    TEXT PRIMARY KEY,
			x          DOUBLE PRECISION NOT NULL,
			y          DOUBLE PRECISION NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("migrate player_positions: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS player_gold (
			char_id TEXT PRIMARY KEY,
			amount  BIGINT NOT NULL DEFAULT 0
		)`)
	if err != nil {
		return fmt.Errorf("migrate player_gold: %w", err)
	}
	_, err = db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS player_inventory (
			char_id  TEXT NOT NULL,
			item_id  TEXT NOT NULL,
			quantity INT  NOT NULL DEFAULT 1,
			PRIMARY KEY (char_id, item_id)
		)`)
	if err != nil {
		return fmt.Errorf("migrate player_inventory: %w", err)
	}
	return nil
}
