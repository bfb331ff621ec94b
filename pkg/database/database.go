// Package database opens the PostgreSQL pool (pgx through database/sql)
// and ties its readiness and shutdown to the lifecycle coordinator.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/JaimeStill/tayyib/pkg/lifecycle"
)

// System owns the connection pool.
type System interface {
	Connection() *sql.DB
	// Start registers a startup ping and a close on shutdown.
	Start(lc *lifecycle.Coordinator) error
}

type database struct {
	conn        *sql.DB
	logger      *slog.Logger
	pingTimeout time.Duration
}

// New configures the pool without connecting. The first connection is
// made by the startup ping.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	db, err := sql.Open("pgx", cfg.Dsn())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetimeDuration())

	return &database{
		conn:        db,
		logger:      logger.With("system", "database"),
		pingTimeout: cfg.ConnTimeoutDuration(),
	}, nil
}

func (d *database) Connection() *sql.DB {
	return d.conn
}

func (d *database) Start(lc *lifecycle.Coordinator) error {
	lc.OnStartup("database", d.ping)
	lc.OnShutdown(func() {
		<-lc.Context().Done()
		d.close()
	})
	return nil
}

func (d *database) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, d.pingTimeout)
	defer cancel()

	start := time.Now()
	if err := d.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}

	d.logger.Info("database reachable", "latency", time.Since(start))
	return nil
}

func (d *database) close() {
	stats := d.conn.Stats()
	if err := d.conn.Close(); err != nil {
		d.logger.Error("database close failed", "error", err)
		return
	}
	d.logger.Info(
		"database closed",
		"open", stats.OpenConnections,
		"in_use", stats.InUse,
		"wait_count", stats.WaitCount,
	)
}
