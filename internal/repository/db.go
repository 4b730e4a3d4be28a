package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Supported values for Config.Driver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Driver           string
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// Client owns the database handle and hands out repositories bound to it.
type Client struct {
	drv    *entsql.Driver
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to Postgres through a pgx pool or to SQLite through
// modernc.org/sqlite, and wraps the handle in an Ent SQL driver.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Driver {
	case DriverSQLite:
		return openSQLite(ctx, cfg, logger)
	case DriverPostgres, "":
		return openPostgres(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	logger.Info("connecting to database", "driver", DriverPostgres)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database config", "error", err)
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "medscan"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	dialCtx, cancel := dialContext(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(dialCtx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	// Wrap pool as *sql.DB for Ent
	db := stdlib.OpenDBFromPool(pool)
	drv := entsql.OpenDB(dialect.Postgres, db)

	logger.Info("successfully connected to database")
	return &Client{drv: drv, pool: pool, logger: logger}, nil
}

func openSQLite(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	logger.Info("connecting to database", "driver", DriverSQLite)
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		logger.Error("failed to open sqlite database", "error", err)
		return nil, err
	}
	// a single writer keeps SQLite transactions from tripping over SQLITE_BUSY
	db.SetMaxOpenConns(1)

	dialCtx, cancel := dialContext(ctx, cfg.DialTimeout)
	defer cancel()
	if err := db.PingContext(dialCtx); err != nil {
		_ = db.Close()
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	logger.Info("successfully connected to database")
	return &Client{drv: entsql.OpenDB(dialect.SQLite, db), logger: logger}, nil
}

func dialContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Dialect returns the Ent dialect name of the underlying database.
func (c *Client) Dialect() string { return c.drv.Dialect() }

// DB exposes the underlying *sql.DB.
func (c *Client) DB() *sql.DB { return c.drv.DB() }

// Users returns a user repository bound to the connection pool.
func (c *Client) Users() UserRepository {
	return NewUserRepository(c.drv, c.drv.Dialect(), c.logger)
}

// Activities returns an activity repository bound to the connection pool.
func (c *Client) Activities() ActivityRepository {
	return NewActivityRepository(c.drv, c.drv.Dialect(), c.logger)
}

// Tx groups repositories that share one database transaction.
type Tx struct {
	Users      UserRepository
	Activities ActivityRepository
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise, including when fn panics.
func (c *Client) WithTx(ctx context.Context, fn func(tx *Tx) error) (err error) {
	dtx, err := c.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = dtx.Rollback()
			panic(p)
		}
	}()

	d := c.drv.Dialect()
	tx := &Tx{
		Users:      NewUserRepository(dtx, d, c.logger),
		Activities: NewActivityRepository(dtx, d, c.logger),
	}
	if err := fn(tx); err != nil {
		if rerr := dtx.Rollback(); rerr != nil {
			c.logger.Error("tx rollback failed", "error", rerr)
			return errors.Join(err, rerr)
		}
		return err
	}
	if err := dtx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Close closes the database connections gracefully
func (c *Client) Close() {
	c.logger.Info("closing database connections")
	if err := c.drv.Close(); err != nil {
		c.logger.Error("failed to close database handle", "error", err)
	}
	if c.pool != nil {
		c.pool.Close()
	}
	c.logger.Info("database connections closed")
}

// HealthCheck pings the database to catch connectivity issues early.
func (c *Client) HealthCheck(ctx context.Context, timeout time.Duration) error {
	c.logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var err error
	if c.pool != nil {
		err = c.pool.Ping(ctx)
	} else {
		err = c.drv.DB().PingContext(ctx)
	}
	if err != nil {
		c.logger.Error("database ping failed", "error", err)
		return err
	}
	c.logger.Debug("database ping successful")
	return nil
}

// isUniqueViolation reports whether err is a primary-key or unique constraint
// failure on either supported backend.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
