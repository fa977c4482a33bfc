package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/campusmart/campusmart-backend/pkg/config"
	"github.com/campusmart/campusmart-backend/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	defaultTxTimeout = 15 * time.Second
	defaultTxMaxWait = 20 * time.Second
)

// ErrTxAcquireTimeout is returned when a transaction could not be opened within the wait budget.
var ErrTxAcquireTimeout = errors.New("timed out acquiring transaction")

// Client wraps the shared GORM connection.
type Client struct {
	conn      *gorm.DB
	txTimeout time.Duration
	txMaxWait time.Duration
}

// Pinger exposes the health check surface.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New boots a GORM client using the provided configuration.
func New(ctx context.Context, cfg config.DBConfig, flags config.FeatureFlagsConfig, logg *logger.Logger) (*Client, error) {
	dialector, err := dialectorFor(cfg, flags)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, gormConfig())
	if err != nil {
		return nil, fmt.Errorf("opening db connection: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql db handle: %w", err)
	}

	applyPoolSettings(sqlDB, cfg)

	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "dialect", dialector.Name()), "database connection established")
	}

	return Wrap(conn, cfg.TxTimeout, cfg.TxMaxWait), nil
}

// Wrap adapts an existing GORM handle, used by tests and tooling.
func Wrap(conn *gorm.DB, txTimeout, txMaxWait time.Duration) *Client {
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	if txMaxWait <= 0 {
		txMaxWait = defaultTxMaxWait
	}
	return &Client{conn: conn, txTimeout: txTimeout, txMaxWait: txMaxWait}
}

// OpenSQLite opens a SQLite database with the same GORM settings as production.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(dsn), gormConfig())
}

func dialectorFor(cfg config.DBConfig, flags config.FeatureFlagsConfig) (gorm.Dialector, error) {
	if flags.UseSQLite {
		if cfg.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		return sqlite.Open(cfg.SQLitePath), nil
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	return postgres.New(postgres.Config{
		DSN:                  cfg.DSN,
		PreferSimpleProtocol: true,
	}), nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger: gormlogger.New(
			log.New(io.Discard, "", log.LstdFlags),
			gormlogger.Config{LogLevel: gormlogger.Silent},
		),
		SkipDefaultTransaction: true,
		TranslateError:         true,
	}
}

func applyPoolSettings(sqlDB *sql.DB, cfg config.DBConfig) {
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
}

// DB returns the underlying GORM connection.
func (c *Client) DB() *gorm.DB {
	return c.conn
}

// Ping verifies the datasource is reachable.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close shuts down the pooled connections.
func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Exec wraps GORM's Exec with context propagation.
func (c *Client) Exec(ctx context.Context, query string, args ...any) *gorm.DB {
	return c.conn.WithContext(ctx).Exec(query, args...)
}

// Raw wraps GORM's Raw with context propagation.
func (c *Client) Raw(ctx context.Context, query string, args ...any) *gorm.DB {
	return c.conn.WithContext(ctx).Raw(query, args...)
}

// WithTx executes fn inside a read-committed transaction, rolling back on error or panic.
// Opening the transaction may wait up to the configured max wait; fn then runs under
// the execution timeout.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) (err error) {
	txCtx, cancel := context.WithTimeout(ctx, c.txMaxWait+c.txTimeout)
	defer cancel()

	start := time.Now()
	tx := c.conn.WithContext(txCtx).Begin(&sql.TxOptions{Isolation: c.isolation()})
	if tx.Error != nil {
		if errors.Is(tx.Error, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrTxAcquireTimeout, tx.Error)
		}
		return tx.Error
	}
	if waited := time.Since(start); waited > c.txMaxWait {
		_ = tx.Rollback()
		return fmt.Errorf("%w after %s", ErrTxAcquireTimeout, waited)
	}

	execCtx, execCancel := context.WithTimeout(txCtx, c.txTimeout)
	defer execCancel()
	tx = tx.WithContext(execCtx)

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit().Error
}

func (c *Client) isolation() sql.IsolationLevel {
	// sqlite only understands its default serializable mode
	if c.conn.Dialector != nil && c.conn.Dialector.Name() == "sqlite" {
		return sql.LevelDefault
	}
	return sql.LevelReadCommitted
}
