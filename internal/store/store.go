package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/metricboard/notifier/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Options selects and tunes the backing database.
type Options struct {
	// DatabaseURL selects PostgreSQL when set; otherwise SQLitePath is used.
	DatabaseURL string
	SQLitePath  string
	MaxConns    int32
	// AutoMigrate creates missing tables. Always on for SQLite.
	AutoMigrate bool
	Logger      logrus.FieldLogger
}

// DB wraps GORM and keeps the pgx pool (when on PostgreSQL) for health checks.
type DB struct {
	*gorm.DB
	pool *pgxpool.Pool
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(models.All()...)
}

func gormConfig(log logrus.FieldLogger) *gorm.Config {
	cfg := &gorm.Config{}
	if log != nil {
		cfg.Logger = logger.New(log, logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}
	return cfg
}

// Open opens PostgreSQL when DatabaseURL is set, else SQLite at SQLitePath.
func Open(ctx context.Context, opts Options) (*DB, error) {
	if opts.DatabaseURL != "" {
		return NewPostgres(ctx, opts)
	}
	path := opts.SQLitePath
	if path == "" {
		path = "data/notifier.db"
	}
	return NewSQLite(path, opts.Logger)
}

// NewPostgres builds a pgx pool and runs GORM on top of it.
func NewPostgres(ctx context.Context, opts Options) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(opts.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		poolCfg.MaxConns = opts.MaxConns
	}
	poolCfg.MaxConnLifetime = 30 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: stdlib.OpenDBFromPool(pool)}), gormConfig(opts.Logger))
	if err != nil {
		pool.Close()
		return nil, err
	}
	if opts.AutoMigrate {
		if err := migrate(db); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return &DB{DB: db, pool: pool}, nil
}

// NewSQLite opens a SQLite DB and runs migrations. Use ":memory:" for tests.
func NewSQLite(path string, log logrus.FieldLogger) (*DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, err
			}
		}
	}
	db, err := gorm.Open(sqlite.Open(path), gormConfig(log))
	if err != nil {
		return nil, err
	}
	// One connection: SQLite serializes writers anyway, and ":memory:" is per-connection.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &DB{DB: db}, nil
}

// Ping checks the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	if d.pool != nil {
		return d.pool.Ping(ctx)
	}
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (d *DB) Close() error {
	sqlDB, err := d.DB.DB()
	var closeErr error
	if err == nil {
		closeErr = sqlDB.Close()
	}
	if d.pool != nil {
		d.pool.Close()
	}
	return errors.Join(err, closeErr)
}
