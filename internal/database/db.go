package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/studydesk/account-core/internal/config"
)

//go:embed migrations
var migrations embed.FS

func init() {
	sqlx.BindDriver(config.DriverSQLite, sqlx.QUESTION)
}

// DBTX is an interface that both *sqlx.DB and *sqlx.Tx satisfy.
// This allows repositories to work with either a direct connection or a transaction.
type DBTX interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryxContext(ctx context.Context, query string, args ...interface{}) (*sqlx.Rows, error)
	Rebind(query string) string
}

// Ensure *sqlx.DB and *sqlx.Tx implement DBTX
var _ DBTX = (*sqlx.DB)(nil)
var _ DBTX = (*sqlx.Tx)(nil)

type DB struct {
	*sqlx.DB
	Driver string
}

// Connect opens a pool for driver ("postgres" or "sqlite").
func Connect(driver, databaseURL string) (*DB, error) {
	db, err := sqlx.Connect(driver, databaseURL)
	if err != nil {
		return nil, err
	}

	if driver == config.DriverSQLite {
		// One writer per process; cross-process writers wait on busy_timeout.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(config.DBMaxOpenConns)
		db.SetMaxIdleConns(config.DBMaxIdleConns)
		db.SetConnMaxLifetime(config.DBConnMaxLifetime)
	}

	return &DB{DB: db, Driver: driver}, nil
}

// Open connects, pings and migrates in one step.
func Open(ctx context.Context, driver, databaseURL string) (*DB, error) {
	db, err := Connect(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.DBPingTimeout)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

// Migrate applies the embedded migrations for the connection's driver.
func (db *DB) Migrate(ctx context.Context) error {
	dialect := goose.DialectPostgres
	if db.Driver == config.DriverSQLite {
		dialect = goose.DialectSQLite3
	}

	fsys, err := fs.Sub(migrations, "migrations/"+db.Driver)
	if err != nil {
		return fmt.Errorf("migrations for %s: %w", db.Driver, err)
	}

	provider, err := goose.NewProvider(dialect, db.DB.DB, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	for _, r := range results {
		log.Info().Str("migration", r.Source.Path).Dur("duration", r.Duration).Msg("migration applied")
	}
	return nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// TxFunc is a function that runs within a transaction.
type TxFunc func(tx *sqlx.Tx) error

// WithTx executes fn within a database transaction.
// If fn returns an error, the transaction is rolled back.
// Otherwise, the transaction is committed.
func (db *DB) WithTx(ctx context.Context, fn TxFunc) error {
	return WithTx(ctx, db.DB, fn)
}

// WithTx is the free-standing form used by callers holding a bare *sqlx.DB.
func WithTx(ctx context.Context, db *sqlx.DB, fn TxFunc) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}
