package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("database: record not found")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// runner carries the data access methods shared by DB and Tx.
type runner struct {
	q       querier
	dialect Dialect
}

func (r runner) exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return r.q.ExecContext(ctx, r.dialect.Rebind(query), args...)
}

func (r runner) query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return r.q.QueryContext(ctx, r.dialect.Rebind(query), args...)
}

func (r runner) queryRow(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return r.q.QueryRowContext(ctx, r.dialect.Rebind(query), args...)
}

// DB wraps the connection pool. Lifecycle: opened at process start, closed at shutdown.
type DB struct {
	runner
	conn *sql.DB
}

// Tx is a unit of work opened by WithTx. All multi-statement operations run on a Tx.
type Tx struct {
	runner
	tx *sql.Tx
}

// Options configures the connection pool.
type Options struct {
	Driver       string
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Open connects to the store and initializes the schema.
func Open(ctx context.Context, opts Options) (*DB, error) {
	dialect, err := DialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}

	dsn := opts.DSN
	if dialect == SQLite {
		dsn = sqliteDSN(dsn)
	}

	conn, err := sql.Open(opts.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == SQLite {
		// single writer; WithTx callbacks must only use the Tx they are given
		conn.SetMaxOpenConns(1)
	} else {
		if opts.MaxOpenConns > 0 {
			conn.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			conn.SetMaxIdleConns(opts.MaxIdleConns)
		}
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{runner: runner{q: conn, dialect: dialect}, conn: conn}

	if err := db.Migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// NewSQLite opens a SQLite database at path with default options.
func NewSQLite(ctx context.Context, path string) (*DB, error) {
	return Open(ctx, Options{Driver: "sqlite3", DSN: path})
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=1&_busy_timeout=5000"
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Dialect reports the SQL dialect in use.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Ping checks connectivity for the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// WithTx runs fn inside a transaction. The transaction commits when fn returns nil
// and rolls back on error or panic.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	tx := &Tx{runner: runner{q: sqlTx, dialect: db.dialect}, tx: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Migrate creates the necessary tables if they don't exist.
func (db *DB) Migrate(ctx context.Context) error {
	for _, query := range schema {
		if _, err := db.conn.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute schema query: %w", err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL,
		active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		seller_id TEXT NOT NULL REFERENCES users(id),
		name TEXT NOT NULL,
		price TEXT NOT NULL,
		stock_quantity INTEGER NOT NULL,
		min_qty INTEGER NOT NULL,
		max_qty INTEGER NOT NULL,
		negotiate INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS offers (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL REFERENCES products(id),
		farmer_id TEXT NOT NULL REFERENCES users(id),
		consumer_id TEXT NOT NULL REFERENCES users(id),
		offer_price_per_unit TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		status TEXT NOT NULL,
		rejection_count INTEGER NOT NULL DEFAULT 0,
		offer_date TEXT NOT NULL,
		response_date TEXT
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_offers_one_pending ON offers(product_id, consumer_id) WHERE status = 'pending'`,
	`CREATE INDEX IF NOT EXISTS idx_offers_pair ON offers(product_id, consumer_id, offer_date)`,
	`CREATE INDEX IF NOT EXISTS idx_offers_farmer_consumer ON offers(farmer_id, consumer_id, status)`,
	`CREATE INDEX IF NOT EXISTS idx_offers_consumer ON offers(consumer_id, offer_date)`,
	`CREATE TABLE IF NOT EXISTS accepted_offers (
		id TEXT PRIMARY KEY,
		offer_id TEXT NOT NULL UNIQUE REFERENCES offers(id),
		accepted_price TEXT NOT NULL,
		fixed_qty INTEGER NOT NULL,
		expiry_time TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_accepted_offers_expiry ON accepted_offers(expiry_time)`,
	`CREATE TABLE IF NOT EXISTS carts (
		id TEXT PRIMARY KEY,
		consumer_id TEXT NOT NULL UNIQUE REFERENCES users(id),
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS cart_items (
		id TEXT PRIMARY KEY,
		cart_id TEXT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL,
		price_per_unit TEXT NOT NULL,
		is_negotiated INTEGER NOT NULL DEFAULT 0,
		negotiated_price_per_unit TEXT,
		quantity_fixed INTEGER NOT NULL DEFAULT 0,
		accepted_offer_id TEXT REFERENCES accepted_offers(id),
		added_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cart_items_cart ON cart_items(cart_id)`,
	`CREATE INDEX IF NOT EXISTS idx_cart_items_accepted_offer ON cart_items(accepted_offer_id)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		consumer_id TEXT NOT NULL REFERENCES users(id),
		total_amount TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		order_status TEXT NOT NULL,
		delivery_address TEXT NOT NULL,
		payment_reference TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		paid_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_consumer ON orders(consumer_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(order_status, updated_at)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id TEXT NOT NULL REFERENCES products(id),
		quantity INTEGER NOT NULL,
		price_per_unit_paid TEXT NOT NULL,
		total_price TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id)`,
	`CREATE TABLE IF NOT EXISTS blocked_accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		farmer_id TEXT NOT NULL REFERENCES users(id),
		reason TEXT NOT NULL,
		blocked_on TEXT NOT NULL,
		blocked_until TEXT NOT NULL,
		UNIQUE (user_id, farmer_id)
	)`,
	`CREATE TABLE IF NOT EXISTS stock_anomalies (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		detected_at TEXT NOT NULL
	)`,
}
