package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Config holds database configuration
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "postgres",
		Database:        "ordo",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DB wraps the sql.DB connection
type DB struct {
	*sql.DB
	config Config
}

// New creates a new database connection
func New(config Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, config: config}, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// Migrate runs database migrations
func (db *DB) Migrate(ctx context.Context) error {
	migrations := []string{
		migrationProducts,
		migrationVendorCredentials,
		migrationCartProducts,
		migrationOrders,
		migrationVendorOrders,
		migrationVendorOrderProducts,
		migrationIndexes,
	}

	for i, migration := range migrations {
		if _, err := db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}

// Migration SQL statements
const migrationProducts = `
CREATE TABLE IF NOT EXISTS products (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    vendor VARCHAR(50) NOT NULL,
    product_id VARCHAR(255) NOT NULL,
    name VARCHAR(1024) NOT NULL,
    description TEXT,
    url VARCHAR(2048),
    images TEXT[] NOT NULL DEFAULT '{}',
    price NUMERIC(14,4) NOT NULL DEFAULT 0,
    manufacturer_number VARCHAR(255),
    category VARCHAR(255),
    available BOOLEAN NOT NULL DEFAULT true,
    last_price_updated TIMESTAMPTZ,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW(),
    UNIQUE(vendor, product_id)
);
`

const migrationVendorCredentials = `
CREATE TABLE IF NOT EXISTS vendor_credentials (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    office_id VARCHAR(64) NOT NULL,
    vendor VARCHAR(50) NOT NULL,
    username VARCHAR(255) NOT NULL DEFAULT '',
    password_sealed TEXT NOT NULL DEFAULT '',
    account_id VARCHAR(255),
    login_success BOOLEAN NOT NULL DEFAULT true,
    last_login_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW(),
    UNIQUE(office_id, vendor)
);
`

const migrationCartProducts = `
CREATE TABLE IF NOT EXISTS cart_products (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    office_id VARCHAR(64) NOT NULL,
    vendor VARCHAR(50) NOT NULL,
    product_id VARCHAR(255) NOT NULL,
    name VARCHAR(1024),
    quantity INTEGER NOT NULL CHECK (quantity > 0),
    unit_price NUMERIC(14,4) NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ DEFAULT NOW()
);
`

const migrationOrders = `
CREATE TABLE IF NOT EXISTS orders (
    id UUID PRIMARY KEY,
    office_id VARCHAR(64) NOT NULL,
    order_date TIMESTAMPTZ NOT NULL,
    total_amount NUMERIC(14,4) NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ DEFAULT NOW()
);
`

const migrationVendorOrders = `
CREATE TABLE IF NOT EXISTS vendor_orders (
    id UUID PRIMARY KEY,
    order_id UUID REFERENCES orders(id) ON DELETE CASCADE,
    office_id VARCHAR(64) NOT NULL,
    vendor VARCHAR(50) NOT NULL,
    vendor_order_id VARCHAR(255) NOT NULL,
    order_date TIMESTAMPTZ NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'unknown',
    total_amount NUMERIC(14,4) NOT NULL DEFAULT 0,
    shipping_address JSONB,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW(),
    UNIQUE(office_id, vendor, vendor_order_id)
);
`

const migrationVendorOrderProducts = `
CREATE TABLE IF NOT EXISTS vendor_order_products (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    vendor_order_id UUID NOT NULL REFERENCES vendor_orders(id) ON DELETE CASCADE,
    product_id VARCHAR(255) NOT NULL,
    name VARCHAR(1024),
    quantity INTEGER NOT NULL,
    unit_price NUMERIC(14,4) NOT NULL DEFAULT 0,
    status VARCHAR(20) NOT NULL DEFAULT 'unknown'
);
`

const migrationIndexes = `
CREATE INDEX IF NOT EXISTS idx_products_vendor_available ON products(vendor, available);
CREATE INDEX IF NOT EXISTS idx_products_price_age ON products(vendor, last_price_updated NULLS FIRST);
CREATE INDEX IF NOT EXISTS idx_vendor_credentials_vendor ON vendor_credentials(vendor) WHERE login_success;
CREATE INDEX IF NOT EXISTS idx_cart_products_office ON cart_products(office_id, vendor);
CREATE INDEX IF NOT EXISTS idx_orders_office ON orders(office_id, order_date DESC);
CREATE INDEX IF NOT EXISTS idx_vendor_orders_order ON vendor_orders(order_id);
CREATE INDEX IF NOT EXISTS idx_vendor_order_products_order ON vendor_order_products(vendor_order_id);
`

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
