package database

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func InitDB(logger *zap.Logger) (*sql.DB, error) {
	host := getEnv("DB_HOST", "localhost")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "postgres")
	password := getEnv("DB_PASSWORD", "postgres")
	dbname := getEnv("DB_NAME", "shopdb")

	psqlInfo := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", psqlInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info("Database connection established")
	return db, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			name VARCHAR(50) NOT NULL,
			occupation VARCHAR(50) NOT NULL,
			email VARCHAR(255) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			street VARCHAR(255) NOT NULL,
			city VARCHAR(100) NOT NULL,
			state VARCHAR(100) NOT NULL,
			pincode VARCHAR(10) NOT NULL,
			phone VARCHAR(10) NOT NULL,
			is_admin BOOLEAN NOT NULL DEFAULT FALSE,
			otp INTEGER NOT NULL DEFAULT 0,
			otp_expires_at TIMESTAMP,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id SERIAL PRIMARY KEY,
			category VARCHAR(50) NOT NULL,
			name VARCHAR(100) NOT NULL,
			price NUMERIC(12,2) NOT NULL CHECK (price >= 0),
			description TEXT NOT NULL,
			features TEXT[] NOT NULL DEFAULT '{}',
			image_url TEXT NOT NULL,
			in_stock BOOLEAN NOT NULL DEFAULT TRUE,
			discount NUMERIC(5,2) NOT NULL DEFAULT 0 CHECK (discount >= 0 AND discount <= 100),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		// product_id is a reference, not a foreign key: the catalog may
		// delete a product while it still sits in carts. Reads self-heal.
		`CREATE TABLE IF NOT EXISTS cart_items (
			user_id INTEGER NOT NULL REFERENCES users(id),
			product_id INTEGER NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity >= 1),
			added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (user_id, product_id)
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id SERIAL PRIMARY KEY,
			user_id INTEGER NOT NULL REFERENCES users(id),
			total_amount BIGINT NOT NULL CHECK (total_amount >= 0),
			order_status VARCHAR(20) NOT NULL DEFAULT 'processing',
			payment_status VARCHAR(20) NOT NULL DEFAULT 'pending',
			payment_method VARCHAR(10) NOT NULL DEFAULT 'cod',
			street VARCHAR(255) NOT NULL,
			city VARCHAR(100) NOT NULL,
			state VARCHAR(100) NOT NULL,
			pincode VARCHAR(10) NOT NULL,
			phone VARCHAR(10) NOT NULL,
			razorpay_order_id VARCHAR(64) NOT NULL DEFAULT '',
			razorpay_payment_id VARCHAR(64) NOT NULL DEFAULT '',
			razorpay_signature VARCHAR(128) NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id SERIAL PRIMARY KEY,
			order_id INTEGER NOT NULL REFERENCES orders(id),
			product_id INTEGER NOT NULL,
			name VARCHAR(100) NOT NULL,
			price BIGINT NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity >= 1)
		)`,
		// Denormalized per-user pending/completed order index. Maintained
		// inside the same transaction as the order write so an order is
		// always in exactly one bucket.
		`CREATE TABLE IF NOT EXISTS user_order_index (
			user_id INTEGER NOT NULL REFERENCES users(id),
			order_id INTEGER NOT NULL REFERENCES orders(id),
			bucket VARCHAR(10) NOT NULL CHECK (bucket IN ('pending', 'completed')),
			order_date TIMESTAMP NOT NULL,
			completed_date TIMESTAMP,
			PRIMARY KEY (user_id, order_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user_status ON orders (user_id, order_status)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders (created_at DESC)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
