// Package storage provides persistent storage using SQLite.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage provides persistent storage for the relayer.
type Storage struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds storage configuration.
type Config struct {
	DataDir string
}

// New creates a new Storage instance.
func New(cfg *Config) (*Storage, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "relayer.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// initSchema creates all database tables.
func (s *Storage) initSchema() error {
	schema := `
	-- Quotes: one row per accepted resolver answer
	CREATE TABLE IF NOT EXISTS quotes (
		id TEXT PRIMARY KEY,
		from_chain TEXT NOT NULL,
		to_chain TEXT NOT NULL,
		from_token TEXT NOT NULL,
		to_token TEXT NOT NULL,
		amount TEXT NOT NULL,
		from_chain_amount TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'created',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_quotes_created ON quotes(created_at DESC);

	-- Swap orders: one row per accepted quote, never deleted (audit trail)
	CREATE TABLE IF NOT EXISTS swap_orders (
		swap_id TEXT PRIMARY KEY,
		quote_id TEXT,

		hash_lock TEXT NOT NULL,

		from_chain TEXT NOT NULL,
		to_chain TEXT NOT NULL,
		from_token TEXT NOT NULL,
		to_token TEXT NOT NULL,
		from_amount TEXT NOT NULL,
		to_amount TEXT NOT NULL,

		user_address TEXT NOT NULL,
		receiver_address TEXT NOT NULL,

		from_order_hash TEXT NOT NULL,
		to_order_hash TEXT NOT NULL,

		from_escrow_address TEXT,
		to_escrow_address TEXT,
		from_create_tx TEXT,
		to_create_tx TEXT,
		from_settlement_tx TEXT,
		to_settlement_tx TEXT,

		-- Time locks (unix seconds)
		tl_deployed INTEGER NOT NULL DEFAULT 0,
		tl_withdrawal INTEGER NOT NULL DEFAULT 0,
		tl_cancellation INTEGER NOT NULL DEFAULT 0,

		-- Permit artifact (JSON blob)
		permit TEXT,

		status TEXT NOT NULL,
		error TEXT,

		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_swap_orders_status ON swap_orders(status);
	CREATE INDEX IF NOT EXISTS idx_swap_orders_created ON swap_orders(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_swap_orders_hash_lock ON swap_orders(hash_lock);

	-- Revealed secrets (post-settlement, for recovery/audit tooling)
	CREATE TABLE IF NOT EXISTS secrets (
		id TEXT PRIMARY KEY,
		swap_id TEXT NOT NULL,
		secret TEXT NOT NULL,
		created_at INTEGER NOT NULL,

		FOREIGN KEY (swap_id) REFERENCES swap_orders(swap_id)
	);

	CREATE INDEX IF NOT EXISTS idx_secrets_created ON secrets(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_secrets_swap ON secrets(swap_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
