package store

import (
	"context"
	"fmt"
	"time"
)

func (s *Store) migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA foreign_keys=ON;`,
		`
CREATE TABLE IF NOT EXISTS accounts (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
		`
CREATE TABLE IF NOT EXISTS balances (
  account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
  currency TEXT NOT NULL,
  amount TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (account_id, currency)
);`,
		`
CREATE TABLE IF NOT EXISTS holdings (
  account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
  symbol TEXT NOT NULL,
  quantity TEXT NOT NULL,
  avg_purchase_price TEXT NOT NULL,
  updated_at TEXT NOT NULL,
  PRIMARY KEY (account_id, symbol)
);`,
		`
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
  symbol TEXT NOT NULL,
  type TEXT NOT NULL,
  side TEXT NOT NULL,
  quantity TEXT NOT NULL,
  price TEXT,
  status TEXT NOT NULL,
  created_at TEXT NOT NULL,
  filled_at TEXT
);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_account_created ON orders(account_id, created_at DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status_type ON orders(status, type);`,
		`
CREATE TABLE IF NOT EXISTS trades (
  id TEXT PRIMARY KEY,
  order_id TEXT,
  account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
  symbol TEXT NOT NULL,
  side TEXT NOT NULL,
  quantity TEXT NOT NULL,
  price TEXT NOT NULL,
  total TEXT NOT NULL,
  fee TEXT NOT NULL,
  executed_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_trades_account_executed ON trades(account_id, executed_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
