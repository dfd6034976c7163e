// Package store is the persistence layer: a local embedded transactional
// store for trades, lockouts, and cumulative daily P&L, used to recover
// state after restart. Backed by SQLite (modernc.org/sqlite, a pure-Go
// driver, no cgo) accessed through sqlx.
package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	account_id TEXT NOT NULL,
	contract_id TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price TEXT NOT NULL,
	realized_pnl TEXT,
	timestamp TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_account_ts ON trades(account_id, timestamp);

CREATE TABLE IF NOT EXISTS lockouts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id TEXT NOT NULL,
	rule_id TEXT NOT NULL,
	reason TEXT NOT NULL,
	locked_at TEXT NOT NULL,
	expires_at TEXT,
	unlock_condition TEXT NOT NULL,
	active INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_lockouts_account_active ON lockouts(account_id, active);

CREATE TABLE IF NOT EXISTS daily_pnl (
	account_id TEXT NOT NULL,
	trading_day TEXT NOT NULL,
	realized_total TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (account_id, trading_day)
);

CREATE TABLE IF NOT EXISTS positions_snapshot (
	account_id TEXT NOT NULL,
	contract_id TEXT NOT NULL,
	symbol_root TEXT NOT NULL,
	size INTEGER NOT NULL,
	avg_entry_price TEXT NOT NULL,
	opened_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (account_id, contract_id)
);
`

// Open opens (creating if necessary) the SQLite database at path and
// applies the schema. A single *sqlx.DB is shared by all readers; writes
// are serialized through Store's writer mutex, not the driver.
func Open(ctx context.Context, path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single-writer embedded store

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema to %s: %w", path, err)
	}
	return db, nil
}
