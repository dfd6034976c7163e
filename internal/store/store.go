package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/segmentio/ksuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kairos-trading/riskguard/internal/apperrors"
	"github.com/kairos-trading/riskguard/internal/domain"
)

// Store is the single-writer persistence layer. Reads may run
// concurrently; writes serialize through mu, since the underlying SQLite
// connection is itself single-writer.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
	mu     sync.Mutex
}

// New wraps an already-opened *sqlx.DB (see Open in schema.go).
func New(db *sqlx.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive, used by the Runtime
// Supervisor's database-connected post-condition check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AddTrade inserts a trade, idempotent by trade_id.
func (s *Store) AddTrade(ctx context.Context, t *domain.Trade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.TradeID == "" {
		t.TradeID = ksuid.New().String()
	}
	var realizedPnL *string
	if t.RealizedPnL != nil {
		v := t.RealizedPnL.String()
		realizedPnL = &v
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades (trade_id, account_id, contract_id, symbol, side, quantity, price, realized_pnl, timestamp, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(trade_id) DO NOTHING
	`, t.TradeID, t.AccountID, t.ContractID, t.Symbol, string(t.Side), t.Quantity, t.Price.String(), realizedPnL,
		t.Timestamp.UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("add_trade: %w", err)
	}
	return nil
}

type tradeRow struct {
	TradeID     string         `db:"trade_id"`
	AccountID   string         `db:"account_id"`
	ContractID  string         `db:"contract_id"`
	Symbol      string         `db:"symbol"`
	Side        string         `db:"side"`
	Quantity    int64          `db:"quantity"`
	Price       string         `db:"price"`
	RealizedPnL sql.NullString `db:"realized_pnl"`
	Timestamp   string         `db:"timestamp"`
}

func (r tradeRow) toDomain() (*domain.Trade, error) {
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		return nil, err
	}
	t := &domain.Trade{
		TradeID:    r.TradeID,
		AccountID:  r.AccountID,
		ContractID: r.ContractID,
		Symbol:     r.Symbol,
		Side:       domain.Side(r.Side),
		Quantity:   r.Quantity,
		Price:      price,
		Timestamp:  ts,
	}
	if r.RealizedPnL.Valid {
		d, err := decimal.NewFromString(r.RealizedPnL.String)
		if err != nil {
			return nil, err
		}
		t.RealizedPnL = &d
	}
	return t, nil
}

// GetTradesInWindow returns trades for account with timestamp >= now - window.
func (s *Store) GetTradesInWindow(ctx context.Context, accountID string, window time.Duration, now time.Time) ([]*domain.Trade, error) {
	var rows []tradeRow
	since := now.Add(-window).UTC().Format(time.RFC3339Nano)
	err := s.db.SelectContext(ctx, &rows, `
		SELECT trade_id, account_id, contract_id, symbol, side, quantity, price, realized_pnl, timestamp
		FROM trades WHERE account_id = ? AND timestamp >= ? ORDER BY timestamp ASC
	`, accountID, since)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrPersistenceRead, "get_trades_in_window")
	}
	out := make([]*domain.Trade, 0, len(rows))
	for _, r := range rows {
		t, err := r.toDomain()
		if err != nil {
			return nil, fmt.Errorf("decoding trade row: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// GetSessionTradeCount returns the trade count for account on the given
// trading day (the caller supplies the already-computed day boundary
// start/end so the store stays timezone-agnostic).
func (s *Store) GetSessionTradeCount(ctx context.Context, accountID string, dayStart, dayEnd time.Time) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM trades WHERE account_id = ? AND timestamp >= ? AND timestamp < ?
	`, accountID, dayStart.UTC().Format(time.RFC3339Nano), dayEnd.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrPersistenceRead, "get_session_trade_count")
	}
	return count, nil
}

// SetLockout deactivates any prior active row for account and inserts a new
// active row.
func (s *Store) SetLockout(ctx context.Context, l *domain.Lockout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("set_lockout: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE lockouts SET active = 0 WHERE account_id = ? AND active = 1`, l.AccountID); err != nil {
		return fmt.Errorf("set_lockout: deactivate prior: %w", err)
	}

	var expiresAt *string
	if l.ExpiresAt != nil {
		v := l.ExpiresAt.UTC().Format(time.RFC3339Nano)
		expiresAt = &v
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := tx.ExecContext(ctx, `
		INSERT INTO lockouts (account_id, rule_id, reason, locked_at, expires_at, unlock_condition, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)
	`, l.AccountID, l.RuleID, l.Reason, now, expiresAt, l.UnlockCondition, now)
	if err != nil {
		return fmt.Errorf("set_lockout: insert: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("set_lockout: commit: %w", err)
	}
	id, _ := res.LastInsertId()
	l.ID = id
	l.Active = true
	return nil
}

// ClearLockout marks the account's active row inactive.
func (s *Store) ClearLockout(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `UPDATE lockouts SET active = 0 WHERE account_id = ? AND active = 1`, accountID)
	if err != nil {
		return fmt.Errorf("clear_lockout: %w", err)
	}
	return nil
}

type lockoutRow struct {
	ID              int64          `db:"id"`
	AccountID       string         `db:"account_id"`
	RuleID          string         `db:"rule_id"`
	Reason          string         `db:"reason"`
	LockedAt        string         `db:"locked_at"`
	ExpiresAt       sql.NullString `db:"expires_at"`
	UnlockCondition string         `db:"unlock_condition"`
	Active          bool           `db:"active"`
}

func (r lockoutRow) toDomain() (*domain.Lockout, error) {
	lockedAt, err := time.Parse(time.RFC3339Nano, r.LockedAt)
	if err != nil {
		return nil, err
	}
	l := &domain.Lockout{
		ID:              r.ID,
		AccountID:       r.AccountID,
		RuleID:          r.RuleID,
		Reason:          r.Reason,
		LockedAt:        lockedAt,
		UnlockCondition: r.UnlockCondition,
		Active:          r.Active,
	}
	if r.ExpiresAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, r.ExpiresAt.String)
		if err != nil {
			return nil, err
		}
		l.ExpiresAt = &t
	}
	return l, nil
}

// LoadActiveLockouts returns every row with active = true, used at startup
// to reconstruct the Lockout Manager's in-memory map.
func (s *Store) LoadActiveLockouts(ctx context.Context) ([]*domain.Lockout, error) {
	var rows []lockoutRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, rule_id, reason, locked_at, expires_at, unlock_condition, active
		FROM lockouts WHERE active = 1
	`)
	if err != nil {
		return nil, fmt.Errorf("load_active_lockouts: %w", err)
	}
	out := make([]*domain.Lockout, 0, len(rows))
	for _, r := range rows {
		l, err := r.toDomain()
		if err != nil {
			return nil, fmt.Errorf("decoding lockout row: %w", err)
		}
		out = append(out, l)
	}
	return out, nil
}

// AddRealizedPnL adds delta to account's cumulative total for trading day,
// creating the row if absent, and returns the new cumulative total.
func (s *Store) AddRealizedPnL(ctx context.Context, accountID, tradingDay string, delta decimal.Decimal) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("add_realized_pnl: begin: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.GetContext(ctx, &current, `SELECT realized_total FROM daily_pnl WHERE account_id = ? AND trading_day = ?`, accountID, tradingDay)
	total := decimal.Zero
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// no row yet
	case err != nil:
		return decimal.Zero, fmt.Errorf("add_realized_pnl: read: %w", err)
	default:
		total, err = decimal.NewFromString(current)
		if err != nil {
			return decimal.Zero, fmt.Errorf("add_realized_pnl: parse: %w", err)
		}
	}

	total = total.Add(delta)
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO daily_pnl (account_id, trading_day, realized_total, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, trading_day) DO UPDATE SET realized_total = excluded.realized_total, updated_at = excluded.updated_at
	`, accountID, tradingDay, total.String(), now)
	if err != nil {
		return decimal.Zero, fmt.Errorf("add_realized_pnl: write: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("add_realized_pnl: commit: %w", err)
	}
	return total, nil
}

// GetDailyPnL returns the cumulative realized total for account/trading day,
// or zero if no row exists yet.
func (s *Store) GetDailyPnL(ctx context.Context, accountID, tradingDay string) (decimal.Decimal, error) {
	var current string
	err := s.db.GetContext(ctx, &current, `SELECT realized_total FROM daily_pnl WHERE account_id = ? AND trading_day = ?`, accountID, tradingDay)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, apperrors.Wrap(err, apperrors.ErrPersistenceRead, "get_daily_pnl")
	}
	return decimal.NewFromString(current)
}

// SnapshotPositions overwrites the positions_snapshot table for account with
// its current live positions, used for restart diagnostics.
func (s *Store) SnapshotPositions(ctx context.Context, accountID string, positions []*domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("snapshot_positions: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions_snapshot WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("snapshot_positions: clear: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, p := range positions {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO positions_snapshot (account_id, contract_id, symbol_root, size, avg_entry_price, opened_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, accountID, p.ContractID, p.SymbolRoot, p.Size, p.AvgEntryPrice.String(), p.OpenedAt.UTC().Format(time.RFC3339Nano), now)
		if err != nil {
			return fmt.Errorf("snapshot_positions: insert: %w", err)
		}
	}
	return tx.Commit()
}
