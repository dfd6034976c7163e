package pnl

import (
	"sync"

	"github.com/shopspring/decimal"
)

// TickSpec is the per-symbol tick size/value used to convert a price
// difference into a dollar P&L.
type TickSpec struct {
	TickSize  decimal.Decimal
	TickValue decimal.Decimal
}

type trackedPosition struct {
	entryPrice decimal.Decimal
	size       int64
	symbol     string
}

// UnrealizedCalculator computes mark-to-market P&L for open positions.
type UnrealizedCalculator struct {
	mu         sync.RWMutex
	positions  map[string]*trackedPosition // contract_id -> position
	lastPrice  map[string]decimal.Decimal  // symbol -> last price
	ticks      map[string]TickSpec         // symbol -> tick spec
}

// NewUnrealizedCalculator creates a calculator with the given per-symbol
// tick table (loaded from risk_config.yaml's ticks block).
func NewUnrealizedCalculator(ticks map[string]TickSpec) *UnrealizedCalculator {
	return &UnrealizedCalculator{
		positions: make(map[string]*trackedPosition),
		lastPrice: make(map[string]decimal.Decimal),
		ticks:     ticks,
	}
}

// UpdatePosition records/updates the entry state for a contract, called on
// OPEN/UPDATE position events.
func (c *UnrealizedCalculator) UpdatePosition(contractID, symbol string, entryPrice decimal.Decimal, size int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions[contractID] = &trackedPosition{entryPrice: entryPrice, size: size, symbol: symbol}
}

// RemovePosition forgets a contract's tracked state, called on CLOSE.
func (c *UnrealizedCalculator) RemovePosition(contractID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.positions, contractID)
}

// UpdateQuote records the last traded price for a symbol root.
func (c *UnrealizedCalculator) UpdateQuote(symbol string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPrice[symbol] = price
}

// pnlFor computes (exit-entry)/tick_size * size * tick_value, which is
// already signed correctly for both longs and shorts because size carries
// the side's sign.
func pnlFor(entry, exit decimal.Decimal, size int64, spec TickSpec) decimal.Decimal {
	if spec.TickSize.IsZero() {
		return decimal.Zero
	}
	diff := exit.Sub(entry)
	ticks := diff.Div(spec.TickSize)
	return ticks.Mul(decimal.NewFromInt(size)).Mul(spec.TickValue)
}

// GetUnrealized returns the live mark-to-market P&L for contractID, or
// (zero, false) if the symbol's tick spec or last price is unknown —
// callers must treat false as "cannot evaluate this rule for this symbol"
// not as a zero P&L.
func (c *UnrealizedCalculator) GetUnrealized(contractID string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pos, ok := c.positions[contractID]
	if !ok {
		return decimal.Zero, false
	}
	spec, ok := c.ticks[pos.symbol]
	if !ok {
		return decimal.Zero, false
	}
	price, ok := c.lastPrice[pos.symbol]
	if !ok {
		return decimal.Zero, false
	}
	return pnlFor(pos.entryPrice, price, pos.size, spec), true
}

// CalculateRealizedPnL computes the realized P&L for a position being
// closed at exitPrice, using the tracked entry price and size. Returns
// (zero, false) for an unknown symbol/contract.
func (c *UnrealizedCalculator) CalculateRealizedPnL(contractID string, exitPrice decimal.Decimal) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	pos, ok := c.positions[contractID]
	if !ok {
		return decimal.Zero, false
	}
	spec, ok := c.ticks[pos.symbol]
	if !ok {
		return decimal.Zero, false
	}
	return pnlFor(pos.entryPrice, exitPrice, pos.size, spec), true
}

// GetLastPrice returns the last quoted price for symbol, if any has been
// recorded yet.
func (c *UnrealizedCalculator) GetLastPrice(symbol string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.lastPrice[symbol]
	return p, ok
}

// TickSpecFor returns the tick spec for symbol, if configured.
func (c *UnrealizedCalculator) TickSpecFor(symbol string) (TickSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.ticks[symbol]
	return s, ok
}
