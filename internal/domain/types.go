// Package domain holds the canonical, already-validated data model the
// Event Router produces. Downstream components (rules, trackers, the
// enforcement executor) never touch raw broker SDK payloads, only these
// structured values.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType enumerates the broker order types this system understands.
type OrderType string

const (
	OrderTypeMarket       OrderType = "MARKET"
	OrderTypeLimit        OrderType = "LIMIT"
	OrderTypeStop         OrderType = "STOP"
	OrderTypeStopLimit    OrderType = "STOP_LIMIT"
	OrderTypeTrailingStop OrderType = "TRAILING_STOP"
)

// IsStopLoss reports whether this order type can ever satisfy the
// no-stop-loss-grace rule. A LIMIT order never counts, even if it is later
// classified as a potential take-profit.
func (t OrderType) IsStopLoss() bool {
	switch t {
	case OrderTypeStop, OrderTypeStopLimit, OrderTypeTrailingStop:
		return true
	default:
		return false
	}
}

// Side is the direction of an order or position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderStatus is the broker-reported lifecycle state of an Order.
type OrderStatus string

const (
	OrderStatusWorking   OrderStatus = "WORKING"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
	OrderStatusExpired   OrderStatus = "EXPIRED"
	OrderStatusModified  OrderStatus = "MODIFIED"
)

// Order is one live (or just-settled) broker order, canonicalized at the
// Event Router boundary.
type Order struct {
	OrderID    string
	ContractID string
	AccountID  string
	Type       OrderType
	Side       Side
	Size       int64
	StopPrice  *decimal.Decimal
	LimitPrice *decimal.Decimal
	Status     OrderStatus
	PlacedAt   time.Time
}

// HasStopPrice reports whether the order carries a stop price, required in
// addition to OrderType.IsStopLoss for rule 008's detection.
func (o *Order) HasStopPrice() bool {
	return o.StopPrice != nil
}

// Position is one open contract on an account. A Position with Size == 0
// must not appear in the engine's live position map.
type Position struct {
	ContractID    string
	SymbolRoot    string
	AccountID     string
	Size          int64 // signed: sign is side, magnitude is contract count
	AvgEntryPrice decimal.Decimal
	OpenedAt      time.Time
	UpdatedAt     time.Time

	// UnrealizedPnL is maintained by the Unrealized P&L Calculator and
	// mirrored here for convenience; it is not authoritative.
	UnrealizedPnL decimal.Decimal
}

// Side reports the position's directional side, or "" if flat.
func (p *Position) Side() Side {
	switch {
	case p.Size > 0:
		return SideBuy
	case p.Size < 0:
		return SideSell
	default:
		return ""
	}
}

// SignOf returns +1 for a long position, -1 for a short position, 0 if flat.
func SignOf(size int64) int64 {
	switch {
	case size > 0:
		return 1
	case size < 0:
		return -1
	default:
		return 0
	}
}

// FillType classifies the order responsible for closing a position, as
// determined by the Order Correlator.
type FillType string

const (
	FillTypeStopLoss   FillType = "stop_loss"
	FillTypeTakeProfit FillType = "take_profit"
	FillTypeManual     FillType = "manual"
	FillTypeUnknown    FillType = "unknown"
)

// Trade is one realized fill, persisted for audit and for the rolling-window
// trade-frequency rule.
type Trade struct {
	TradeID     string
	AccountID   string
	ContractID  string
	Symbol      string
	Side        Side
	Quantity    int64
	Price       decimal.Decimal
	RealizedPnL *decimal.Decimal // present only for closing fills
	Timestamp   time.Time
}

// Lockout is a persisted row describing an account's trading restriction.
type Lockout struct {
	ID              int64
	AccountID       string
	RuleID          string
	Reason          string
	LockedAt        time.Time
	ExpiresAt       *time.Time // nil means permanent
	UnlockCondition string
	Active          bool
}

// IsExpired reports whether the lockout's expiry has passed as of now,
// regardless of the Active flag: access checks treat an expired lockout as
// inactive even before the auto-unlock timer fires.
func (l *Lockout) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

// DailyPnL is the cumulative realized P&L for one account on one trading day.
type DailyPnL struct {
	AccountID    string
	TradingDay   string // YYYY-MM-DD in the configured reset timezone
	RealizedTotal decimal.Decimal
	UpdatedAt    time.Time
}
