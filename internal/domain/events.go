package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EventType is the tagged-union discriminant for RiskEvent, switched on
// exhaustively at every consumer.
type EventType string

const (
	EventOrderPlaced      EventType = "ORDER_PLACED"
	EventOrderFilled      EventType = "ORDER_FILLED"
	EventOrderPartialFill EventType = "ORDER_PARTIAL_FILL"
	EventOrderCancelled   EventType = "ORDER_CANCELLED"
	EventOrderRejected    EventType = "ORDER_REJECTED"
	EventOrderModified    EventType = "ORDER_MODIFIED"
	EventOrderExpired     EventType = "ORDER_EXPIRED"

	EventPositionOpened  EventType = "POSITION_OPENED"
	EventPositionUpdated EventType = "POSITION_UPDATED"
	EventPositionClosed  EventType = "POSITION_CLOSED"

	EventTradeExecuted EventType = "TRADE_EXECUTED"
	EventPnLUpdated    EventType = "PNL_UPDATED"
	EventQuoteUpdated  EventType = "QUOTE_UPDATED"

	EventSDKConnected    EventType = "SDK_CONNECTED"
	EventSDKDisconnected EventType = "SDK_DISCONNECTED"
	EventAuthFailed      EventType = "AUTH_FAILED"

	EventRuleViolated     EventType = "RULE_VIOLATED"
	EventEnforcementAction EventType = "ENFORCEMENT_ACTION"
)

// Subject names on the internal Event Bus. Kept distinct from EventType so
// the bus can route broker-originated events and engine-originated
// (violation/enforcement) events to different subscriber sets.
const (
	SubjectBrokerEvents     = "risk.broker_events"
	SubjectRuleViolated     = "risk.rule_violated"
	SubjectEnforcementAction = "risk.enforcement_action"
)

// RiskEvent is the canonical internal event published by the Event Router.
// Only the fields relevant to Type are populated; the others are zero.
type RiskEvent struct {
	Type      EventType
	Source    string
	Timestamp time.Time

	AccountID  string
	ContractID string
	Symbol     string

	Order    *Order
	Position *Position
	Trade    *Trade
	Quote    *Quote

	// Violation and Automation are populated only on EventRuleViolated and
	// EventEnforcementAction events respectively, published by the Rule
	// Engine rather than the Event Router.
	Violation  *Violation
	Automation *AutomationAction

	// EntityID is used for the (event_kind, entity_id) dedup key: the
	// order id for order events, the contract id for position events.
	EntityID string
}

// Quote is a single last-price update for a symbol root.
type Quote struct {
	Symbol string
	Price  decimal.Decimal
}
