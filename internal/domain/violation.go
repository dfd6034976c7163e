package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ActionType is the enforcement action a Violation or AutomationAction
// calls for.
type ActionType string

const (
	ActionClosePosition      ActionType = "close_position"
	ActionCloseAll           ActionType = "close_all"
	ActionCancelOrder        ActionType = "cancel_order"
	ActionCooldown           ActionType = "cooldown"
	ActionFlatten            ActionType = "flatten"
	ActionPlaceStopLoss      ActionType = "place_stop_loss"
	ActionPlaceTakeProfit    ActionType = "place_take_profit"
	ActionPlaceBracketOrder  ActionType = "place_bracket_order"
	ActionAdjustTrailingStop ActionType = "adjust_trailing_stop"
	ActionAlertOnly          ActionType = "alert_only"
)

// Violation is what a rule's Evaluate returns when it detects a breach. It
// is published as a RULE_VIOLATED event and, when Action is one the
// Enforcement Executor understands, also drives an ENFORCEMENT_ACTION.
type Violation struct {
	RuleID          string
	AccountID       string
	Symbol          string
	ContractID      string
	OrderID         string // populated only when Action targets a single order (cancel_order)
	Action          ActionType
	LockoutRequired bool
	CooldownFor     time.Duration // zero if LockoutRequired is false or the lockout is not timer-based
	NextUnlock      *time.Time    // nil means either no lockout or a permanent one
	Message         string
}

// AutomationAction is what rule 012 (Trade Management) emits: a directive,
// not a violation, that the Enforcement Executor executes directly.
type AutomationAction struct {
	RuleID     string
	AccountID  string
	ContractID string
	Symbol     string
	Action     ActionType
	Side       Side
	Size       int64
	Price      *decimal.Decimal // stop/limit price for place_* actions
	SecondPrice *decimal.Decimal // take-profit leg of place_bracket_order
	OrderID    string           // target order for adjust_trailing_stop
}
