package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kairos-trading/riskguard/internal/apperrors"
	"github.com/kairos-trading/riskguard/internal/domain"
	"github.com/kairos-trading/riskguard/internal/eventbus"
)

// Outcome is what a rule's Evaluate returns: at most one of Violation or
// Automation is non-nil. Both nil means the rule had nothing to say about
// this event.
type Outcome struct {
	Violation  *domain.Violation
	Automation *domain.AutomationAction
}

// Rule is the shared contract every risk rule implements. The engine does
// not know rule internals.
type Rule interface {
	ID() string
	Evaluate(ctx context.Context, event *domain.RiskEvent, state EngineState) (*Outcome, error)
}

// Engine is the rule engine: an insertion-ordered registry dispatched once
// per incoming event.
type Engine struct {
	mu    sync.Mutex
	rules []Rule
	bus   *eventbus.Bus

	logger *zap.Logger

	evaluated map[string]int64
	failed    map[string]int64

	onEvaluated func(ruleID string, d time.Duration, failed bool)
}

// SetMetricsHook installs a callback invoked after every rule evaluation
// with the rule id, elapsed time, and whether it panicked or errored.
func (e *Engine) SetMetricsHook(fn func(ruleID string, d time.Duration, failed bool)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onEvaluated = fn
}

// New creates an empty Engine. Registration order is observable: rules
// evaluate, and their enforcement actions publish, in that order.
func New(bus *eventbus.Bus, logger *zap.Logger) *Engine {
	return &Engine{
		bus:       bus,
		logger:    logger,
		evaluated: make(map[string]int64),
		failed:    make(map[string]int64),
	}
}

// Register appends rule to the registry.
func (e *Engine) Register(r Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, r)
}

// Rules returns the registered rules in registration order, used by
// diagnostics and tests.
func (e *Engine) Rules() []Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Dispatch runs every registered rule against event in registration order,
// publishing RULE_VIOLATED/ENFORCEMENT_ACTION events and instructing the
// lockout manager when a violation requires one. A panicking or erroring
// rule is isolated: its contribution is discarded, other rules still run,
// and the failure is logged.
func (e *Engine) Dispatch(ctx context.Context, event *domain.RiskEvent, state EngineState) {
	e.mu.Lock()
	rules := make([]Rule, len(e.rules))
	copy(rules, e.rules)
	e.mu.Unlock()

	for _, r := range rules {
		outcome := e.evaluateSafely(ctx, r, event, state)
		if outcome == nil {
			continue
		}
		if outcome.Violation != nil {
			e.handleViolation(ctx, outcome.Violation, state)
		}
		if outcome.Automation != nil {
			e.handleAutomation(outcome.Automation)
		}
	}
}

func (e *Engine) evaluateSafely(ctx context.Context, r Rule, event *domain.RiskEvent, state EngineState) (outcome *Outcome) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			e.noteFailure(r.ID(), time.Since(start))
			e.logger.Error("rule panicked",
				zap.String("rule", r.ID()),
				zap.Any("panic", rec),
			)
			outcome = nil
		}
	}()

	out, err := r.Evaluate(ctx, event, state)
	if err != nil {
		e.noteFailure(r.ID(), time.Since(start))
		if apperrors.Is(err, apperrors.ErrPersistenceRead) {
			e.escalatePersistenceRead(ctx, r.ID(), event, state, err)
			return nil
		}
		e.logger.Error("rule evaluation failed", zap.String("rule", r.ID()), zap.Error(err))
		return nil
	}
	e.noteEvaluated(r.ID(), time.Since(start))
	return out
}

// escalatePersistenceRead handles a rule that could not read persisted
// P&L/trade history even after the store-level retries. An unreadable
// history must never pass as "no loss yet", so instead of silently
// dropping the rule's contribution, the engine publishes a fatal alert and
// flattens the account as the safe default.
func (e *Engine) escalatePersistenceRead(ctx context.Context, ruleID string, event *domain.RiskEvent, state EngineState, err error) {
	e.logger.Error("persistence read failed during rule evaluation; flattening as safe default",
		zap.String("rule", ruleID),
		zap.String("account", event.AccountID),
		zap.Error(err),
	)
	if event.AccountID == "" {
		return
	}
	e.handleViolation(ctx, &domain.Violation{
		RuleID:    ruleID,
		AccountID: event.AccountID,
		Action:    domain.ActionFlatten,
		Message:   fmt.Sprintf("Persistence read failure: cannot verify risk limits (%v) — flattening as the safe default", err),
	}, state)
}

func (e *Engine) noteEvaluated(ruleID string, d time.Duration) {
	e.mu.Lock()
	e.evaluated[ruleID]++
	hook := e.onEvaluated
	e.mu.Unlock()
	if hook != nil {
		hook(ruleID, d, false)
	}
}

func (e *Engine) noteFailure(ruleID string, d time.Duration) {
	e.mu.Lock()
	e.evaluated[ruleID]++
	e.failed[ruleID]++
	hook := e.onEvaluated
	e.mu.Unlock()
	if hook != nil {
		hook(ruleID, d, true)
	}
}

func isEnforceable(a domain.ActionType) bool {
	switch a {
	case domain.ActionCooldown, domain.ActionAlertOnly:
		return false
	default:
		return true
	}
}

func (e *Engine) handleViolation(ctx context.Context, v *domain.Violation, state EngineState) {
	now := state.Now()
	e.logger.Warn("rule violated",
		zap.String("rule", v.RuleID),
		zap.String("account", v.AccountID),
		zap.String("action", string(v.Action)),
		zap.String("message", v.Message),
	)

	if err := e.bus.Publish(domain.SubjectRuleViolated, &domain.RiskEvent{
		Type:       domain.EventRuleViolated,
		Source:     "rule_engine",
		Timestamp:  now,
		AccountID:  v.AccountID,
		ContractID: v.ContractID,
		Symbol:     v.Symbol,
		Violation:  v,
		EntityID:   fmt.Sprintf("%s:%s", v.RuleID, v.AccountID),
	}); err != nil {
		e.logger.Error("failed to publish rule violation", zap.Error(err))
	}

	if v.LockoutRequired {
		if err := state.SetLockout(ctx, v.AccountID, v.RuleID, v.Message, v.NextUnlock); err != nil {
			e.logger.Error("failed to apply lockout", zap.String("account", v.AccountID), zap.Error(err))
		}
	}

	if isEnforceable(v.Action) {
		if err := e.bus.Publish(domain.SubjectEnforcementAction, &domain.RiskEvent{
			Type:       domain.EventEnforcementAction,
			Source:     "rule_engine",
			Timestamp:  now,
			AccountID:  v.AccountID,
			ContractID: v.ContractID,
			Symbol:     v.Symbol,
			Violation:  v,
			EntityID:   fmt.Sprintf("%s:%s", v.RuleID, v.AccountID),
		}); err != nil {
			e.logger.Error("failed to publish enforcement action", zap.Error(err))
		}
	}
}

func (e *Engine) handleAutomation(a *domain.AutomationAction) {
	e.logger.Info("automation action",
		zap.String("rule", a.RuleID),
		zap.String("account", a.AccountID),
		zap.String("action", string(a.Action)),
	)
	if err := e.bus.Publish(domain.SubjectEnforcementAction, &domain.RiskEvent{
		Type:       domain.EventEnforcementAction,
		Source:     "rule_engine",
		Timestamp:  time.Now(),
		AccountID:  a.AccountID,
		ContractID: a.ContractID,
		Symbol:     a.Symbol,
		Automation: a,
		EntityID:   fmt.Sprintf("%s:%s:%s", a.RuleID, a.AccountID, a.ContractID),
	}); err != nil {
		e.logger.Error("failed to publish automation action", zap.Error(err))
	}
}
