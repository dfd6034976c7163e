// Package enforcement is the enforcement executor: it subscribes to
// enforcement_action events on the Event Bus and turns each
// Violation/AutomationAction payload into a broker.Client call, behind a
// circuit breaker, a worker pool, and a token-bucket throttle so a broker
// outage or a burst of simultaneous violations can't cascade into a stuck
// engine. It is the only component that mutates broker state.
package enforcement

import (
	"context"
	"fmt"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kairos-trading/riskguard/internal/broker"
	"github.com/kairos-trading/riskguard/internal/domain"
	"github.com/kairos-trading/riskguard/internal/eventbus"
)

// Config tunes the executor's resilience layer.
type Config struct {
	PoolSize          int
	RateLimitPerSec   float64
	RateLimitBurst    int
	BreakerMaxRequests uint32
	BreakerInterval   time.Duration
	BreakerTimeout    time.Duration
}

// DefaultConfig returns defaults sized for a single-account-book
// enforcement workload.
func DefaultConfig() Config {
	return Config{
		PoolSize:           32,
		RateLimitPerSec:    20,
		RateLimitBurst:     10,
		BreakerMaxRequests: 5,
		BreakerInterval:    30 * time.Second,
		BreakerTimeout:     60 * time.Second,
	}
}

// Executor is the Enforcement Executor.
type Executor struct {
	client  broker.Client
	bus     *eventbus.Bus
	logger  *zap.Logger
	pool    *ants.Pool
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

// New creates an Executor and subscribes it to domain.SubjectEnforcementAction.
func New(client broker.Client, bus *eventbus.Bus, cfg Config, logger *zap.Logger) (*Executor, error) {
	pool, err := ants.NewPool(cfg.PoolSize, ants.WithPanicHandler(func(i interface{}) {
		logger.Error("enforcement task panicked", zap.Any("panic", i))
	}))
	if err != nil {
		return nil, fmt.Errorf("creating enforcement worker pool: %w", err)
	}

	breakerSettings := gobreaker.Settings{
		Name:        "enforcement_executor",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("enforcement circuit breaker state changed",
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	e := &Executor{
		client:  client,
		bus:     bus,
		logger:  logger,
		pool:    pool,
		breaker: gobreaker.NewCircuitBreaker(breakerSettings),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst),
	}
	bus.Subscribe("enforcement_executor", domain.SubjectEnforcementAction, e.handle)
	return e, nil
}

// Close releases the worker pool.
func (e *Executor) Close() {
	e.pool.Release()
}

func (e *Executor) handle(ctx context.Context, event *domain.RiskEvent) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("enforcement throttle: %w", err)
	}

	done := make(chan error, 1)
	submitErr := e.pool.Submit(func() {
		_, err := e.breaker.Execute(func() (interface{}, error) {
			return nil, e.execute(ctx, event)
		})
		done <- err
	})
	if submitErr != nil {
		return fmt.Errorf("submitting enforcement task: %w", submitErr)
	}
	return <-done
}

// execute dispatches one violation or automation action to the broker.
// Exactly one of event.Violation / event.Automation is populated.
func (e *Executor) execute(ctx context.Context, event *domain.RiskEvent) error {
	switch {
	case event.Violation != nil:
		return e.executeViolation(ctx, event.Violation)
	case event.Automation != nil:
		return e.executeAutomation(ctx, event.Automation)
	default:
		e.logger.Warn("enforcement action event carries neither violation nor automation payload")
		return nil
	}
}

func (e *Executor) executeViolation(ctx context.Context, v *domain.Violation) error {
	e.logger.Warn("enforcing violation",
		zap.String("rule", v.RuleID),
		zap.String("account", v.AccountID),
		zap.String("action", string(v.Action)),
	)
	switch v.Action {
	case domain.ActionClosePosition:
		return e.client.ClosePosition(ctx, v.AccountID, v.ContractID)
	case domain.ActionCloseAll, domain.ActionFlatten:
		return e.client.CloseAllPositions(ctx, v.AccountID)
	case domain.ActionCancelOrder:
		if v.OrderID == "" {
			e.logger.Error("cancel_order violation carries no order id",
				zap.String("rule", v.RuleID),
				zap.String("contract", v.ContractID),
			)
			return nil
		}
		return e.client.CancelOrder(ctx, v.AccountID, v.OrderID)
	case domain.ActionCooldown, domain.ActionAlertOnly:
		// No broker call: cooldown/alert-only are notification-level.
		return nil
	default:
		e.logger.Warn("unhandled violation action", zap.String("action", string(v.Action)))
		return nil
	}
}

func (e *Executor) executeAutomation(ctx context.Context, a *domain.AutomationAction) error {
	e.logger.Info("executing automation action",
		zap.String("rule", a.RuleID),
		zap.String("account", a.AccountID),
		zap.String("action", string(a.Action)),
	)
	switch a.Action {
	case domain.ActionClosePosition:
		return e.client.ClosePosition(ctx, a.AccountID, a.ContractID)
	case domain.ActionCloseAll, domain.ActionFlatten:
		return e.client.CloseAllPositions(ctx, a.AccountID)
	case domain.ActionPlaceStopLoss:
		if a.Price == nil {
			return fmt.Errorf("place_stop_loss automation missing price")
		}
		_, err := e.client.PlaceStopOrder(ctx, a.AccountID, a.ContractID, a.Side, a.Size, *a.Price)
		return err
	case domain.ActionPlaceTakeProfit:
		if a.Price == nil {
			return fmt.Errorf("place_take_profit automation missing price")
		}
		_, err := e.client.PlaceLimitOrder(ctx, a.AccountID, a.ContractID, a.Side, a.Size, *a.Price)
		return err
	case domain.ActionPlaceBracketOrder:
		if a.Price == nil || a.SecondPrice == nil {
			return fmt.Errorf("place_bracket_order automation missing stop/target price")
		}
		_, _, err := e.client.PlaceBracketOrder(ctx, a.AccountID, a.ContractID, a.Side, a.Size, *a.Price, *a.SecondPrice)
		return err
	case domain.ActionAdjustTrailingStop:
		if a.Price == nil {
			return fmt.Errorf("adjust_trailing_stop automation missing price")
		}
		if a.OrderID != "" {
			if err := e.client.CancelOrder(ctx, a.AccountID, a.OrderID); err != nil {
				e.logger.Warn("failed to cancel prior trailing stop", zap.Error(err))
			}
		}
		_, err := e.client.PlaceStopOrder(ctx, a.AccountID, a.ContractID, a.Side, a.Size, *a.Price)
		return err
	default:
		e.logger.Warn("unhandled automation action", zap.String("action", string(a.Action)))
		return nil
	}
}
