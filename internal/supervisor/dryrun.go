package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kairos-trading/riskguard/internal/broker"
	"github.com/kairos-trading/riskguard/internal/domain"
)

// DryRunScenario is one scripted event to deliver, paced Delay after the
// previous one, for validating a rule-set change without a live SDK
// connection.
type DryRunScenario struct {
	Delay time.Duration
	Event *domain.RiskEvent
}

// RunDryRun delivers each scenario's event to the broker Simulator in
// order, sleeping Delay between them, so an operator can watch the real
// Rule Engine/Lockout Manager/Timer Wheel react to a synthetic sequence
// before pointing the process at a live account. It fails fast if the
// Supervisor was built with a real broker.Client instead of a Simulator —
// dry-run mode only makes sense against the in-memory fake.
func RunDryRun(ctx context.Context, s *Supervisor, scenarios []DryRunScenario) error {
	sim, ok := s.Broker.(*broker.Simulator)
	if !ok {
		return fmt.Errorf("dry-run mode requires a broker.Simulator, got %T", s.Broker)
	}

	for i, sc := range scenarios {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sc.Delay):
		}

		subject := subjectFor(sc.Event.Type)
		s.Logger.Info("dry-run: delivering event",
			zap.Int("index", i),
			zap.String("type", string(sc.Event.Type)),
			zap.String("subject", subject),
		)
		sim.DeliverEvent(subject, sc.Event)
	}
	return nil
}

func subjectFor(t domain.EventType) string {
	switch t {
	case domain.EventOrderPlaced, domain.EventOrderFilled, domain.EventOrderPartialFill,
		domain.EventOrderCancelled, domain.EventOrderRejected, domain.EventOrderModified, domain.EventOrderExpired:
		return broker.SubjectOrderEvents
	case domain.EventPositionOpened, domain.EventPositionUpdated, domain.EventPositionClosed:
		return broker.SubjectPositionEvents
	case domain.EventSDKConnected, domain.EventSDKDisconnected, domain.EventAuthFailed:
		return broker.SubjectAccountEvents
	default:
		return broker.SubjectMarketData
	}
}

// DefaultScript builds a short scripted scenario: connect, open a
// position, breach a configured loss limit, and watch the engine react.
// It is a starting point for an operator's own dry-run script, not a fixed
// test fixture.
func DefaultScript(accountID, contractID, symbol string) []DryRunScenario {
	now := time.Now()
	return []DryRunScenario{
		{Event: &domain.RiskEvent{
			Type: domain.EventPositionOpened, AccountID: accountID, ContractID: contractID, Symbol: symbol,
			Timestamp: now,
			Position: &domain.Position{
				AccountID: accountID, ContractID: contractID, SymbolRoot: symbol,
				Size: 2, AvgEntryPrice: decimal.NewFromInt(21000),
			},
		}},
		{Delay: 2 * time.Second, Event: &domain.RiskEvent{
			Type: domain.EventQuoteUpdated, AccountID: accountID, ContractID: contractID, Symbol: symbol,
			Timestamp: now.Add(2 * time.Second),
			Quote:     &domain.Quote{Symbol: symbol, Price: decimal.NewFromInt(20950)},
		}},
		{Delay: 2 * time.Second, Event: &domain.RiskEvent{
			Type: domain.EventPositionClosed, AccountID: accountID, ContractID: contractID, Symbol: symbol,
			Timestamp: now.Add(4 * time.Second),
			Position:  &domain.Position{AccountID: accountID, ContractID: contractID, SymbolRoot: symbol, Size: 0},
			Trade: &domain.Trade{
				TradeID: "DRYRUN-1", AccountID: accountID, ContractID: contractID,
				RealizedPnL: decimalPtr(decimal.NewFromInt(-1250)),
			},
		}},
	}
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal { return &d }
