// Package router is the event router: it ingests raw broker-SDK events,
// deduplicates them, enriches them with symbol/P&L/protective-order
// context, maintains the live position map, and republishes a canonical
// RiskEvent on the internal Event Bus.
package router

import (
	"context"
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/segmentio/ksuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kairos-trading/riskguard/internal/correlator"
	"github.com/kairos-trading/riskguard/internal/domain"
	"github.com/kairos-trading/riskguard/internal/eventbus"
	"github.com/kairos-trading/riskguard/internal/pnl"
	"github.com/kairos-trading/riskguard/internal/protective"
)

// Store is the subset of store.Store the Router needs to persist realized
// fills.
type Store interface {
	AddTrade(ctx context.Context, t *domain.Trade) error
}

// SymbolResolver maps a contract id to its symbol root (e.g.
// "CON.F.US.MES.Z25" -> "MES"), loaded from general.instruments at startup.
type SymbolResolver func(contractID string) (symbol string, ok bool)

// Router is the Event Router.
type Router struct {
	dedup      *cache.Cache
	protective *protective.Cache
	correlator *correlator.Correlator
	unrealized *pnl.UnrealizedCalculator
	pnlTracker *pnl.Tracker
	store      Store
	bus        *eventbus.Bus
	symbolFor  SymbolResolver
	logger     *zap.Logger

	mu        sync.RWMutex
	positions map[string]*domain.Position // contract_id -> position

	dedupStats func(hit bool) // optional metrics hook
}

// SetDedupStats installs a callback invoked once per ingested event with
// whether the dedup cache discarded it, feeding the Supervisor's
// dedup-hit-rate metrics.
func (r *Router) SetDedupStats(fn func(hit bool)) { r.dedupStats = fn }

// New creates a Router. dedupTTL is the sliding-TTL dedup window, default
// 5 seconds.
func New(
	dedupTTL time.Duration,
	protectiveCache *protective.Cache,
	corr *correlator.Correlator,
	unrealized *pnl.UnrealizedCalculator,
	pnlTracker *pnl.Tracker,
	store Store,
	bus *eventbus.Bus,
	symbolFor SymbolResolver,
	logger *zap.Logger,
) *Router {
	return &Router{
		dedup:      cache.New(dedupTTL, 2*dedupTTL),
		protective: protectiveCache,
		correlator: corr,
		unrealized: unrealized,
		pnlTracker: pnlTracker,
		store:      store,
		bus:        bus,
		symbolFor:  symbolFor,
		logger:     logger,
		positions:  make(map[string]*domain.Position),
	}
}

func dedupKey(event *domain.RiskEvent) string {
	return string(event.Type) + "|" + event.EntityID
}

func isPositionEvent(t domain.EventType) bool {
	switch t {
	case domain.EventPositionOpened, domain.EventPositionUpdated, domain.EventPositionClosed:
		return true
	default:
		return false
	}
}

// Ingest runs one raw broker event through dedup, protective-cache
// refresh, enrichment, and publication.
func (r *Router) Ingest(ctx context.Context, event *domain.RiskEvent) error {
	// Step 2 happens before the dedup check settles so a silently placed
	// protective order is detected even on a duplicate delivery.
	if isPositionEvent(event.Type) && event.ContractID != "" {
		if _, err := r.protective.Get(ctx, event.ContractID); err != nil {
			r.logger.Warn("protective cache refresh failed", zap.String("contract", event.ContractID), zap.Error(err))
		}
	}
	if event.Type == domain.EventOrderPlaced && event.Order != nil {
		r.protective.UpdateFromOrderPlaced(event.Order)
		r.correlator.Observe(event.Order)
	}

	// Quote ticks carry no entity id; every one of them is new state.
	if event.EntityID != "" {
		key := dedupKey(event)
		if _, duplicate := r.dedup.Get(key); duplicate {
			if r.dedupStats != nil {
				r.dedupStats(true)
			}
			return nil
		}
		r.dedup.Set(key, struct{}{}, cache.DefaultExpiration)
		if r.dedupStats != nil {
			r.dedupStats(false)
		}
	}

	enriched, err := r.enrich(ctx, event)
	if err != nil {
		r.logger.Error("failed to enrich event", zap.String("event_type", string(event.Type)), zap.Error(err))
		return err
	}

	if err := r.bus.Publish(domain.SubjectBrokerEvents, enriched); err != nil {
		return err
	}

	switch enriched.Type {
	case domain.EventQuoteUpdated:
		r.publishPnLUpdates(enriched)
	case domain.EventOrderFilled, domain.EventOrderPartialFill:
		if enriched.Trade != nil {
			r.publishTradeExecuted(enriched)
		}
	}
	return nil
}

// publishPnLUpdates republishes a quote tick as one PNL_UPDATED event per
// open position on that symbol, so the per-position unrealized-loss and
// profit-target rules re-evaluate on every price move, not just on
// position events.
func (r *Router) publishPnLUpdates(quote *domain.RiskEvent) {
	if quote.Quote == nil {
		return
	}
	r.mu.RLock()
	var affected []*domain.Position
	for _, p := range r.positions {
		if p.SymbolRoot == quote.Quote.Symbol {
			affected = append(affected, p)
		}
	}
	r.mu.RUnlock()

	for _, p := range affected {
		if err := r.bus.Publish(domain.SubjectBrokerEvents, &domain.RiskEvent{
			Type:       domain.EventPnLUpdated,
			Source:     "event_router",
			Timestamp:  quote.Timestamp,
			AccountID:  p.AccountID,
			ContractID: p.ContractID,
			Symbol:     p.SymbolRoot,
			Position:   p,
			Quote:      quote.Quote,
		}); err != nil {
			r.logger.Error("failed to publish pnl update", zap.String("contract", p.ContractID), zap.Error(err))
		}
	}
}

// publishTradeExecuted republishes a fill as the canonical TRADE_EXECUTED
// event the realized-P&L and frequency rules trigger on.
func (r *Router) publishTradeExecuted(fill *domain.RiskEvent) {
	out := *fill
	out.Type = domain.EventTradeExecuted
	out.EntityID = "trade|" + fill.Trade.TradeID
	if err := r.bus.Publish(domain.SubjectBrokerEvents, &out); err != nil {
		r.logger.Error("failed to publish trade executed", zap.String("trade_id", fill.Trade.TradeID), zap.Error(err))
	}
}

func (r *Router) enrich(ctx context.Context, event *domain.RiskEvent) (*domain.RiskEvent, error) {
	out := *event
	out.Timestamp = time.Now()
	out.Source = "event_router"

	if out.Symbol == "" && out.ContractID != "" {
		if sym, ok := r.symbolFor(out.ContractID); ok {
			out.Symbol = sym
		}
	}

	switch out.Type {
	case domain.EventOrderCancelled, domain.EventOrderRejected, domain.EventOrderExpired:
		if out.Order != nil {
			r.protective.InvalidateForOrder(out.Order.ContractID, out.Order.OrderID)
			r.correlator.Forget(out.Order.OrderID)
		}
	case domain.EventOrderModified:
		if out.Order != nil {
			r.protective.Invalidate(out.Order.ContractID)
		}
	case domain.EventOrderFilled, domain.EventOrderPartialFill:
		if out.Order != nil {
			r.correlator.RecordFill(out.Order, out.Timestamp)
			r.protective.InvalidateForOrder(out.Order.ContractID, out.Order.OrderID)
		}
		r.bookTrade(ctx, out.AccountID, out.Trade)
	case domain.EventTradeExecuted:
		r.bookTrade(ctx, out.AccountID, out.Trade)
	case domain.EventQuoteUpdated:
		if out.Quote != nil {
			r.unrealized.UpdateQuote(out.Quote.Symbol, out.Quote.Price)
		}
	case domain.EventPositionOpened, domain.EventPositionUpdated:
		if out.Position != nil {
			r.setPosition(out.Position)
			r.unrealized.UpdatePosition(out.Position.ContractID, out.Position.SymbolRoot, out.Position.AvgEntryPrice, out.Position.Size)
		}
	case domain.EventPositionClosed:
		if out.Position != nil {
			if err := r.handleClose(ctx, &out); err != nil {
				return nil, err
			}
		}
	}

	return &out, nil
}

func (r *Router) setPosition(p *domain.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Size == 0 {
		delete(r.positions, p.ContractID)
		return
	}
	r.positions[p.ContractID] = p
}

// handleClose classifies the closing order via the correlator, recovers
// the exit price when the event carries no trade payload (position events
// only carry avg_entry_price), books the realized P&L, and removes the
// position from the live map.
func (r *Router) handleClose(ctx context.Context, out *domain.RiskEvent) error {
	p := out.Position

	fill, hasFill := r.correlator.FillFor(p.ContractID)
	fillType := domain.FillTypeManual
	switch {
	case hasFill:
		fillType = fill.Type
	case out.Order != nil:
		fillType = r.correlator.Classify(out.Order.OrderID)
	}

	if out.Trade == nil {
		out.Trade = r.synthesizeClosingTrade(out, fill)
	}

	r.mu.Lock()
	delete(r.positions, p.ContractID)
	r.mu.Unlock()
	r.unrealized.RemovePosition(p.ContractID)
	r.protective.Invalidate(p.ContractID)

	r.bookTrade(ctx, out.AccountID, out.Trade)

	r.logger.Info("position closed",
		zap.String("contract", p.ContractID),
		zap.String("account", out.AccountID),
		zap.String("fill_type", string(fillType)),
	)
	return nil
}

// synthesizeClosingTrade reconstructs the realized fill for a close event
// that arrived without one: exit price from the correlated fill (falling
// back to the last quote), size and side from the live position map, P&L
// from the tracked entry. Must run before the position is removed from the
// unrealized calculator.
func (r *Router) synthesizeClosingTrade(out *domain.RiskEvent, fill *correlator.Fill) *domain.Trade {
	p := out.Position
	t := &domain.Trade{
		TradeID:    ksuid.New().String(),
		AccountID:  out.AccountID,
		ContractID: p.ContractID,
		Symbol:     out.Symbol,
		Timestamp:  out.Timestamp,
	}

	if prev, ok := r.GetPosition(p.ContractID); ok {
		t.Quantity = absInt64(prev.Size)
		if prev.Size > 0 {
			t.Side = domain.SideSell
		} else if prev.Size < 0 {
			t.Side = domain.SideBuy
		}
	}

	exit, ok := r.exitPriceFor(out.Symbol, fill)
	if !ok {
		r.logger.Warn("no exit price available for closed position; realized pnl unknown",
			zap.String("contract", p.ContractID))
		return t
	}
	t.Price = exit
	if realized, ok := r.unrealized.CalculateRealizedPnL(p.ContractID, exit); ok {
		t.RealizedPnL = &realized
	}
	return t
}

func (r *Router) exitPriceFor(symbol string, fill *correlator.Fill) (decimal.Decimal, bool) {
	if fill != nil && !fill.Price.IsZero() {
		return fill.Price, true
	}
	return r.unrealized.GetLastPrice(symbol)
}

func absInt64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}

// bookTrade persists a trade and books its realized P&L exactly once per
// trade id, no matter how many event paths (fill, trade, close) carry it.
func (r *Router) bookTrade(ctx context.Context, accountID string, t *domain.Trade) {
	if t == nil {
		return
	}
	if t.TradeID != "" {
		key := "trade|" + t.TradeID
		if _, booked := r.dedup.Get(key); booked {
			return
		}
		r.dedup.Set(key, struct{}{}, cache.DefaultExpiration)
	}
	if err := r.store.AddTrade(ctx, t); err != nil {
		r.logger.Error("failed to persist trade", zap.String("trade_id", t.TradeID), zap.Error(err))
	}
	if t.RealizedPnL != nil {
		if _, err := r.pnlTracker.AddTradePnL(ctx, accountID, *t.RealizedPnL); err != nil {
			r.logger.Error("failed to book realized pnl", zap.String("account", accountID), zap.Error(err))
		}
	}
}

// GetPosition returns the live position for a contract, if any.
func (r *Router) GetPosition(contractID string) (*domain.Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.positions[contractID]
	return p, ok
}

// Positions returns a snapshot of every currently-open position.
func (r *Router) Positions() []*domain.Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.Position, 0, len(r.positions))
	for _, p := range r.positions {
		out = append(out, p)
	}
	return out
}
