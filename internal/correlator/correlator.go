// Package correlator classifies which order closed a position — stop-loss,
// take-profit, or a manual/other order — by remembering recently-seen
// protective order ids and fills for a TTL window. Position-close events
// carry the entry price, not the exit, so the recorded fill is also where
// the exit price comes from.
package correlator

import (
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/kairos-trading/riskguard/internal/domain"
)

// Correlator tracks recently-placed protective orders so a later closing
// fill can be attributed to one of them.
type Correlator struct {
	ttl   time.Duration
	store *cache.Cache
}

// New creates a Correlator with the given TTL — long enough to outlive the
// gap between a protective order being placed and the fill event that
// closes the position.
func New(ttl time.Duration) *Correlator {
	return &Correlator{
		ttl:   ttl,
		store: cache.New(ttl, 2*ttl),
	}
}

// Observe records order as a candidate stop-loss/take-profit for its
// contract, keyed by order id, so a later Classify call can find it.
func (c *Correlator) Observe(order *domain.Order) {
	if order.Status != domain.OrderStatusWorking {
		return
	}
	kind := classifyOrderType(order)
	if kind == domain.FillTypeUnknown {
		return
	}
	c.store.Set(order.OrderID, kind, c.ttl)
}

func classifyOrderType(order *domain.Order) domain.FillType {
	switch {
	case order.Type.IsStopLoss() && order.HasStopPrice():
		return domain.FillTypeStopLoss
	case order.Type == domain.OrderTypeLimit:
		return domain.FillTypeTakeProfit
	default:
		return domain.FillTypeUnknown
	}
}

// Forget removes an order from consideration, e.g. when it is cancelled
// before ever filling.
func (c *Correlator) Forget(orderID string) {
	c.store.Delete(orderID)
}

// Classify reports which kind of order closed a position, given the order
// id of the closing fill. Orders never observed via Observe (or observed
// outside the TTL window) classify as FillTypeManual: an unattributable
// close counts as a manual close.
func (c *Correlator) Classify(closingOrderID string) domain.FillType {
	v, ok := c.store.Get(closingOrderID)
	if !ok {
		return domain.FillTypeManual
	}
	return v.(domain.FillType)
}

// Fill is the most recent fill recorded for a contract. Position-close
// events carry the average entry price, not the exit, so the Event Router
// recovers the exit price from here when booking realized P&L.
type Fill struct {
	Type       domain.FillType
	Price      decimal.Decimal
	Side       domain.Side
	OrderID    string
	RecordedAt time.Time
}

func fillKey(contractID string) string { return "fill|" + contractID }

// RecordFill remembers a just-filled order as the candidate closing fill
// for its contract. The fill price is the order's stop or limit price; a
// market fill with neither records a zero price and the caller falls back
// to the last quote.
func (c *Correlator) RecordFill(order *domain.Order, recordedAt time.Time) {
	f := &Fill{
		Type:       classifyOrderType(order),
		Side:       order.Side,
		OrderID:    order.OrderID,
		RecordedAt: recordedAt,
	}
	if f.Type == domain.FillTypeUnknown {
		f.Type = domain.FillTypeManual
	}
	switch {
	case order.StopPrice != nil:
		f.Price = *order.StopPrice
	case order.LimitPrice != nil:
		f.Price = *order.LimitPrice
	}
	c.store.Set(fillKey(order.ContractID), f, c.ttl)
}

// FillFor returns the most recent fill recorded for contractID within the
// TTL window, if any.
func (c *Correlator) FillFor(contractID string) (*Fill, bool) {
	v, ok := c.store.Get(fillKey(contractID))
	if !ok {
		return nil, false
	}
	return v.(*Fill), true
}
