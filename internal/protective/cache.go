// Package protective is the protective-order cache: a per-contract cache
// of active stop-loss/take-profit orders with a TTL, refreshed from the
// broker SDK when stale, so position events don't trigger an SDK
// order-query on every delivery.
package protective

import (
	"context"
	"time"

	cache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/kairos-trading/riskguard/internal/domain"
)

// Entry is the cached protective-order state for one contract.
type Entry struct {
	StopLoss   *domain.Order
	TakeProfit *domain.Order
	CachedAt   time.Time
}

// PositionsAPI is the subset of the broker SDK's orders API the cache
// refreshes from. Defined here (not in internal/broker) to keep this
// package's dependency surface minimal and mockable.
type PositionsAPI interface {
	GetOpenOrders(ctx context.Context, contractID string) ([]*domain.Order, error)
}

// Cache is the Protective-Order Cache.
type Cache struct {
	ttl    time.Duration
	store  *cache.Cache
	api    PositionsAPI
	logger *zap.Logger
}

// New creates a Cache with the given TTL (default 5s).
func New(ttl time.Duration, api PositionsAPI, logger *zap.Logger) *Cache {
	return &Cache{
		ttl:    ttl,
		store:  cache.New(ttl, 2*ttl),
		api:    api,
		logger: logger,
	}
}

// Get returns the cached entry for contractID, refreshing from the SDK if
// stale or absent.
func (c *Cache) Get(ctx context.Context, contractID string) (*Entry, error) {
	if v, ok := c.store.Get(contractID); ok {
		return v.(*Entry), nil
	}
	return c.refresh(ctx, contractID)
}

func (c *Cache) refresh(ctx context.Context, contractID string) (*Entry, error) {
	orders, err := c.api.GetOpenOrders(ctx, contractID)
	if err != nil {
		c.logger.Error("failed to refresh protective-order cache", zap.String("contract", contractID), zap.Error(err))
		return &Entry{CachedAt: time.Now()}, err
	}
	e := &Entry{CachedAt: time.Now()}
	for _, o := range orders {
		if o.Status != domain.OrderStatusWorking {
			continue
		}
		if o.Type.IsStopLoss() && o.HasStopPrice() {
			e.StopLoss = o
		} else if o.Type == domain.OrderTypeLimit {
			e.TakeProfit = o
		}
	}
	c.store.Set(contractID, e, c.ttl)
	return e, nil
}

// Invalidate drops the cached entry for contractID, forcing the next Get to
// refresh from the SDK.
func (c *Cache) Invalidate(contractID string) {
	c.store.Delete(contractID)
}

// UpdateFromOrderPlaced updates the cache from a just-observed ORDER_PLACED
// event without waiting for the next SDK refresh.
func (c *Cache) UpdateFromOrderPlaced(order *domain.Order) {
	v, ok := c.store.Get(order.ContractID)
	e, _ := v.(*Entry)
	if !ok || e == nil {
		e = &Entry{CachedAt: time.Now()}
	}
	if order.Type.IsStopLoss() && order.HasStopPrice() {
		e.StopLoss = order
	} else if order.Type == domain.OrderTypeLimit {
		e.TakeProfit = order
	}
	c.store.Set(order.ContractID, e, c.ttl)
}

// RemoveStopLoss clears the cached stop-loss order for a contract (the
// order was cancelled/filled/expired).
func (c *Cache) RemoveStopLoss(contractID string) {
	v, ok := c.store.Get(contractID)
	if !ok {
		return
	}
	e := v.(*Entry)
	e.StopLoss = nil
	c.store.Set(contractID, e, c.ttl)
}

// RemoveTakeProfit clears the cached take-profit order for a contract.
func (c *Cache) RemoveTakeProfit(contractID string) {
	v, ok := c.store.Get(contractID)
	if !ok {
		return
	}
	e := v.(*Entry)
	e.TakeProfit = nil
	c.store.Set(contractID, e, c.ttl)
}

// InvalidateForOrder invalidates whichever contract's cache entry
// references orderID, used when an order is modified/cancelled and we don't
// want to wait for TTL expiry to notice.
func (c *Cache) InvalidateForOrder(contractID, orderID string) {
	v, ok := c.store.Get(contractID)
	if !ok {
		return
	}
	e := v.(*Entry)
	if e.StopLoss != nil && e.StopLoss.OrderID == orderID {
		e.StopLoss = nil
	}
	if e.TakeProfit != nil && e.TakeProfit.OrderID == orderID {
		e.TakeProfit = nil
	}
	c.store.Set(contractID, e, c.ttl)
}
