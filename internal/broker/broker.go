// Package broker defines the Go contract this system consumes from the
// broker SDK and ships one concrete implementation, an in-memory
// simulator, for dry-run mode and tests. A production build supplies its
// own Client wired to the real TopstepX/ProjectX SDK; nothing else in this
// module depends on that concrete type, only on the interfaces below.
package broker

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kairos-trading/riskguard/internal/domain"
)

// Subject names the broker SDK publishes raw events under. The Runtime
// Supervisor subscribes the Event Router to each of these; the dry-run
// generator delivers scripted events on the same subjects through
// Simulator.DeliverEvent.
const (
	SubjectOrderEvents    = "order_events"
	SubjectPositionEvents = "position_events"
	SubjectAccountEvents  = "account_events"
	SubjectMarketData     = "market_data_events"
)

// AccountInfo mirrors client.account_info from the broker SDK.
type AccountInfo struct {
	ID       string
	Name     string
	Balance  decimal.Decimal
	CanTrade bool
}

// EventSubscriber is the broker SDK's event bus: the source of the
// ORDER_*/POSITION_*/SDK_*/AUTH_FAILED events the Event Router consumes.
type EventSubscriber interface {
	// Subscribe registers handler for subject and returns an unsubscribe
	// func. Delivery order within one subject is preserved; delivery across
	// subjects is not ordered relative to each other.
	Subscribe(ctx context.Context, subject string, handler func(*domain.RiskEvent)) (unsubscribe func(), err error)
}

// PositionsAPI is `client.positions`.
type PositionsAPI interface {
	GetAllPositions(ctx context.Context, accountID string) ([]*domain.Position, error)
	GetOpenOrders(ctx context.Context, contractID string) ([]*domain.Order, error)
	ClosePosition(ctx context.Context, accountID, contractID string) error
	CloseAllPositions(ctx context.Context, accountID string) error
}

// OrdersAPI is `client.orders`.
type OrdersAPI interface {
	PlaceLimitOrder(ctx context.Context, accountID, contractID string, side domain.Side, size int64, price decimal.Decimal) (*domain.Order, error)
	PlaceStopOrder(ctx context.Context, accountID, contractID string, side domain.Side, size int64, stopPrice decimal.Decimal) (*domain.Order, error)
	PlaceBracketOrder(ctx context.Context, accountID, contractID string, side domain.Side, size int64, stopPrice, targetPrice decimal.Decimal) (*domain.Order, *domain.Order, error)
	CancelOrder(ctx context.Context, accountID, orderID string) error
}

// MarketDataAPI is `client.instrument`.
type MarketDataAPI interface {
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Client is the full broker SDK surface this system consumes.
type Client interface {
	EventSubscriber
	PositionsAPI
	OrdersAPI
	MarketDataAPI

	AccountInfo(ctx context.Context, accountID string) (*AccountInfo, error)
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
}

// connState is one account's open positions/orders as tracked by the
// simulator, not a broker concept.
type connState struct {
	positions map[string][]*domain.Position // contract_id -> positions (slice for uniformity, 0 or 1 entry)
	orders    map[string]*domain.Order       // order_id -> order
}

// Simulator is an in-memory Client used for dry-run mode and tests: it
// has no network dependency, emits events only when told to by
// DeliverEvent, and records every call for assertion.
type Simulator struct {
	connected bool
	accounts  map[string]*AccountInfo
	state     map[string]*connState // account_id -> state
	prices    map[string]decimal.Decimal

	subscribers map[string][]func(*domain.RiskEvent)

	orderSeq int
}

// NewSimulator creates a Simulator seeded with the given accounts.
func NewSimulator(accounts []*AccountInfo) *Simulator {
	s := &Simulator{
		accounts:    make(map[string]*AccountInfo),
		state:       make(map[string]*connState),
		prices:      make(map[string]decimal.Decimal),
		subscribers: make(map[string][]func(*domain.RiskEvent)),
	}
	for _, a := range accounts {
		s.accounts[a.ID] = a
		s.state[a.ID] = &connState{
			positions: make(map[string][]*domain.Position),
			orders:    make(map[string]*domain.Order),
		}
	}
	return s
}

func (s *Simulator) Connect(ctx context.Context) error {
	s.connected = true
	return nil
}

func (s *Simulator) Disconnect(ctx context.Context) error {
	s.connected = false
	return nil
}

func (s *Simulator) IsConnected() bool {
	return s.connected
}

func (s *Simulator) AccountInfo(ctx context.Context, accountID string) (*AccountInfo, error) {
	a, ok := s.accounts[accountID]
	if !ok {
		return nil, &unknownAccountError{accountID}
	}
	return a, nil
}

// Subscribe registers handler for subject. The Simulator fans events out to
// subscribers synchronously when DeliverEvent is called by a test or the
// dry-run generator.
func (s *Simulator) Subscribe(ctx context.Context, subject string, handler func(*domain.RiskEvent)) (func(), error) {
	s.subscribers[subject] = append(s.subscribers[subject], handler)
	idx := len(s.subscribers[subject]) - 1
	return func() {
		s.subscribers[subject][idx] = nil
	}, nil
}

// DeliverEvent synchronously invokes every live subscriber of subject with
// event, used by tests and internal/supervisor's dry-run generator to drive
// the pipeline without a live SDK connection.
func (s *Simulator) DeliverEvent(subject string, event *domain.RiskEvent) {
	for _, h := range s.subscribers[subject] {
		if h != nil {
			h(event)
		}
	}
}

func (s *Simulator) GetAllPositions(ctx context.Context, accountID string) ([]*domain.Position, error) {
	st, ok := s.state[accountID]
	if !ok {
		return nil, &unknownAccountError{accountID}
	}
	var out []*domain.Position
	for _, ps := range st.positions {
		out = append(out, ps...)
	}
	return out, nil
}

func (s *Simulator) GetOpenOrders(ctx context.Context, contractID string) ([]*domain.Order, error) {
	var out []*domain.Order
	for _, st := range s.state {
		for _, o := range st.orders {
			if o.ContractID == contractID && o.Status == domain.OrderStatusWorking {
				out = append(out, o)
			}
		}
	}
	return out, nil
}

func (s *Simulator) ClosePosition(ctx context.Context, accountID, contractID string) error {
	st, ok := s.state[accountID]
	if !ok {
		return &unknownAccountError{accountID}
	}
	delete(st.positions, contractID)
	return nil
}

func (s *Simulator) CloseAllPositions(ctx context.Context, accountID string) error {
	st, ok := s.state[accountID]
	if !ok {
		return &unknownAccountError{accountID}
	}
	st.positions = make(map[string][]*domain.Position)
	return nil
}

func (s *Simulator) nextOrderID() string {
	s.orderSeq++
	return "SIM-ORD-" + strconv.Itoa(s.orderSeq)
}

func (s *Simulator) PlaceLimitOrder(ctx context.Context, accountID, contractID string, side domain.Side, size int64, price decimal.Decimal) (*domain.Order, error) {
	return s.placeOrder(accountID, contractID, domain.OrderTypeLimit, side, size, nil, &price)
}

func (s *Simulator) PlaceStopOrder(ctx context.Context, accountID, contractID string, side domain.Side, size int64, stopPrice decimal.Decimal) (*domain.Order, error) {
	return s.placeOrder(accountID, contractID, domain.OrderTypeStop, side, size, &stopPrice, nil)
}

func (s *Simulator) PlaceBracketOrder(ctx context.Context, accountID, contractID string, side domain.Side, size int64, stopPrice, targetPrice decimal.Decimal) (*domain.Order, *domain.Order, error) {
	stop, err := s.placeOrder(accountID, contractID, domain.OrderTypeStop, side, size, &stopPrice, nil)
	if err != nil {
		return nil, nil, err
	}
	target, err := s.placeOrder(accountID, contractID, domain.OrderTypeLimit, side, size, nil, &targetPrice)
	if err != nil {
		return nil, nil, err
	}
	return stop, target, nil
}

func (s *Simulator) placeOrder(accountID, contractID string, typ domain.OrderType, side domain.Side, size int64, stopPrice, limitPrice *decimal.Decimal) (*domain.Order, error) {
	st, ok := s.state[accountID]
	if !ok {
		return nil, &unknownAccountError{accountID}
	}
	o := &domain.Order{
		OrderID:    s.nextOrderID(),
		ContractID: contractID,
		AccountID:  accountID,
		Type:       typ,
		Side:       side,
		Size:       size,
		StopPrice:  stopPrice,
		LimitPrice: limitPrice,
		Status:     domain.OrderStatusWorking,
		PlacedAt:   time.Now(),
	}
	st.orders[o.OrderID] = o
	return o, nil
}

func (s *Simulator) CancelOrder(ctx context.Context, accountID, orderID string) error {
	st, ok := s.state[accountID]
	if !ok {
		return &unknownAccountError{accountID}
	}
	if o, ok := st.orders[orderID]; ok {
		o.Status = domain.OrderStatusCancelled
	}
	return nil
}

func (s *Simulator) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	p, ok := s.prices[symbol]
	if !ok {
		return decimal.Zero, &unknownSymbolError{symbol}
	}
	return p, nil
}

// SetLastPrice seeds the simulated last price for symbol, used by tests and
// the dry-run generator.
func (s *Simulator) SetLastPrice(symbol string, price decimal.Decimal) {
	s.prices[symbol] = price
}

type unknownAccountError struct{ accountID string }

func (e *unknownAccountError) Error() string { return "broker: unknown account " + e.accountID }

type unknownSymbolError struct{ symbol string }

func (e *unknownSymbolError) Error() string { return "broker: unknown symbol " + e.symbol }
