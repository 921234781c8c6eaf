package usecase

import (
	"strconv"
	"sync"
	"time"

	"github.com/Shining-Code/TradingGPT-report/internal/domain"
)

// OrderBook owns every order record, any status, in creation order.
// Matching reads pending orders; the web layer places and cancels. All
// access is serialized on one mutex.
type OrderBook struct {
	mu     sync.RWMutex
	orders []*domain.Order
	nextID int64
}

func NewOrderBook() *OrderBook {
	return &OrderBook{
		nextID: time.Now().UnixMilli(),
	}
}

// Place validates the order, assigns an id and timestamp and stores it
// pending. The returned order is a copy safe to hand to callers.
func (b *OrderBook) Place(order domain.Order) (*domain.Order, error) {
	if order.Leverage == 0 {
		order.Leverage = 1
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	order.ID = strconv.FormatInt(b.nextID, 10)
	b.nextID++
	order.Status = domain.StatusPending
	order.CreatedAt = time.Now()

	stored := order
	b.orders = append(b.orders, &stored)

	out := stored
	return &out, nil
}

// Cancel marks the order cancelled if it exists and is not terminal.
// A missing id is a no-op, not an error.
func (b *OrderBook) Cancel(orderID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, o := range b.orders {
		if o.ID == orderID && !o.Terminal() {
			o.Status = domain.StatusCancelled
			return
		}
	}
}

// List returns copies of all orders in creation order.
func (b *OrderBook) List() []*domain.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*domain.Order, 0, len(b.orders))
	for _, o := range b.orders {
		c := *o
		out = append(out, &c)
	}
	return out
}

// PendingFor returns the pending orders for a symbol, first created first.
// Matching is first-come-first-match, not price priority.
func (b *OrderBook) PendingFor(symbol string) []*domain.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*domain.Order
	for _, o := range b.orders {
		if o.Symbol == symbol && o.Status == domain.StatusPending {
			c := *o
			out = append(out, &c)
		}
	}
	return out
}

// Clear drops every order record.
func (b *OrderBook) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orders = nil
}

// fill transitions a pending order to filled at the given price. Reported
// false when the order was already terminal.
func (b *OrderBook) fill(orderID string, price float64, at time.Time) (*domain.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, o := range b.orders {
		if o.ID != orderID {
			continue
		}
		if o.Status != domain.StatusPending {
			return nil, false
		}
		o.Status = domain.StatusFilled
		o.FillPrice = price
		o.FillTime = at
		c := *o
		return &c, true
	}
	return nil, false
}
