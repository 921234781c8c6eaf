package domain

import (
	"errors"
	"time"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type OrderKind string

const (
	OrderMarket OrderKind = "market"
	OrderLimit  OrderKind = "limit"
	OrderStop   OrderKind = "stop"
)

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be positive")
	ErrInvalidLeverage = errors.New("leverage must be >= 1")
	ErrMissingLimit    = errors.New("limit order requires a limit price")
	ErrMissingStop     = errors.New("stop order requires a stop price")
	ErrInvalidSide     = errors.New("side must be buy or sell")
	ErrInvalidKind     = errors.New("type must be market, limit or stop")
)

// Order is a resting instruction to trade once the price satisfies its
// trigger. Terminal statuses (filled, cancelled) are immutable.
type Order struct {
	ID         string      `json:"id"`
	Symbol     string      `json:"symbol"`
	Side       Side        `json:"side"`
	Kind       OrderKind   `json:"type"`
	Quantity   float64     `json:"quantity"`
	Price      float64     `json:"price,omitempty"`     // limit price
	StopPrice  float64     `json:"stopPrice,omitempty"` // stop trigger price
	Leverage   int         `json:"leverage"`
	TakeProfit float64     `json:"takeProfit,omitempty"`
	StopLoss   float64     `json:"stopLoss,omitempty"`
	Status     OrderStatus `json:"status"`
	FillPrice  float64     `json:"fillPrice,omitempty"`
	FillTime   time.Time   `json:"fillTime"`
	CreatedAt  time.Time   `json:"timestamp"`
}

// Validate enforces the field invariants for a newly placed order.
func (o *Order) Validate() error {
	switch o.Side {
	case SideBuy, SideSell:
	default:
		return ErrInvalidSide
	}
	switch o.Kind {
	case OrderMarket, OrderLimit, OrderStop:
	default:
		return ErrInvalidKind
	}
	if o.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if o.Leverage < 1 {
		return ErrInvalidLeverage
	}
	if o.Kind == OrderLimit && o.Price <= 0 {
		return ErrMissingLimit
	}
	if o.Kind == OrderStop && o.StopPrice <= 0 {
		return ErrMissingStop
	}
	return nil
}

// Terminal reports whether the order can never change state again.
func (o *Order) Terminal() bool {
	return o.Status == StatusFilled || o.Status == StatusCancelled
}
