package domain

import "time"

// Position is the aggregate exposure on one symbol. Quantity is signed:
// positive is long, negative is short, and it already includes leverage
// (a fill for quantity q at leverage L moves the position by q*L).
type Position struct {
	Symbol           string  `json:"symbol"`
	Quantity         float64 `json:"quantity"`
	AvgPrice         float64 `json:"avgPrice"`
	UnrealizedPnL    float64 `json:"unrealizedPnL"`
	Leverage         int     `json:"leverage"`
	TakeProfit       float64 `json:"takeProfit,omitempty"`
	StopLoss         float64 `json:"stopLoss,omitempty"`
	LiquidationPrice float64 `json:"liquidationPrice"`
	Margin           float64 `json:"margin"`
}

// CloseReason labels why a position left the live set.
type CloseReason string

const (
	CloseLiquidation CloseReason = "liquidation"
	CloseTakeProfit  CloseReason = "take-profit"
	CloseStopLoss    CloseReason = "stop-loss"
)

// PositionClosure is the record of a position that was liquidated or closed
// by take-profit/stop-loss, kept for reporting.
type PositionClosure struct {
	ID          int64       `json:"id"`
	Symbol      string      `json:"symbol"`
	Quantity    float64     `json:"quantity"`
	AvgPrice    float64     `json:"avgPrice"`
	ExitPrice   float64     `json:"exitPrice"`
	RealizedPnL float64     `json:"realizedPnL"`
	Leverage    int         `json:"leverage"`
	Reason      CloseReason `json:"reason"`
	ClosedAt    time.Time   `json:"closedAt"`
}
