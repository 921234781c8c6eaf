package domain

import "context"

// Event topics published on position state changes.
const (
	TopicPositionUpdate = "position-update"
	TopicLiquidation    = "liquidation"
	TopicTakeProfitStop = "take-profit-stop-loss"
)

// EventPublisher delivers position state-change notifications to an external
// sink. Publish is fire-and-forget: it must never block the caller, and a
// slow or unavailable sink degrades to dropped notifications.
type EventPublisher interface {
	Publish(topic string, payload interface{})
}

// TradeRepository defines storage operations for the execution history.
// Live orders and positions are never persisted; only fills and closures are.
type TradeRepository interface {
	SaveFill(ctx context.Context, order *Order) error
	ListFills(ctx context.Context, limit int) ([]*Order, error)

	SaveClosure(ctx context.Context, closure *PositionClosure) error
	ListClosures(ctx context.Context, limit int) ([]*PositionClosure, error)
}
