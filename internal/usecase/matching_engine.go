package usecase

import (
	"context"
	"time"

	"github.com/Shining-Code/TradingGPT-report/internal/domain"
	"go.uber.org/zap"
)

// MatchingEngine consumes price ticks, fills any pending order whose trigger
// is satisfied, and forwards fills to the PositionManager. Every fill is
// complete; there are no partial fills.
type MatchingEngine struct {
	book      *OrderBook
	positions *PositionManager
	logger    *zap.Logger
}

func NewMatchingEngine(book *OrderBook, positions *PositionManager, logger *zap.Logger) *MatchingEngine {
	return &MatchingEngine{
		book:      book,
		positions: positions,
		logger:    logger,
	}
}

// OnTick evaluates every pending order for the tick's symbol in creation
// order, then lets the PositionManager refresh the live position. A fault on
// one order never stops evaluation of the rest.
func (e *MatchingEngine) OnTick(ctx context.Context, tick domain.PriceTick) {
	for _, order := range e.book.PendingFor(tick.Symbol) {
		if !triggered(order, tick.Close) {
			continue
		}

		filled, ok := e.book.fill(order.ID, tick.Close, time.Now())
		if !ok {
			// Cancelled between snapshot and fill.
			continue
		}

		e.logger.Info("order filled",
			zap.String("id", filled.ID),
			zap.String("symbol", filled.Symbol),
			zap.String("side", string(filled.Side)),
			zap.Float64("quantity", filled.Quantity),
			zap.Float64("fillPrice", filled.FillPrice))

		if err := e.positions.ApplyFill(ctx, filled); err != nil {
			e.logger.Error("failed to apply fill",
				zap.String("id", filled.ID),
				zap.Error(err))
		}
	}

	e.positions.OnTick(ctx, tick)
}

// triggered applies the trigger rules in precedence order: market orders
// fire on the first tick they observe, limit orders on a favorable close,
// stop orders on a breakout through the stop price.
func triggered(order *domain.Order, close float64) bool {
	switch order.Kind {
	case domain.OrderMarket:
		return true
	case domain.OrderLimit:
		if order.Side == domain.SideBuy {
			return close <= order.Price
		}
		return close >= order.Price
	case domain.OrderStop:
		if order.Side == domain.SideBuy {
			return close >= order.StopPrice
		}
		return close <= order.StopPrice
	}
	return false
}
