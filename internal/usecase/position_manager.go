package usecase

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Shining-Code/TradingGPT-report/internal/domain"
	"go.uber.org/zap"
)

// DefaultMaintenanceMargin is the maintenance-margin rate used for the
// liquidation price when none is configured (0.5%).
const DefaultMaintenanceMargin = 0.005

// PositionManager owns the live positions, at most one per symbol. It
// aggregates fills into average price/quantity, tracks margin and the
// liquidation price, and on every tick refreshes unrealized PnL and checks
// liquidation and take-profit/stop-loss.
type PositionManager struct {
	publisher domain.EventPublisher
	history   domain.TradeRepository
	logger    *zap.Logger

	maintenanceMargin float64
	publishEvery      int // publish a routine PnL update every N ticks per symbol

	mu        sync.RWMutex
	positions map[string]*domain.Position
	tickCount map[string]int
}

func NewPositionManager(publisher domain.EventPublisher, history domain.TradeRepository, logger *zap.Logger) *PositionManager {
	return &PositionManager{
		publisher:         publisher,
		history:           history,
		logger:            logger,
		maintenanceMargin: DefaultMaintenanceMargin,
		publishEvery:      1,
		positions:         make(map[string]*domain.Position),
		tickCount:         make(map[string]int),
	}
}

// SetMaintenanceMargin overrides the maintenance-margin rate.
func (p *PositionManager) SetMaintenanceMargin(rate float64) {
	if rate > 0 {
		p.maintenanceMargin = rate
	}
}

// SetPublishEvery throttles routine PnL updates to once every n ticks per
// symbol. Liquidation and closure events are never throttled.
func (p *PositionManager) SetPublishEvery(n int) {
	if n >= 1 {
		p.publishEvery = n
	}
}

// ApplyFill folds a filled order into the position for its symbol, creating
// one when none is live. Risk parameters (leverage, TP, SL) follow the most
// recent fill.
func (p *PositionManager) ApplyFill(ctx context.Context, order *domain.Order) error {
	if order.Quantity <= 0 {
		return fmt.Errorf("apply fill %s: %w", order.ID, domain.ErrInvalidQuantity)
	}
	if order.Leverage < 1 {
		return fmt.Errorf("apply fill %s: %w", order.ID, domain.ErrInvalidLeverage)
	}

	fillQty := order.Quantity * float64(order.Leverage)
	if order.Side == domain.SideSell {
		fillQty = -fillQty
	}

	p.mu.Lock()
	pos, ok := p.positions[order.Symbol]
	if !ok {
		pos = &domain.Position{Symbol: order.Symbol}
		p.positions[order.Symbol] = pos
	}

	if pos.Quantity == 0 {
		pos.Quantity = fillQty
		pos.AvgPrice = order.FillPrice
	} else {
		newQty := pos.Quantity + fillQty
		if newQty == 0 {
			// Exact flat: the symbol leaves the live set.
			delete(p.positions, order.Symbol)
			delete(p.tickCount, order.Symbol)
			p.mu.Unlock()
			p.publisher.Publish(domain.TopicPositionUpdate, domain.Position{Symbol: order.Symbol})
			p.recordFill(ctx, order)
			return nil
		}
		// Weighted average over magnitudes, so shorts keep a positive price.
		pos.AvgPrice = (pos.AvgPrice*math.Abs(pos.Quantity) + order.FillPrice*math.Abs(fillQty)) / math.Abs(newQty)
		pos.Quantity = newQty
	}

	pos.Leverage = order.Leverage
	pos.TakeProfit = order.TakeProfit
	pos.StopLoss = order.StopLoss

	pos.Margin = pos.AvgPrice * math.Abs(pos.Quantity) / float64(pos.Leverage)
	if pos.Leverage > 1 {
		if pos.Quantity > 0 {
			pos.LiquidationPrice = pos.AvgPrice * (1 - 1/float64(pos.Leverage) + p.maintenanceMargin)
		} else {
			pos.LiquidationPrice = pos.AvgPrice * (1 + 1/float64(pos.Leverage) + p.maintenanceMargin)
		}
	} else {
		pos.LiquidationPrice = 0
	}

	snapshot := *pos
	p.mu.Unlock()

	p.logger.Info("position updated",
		zap.String("symbol", snapshot.Symbol),
		zap.Float64("quantity", snapshot.Quantity),
		zap.Float64("avgPrice", snapshot.AvgPrice),
		zap.Int("leverage", snapshot.Leverage),
		zap.Float64("liquidationPrice", snapshot.LiquidationPrice))

	p.publisher.Publish(domain.TopicPositionUpdate, snapshot)
	p.recordFill(ctx, order)
	return nil
}

// OnTick refreshes the live position on the tick's symbol: PnL first, then
// liquidation, then take-profit/stop-loss, then a (possibly throttled)
// position-update event when nothing fired.
func (p *PositionManager) OnTick(ctx context.Context, tick domain.PriceTick) {
	p.mu.Lock()
	pos, ok := p.positions[tick.Symbol]
	if !ok || pos.Quantity == 0 {
		p.mu.Unlock()
		return
	}

	pos.UnrealizedPnL = (tick.Close - pos.AvgPrice) * pos.Quantity

	if reason, closed := p.evaluateClose(pos, tick.Close); closed {
		closure := &domain.PositionClosure{
			Symbol:      pos.Symbol,
			Quantity:    pos.Quantity,
			AvgPrice:    pos.AvgPrice,
			ExitPrice:   tick.Close,
			RealizedPnL: pos.UnrealizedPnL,
			Leverage:    pos.Leverage,
			Reason:      reason,
			ClosedAt:    time.Now(),
		}
		delete(p.positions, tick.Symbol)
		delete(p.tickCount, tick.Symbol)
		p.mu.Unlock()

		p.closePosition(ctx, closure)
		return
	}

	p.tickCount[tick.Symbol]++
	publish := p.tickCount[tick.Symbol]%p.publishEvery == 0
	snapshot := *pos
	p.mu.Unlock()

	if publish {
		p.publisher.Publish(domain.TopicPositionUpdate, snapshot)
	}
}

// evaluateClose decides, under p.mu, whether the position must leave the
// live set at the given price. Liquidation takes precedence over TP/SL.
func (p *PositionManager) evaluateClose(pos *domain.Position, close float64) (domain.CloseReason, bool) {
	long := pos.Quantity > 0

	if pos.LiquidationPrice > 0 {
		if long && close <= pos.LiquidationPrice {
			return domain.CloseLiquidation, true
		}
		if !long && close >= pos.LiquidationPrice {
			return domain.CloseLiquidation, true
		}
	}

	if long {
		if pos.TakeProfit > 0 && close >= pos.TakeProfit {
			return domain.CloseTakeProfit, true
		}
		if pos.StopLoss > 0 && close <= pos.StopLoss {
			return domain.CloseStopLoss, true
		}
	} else {
		if pos.TakeProfit > 0 && close <= pos.TakeProfit {
			return domain.CloseTakeProfit, true
		}
		if pos.StopLoss > 0 && close >= pos.StopLoss {
			return domain.CloseStopLoss, true
		}
	}
	return "", false
}

func (p *PositionManager) closePosition(ctx context.Context, closure *domain.PositionClosure) {
	topic := domain.TopicTakeProfitStop
	if closure.Reason == domain.CloseLiquidation {
		topic = domain.TopicLiquidation
		p.logger.Warn("position liquidated",
			zap.String("symbol", closure.Symbol),
			zap.Float64("quantity", closure.Quantity),
			zap.Float64("exitPrice", closure.ExitPrice),
			zap.Float64("loss", closure.RealizedPnL))
	} else {
		p.logger.Info("position closed",
			zap.String("symbol", closure.Symbol),
			zap.String("reason", string(closure.Reason)),
			zap.Float64("pnl", closure.RealizedPnL))
	}

	p.publisher.Publish(topic, *closure)

	if p.history != nil {
		if err := p.history.SaveClosure(ctx, closure); err != nil {
			p.logger.Error("failed to record closure", zap.Error(err))
		}
	}
}

func (p *PositionManager) recordFill(ctx context.Context, order *domain.Order) {
	if p.history == nil {
		return
	}
	if err := p.history.SaveFill(ctx, order); err != nil {
		p.logger.Error("failed to record fill", zap.Error(err))
	}
}

// List returns copies of all live positions.
func (p *PositionManager) List() []*domain.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*domain.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		c := *pos
		out = append(out, &c)
	}
	return out
}

// Get returns a copy of the live position for the symbol, if any.
func (p *PositionManager) Get(symbol string) (*domain.Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.positions[symbol]
	if !ok {
		return nil, false
	}
	c := *pos
	return &c, true
}
