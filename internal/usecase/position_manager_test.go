package usecase_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"go.uber.org/zap"

	"github.com/Shining-Code/TradingGPT-report/internal/domain"
	"github.com/Shining-Code/TradingGPT-report/internal/usecase"
)

func newTestPositions() (*usecase.PositionManager, *MockPublisher, *MockTradeRepo) {
	pub := &MockPublisher{}
	repo := &MockTradeRepo{}
	return usecase.NewPositionManager(pub, repo, zap.NewNop()), pub, repo
}

func fill(symbol string, side domain.Side, qty, price float64, leverage int) *domain.Order {
	return &domain.Order{
		ID:        "test",
		Symbol:    symbol,
		Side:      side,
		Kind:      domain.OrderMarket,
		Quantity:  qty,
		Leverage:  leverage,
		Status:    domain.StatusFilled,
		FillPrice: price,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestPositionManager_WeightedAverage(t *testing.T) {
	pm, _, _ := newTestPositions()
	ctx := context.Background()

	if err := pm.ApplyFill(ctx, fill("BTCUSDT", domain.SideBuy, 1, 100, 1)); err != nil {
		t.Fatalf("ApplyFill failed: %v", err)
	}
	if err := pm.ApplyFill(ctx, fill("BTCUSDT", domain.SideBuy, 1, 110, 1)); err != nil {
		t.Fatalf("ApplyFill failed: %v", err)
	}

	pos, ok := pm.Get("BTCUSDT")
	if !ok {
		t.Fatal("Expected a live position")
	}
	if !almostEqual(pos.AvgPrice, 105) {
		t.Errorf("Expected average price 105, got %f", pos.AvgPrice)
	}
	if pos.Quantity != 2 {
		t.Errorf("Expected quantity 2, got %f", pos.Quantity)
	}
}

func TestPositionManager_LeverageScalesQuantityAndMargin(t *testing.T) {
	pm, _, _ := newTestPositions()
	ctx := context.Background()

	if err := pm.ApplyFill(ctx, fill("BTCUSDT", domain.SideSell, 2, 100, 5)); err != nil {
		t.Fatalf("ApplyFill failed: %v", err)
	}

	pos, _ := pm.Get("BTCUSDT")
	if pos.Quantity != -10 {
		t.Errorf("Expected signed quantity -10 (2 x 5 short), got %f", pos.Quantity)
	}
	// margin = avgPrice * |quantity| / leverage = 100 * 10 / 5
	if !almostEqual(pos.Margin, 200) {
		t.Errorf("Expected margin 200, got %f", pos.Margin)
	}
}

func TestPositionManager_LiquidationPrice(t *testing.T) {
	pm, pub, _ := newTestPositions()
	ctx := context.Background()

	if err := pm.ApplyFill(ctx, fill("BTCUSDT", domain.SideBuy, 1, 100, 10)); err != nil {
		t.Fatalf("ApplyFill failed: %v", err)
	}

	pos, _ := pm.Get("BTCUSDT")
	// 100 * (1 - 0.1 + 0.005) = 90.5
	if !almostEqual(pos.LiquidationPrice, 90.5) {
		t.Fatalf("Expected liquidation price 90.5, got %f", pos.LiquidationPrice)
	}

	// close=91: above the liquidation price, position survives
	pm.OnTick(ctx, tick("BTCUSDT", 91))
	if _, ok := pm.Get("BTCUSDT"); !ok {
		t.Fatal("Position must survive above the liquidation price")
	}

	// close=90: liquidated, removed from the live set
	pm.OnTick(ctx, tick("BTCUSDT", 90))
	if _, ok := pm.Get("BTCUSDT"); ok {
		t.Fatal("Position must be removed on liquidation")
	}
	if len(pm.List()) != 0 {
		t.Error("Liquidated position still listed")
	}

	events := pub.ByTopic(domain.TopicLiquidation)
	if len(events) != 1 {
		t.Fatalf("Expected 1 liquidation event, got %d", len(events))
	}
	closure := events[0].Payload.(domain.PositionClosure)
	if closure.Symbol != "BTCUSDT" || closure.Quantity != 10 {
		t.Errorf("Liquidation snapshot wrong: %+v", closure)
	}
	if !almostEqual(closure.RealizedPnL, (90-100.0)*10) {
		t.Errorf("Expected realized loss -100, got %f", closure.RealizedPnL)
	}
}

func TestPositionManager_ShortTakeProfit(t *testing.T) {
	pm, pub, _ := newTestPositions()
	ctx := context.Background()

	order := fill("BTCUSDT", domain.SideSell, 1, 100, 1)
	order.TakeProfit = 95
	if err := pm.ApplyFill(ctx, order); err != nil {
		t.Fatalf("ApplyFill failed: %v", err)
	}

	// close=100: TP for a short never fires above the threshold
	pm.OnTick(ctx, tick("BTCUSDT", 100))
	if _, ok := pm.Get("BTCUSDT"); !ok {
		t.Fatal("Short must stay open at close=100 with TP=95")
	}

	// close=95: TP fires
	pm.OnTick(ctx, tick("BTCUSDT", 95))
	if _, ok := pm.Get("BTCUSDT"); ok {
		t.Fatal("Short must close at close<=takeProfit")
	}

	events := pub.ByTopic(domain.TopicTakeProfitStop)
	if len(events) != 1 {
		t.Fatalf("Expected 1 closure event, got %d", len(events))
	}
	closure := events[0].Payload.(domain.PositionClosure)
	if closure.Reason != domain.CloseTakeProfit {
		t.Errorf("Expected take-profit reason, got %s", closure.Reason)
	}
	if !almostEqual(closure.RealizedPnL, (95-100.0)*-1) {
		t.Errorf("Expected realized PnL 5, got %f", closure.RealizedPnL)
	}
}

func TestPositionManager_LongStopLoss(t *testing.T) {
	pm, pub, _ := newTestPositions()
	ctx := context.Background()

	order := fill("BTCUSDT", domain.SideBuy, 1, 100, 1)
	order.StopLoss = 97
	if err := pm.ApplyFill(ctx, order); err != nil {
		t.Fatalf("ApplyFill failed: %v", err)
	}

	pm.OnTick(ctx, tick("BTCUSDT", 98))
	if _, ok := pm.Get("BTCUSDT"); !ok {
		t.Fatal("Long must stay open above its stop loss")
	}

	pm.OnTick(ctx, tick("BTCUSDT", 96.5))
	if _, ok := pm.Get("BTCUSDT"); ok {
		t.Fatal("Long must close at close<=stopLoss")
	}

	events := pub.ByTopic(domain.TopicTakeProfitStop)
	if len(events) != 1 || events[0].Payload.(domain.PositionClosure).Reason != domain.CloseStopLoss {
		t.Error("Expected one stop-loss closure event")
	}
}

func TestPositionManager_AbsentThresholdsNeverTrigger(t *testing.T) {
	pm, _, _ := newTestPositions()
	ctx := context.Background()

	if err := pm.ApplyFill(ctx, fill("BTCUSDT", domain.SideBuy, 1, 100, 1)); err != nil {
		t.Fatalf("ApplyFill failed: %v", err)
	}

	for _, price := range []float64{1, 50, 100, 10000} {
		pm.OnTick(ctx, tick("BTCUSDT", price))
	}
	if _, ok := pm.Get("BTCUSDT"); !ok {
		t.Error("Position without TP/SL/leverage must never auto-close")
	}
}

func TestPositionManager_RejectsInvalidFills(t *testing.T) {
	pm, _, _ := newTestPositions()
	ctx := context.Background()

	if err := pm.ApplyFill(ctx, fill("BTCUSDT", domain.SideBuy, 0, 100, 1)); !errors.Is(err, domain.ErrInvalidQuantity) {
		t.Errorf("Expected ErrInvalidQuantity, got %v", err)
	}
	if err := pm.ApplyFill(ctx, fill("BTCUSDT", domain.SideBuy, 1, 100, 0)); !errors.Is(err, domain.ErrInvalidLeverage) {
		t.Errorf("Expected ErrInvalidLeverage, got %v", err)
	}
	if len(pm.List()) != 0 {
		t.Error("Rejected fills must not mutate state")
	}
}

func TestPositionManager_FreshPositionAfterClose(t *testing.T) {
	pm, _, _ := newTestPositions()
	ctx := context.Background()

	order := fill("BTCUSDT", domain.SideBuy, 1, 100, 1)
	order.TakeProfit = 110
	pm.ApplyFill(ctx, order)
	pm.OnTick(ctx, tick("BTCUSDT", 111))

	if _, ok := pm.Get("BTCUSDT"); ok {
		t.Fatal("Expected position closed by take profit")
	}

	// A later fill starts from scratch, no residual PnL/margin.
	pm.ApplyFill(ctx, fill("BTCUSDT", domain.SideBuy, 2, 200, 1))
	pos, ok := pm.Get("BTCUSDT")
	if !ok {
		t.Fatal("Expected a fresh position")
	}
	if pos.Quantity != 2 || !almostEqual(pos.AvgPrice, 200) {
		t.Errorf("Fresh position carries residue: %+v", pos)
	}
	if pos.UnrealizedPnL != 0 {
		t.Errorf("Fresh position must start with zero PnL, got %f", pos.UnrealizedPnL)
	}
	if pos.TakeProfit != 0 {
		t.Errorf("Fresh position must not inherit old TP, got %f", pos.TakeProfit)
	}
}

func TestPositionManager_UnrealizedPnL(t *testing.T) {
	pm, pub, _ := newTestPositions()
	ctx := context.Background()

	pm.ApplyFill(ctx, fill("BTCUSDT", domain.SideBuy, 2, 100, 1))
	pm.OnTick(ctx, tick("BTCUSDT", 107))

	updates := pub.ByTopic(domain.TopicPositionUpdate)
	if len(updates) < 2 {
		t.Fatalf("Expected fill update plus tick update, got %d", len(updates))
	}
	last := updates[len(updates)-1].Payload.(domain.Position)
	if !almostEqual(last.UnrealizedPnL, 14) {
		t.Errorf("Expected PnL (107-100)*2 = 14, got %f", last.UnrealizedPnL)
	}
}

func TestPositionManager_PublishThrottling(t *testing.T) {
	pm, pub, _ := newTestPositions()
	pm.SetPublishEvery(3)
	ctx := context.Background()

	pm.ApplyFill(ctx, fill("BTCUSDT", domain.SideBuy, 1, 100, 1))
	fillUpdates := len(pub.ByTopic(domain.TopicPositionUpdate))

	for i := 0; i < 9; i++ {
		pm.OnTick(ctx, tick("BTCUSDT", 101))
	}

	tickUpdates := len(pub.ByTopic(domain.TopicPositionUpdate)) - fillUpdates
	if tickUpdates != 3 {
		t.Errorf("Expected 3 throttled updates over 9 ticks, got %d", tickUpdates)
	}
}

func TestPositionManager_ClosureRecordedInHistory(t *testing.T) {
	pm, _, repo := newTestPositions()
	ctx := context.Background()

	order := fill("BTCUSDT", domain.SideBuy, 1, 100, 10)
	pm.ApplyFill(ctx, order)
	pm.OnTick(ctx, tick("BTCUSDT", 80))

	if len(repo.Fills) != 1 {
		t.Errorf("Expected 1 recorded fill, got %d", len(repo.Fills))
	}
	if len(repo.Closures) != 1 {
		t.Fatalf("Expected 1 recorded closure, got %d", len(repo.Closures))
	}
	if repo.Closures[0].Reason != domain.CloseLiquidation {
		t.Errorf("Expected liquidation closure, got %s", repo.Closures[0].Reason)
	}
}

func TestPositionManager_OppositeFillFlattens(t *testing.T) {
	pm, _, _ := newTestPositions()
	ctx := context.Background()

	pm.ApplyFill(ctx, fill("BTCUSDT", domain.SideBuy, 1, 100, 1))
	pm.ApplyFill(ctx, fill("BTCUSDT", domain.SideSell, 1, 110, 1))

	if _, ok := pm.Get("BTCUSDT"); ok {
		t.Error("Exactly offsetting fills must flatten the position")
	}
}
