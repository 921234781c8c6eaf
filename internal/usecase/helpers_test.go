package usecase_test

import (
	"context"
	"sync"

	"github.com/Shining-Code/TradingGPT-report/internal/domain"
)

// MockPublisher records every published event.
type MockPublisher struct {
	mu     sync.Mutex
	Events []PublishedEvent
}

type PublishedEvent struct {
	Topic   string
	Payload interface{}
}

func (m *MockPublisher) Publish(topic string, payload interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, PublishedEvent{Topic: topic, Payload: payload})
}

func (m *MockPublisher) ByTopic(topic string) []PublishedEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PublishedEvent
	for _, ev := range m.Events {
		if ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}

// MockTradeRepo records fills and closures in memory.
type MockTradeRepo struct {
	mu       sync.Mutex
	Fills    []*domain.Order
	Closures []*domain.PositionClosure
}

func (m *MockTradeRepo) SaveFill(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fills = append(m.Fills, order)
	return nil
}

func (m *MockTradeRepo) ListFills(ctx context.Context, limit int) ([]*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Fills, nil
}

func (m *MockTradeRepo) SaveClosure(ctx context.Context, closure *domain.PositionClosure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closures = append(m.Closures, closure)
	return nil
}

func (m *MockTradeRepo) ListClosures(ctx context.Context, limit int) ([]*domain.PositionClosure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Closures, nil
}

func tick(symbol string, close float64) domain.PriceTick {
	return domain.PriceTick{
		Symbol:   symbol,
		Open:     close,
		High:     close,
		Low:      close,
		Close:    close,
		Interval: "1m",
	}
}
