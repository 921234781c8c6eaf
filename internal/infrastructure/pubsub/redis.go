package pubsub

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

type event struct {
	topic   string
	payload []byte
}

// RedisPublisher fans position events out on Redis pub/sub channels. Publish
// enqueues without blocking; a single worker goroutine drains the queue, so
// a slow or unavailable Redis degrades to dropped notifications rather than
// stalled tick processing.
type RedisPublisher struct {
	client *redis.Client
	logger *zap.Logger
	queue  chan event
	quit   chan struct{}
	done   chan struct{}
	once   sync.Once
}

func NewRedisPublisher(addr string, logger *zap.Logger) *RedisPublisher {
	p := &RedisPublisher{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		logger: logger,
		queue:  make(chan event, 256),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go p.drain()
	return p
}

// Ping verifies the sink is reachable. Startup-time check only; later
// outages are tolerated.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Publish serializes the payload and queues it for delivery on the topic
// channel. The event is dropped (and logged) when the queue is full.
func (p *RedisPublisher) Publish(topic string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("failed to marshal event", zap.String("topic", topic), zap.Error(err))
		return
	}

	select {
	case p.queue <- event{topic: topic, payload: body}:
	default:
		p.logger.Warn("event queue full, dropping event", zap.String("topic", topic))
	}
}

func (p *RedisPublisher) drain() {
	defer close(p.done)
	for {
		select {
		case ev := <-p.queue:
			p.send(ev)
		case <-p.quit:
			// Flush whatever is already queued, then stop.
			for {
				select {
				case ev := <-p.queue:
					p.send(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *RedisPublisher) send(ev event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.client.Publish(ctx, ev.topic, ev.payload).Err(); err != nil {
		p.logger.Warn("failed to publish event",
			zap.String("topic", ev.topic),
			zap.Error(err))
	}
}

// Close stops the worker after the queue is drained and releases the client.
func (p *RedisPublisher) Close() error {
	p.once.Do(func() { close(p.quit) })
	<-p.done
	return p.client.Close()
}
