package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Shining-Code/TradingGPT-report/internal/domain"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	BinanceFuturesWSURL = "wss://fstream.binance.com/ws"

	handshakeTimeout     = 10 * time.Second
	defaultReconnectBase = time.Second
	defaultMaxReconnects = 5
)

// BinanceStreamClient maintains a persistent subscription to the Binance
// futures kline stream and pushes normalized PriceTicks to registered
// callbacks. On close or error it retries with linear backoff (base delay x
// attempt number) up to a fixed number of attempts; after exhausting them it
// reports the feed as permanently unavailable. Re-subscription after a
// reconnect is the connected-handler's responsibility.
type BinanceStreamClient struct {
	wsURL         string
	reconnectBase time.Duration
	maxReconnects int
	logger        *zap.Logger

	sleep func(time.Duration) // swapped out in tests

	mu       sync.Mutex
	conn     *websocket.Conn
	closed   bool
	attempts int
	nextID   int64

	tickCallbacks      []func(domain.PriceTick)
	connectedCallbacks []func()
	unavailableCbs     []func()
}

func NewBinanceStreamClient(wsURL string, logger *zap.Logger) *BinanceStreamClient {
	if wsURL == "" {
		wsURL = BinanceFuturesWSURL
	}
	return &BinanceStreamClient{
		wsURL:         wsURL,
		reconnectBase: defaultReconnectBase,
		maxReconnects: defaultMaxReconnects,
		logger:        logger,
		sleep:         time.Sleep,
		nextID:        time.Now().Unix(),
	}
}

// SetReconnectPolicy overrides the backoff base delay and the attempt cap.
func (c *BinanceStreamClient) SetReconnectPolicy(base time.Duration, maxAttempts int) {
	if base > 0 {
		c.reconnectBase = base
	}
	if maxAttempts > 0 {
		c.maxReconnects = maxAttempts
	}
}

// OnTick registers a callback for normalized price ticks.
func (c *BinanceStreamClient) OnTick(callback func(domain.PriceTick)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickCallbacks = append(c.tickCallbacks, callback)
}

// OnConnected registers a callback fired after every successful connection,
// including reconnects. Subscriptions must be re-issued here.
func (c *BinanceStreamClient) OnConnected(callback func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectedCallbacks = append(c.connectedCallbacks, callback)
}

// OnUnavailable registers a callback fired once reconnection attempts are
// exhausted. The client will not retry again after this.
func (c *BinanceStreamClient) OnUnavailable(callback func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unavailableCbs = append(c.unavailableCbs, callback)
}

// Connect dials the stream endpoint. On failure the reconnection policy
// takes over in the background; the first error is still returned so the
// caller can log it.
func (c *BinanceStreamClient) Connect() error {
	if err := c.dial(); err != nil {
		c.logger.Warn("feed connection failed, retrying", zap.Error(err))
		go c.retryLoop()
		return err
	}
	return nil
}

func (c *BinanceStreamClient) dial() error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.Dial(c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.wsURL, err)
	}

	conn.SetPongHandler(func(string) error {
		c.logger.Debug("pong received")
		return nil
	})

	// Keepalive probe right after the handshake, as a liveness check.
	if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		conn.Close()
		return fmt.Errorf("keepalive ping: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.attempts = 0
	connected := make([]func(), len(c.connectedCallbacks))
	copy(connected, c.connectedCallbacks)
	c.mu.Unlock()

	c.logger.Info("connected to price stream", zap.String("url", c.wsURL))

	go c.readLoop(conn)

	for _, cb := range connected {
		cb()
	}
	return nil
}

// Subscribe requests the kline stream for a symbol at the given interval.
// Delivery is push-based; nothing is awaited beyond the write.
func (c *BinanceStreamClient) Subscribe(symbol, interval string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("subscribe %s: not connected", symbol)
	}

	id := atomic.AddInt64(&c.nextID, 1)
	msg := subscribeRequest{
		Method: "SUBSCRIBE",
		Params: []string{streamName(symbol, interval)},
		ID:     id,
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("subscribe %s: %w", symbol, err)
	}

	c.logger.Info("subscribed to kline stream",
		zap.String("stream", msg.Params[0]),
		zap.Int64("id", id))
	return nil
}

func (c *BinanceStreamClient) readLoop(conn *websocket.Conn) {
	defer func() {
		conn.Close()
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if closed {
				return
			}
			c.logger.Warn("stream read error", zap.Error(err))
			go c.retryLoop()
			return
		}
		c.handleMessage(message)
	}
}

// handleMessage decodes one inbound frame: a subscription ack (logged), an
// error frame (non-fatal warning), or a kline update. Malformed frames are
// discarded; they never terminate the connection.
func (c *BinanceStreamClient) handleMessage(message []byte) {
	var msg streamMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("malformed stream message",
			zap.Error(err),
			zap.ByteString("raw", message))
		return
	}

	if msg.Error != nil {
		c.logger.Warn("stream error message",
			zap.Int("code", msg.Error.Code),
			zap.String("msg", msg.Error.Msg))
		return
	}

	if msg.ID != 0 {
		c.logger.Info("subscription confirmed", zap.Int64("id", msg.ID))
		return
	}

	if msg.Event != "kline" || msg.Kline == nil {
		c.logger.Debug("ignoring stream message", zap.String("event", msg.Event))
		return
	}

	tick, err := msg.Kline.toTick(msg.Symbol)
	if err != nil {
		c.logger.Warn("malformed kline payload",
			zap.Error(err),
			zap.ByteString("raw", message))
		return
	}

	c.mu.Lock()
	callbacks := make([]func(domain.PriceTick), len(c.tickCallbacks))
	copy(callbacks, c.tickCallbacks)
	c.mu.Unlock()

	for _, cb := range callbacks {
		cb(tick)
	}
}

// retryLoop implements the bounded linear-backoff reconnection policy. It
// gives up for good once maxReconnects consecutive attempts have failed.
func (c *BinanceStreamClient) retryLoop() {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		if attempt > c.maxReconnects {
			c.mu.Lock()
			unavailable := make([]func(), len(c.unavailableCbs))
			copy(unavailable, c.unavailableCbs)
			c.mu.Unlock()

			c.logger.Error("max reconnection attempts reached, feed unavailable",
				zap.Int("attempts", c.maxReconnects))
			for _, cb := range unavailable {
				cb()
			}
			return
		}

		delay := c.reconnectBase * time.Duration(attempt)
		c.logger.Info("reconnecting to price stream",
			zap.Int("attempt", attempt),
			zap.Int("max", c.maxReconnects),
			zap.Duration("delay", delay))
		c.sleep(delay)

		err := c.dial()
		if err == nil {
			return
		}
		c.logger.Warn("reconnect attempt failed", zap.Error(err))
	}
}

// Close tears the connection down without triggering reconnection.
func (c *BinanceStreamClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

func streamName(symbol, interval string) string {
	return strings.ToLower(symbol) + "@kline_" + interval
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

type streamError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type streamMessage struct {
	Event  string        `json:"e"`
	Symbol string        `json:"s"`
	ID     int64         `json:"id"`
	Error  *streamError  `json:"error"`
	Kline  *klinePayload `json:"k"`
}

// klinePayload carries Binance kline fields; all prices arrive as decimal
// strings.
type klinePayload struct {
	StartTime int64  `json:"t"`
	Open      string `json:"o"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Close     string `json:"c"`
	Volume    string `json:"v"`
	Interval  string `json:"i"`
	IsClosed  bool   `json:"x"`
}

func (k *klinePayload) toTick(symbol string) (domain.PriceTick, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return domain.PriceTick{}, fmt.Errorf("parse open: %w", err)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return domain.PriceTick{}, fmt.Errorf("parse high: %w", err)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return domain.PriceTick{}, fmt.Errorf("parse low: %w", err)
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return domain.PriceTick{}, fmt.Errorf("parse close: %w", err)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return domain.PriceTick{}, fmt.Errorf("parse volume: %w", err)
	}

	return domain.PriceTick{
		Symbol:    symbol,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		Interval:  k.Interval,
		IsClosed:  k.IsClosed,
		Timestamp: k.StartTime,
	}, nil
}
