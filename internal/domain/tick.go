package domain

// PriceTick is one normalized price update for a symbol, built from a
// candle/kline stream message. Ticks are emitted for every update, including
// updates to a still-open candle, so consumers must not assume one tick per
// candle.
type PriceTick struct {
	Symbol    string  `json:"symbol"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Interval  string  `json:"interval"`
	IsClosed  bool    `json:"isClosed"`
	Timestamp int64   `json:"timestamp"`
}
