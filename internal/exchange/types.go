package exchange

import (
	"context"
	"time"
)

// FundingReading is one exchange's settled funding rate for a period.
// Immutable once fetched; unique per (exchange, symbol, period).
type FundingReading struct {
	Exchange string    `json:"exchange"`
	Symbol   string    `json:"symbol"`
	Period   time.Time `json:"period"`
	Rate     float64   `json:"rate"`
}

// Candle represents an OHLCV data point
type Candle struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// WellFormed reports whether the candle satisfies the OHLC invariants:
// positive prices, non-negative volume, high >= max(open, close) and
// low <= min(open, close). Violations are flagged downstream, not fatal.
func (c Candle) WellFormed() bool {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return false
	}
	if c.Volume < 0 {
		return false
	}
	maxOC := c.Open
	if c.Close > maxOC {
		maxOC = c.Close
	}
	minOC := c.Open
	if c.Close < minOC {
		minOC = c.Close
	}
	return c.High >= maxOC && c.Low <= minOC
}

// Level represents a price level in an order book
type Level struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBookSnapshot is a point-in-time order book sample.
// Bids are sorted descending by price, asks ascending.
type OrderBookSnapshot struct {
	Symbol    string    `json:"symbol"`
	Bids      []Level   `json:"bids"`
	Asks      []Level   `json:"asks"`
	Timestamp time.Time `json:"timestamp"`
}

// BestBid returns the highest bid price, or 0 if the side is empty
func (s *OrderBookSnapshot) BestBid() float64 {
	if len(s.Bids) == 0 {
		return 0
	}
	return s.Bids[0].Price
}

// BestAsk returns the lowest ask price, or 0 if the side is empty
func (s *OrderBookSnapshot) BestAsk() float64 {
	if len(s.Asks) == 0 {
		return 0
	}
	return s.Asks[0].Price
}

// Spread returns best ask minus best bid, or 0 when either side is empty
func (s *OrderBookSnapshot) Spread() float64 {
	if len(s.Bids) == 0 || len(s.Asks) == 0 {
		return 0
	}
	return s.BestAsk() - s.BestBid()
}

// Client is the per-exchange data access contract. Implementations hold no
// state between calls beyond connection pooling and rate limiting, so one
// exchange's failure never affects another.
type Client interface {
	// Name returns the exchange identifier (lowercase)
	Name() string

	// FundingRate returns the settled funding rate for the given period.
	// Returns a DATA_UNAVAILABLE error when the exchange has no reading
	// for that period.
	FundingRate(ctx context.Context, symbol string, period time.Time) (*FundingReading, error)

	// Candles returns OHLCV candles at the given interval covering
	// [from, to), ordered by timestamp ascending.
	Candles(ctx context.Context, symbol string, interval time.Duration, from, to time.Time) ([]Candle, error)

	// OrderBook returns an order book sample limited to the given depth
	OrderBook(ctx context.Context, symbol string, depth int) (*OrderBookSnapshot, error)

	// FundingInterval returns the funding settlement interval for a symbol
	FundingInterval(ctx context.Context, symbol string) (time.Duration, error)
}

// AlignPeriod returns the most recent funding boundary at or before t.
// Funding settles on UTC-aligned interval boundaries (00:00/08:00/16:00
// for the common 8h interval).
func AlignPeriod(t time.Time, interval time.Duration) time.Time {
	return t.UTC().Truncate(interval)
}

// NextFundingTime returns the first funding boundary strictly after t
func NextFundingTime(t time.Time, interval time.Duration) time.Time {
	return AlignPeriod(t, interval).Add(interval)
}
