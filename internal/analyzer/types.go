package analyzer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// RecordVersion is stamped into every record so downstream consumers can
// detect shape changes.
const RecordVersion = "1.0"

// FundingEntry is one exchange's contribution to a record. Rates are
// expressed in percent.
type FundingEntry struct {
	Exchange    string  `json:"exchange"`
	FundingRate float64 `json:"funding_rate"`
}

// OHLC is a single candle as serialized into a record.
type OHLC struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// PriceData carries the candle window bracketing the funding period.
type PriceData struct {
	Symbol string `json:"symbol"`
	OHLC   []OHLC `json:"ohlc"`
}

// MovingAverages holds the trailing SMA tiers ending at the reference
// candle. A tier is null when the window has too few candles for it.
type MovingAverages struct {
	ShortTermMA  *float64 `json:"short_term_ma"`
	MediumTermMA *float64 `json:"medium_term_ma"`
	LongTermMA   *float64 `json:"long_term_ma"`
}

// MomentumIndicators holds RSI and MACD computed ending at the reference
// candle.
type MomentumIndicators struct {
	RSI14 *float64 `json:"rsi_14"`
	MACD  *float64 `json:"macd"`
}

// Level is a single order book level, serialized as [price, quantity].
type Level [2]float64

// OrderBookDepth is the bid and ask ladder at collection time.
type OrderBookDepth struct {
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}

// LiquiditySnapshot is the order book sample passed through from the
// collector, with spread = best ask - best bid.
type LiquiditySnapshot struct {
	OrderBookDepth OrderBookDepth `json:"order_book_depth"`
	Spread         float64        `json:"spread"`
}

// CorrelatedAsset mirrors the funding and price-change fields for one
// correlated symbol at the same period.
type CorrelatedAsset struct {
	FundingRate        *float64 `json:"funding_rate"`
	PriceChangePct1Min *float64 `json:"price_change_percentage_1min,omitempty"`
	PriceChangePct5Min *float64 `json:"price_change_percentage_5min,omitempty"`
}

// MarketContext groups the derived indicators and the liquidity snapshot.
type MarketContext struct {
	MovingAverages     MovingAverages             `json:"moving_averages"`
	MomentumIndicators MomentumIndicators         `json:"momentum_indicators"`
	LiquiditySnapshot  LiquiditySnapshot          `json:"liquidity_snapshot"`
	CorrelatedAssets   map[string]CorrelatedAsset `json:"correlated_assets"`
}

// Record is the canonical fluctuation analysis document produced once per
// (symbol, period). Records are never mutated after creation; re-running the
// same inputs must yield a value-equal record.
type Record struct {
	Version            string         `json:"version"`
	Period             time.Time      `json:"period"`
	FundingRate        []FundingEntry `json:"funding_rate"`
	PriceData          PriceData      `json:"price_data"`
	PriceChangePct1Min *float64       `json:"price_change_percentage_1min,omitempty"`
	PriceChangePct5Min *float64       `json:"price_change_percentage_5min,omitempty"`
	VolatilityIndex    *float64       `json:"volatility_index"`
	MarketContext      MarketContext  `json:"market_context"`
}

// Key returns the storage key for this record, "SYMBOL:RFC3339 period".
func (r *Record) Key() string {
	return fmt.Sprintf("%s:%s", r.PriceData.Symbol, r.Period.UTC().Format(time.RFC3339))
}

// Symbol returns the symbol the record was computed for.
func (r *Record) Symbol() string {
	return r.PriceData.Symbol
}

// Equal reports whether two records are value-equal by comparing their
// canonical JSON encodings.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r == other
	}
	a, err := json.Marshal(r)
	if err != nil {
		return false
	}
	b, err := json.Marshal(other)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}
