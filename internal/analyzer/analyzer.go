package analyzer

import (
	"time"

	"github.com/sirupsen/logrus"

	"fundscope/internal/collector"
	"fundscope/internal/config"
	apperrors "fundscope/internal/errors"
	"fundscope/internal/exchange"
)

// CorrelatedInput bundles one correlated symbol's funding event and candle
// window for the same period as the primary symbol.
type CorrelatedInput struct {
	Event   *collector.FundingEvent
	Candles []exchange.Candle
}

// Analyzer derives a fluctuation analysis record from a funding event and
// its price context. It holds no state between calls; identical inputs
// always produce value-equal records.
type Analyzer struct {
	cfg config.AnalyzerConfig
	log *logrus.Logger
}

// New creates an Analyzer with the given indicator configuration.
func New(cfg config.AnalyzerConfig, log *logrus.Logger) *Analyzer {
	return &Analyzer{cfg: cfg, log: log}
}

// Analyze builds the canonical record for event. candles must be ordered by
// timestamp ascending and bracket event.Period; book may be nil when no
// order book sample was available. Malformed candles are excluded from every
// derivation and logged, never fatal. Fails with INSUFFICIENT_HISTORY when
// no well-formed candle exists at or before the period.
func (a *Analyzer) Analyze(event *collector.FundingEvent, candles []exchange.Candle, book *exchange.OrderBookSnapshot, correlated map[string]CorrelatedInput) (*Record, error) {
	clean := a.filterCandles(event.Symbol, candles)

	refIdx := referenceIndex(clean, event.Period)
	if refIdx < 0 {
		return nil, apperrors.NewAppError(apperrors.ErrCodeInsufficientHistory,
			"no candle at or before funding period", nil).
			WithContext("symbol", event.Symbol).
			WithContext("period", event.Period.Format(time.RFC3339)).
			WithContext("candles", len(clean))
	}
	refClose := clean[refIdx].Close

	record := &Record{
		Version: RecordVersion,
		Period:  event.Period.UTC(),
		PriceData: PriceData{
			Symbol: event.Symbol,
			OHLC:   toOHLC(clean),
		},
		PriceChangePct1Min: a.priceChange(clean, refClose, event.Period, time.Minute),
		PriceChangePct5Min: a.priceChange(clean, refClose, event.Period, 5*time.Minute),
		VolatilityIndex:    volatilityIndex(clean),
	}

	record.FundingRate = make([]FundingEntry, 0, len(event.Readings))
	for _, reading := range event.Readings {
		record.FundingRate = append(record.FundingRate, FundingEntry{
			Exchange:    reading.Exchange,
			FundingRate: reading.Rate,
		})
	}

	closes := make([]float64, 0, refIdx+1)
	for _, c := range clean[:refIdx+1] {
		closes = append(closes, c.Close)
	}
	record.MarketContext = MarketContext{
		MovingAverages: MovingAverages{
			ShortTermMA:  maybeSMA(closes, a.cfg.ShortMAPeriod),
			MediumTermMA: maybeSMA(closes, a.cfg.MediumMAPeriod),
			LongTermMA:   maybeSMA(closes, a.cfg.LongMAPeriod),
		},
		MomentumIndicators: MomentumIndicators{
			RSI14: maybeRSI(closes, a.cfg.RSIPeriod),
			MACD:  maybeMACD(closes, a.cfg.MACDFastPeriod, a.cfg.MACDSlowPeriod),
		},
		LiquiditySnapshot: toLiquidity(book),
		CorrelatedAssets:  a.correlatedAssets(correlated),
	}

	a.log.WithFields(logrus.Fields{
		"symbol":     event.Symbol,
		"period":     event.Period.Format(time.RFC3339),
		"candles":    len(clean),
		"avg_volume": averageVolume(clean),
	}).Debug("Built analysis record")
	return record, nil
}

func averageVolume(candles []exchange.Candle) float64 {
	if len(candles) == 0 {
		return 0
	}
	total := 0.0
	for _, c := range candles {
		total += c.Volume
	}
	return total / float64(len(candles))
}

// filterCandles drops malformed candles and logs how many were excluded.
func (a *Analyzer) filterCandles(symbol string, candles []exchange.Candle) []exchange.Candle {
	clean := make([]exchange.Candle, 0, len(candles))
	for _, c := range candles {
		if c.WellFormed() {
			clean = append(clean, c)
		}
	}
	if dropped := len(candles) - len(clean); dropped > 0 {
		a.log.WithFields(logrus.Fields{
			"symbol":  symbol,
			"dropped": dropped,
			"kept":    len(clean),
		}).Warn("Excluded malformed candles from analysis")
	}
	return clean
}

// referenceIndex returns the index of the last candle at or before period,
// or -1 when none exists.
func referenceIndex(candles []exchange.Candle, period time.Time) int {
	idx := -1
	for i, c := range candles {
		if !c.Timestamp.After(period) {
			idx = i
		}
	}
	return idx
}

// priceChange computes (close(period+offset) - refClose) / refClose * 100.
// When no candle sits exactly at period+offset, the nearest candle at or
// after the target within the tolerance window is used; past that the field
// is omitted.
func (a *Analyzer) priceChange(candles []exchange.Candle, refClose float64, period time.Time, offset time.Duration) *float64 {
	if refClose == 0 {
		return nil
	}
	target := period.Add(offset)
	for _, c := range candles {
		if c.Timestamp.Before(target) {
			continue
		}
		if c.Timestamp.Sub(target) > a.cfg.OffsetTolerance {
			break
		}
		pct := (c.Close - refClose) / refClose * 100
		return &pct
	}
	return nil
}

// volatilityIndex is the sample standard deviation of simple close-to-close
// returns over the window, scaled to percent. Nil with fewer than three
// closes.
func volatilityIndex(candles []exchange.Candle) *float64 {
	closes := make([]float64, 0, len(candles))
	for _, c := range candles {
		closes = append(closes, c.Close)
	}
	stddev, ok := SampleStdDev(simpleReturns(closes))
	if !ok {
		return nil
	}
	v := stddev * 100
	return &v
}

func (a *Analyzer) correlatedAssets(inputs map[string]CorrelatedInput) map[string]CorrelatedAsset {
	out := make(map[string]CorrelatedAsset, len(inputs))
	for symbol, input := range inputs {
		asset := CorrelatedAsset{}
		if input.Event != nil && len(input.Event.Readings) > 0 {
			sum := 0.0
			for _, r := range input.Event.Readings {
				sum += r.Rate
			}
			avg := sum / float64(len(input.Event.Readings))
			asset.FundingRate = &avg

			clean := a.filterCandles(symbol, input.Candles)
			if refIdx := referenceIndex(clean, input.Event.Period); refIdx >= 0 {
				refClose := clean[refIdx].Close
				asset.PriceChangePct1Min = a.priceChange(clean, refClose, input.Event.Period, time.Minute)
				asset.PriceChangePct5Min = a.priceChange(clean, refClose, input.Event.Period, 5*time.Minute)
			}
		}
		out[symbol] = asset
	}
	return out
}

func toOHLC(candles []exchange.Candle) []OHLC {
	out := make([]OHLC, 0, len(candles))
	for _, c := range candles {
		out = append(out, OHLC{
			Timestamp: c.Timestamp.UTC(),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		})
	}
	return out
}

func toLiquidity(book *exchange.OrderBookSnapshot) LiquiditySnapshot {
	snap := LiquiditySnapshot{
		OrderBookDepth: OrderBookDepth{
			Bids: []Level{},
			Asks: []Level{},
		},
	}
	if book == nil {
		return snap
	}
	for _, l := range book.Bids {
		snap.OrderBookDepth.Bids = append(snap.OrderBookDepth.Bids, Level{l.Price, l.Quantity})
	}
	for _, l := range book.Asks {
		snap.OrderBookDepth.Asks = append(snap.OrderBookDepth.Asks, Level{l.Price, l.Quantity})
	}
	snap.Spread = book.Spread()
	return snap
}

func maybeSMA(closes []float64, period int) *float64 {
	v, ok := SMA(closes, period)
	if !ok {
		return nil
	}
	return &v
}

func maybeRSI(closes []float64, period int) *float64 {
	v, ok := RSI(closes, period)
	if !ok {
		return nil
	}
	return &v
}

func maybeMACD(closes []float64, fast, slow int) *float64 {
	v, ok := MACD(closes, fast, slow)
	if !ok {
		return nil
	}
	return &v
}
