package bitget

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"fundscope/internal/config"
	apperrors "fundscope/internal/errors"
	"fundscope/internal/exchange"
)

const (
	productType = "USDT-FUTURES"

	// maxCandlesPerCall is Bitget's page limit for the candles endpoint
	maxCandlesPerCall = 1000

	// maxFundingPages bounds the history scan when locating a period
	maxFundingPages = 5

	fundingPageSize = 100
)

// Client implements exchange.Client against the Bitget V2 mix-market API
type Client struct {
	rest            *exchange.RESTClient
	fundingInterval time.Duration

	mu                sync.RWMutex
	detectedIntervals map[string]time.Duration
}

// NewClient creates a Bitget futures market data client
func NewClient(cfg config.ExchangeConfig) *Client {
	return &Client{
		rest:              exchange.NewRESTClient(cfg),
		fundingInterval:   cfg.FundingInterval,
		detectedIntervals: make(map[string]time.Duration),
	}
}

// Name returns the exchange identifier
func (c *Client) Name() string { return "bitget" }

type fundingHistoryResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		Symbol      string `json:"symbol"`
		FundingRate string `json:"fundingRate"`
		FundingTime string `json:"fundingTime"`
	} `json:"data"`
}

// FundingRate returns the settled funding rate for the given period,
// scanning backwards through the paged history. Rates are reported in
// percent, matching the record wire format.
func (c *Client) FundingRate(ctx context.Context, symbol string, period time.Time) (*exchange.FundingReading, error) {
	periodMs := period.UTC().UnixMilli()

	for page := 1; page <= maxFundingPages; page++ {
		resp, err := c.fundingHistoryPage(ctx, symbol, page)
		if err != nil {
			return nil, err
		}
		if len(resp.Data) == 0 {
			break
		}

		oldest := int64(0)
		for _, fr := range resp.Data {
			ts, err := strconv.ParseInt(fr.FundingTime, 10, 64)
			if err != nil {
				continue
			}
			if oldest == 0 || ts < oldest {
				oldest = ts
			}
			if ts != periodMs {
				continue
			}
			rate, err := strconv.ParseFloat(fr.FundingRate, 64)
			if err != nil {
				return nil, apperrors.NewAppError(apperrors.ErrCodeExchangeAPI, "invalid funding rate value", err)
			}
			return &exchange.FundingReading{
				Exchange: c.Name(),
				Symbol:   symbol,
				Period:   period.UTC(),
				Rate:     rate * 100,
			}, nil
		}

		// History is newest-first; once we've paged past the period
		// there is nothing left to find.
		if oldest > 0 && oldest < periodMs {
			break
		}
	}

	return nil, apperrors.NewAppErrorWithDetails(apperrors.ErrCodeDataUnavailable,
		"no funding reading for period", fmt.Sprintf("%s %s", symbol, period.UTC().Format(time.RFC3339)), nil)
}

func (c *Client) fundingHistoryPage(ctx context.Context, symbol string, page int) (*fundingHistoryResponse, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("productType", productType)
	params.Set("pageSize", strconv.Itoa(fundingPageSize))
	params.Set("pageNo", strconv.Itoa(page))

	var resp fundingHistoryResponse
	if err := c.rest.GetJSON(ctx, "/api/v2/mix/market/history-fund-rate", params, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "00000" {
		return nil, apperrors.NewAppErrorWithDetails(apperrors.ErrCodeExchangeAPI,
			"bitget api error", fmt.Sprintf("%s: %s", resp.Code, resp.Msg), nil)
	}
	return &resp, nil
}

type candlesResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"`
}

// Candles fetches OHLCV candles covering [from, to), paging in chunks when
// the window exceeds the per-call candle limit.
func (c *Client) Candles(ctx context.Context, symbol string, interval time.Duration, from, to time.Time) ([]exchange.Candle, error) {
	granularity, err := granularityFor(interval)
	if err != nil {
		return nil, err
	}

	var candles []exchange.Candle
	start := from.UTC()
	end := to.UTC()

	for start.Before(end) {
		chunkEnd := start.Add(time.Duration(maxCandlesPerCall) * interval)
		if chunkEnd.After(end) {
			chunkEnd = end
		}

		params := url.Values{}
		params.Set("symbol", symbol)
		params.Set("productType", productType)
		params.Set("granularity", granularity)
		params.Set("limit", strconv.Itoa(maxCandlesPerCall))
		params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
		params.Set("endTime", strconv.FormatInt(chunkEnd.UnixMilli(), 10))

		var resp candlesResponse
		if err := c.rest.GetJSON(ctx, "/api/v2/mix/market/candles", params, &resp); err != nil {
			return nil, err
		}
		if resp.Code != "00000" {
			return nil, apperrors.NewAppErrorWithDetails(apperrors.ErrCodeExchangeAPI,
				"bitget api error", fmt.Sprintf("%s: %s", resp.Code, resp.Msg), nil)
		}
		if len(resp.Data) == 0 {
			break
		}

		before := len(candles)
		for _, raw := range resp.Data {
			candle, ok := parseCandle(symbol, raw)
			if ok {
				candles = append(candles, candle)
			}
		}
		if len(candles) == before {
			break
		}

		last := candles[len(candles)-1].Timestamp
		if !last.Add(interval).After(start) {
			break // no forward progress, bail out
		}
		start = last.Add(interval)
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	return candles, nil
}

// parseCandle decodes Bitget's [ts, open, high, low, close, volume, notional] row
func parseCandle(symbol string, raw []string) (exchange.Candle, bool) {
	if len(raw) < 6 {
		return exchange.Candle{}, false
	}
	ts, err := strconv.ParseInt(raw[0], 10, 64)
	if err != nil {
		return exchange.Candle{}, false
	}
	open, err1 := strconv.ParseFloat(raw[1], 64)
	high, err2 := strconv.ParseFloat(raw[2], 64)
	low, err3 := strconv.ParseFloat(raw[3], 64)
	closePrice, err4 := strconv.ParseFloat(raw[4], 64)
	volume, err5 := strconv.ParseFloat(raw[5], 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
		return exchange.Candle{}, false
	}
	return exchange.Candle{
		Symbol:    symbol,
		Timestamp: time.UnixMilli(ts).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
	}, true
}

type depthResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
		Ts   string     `json:"ts"`
	} `json:"data"`
}

// OrderBook returns a merged-depth order book sample
func (c *Client) OrderBook(ctx context.Context, symbol string, depth int) (*exchange.OrderBookSnapshot, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("productType", productType)
	if depth > 0 {
		params.Set("limit", strconv.Itoa(depth))
	}

	var resp depthResponse
	if err := c.rest.GetJSON(ctx, "/api/v2/mix/market/merge-depth", params, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "00000" {
		return nil, apperrors.NewAppErrorWithDetails(apperrors.ErrCodeExchangeAPI,
			"bitget api error", fmt.Sprintf("%s: %s", resp.Code, resp.Msg), nil)
	}

	snapshot := &exchange.OrderBookSnapshot{
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
		Bids:      parseLevels(resp.Data.Bids),
		Asks:      parseLevels(resp.Data.Asks),
	}
	if ts, err := strconv.ParseInt(resp.Data.Ts, 10, 64); err == nil {
		snapshot.Timestamp = time.UnixMilli(ts).UTC()
	}
	return snapshot, nil
}

func parseLevels(raw [][]string) []exchange.Level {
	levels := make([]exchange.Level, 0, len(raw))
	for _, entry := range raw {
		if len(entry) < 2 {
			continue
		}
		price, err1 := strconv.ParseFloat(entry[0], 64)
		qty, err2 := strconv.ParseFloat(entry[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		levels = append(levels, exchange.Level{Price: price, Quantity: qty})
	}
	return levels
}

// FundingInterval returns the configured funding interval, or detects it
// from the spacing of consecutive history entries (Bitget settles some
// contracts every 4h instead of the usual 8h).
func (c *Client) FundingInterval(ctx context.Context, symbol string) (time.Duration, error) {
	if c.fundingInterval > 0 {
		return c.fundingInterval, nil
	}

	c.mu.RLock()
	detected, ok := c.detectedIntervals[symbol]
	c.mu.RUnlock()
	if ok {
		return detected, nil
	}

	resp, err := c.fundingHistoryPage(ctx, symbol, 1)
	if err != nil {
		return 0, err
	}
	if len(resp.Data) < 2 {
		return 0, apperrors.NewAppErrorWithDetails(apperrors.ErrCodeDataUnavailable,
			"not enough history to detect funding interval", symbol, nil)
	}

	first, err1 := strconv.ParseInt(resp.Data[0].FundingTime, 10, 64)
	second, err2 := strconv.ParseInt(resp.Data[1].FundingTime, 10, 64)
	if err1 != nil || err2 != nil {
		return 0, apperrors.NewAppError(apperrors.ErrCodeExchangeAPI, "invalid funding timestamps", nil)
	}

	diff := time.Duration(first-second) * time.Millisecond
	if diff < 0 {
		diff = -diff
	}
	switch diff {
	case 4 * time.Hour, 8 * time.Hour:
	default:
		return 0, apperrors.NewAppErrorWithDetails(apperrors.ErrCodeExchangeAPI,
			"unexpected funding interval", diff.String(), nil)
	}

	c.mu.Lock()
	c.detectedIntervals[symbol] = diff
	c.mu.Unlock()
	return diff, nil
}

// granularityFor maps a candle interval onto Bitget's granularity codes
func granularityFor(interval time.Duration) (string, error) {
	switch interval {
	case time.Minute:
		return "1m", nil
	case 5 * time.Minute:
		return "5m", nil
	case 15 * time.Minute:
		return "15m", nil
	case 30 * time.Minute:
		return "30m", nil
	case time.Hour:
		return "1H", nil
	case 4 * time.Hour:
		return "4H", nil
	case 24 * time.Hour:
		return "1D", nil
	default:
		return "", apperrors.NewAppErrorWithDetails(apperrors.ErrCodeInvalidInput,
			"unsupported candle interval", interval.String(), nil)
	}
}
