package binance

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fundscope/internal/config"
	apperrors "fundscope/internal/errors"
	"fundscope/internal/exchange"
)

// Client implements exchange.Client against the Binance USDⓈ-M futures API
type Client struct {
	rest            *exchange.RESTClient
	fundingInterval time.Duration
}

// NewClient creates a Binance futures market data client
func NewClient(cfg config.ExchangeConfig) *Client {
	return &Client{
		rest:            exchange.NewRESTClient(cfg),
		fundingInterval: cfg.FundingInterval,
	}
}

// Name returns the exchange identifier
func (c *Client) Name() string { return "binance" }

// FundingRate returns the settled funding rate for the given period.
// Rates are reported in percent, matching the record wire format.
func (c *Client) FundingRate(ctx context.Context, symbol string, period time.Time) (*exchange.FundingReading, error) {
	periodMs := period.UTC().UnixMilli()

	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("startTime", strconv.FormatInt(periodMs-time.Minute.Milliseconds(), 10))
	params.Set("endTime", strconv.FormatInt(periodMs+time.Minute.Milliseconds(), 10))
	params.Set("limit", "10")

	var rows []struct {
		Symbol      string `json:"symbol"`
		FundingTime int64  `json:"fundingTime"`
		FundingRate string `json:"fundingRate"`
	}
	if err := c.rest.GetJSON(ctx, "/fapi/v1/fundingRate", params, &rows); err != nil {
		return nil, err
	}

	for _, row := range rows {
		// Binance occasionally stamps settlements a few ms off the
		// boundary, so match within the query window rather than exactly.
		if row.FundingTime < periodMs-time.Minute.Milliseconds() ||
			row.FundingTime > periodMs+time.Minute.Milliseconds() {
			continue
		}
		rate, err := strconv.ParseFloat(row.FundingRate, 64)
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

	return nil, apperrors.NewAppErrorWithDetails(apperrors.ErrCodeDataUnavailable,
		"no funding reading for period", fmt.Sprintf("%s %s", symbol, period.UTC().Format(time.RFC3339)), nil)
}

// Candles fetches OHLCV candles covering [from, to), ordered ascending
func (c *Client) Candles(ctx context.Context, symbol string, interval time.Duration, from, to time.Time) ([]exchange.Candle, error) {
	intervalCode, err := intervalFor(interval)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("interval", intervalCode)
	params.Set("startTime", strconv.FormatInt(from.UTC().UnixMilli(), 10))
	params.Set("endTime", strconv.FormatInt(to.UTC().UnixMilli(), 10))
	params.Set("limit", "1500")

	var rawKlines [][]interface{}
	if err := c.rest.GetJSON(ctx, "/fapi/v1/klines", params, &rawKlines); err != nil {
		return nil, err
	}

	candles := make([]exchange.Candle, 0, len(rawKlines))
	for _, raw := range rawKlines {
		if len(raw) < 6 {
			continue
		}
		openTime, ok := raw[0].(float64)
		if !ok {
			continue
		}
		open, err1 := parseStringField(raw[1])
		high, err2 := parseStringField(raw[2])
		low, err3 := parseStringField(raw[3])
		closePrice, err4 := parseStringField(raw[4])
		volume, err5 := parseStringField(raw[5])
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			continue
		}
		candles = append(candles, exchange.Candle{
			Symbol:    symbol,
			Timestamp: time.UnixMilli(int64(openTime)).UTC(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})
	}
	return candles, nil
}

func parseStringField(v interface{}) (float64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("expected string field, got %T", v)
	}
	return strconv.ParseFloat(s, 64)
}

// OrderBook fetches the current order book limited to the given depth
func (c *Client) OrderBook(ctx context.Context, symbol string, depth int) (*exchange.OrderBookSnapshot, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	if depth > 0 {
		params.Set("limit", strconv.Itoa(depth))
	}

	var raw struct {
		LastUpdateID int64      `json:"lastUpdateId"`
		EventTime    int64      `json:"E"`
		Bids         [][]string `json:"bids"`
		Asks         [][]string `json:"asks"`
	}
	if err := c.rest.GetJSON(ctx, "/fapi/v1/depth", params, &raw); err != nil {
		return nil, err
	}

	snapshot := &exchange.OrderBookSnapshot{
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
		Bids:      parseLevels(raw.Bids),
		Asks:      parseLevels(raw.Asks),
	}
	if raw.EventTime > 0 {
		snapshot.Timestamp = time.UnixMilli(raw.EventTime).UTC()
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

// FundingInterval returns the configured funding interval (8h default)
func (c *Client) FundingInterval(ctx context.Context, symbol string) (time.Duration, error) {
	if c.fundingInterval > 0 {
		return c.fundingInterval, nil
	}
	return 8 * time.Hour, nil
}

// intervalFor maps a candle interval onto Binance's interval codes
func intervalFor(interval time.Duration) (string, error) {
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
		return "1h", nil
	case 4 * time.Hour:
		return "4h", nil
	case 24 * time.Hour:
		return "1d", nil
	default:
		return "", apperrors.NewAppErrorWithDetails(apperrors.ErrCodeInvalidInput,
			"unsupported candle interval", interval.String(), nil)
	}
}
