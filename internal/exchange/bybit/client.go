package bybit

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"fundscope/internal/config"
	apperrors "fundscope/internal/errors"
	"fundscope/internal/exchange"
)

const category = "linear"

// Client implements exchange.Client against the Bybit V5 market API
type Client struct {
	rest            *exchange.RESTClient
	fundingInterval time.Duration
}

// NewClient creates a Bybit perpetual market data client
func NewClient(cfg config.ExchangeConfig) *Client {
	return &Client{
		rest:            exchange.NewRESTClient(cfg),
		fundingInterval: cfg.FundingInterval,
	}
}

// Name returns the exchange identifier
func (c *Client) Name() string { return "bybit" }

type response[T any] struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  T      `json:"result"`
}

func checkRet(code int, msg string) error {
	if code != 0 {
		return apperrors.NewAppErrorWithDetails(apperrors.ErrCodeExchangeAPI,
			"bybit api error", fmt.Sprintf("%d: %s", code, msg), nil)
	}
	return nil
}

// FundingRate returns the settled funding rate for the given period.
// Rates are reported in percent, matching the record wire format.
func (c *Client) FundingRate(ctx context.Context, symbol string, period time.Time) (*exchange.FundingReading, error) {
	periodMs := period.UTC().UnixMilli()

	params := url.Values{}
	params.Set("category", category)
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("startTime", strconv.FormatInt(periodMs-time.Minute.Milliseconds(), 10))
	params.Set("endTime", strconv.FormatInt(periodMs+time.Minute.Milliseconds(), 10))
	params.Set("limit", "10")

	var resp response[struct {
		List []struct {
			Symbol               string `json:"symbol"`
			FundingRate          string `json:"fundingRate"`
			FundingRateTimestamp string `json:"fundingRateTimestamp"`
		} `json:"list"`
	}]
	if err := c.rest.GetJSON(ctx, "/v5/market/funding/history", params, &resp); err != nil {
		return nil, err
	}
	if err := checkRet(resp.RetCode, resp.RetMsg); err != nil {
		return nil, err
	}

	for _, row := range resp.Result.List {
		ts, err := strconv.ParseInt(row.FundingRateTimestamp, 10, 64)
		if err != nil || ts < periodMs-time.Minute.Milliseconds() || ts > periodMs+time.Minute.Milliseconds() {
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

// Candles fetches OHLCV candles covering [from, to), ordered ascending.
// Bybit returns rows newest-first; they are reversed before returning.
func (c *Client) Candles(ctx context.Context, symbol string, interval time.Duration, from, to time.Time) ([]exchange.Candle, error) {
	intervalCode, err := intervalFor(interval)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("category", category)
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("interval", intervalCode)
	params.Set("start", strconv.FormatInt(from.UTC().UnixMilli(), 10))
	params.Set("end", strconv.FormatInt(to.UTC().UnixMilli(), 10))
	params.Set("limit", "1000")

	var resp response[struct {
		List [][]string `json:"list"`
	}]
	if err := c.rest.GetJSON(ctx, "/v5/market/kline", params, &resp); err != nil {
		return nil, err
	}
	if err := checkRet(resp.RetCode, resp.RetMsg); err != nil {
		return nil, err
	}

	candles := make([]exchange.Candle, 0, len(resp.Result.List))
	for _, raw := range resp.Result.List {
		if len(raw) < 6 {
			continue
		}
		ts, err := strconv.ParseInt(raw[0], 10, 64)
		if err != nil {
			continue
		}
		open, err1 := strconv.ParseFloat(raw[1], 64)
		high, err2 := strconv.ParseFloat(raw[2], 64)
		low, err3 := strconv.ParseFloat(raw[3], 64)
		closePrice, err4 := strconv.ParseFloat(raw[4], 64)
		volume, err5 := strconv.ParseFloat(raw[5], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			continue
		}
		candles = append(candles, exchange.Candle{
			Symbol:    symbol,
			Timestamp: time.UnixMilli(ts).UTC(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
		})
	}

	sort.Slice(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
	return candles, nil
}

// OrderBook fetches the current order book limited to the given depth
func (c *Client) OrderBook(ctx context.Context, symbol string, depth int) (*exchange.OrderBookSnapshot, error) {
	params := url.Values{}
	params.Set("category", category)
	params.Set("symbol", strings.ToUpper(symbol))
	if depth > 0 {
		params.Set("limit", strconv.Itoa(depth))
	}

	var resp response[struct {
		Symbol string     `json:"s"`
		Bids   [][]string `json:"b"`
		Asks   [][]string `json:"a"`
		Ts     int64      `json:"ts"`
	}]
	if err := c.rest.GetJSON(ctx, "/v5/market/orderbook", params, &resp); err != nil {
		return nil, err
	}
	if err := checkRet(resp.RetCode, resp.RetMsg); err != nil {
		return nil, err
	}

	snapshot := &exchange.OrderBookSnapshot{
		Symbol:    symbol,
		Timestamp: time.Now().UTC(),
		Bids:      parseLevels(resp.Result.Bids),
		Asks:      parseLevels(resp.Result.Asks),
	}
	if resp.Result.Ts > 0 {
		snapshot.Timestamp = time.UnixMilli(resp.Result.Ts).UTC()
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

// intervalFor maps a candle interval onto Bybit's interval codes
func intervalFor(interval time.Duration) (string, error) {
	switch interval {
	case time.Minute:
		return "1", nil
	case 5 * time.Minute:
		return "5", nil
	case 15 * time.Minute:
		return "15", nil
	case 30 * time.Minute:
		return "30", nil
	case time.Hour:
		return "60", nil
	case 4 * time.Hour:
		return "240", nil
	case 24 * time.Hour:
		return "D", nil
	default:
		return "", apperrors.NewAppErrorWithDetails(apperrors.ErrCodeInvalidInput,
			"unsupported candle interval", interval.String(), nil)
	}
}
