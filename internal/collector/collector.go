package collector

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"fundscope/internal/config"
	apperrors "fundscope/internal/errors"
	"fundscope/internal/exchange"
	"fundscope/internal/monitor"
)

// FundingEvent is the outcome of one collection pass for a (symbol, period)
// pair. Readings holds whatever the exchanges returned, Missing names the
// exchanges that failed, and Complete reports whether every configured
// exchange responded.
type FundingEvent struct {
	Symbol   string
	Period   time.Time
	Readings []exchange.FundingReading
	Missing  []string
	Complete bool
}

// Collector fans funding-rate requests out to every configured exchange
// client and assembles the partial or complete result.
type Collector struct {
	clients []exchange.Client
	cfg     config.CollectorConfig
	retry   *exchange.RetryConfig
	metrics *monitor.MetricsCollector
	log     *logrus.Logger
}

// New creates a Collector over the given exchange clients. metrics may be nil.
func New(clients []exchange.Client, cfg config.CollectorConfig, metrics *monitor.MetricsCollector, log *logrus.Logger) *Collector {
	retry := exchange.DefaultRetryConfig()
	retry.MaxRetries = 0
	if cfg.FetchRetries > 0 {
		retry.MaxRetries = cfg.FetchRetries
	}
	return &Collector{
		clients: clients,
		cfg:     cfg,
		retry:   retry,
		metrics: metrics,
		log:     log,
	}
}

// Exchanges returns the names of all configured exchange clients.
func (c *Collector) Exchanges() []string {
	names := make([]string, 0, len(c.clients))
	for _, client := range c.clients {
		names = append(names, client.Name())
	}
	sort.Strings(names)
	return names
}

// Collect queries every exchange for the funding rate settled at period and
// returns the combined event. Each exchange is queried concurrently under its
// own timeout so one slow venue cannot hold up the rest. The call fails only
// when fewer exchanges respond than the configured quorum; individual
// failures are recorded in Missing and logged.
func (c *Collector) Collect(ctx context.Context, symbol string, period time.Time) (*FundingEvent, error) {
	type result struct {
		name    string
		reading *exchange.FundingReading
		err     error
	}

	results := make(chan result, len(c.clients))
	var wg sync.WaitGroup
	for _, client := range c.clients {
		wg.Add(1)
		go func(client exchange.Client) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
			defer cancel()

			// Transient failures are retried within the fetch budget.
			reading, err := exchange.RetryWithResult(fetchCtx, func(ctx context.Context) (*exchange.FundingReading, error) {
				return client.FundingRate(ctx, symbol, period)
			}, c.retry)
			results <- result{name: client.Name(), reading: reading, err: err}
		}(client)
	}
	wg.Wait()
	close(results)

	event := &FundingEvent{
		Symbol: symbol,
		Period: period,
	}
	for res := range results {
		if res.err != nil {
			code := string(apperrors.ErrCodeInternal)
			if appErr := apperrors.GetAppError(res.err); appErr != nil {
				code = string(appErr.Code)
			}
			if c.metrics != nil {
				c.metrics.ObserveExchangeError(res.name, code)
			}
			c.log.WithFields(logrus.Fields{
				"exchange": res.name,
				"symbol":   symbol,
				"period":   period.Format(time.RFC3339),
			}).WithError(res.err).Warn("Exchange funding fetch failed")
			event.Missing = append(event.Missing, res.name)
			continue
		}
		event.Readings = append(event.Readings, *res.reading)
	}

	sort.Slice(event.Readings, func(i, j int) bool {
		return event.Readings[i].Exchange < event.Readings[j].Exchange
	})
	sort.Strings(event.Missing)
	event.Complete = len(event.Missing) == 0

	quorum := c.cfg.MinQuorum
	if quorum < 1 {
		quorum = 1
	}
	if len(event.Readings) < quorum {
		return nil, apperrors.NewAppError(apperrors.ErrCodeNoData,
			"insufficient funding data", nil).
			WithContext("symbol", symbol).
			WithContext("period", period.Format(time.RFC3339)).
			WithContext("responded", len(event.Readings)).
			WithContext("quorum", quorum)
	}

	if !event.Complete {
		c.log.WithFields(logrus.Fields{
			"symbol":  symbol,
			"period":  period.Format(time.RFC3339),
			"missing": event.Missing,
		}).Warn("Proceeding with partial funding data")
	}
	return event, nil
}

// Candles fetches the price window bracketing period from the configured
// candle source exchange.
func (c *Collector) Candles(ctx context.Context, symbol string, period time.Time) ([]exchange.Candle, error) {
	source, err := c.sourceClient()
	if err != nil {
		return nil, err
	}

	from := period.Add(-c.cfg.WindowBefore)
	to := period.Add(c.cfg.WindowAfter)
	candles, err := source.Candles(ctx, symbol, c.cfg.CandleInterval, from, to)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrCodeDataUnavailable, "fetch candle window")
	}
	return candles, nil
}

// OrderBook fetches the current order book snapshot from the candle source
// exchange at the configured depth.
func (c *Collector) OrderBook(ctx context.Context, symbol string) (*exchange.OrderBookSnapshot, error) {
	source, err := c.sourceClient()
	if err != nil {
		return nil, err
	}
	return source.OrderBook(ctx, symbol, c.cfg.OrderBookDepth)
}

func (c *Collector) sourceClient() (exchange.Client, error) {
	for _, client := range c.clients {
		if client.Name() == c.cfg.CandleSource {
			return client, nil
		}
	}
	return nil, apperrors.NewAppErrorWithDetails(apperrors.ErrCodeInvalidInput,
		"candle source not configured", c.cfg.CandleSource, nil)
}
