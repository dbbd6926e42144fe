package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fundscope/internal/config"
	apperrors "fundscope/internal/errors"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(config.ExchangeConfig{
		BaseURL:         srv.URL,
		FundingInterval: 8 * time.Hour,
		Timeout:         2 * time.Second,
	})
}

func TestFundingRate(t *testing.T) {
	period := time.Date(2023, 12, 12, 0, 0, 0, 0, time.UTC)

	t.Run("settled reading", func(t *testing.T) {
		client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/fapi/v1/fundingRate", r.URL.Path)
			require.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
			// Binance stamps this settlement 12ms past the boundary
			fmt.Fprintf(w, `[{"symbol":"BTCUSDT","fundingTime":%d,"fundingRate":"0.000142"}]`,
				period.UnixMilli()+12)
		}))

		reading, err := client.FundingRate(context.Background(), "BTCUSDT", period)
		require.NoError(t, err)
		assert.Equal(t, "binance", reading.Exchange)
		assert.InDelta(t, 0.0142, reading.Rate, 1e-12)
		assert.True(t, reading.Period.Equal(period))
	})

	t.Run("no reading for period", func(t *testing.T) {
		client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[]`)
		}))

		_, err := client.FundingRate(context.Background(), "BTCUSDT", period)
		assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDataUnavailable))
	})
}

func TestCandles(t *testing.T) {
	from := time.Date(2023, 12, 11, 23, 59, 0, 0, time.UTC)
	to := from.Add(7 * time.Minute)

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fapi/v1/klines", r.URL.Path)
		require.Equal(t, "1m", r.URL.Query().Get("interval"))
		fmt.Fprintf(w, `[
			[%d,"42950.0","42960.0","42940.0","42950.0","120.5",%d,"5175000",100,"60.2","2590000","0"],
			[%d,"42950.0","43170.0","42945.0","43164.75","98.2",%d,"4230000",90,"49.1","2115000","0"]
		]`, from.UnixMilli(), from.Add(time.Minute).UnixMilli()-1,
			from.Add(2*time.Minute).UnixMilli(), from.Add(3*time.Minute).UnixMilli()-1)
	}))

	candles, err := client.Candles(context.Background(), "BTCUSDT", time.Minute, from, to)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, 42950.0, candles[0].Close)
	assert.Equal(t, 43164.75, candles[1].Close)
	assert.True(t, candles[0].Timestamp.Equal(from))
	assert.True(t, candles[0].WellFormed())
}

func TestOrderBook(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/fapi/v1/depth", r.URL.Path)
		fmt.Fprint(w, `{
			"lastUpdateId": 1027024,
			"E": 1702339200000,
			"T": 1702339200000,
			"bids": [["42949.5","1.2"]],
			"asks": [["42950.5","0.5"]]
		}`)
	}))

	book, err := client.OrderBook(context.Background(), "BTCUSDT", 20)
	require.NoError(t, err)
	assert.Equal(t, 42949.5, book.BestBid())
	assert.Equal(t, 42950.5, book.BestAsk())
	assert.Equal(t, 1.0, book.Spread())
}

func TestIntervalFor(t *testing.T) {
	cases := []struct {
		interval time.Duration
		want     string
	}{
		{time.Minute, "1m"},
		{5 * time.Minute, "5m"},
		{time.Hour, "1h"},
		{24 * time.Hour, "1d"},
	}
	for _, tc := range cases {
		got, err := intervalFor(tc.interval)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
	_, err := intervalFor(7 * time.Second)
	assert.Error(t, err)
}
