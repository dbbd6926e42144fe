package bitget

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

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

	t.Run("found in history", func(t *testing.T) {
		client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/v2/mix/market/history-fund-rate" {
				t.Errorf("Unexpected path %s", r.URL.Path)
			}
			fmt.Fprintf(w, `{"code":"00000","msg":"success","data":[
				{"symbol":"BTCUSDT","fundingRate":"0.000125","fundingTime":"%d"},
				{"symbol":"BTCUSDT","fundingRate":"0.0001","fundingTime":"%d"}
			]}`, period.UnixMilli(), period.Add(-8*time.Hour).UnixMilli())
		}))

		reading, err := client.FundingRate(context.Background(), "BTCUSDT", period)
		if err != nil {
			t.Fatalf("FundingRate failed: %v", err)
		}
		if reading.Exchange != "bitget" {
			t.Errorf("Expected exchange bitget, got %s", reading.Exchange)
		}
		// Raw rate 0.000125 is reported as percent
		if reading.Rate != 0.0125 {
			t.Errorf("Expected rate 0.0125, got %v", reading.Rate)
		}
		if !reading.Period.Equal(period) {
			t.Errorf("Expected period %v, got %v", period, reading.Period)
		}
	})

	t.Run("period not settled", func(t *testing.T) {
		client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `{"code":"00000","msg":"success","data":[
				{"symbol":"BTCUSDT","fundingRate":"0.0001","fundingTime":"%d"}
			]}`, period.Add(-8*time.Hour).UnixMilli())
		}))

		_, err := client.FundingRate(context.Background(), "BTCUSDT", period)
		if !apperrors.IsCode(err, apperrors.ErrCodeDataUnavailable) {
			t.Errorf("Expected DATA_UNAVAILABLE, got %v", err)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))

		_, err := client.FundingRate(context.Background(), "BTCUSDT", period)
		if !apperrors.IsCode(err, apperrors.ErrCodeRateLimited) {
			t.Errorf("Expected RATE_LIMITED, got %v", err)
		}
		if !apperrors.IsRetryable(err) {
			t.Error("Rate limit errors must be retryable")
		}
	})

	t.Run("server error is transient", func(t *testing.T) {
		client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))

		_, err := client.FundingRate(context.Background(), "BTCUSDT", period)
		if !apperrors.IsCode(err, apperrors.ErrCodeTransientNetwork) {
			t.Errorf("Expected TRANSIENT_NETWORK_ERROR, got %v", err)
		}
	})
}

func TestCandles(t *testing.T) {
	from := time.Date(2023, 12, 11, 23, 59, 0, 0, time.UTC)
	to := from.Add(7 * time.Minute)

	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("granularity"); got != "1m" {
			t.Errorf("Expected granularity 1m, got %s", got)
		}
		fmt.Fprintf(w, `{"code":"00000","msg":"success","data":[
			["%d","42950.0","42960.0","42940.0","42950.0","120.5","5175000"],
			["%d","42950.0","43170.0","42945.0","43164.75","98.2","4230000"]
		]}`, from.UnixMilli(), from.Add(2*time.Minute).UnixMilli())
	}))

	candles, err := client.Candles(context.Background(), "BTCUSDT", time.Minute, from, to)
	if err != nil {
		t.Fatalf("Candles failed: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("Expected 2 candles, got %d", len(candles))
	}
	if !candles[0].Timestamp.Before(candles[1].Timestamp) {
		t.Error("Candles must be ordered ascending")
	}
	if candles[1].Close != 43164.75 {
		t.Errorf("Expected close 43164.75, got %v", candles[1].Close)
	}
	if candles[0].Volume != 120.5 {
		t.Errorf("Expected volume 120.5, got %v", candles[0].Volume)
	}
}

func TestOrderBook(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":"00000","msg":"success","data":{
			"bids":[["42949.5","1.2"],["42949.0","0.8"]],
			"asks":[["42950.5","0.5"],["42951.0","2.1"]],
			"ts":"1702339200000"
		}}`)
	}))

	book, err := client.OrderBook(context.Background(), "BTCUSDT", 20)
	if err != nil {
		t.Fatalf("OrderBook failed: %v", err)
	}
	if got := book.Spread(); got != 1.0 {
		t.Errorf("Expected spread 1.0, got %v", got)
	}
	if len(book.Bids) != 2 || len(book.Asks) != 2 {
		t.Errorf("Expected 2x2 levels, got %dx%d", len(book.Bids), len(book.Asks))
	}
}

func TestFundingIntervalDetection(t *testing.T) {
	now := time.Date(2023, 12, 12, 0, 0, 0, 0, time.UTC)

	t.Run("detects 4h spacing", func(t *testing.T) {
		calls := 0
		client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			fmt.Fprintf(w, `{"code":"00000","msg":"success","data":[
				{"symbol":"DOGEUSDT","fundingRate":"0.0001","fundingTime":"%d"},
				{"symbol":"DOGEUSDT","fundingRate":"0.0001","fundingTime":"%d"}
			]}`, now.UnixMilli(), now.Add(-4*time.Hour).UnixMilli())
		}))
		client.fundingInterval = 0 // force detection

		interval, err := client.FundingInterval(context.Background(), "DOGEUSDT")
		if err != nil {
			t.Fatalf("FundingInterval failed: %v", err)
		}
		if interval != 4*time.Hour {
			t.Errorf("Expected 4h, got %v", interval)
		}

		// Second call served from the per-symbol cache
		if _, err := client.FundingInterval(context.Background(), "DOGEUSDT"); err != nil {
			t.Fatalf("FundingInterval (cached) failed: %v", err)
		}
		if calls != 1 {
			t.Errorf("Expected 1 HTTP call, got %d", calls)
		}
	})

	t.Run("config override wins", func(t *testing.T) {
		client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("No HTTP call expected when interval is configured")
		}))

		interval, err := client.FundingInterval(context.Background(), "BTCUSDT")
		if err != nil {
			t.Fatalf("FundingInterval failed: %v", err)
		}
		if interval != 8*time.Hour {
			t.Errorf("Expected configured 8h, got %v", interval)
		}
	})
}
