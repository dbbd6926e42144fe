package exchange

import (
	"testing"
	"time"
)

func TestCandleWellFormed(t *testing.T) {
	base := Candle{Symbol: "BTCUSDT", Open: 100, High: 110, Low: 95, Close: 105, Volume: 12.5}
	if !base.WellFormed() {
		t.Error("Expected well-formed candle")
	}

	cases := []struct {
		name   string
		mutate func(c Candle) Candle
	}{
		{"zero open", func(c Candle) Candle { c.Open = 0; return c }},
		{"negative close", func(c Candle) Candle { c.Close = -1; return c }},
		{"high below close", func(c Candle) Candle { c.High = 104; return c }},
		{"low above open", func(c Candle) Candle { c.Low = 101; return c }},
		{"negative volume", func(c Candle) Candle { c.Volume = -1; return c }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.mutate(base).WellFormed() {
				t.Error("Expected malformed candle")
			}
		})
	}
}

func TestFundingBoundaries(t *testing.T) {
	interval := 8 * time.Hour

	t.Run("align mid-interval", func(t *testing.T) {
		at := time.Date(2023, 12, 12, 3, 27, 11, 0, time.UTC)
		want := time.Date(2023, 12, 12, 0, 0, 0, 0, time.UTC)
		if got := AlignPeriod(at, interval); !got.Equal(want) {
			t.Errorf("AlignPeriod = %v, want %v", got, want)
		}
	})

	t.Run("align on boundary", func(t *testing.T) {
		at := time.Date(2023, 12, 12, 8, 0, 0, 0, time.UTC)
		if got := AlignPeriod(at, interval); !got.Equal(at) {
			t.Errorf("AlignPeriod = %v, want %v", got, at)
		}
	})

	t.Run("next boundary", func(t *testing.T) {
		at := time.Date(2023, 12, 12, 8, 0, 0, 0, time.UTC)
		want := time.Date(2023, 12, 12, 16, 0, 0, 0, time.UTC)
		if got := NextFundingTime(at, interval); !got.Equal(want) {
			t.Errorf("NextFundingTime = %v, want %v", got, want)
		}
	})

	t.Run("4h interval", func(t *testing.T) {
		at := time.Date(2023, 12, 12, 13, 59, 0, 0, time.UTC)
		want := time.Date(2023, 12, 12, 12, 0, 0, 0, time.UTC)
		if got := AlignPeriod(at, 4*time.Hour); !got.Equal(want) {
			t.Errorf("AlignPeriod = %v, want %v", got, want)
		}
	})
}

func TestOrderBookSpread(t *testing.T) {
	book := &OrderBookSnapshot{
		Symbol: "BTCUSDT",
		Bids:   []Level{{Price: 42949.5, Quantity: 1.2}, {Price: 42949.0, Quantity: 0.8}},
		Asks:   []Level{{Price: 42950.5, Quantity: 0.5}, {Price: 42951.0, Quantity: 2.1}},
	}

	if got := book.Spread(); got != 1.0 {
		t.Errorf("Spread = %v, want 1.0", got)
	}
	if got := book.BestBid(); got != 42949.5 {
		t.Errorf("BestBid = %v, want 42949.5", got)
	}

	empty := &OrderBookSnapshot{Symbol: "BTCUSDT"}
	if got := empty.Spread(); got != 0 {
		t.Errorf("Spread on empty book = %v, want 0", got)
	}
}
