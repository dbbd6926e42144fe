package analyzer

import (
	"math"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestSMA(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}

	t.Run("trailing window", func(t *testing.T) {
		v, ok := SMA(closes, 3)
		if !ok {
			t.Fatal("Expected SMA to be computable")
		}
		if v != 4 {
			t.Errorf("Expected 4, got %v", v)
		}
	})

	t.Run("full window", func(t *testing.T) {
		v, ok := SMA(closes, 5)
		if !ok || v != 3 {
			t.Errorf("Expected 3, got %v (ok=%v)", v, ok)
		}
	})

	t.Run("insufficient data", func(t *testing.T) {
		if _, ok := SMA(closes, 6); ok {
			t.Error("Expected failure with period > len")
		}
	})
}

func TestEMA(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 10}
	ema := EMA(closes, 3)
	if ema == nil {
		t.Fatal("Expected EMA series")
	}
	// Constant series keeps its value after the SMA seed
	for i := 2; i < len(ema); i++ {
		if ema[i] != 10 {
			t.Errorf("Expected 10 at index %d, got %v", i, ema[i])
		}
	}

	// Seed is the SMA of the first period values
	seeded := EMA([]float64{1, 2, 3, 4}, 3)
	if seeded[2] != 2 {
		t.Errorf("Expected seed 2, got %v", seeded[2])
	}
	// Next value: (4 - 2) * 0.5 + 2 = 3
	if seeded[3] != 3 {
		t.Errorf("Expected 3, got %v", seeded[3])
	}
}

func TestRSI(t *testing.T) {
	t.Run("all gains", func(t *testing.T) {
		closes := make([]float64, 20)
		for i := range closes {
			closes[i] = 100 + float64(i)
		}
		v, ok := RSI(closes, 14)
		if !ok {
			t.Fatal("Expected RSI to be computable")
		}
		if v != 100 {
			t.Errorf("Expected 100 for monotonic gains, got %v", v)
		}
	})

	t.Run("balanced moves", func(t *testing.T) {
		// Equal alternating gains and losses keep RSI near the midline
		closes := make([]float64, 21)
		closes[0] = 100
		for i := 1; i < len(closes); i++ {
			if i%2 == 1 {
				closes[i] = closes[i-1] + 1
			} else {
				closes[i] = closes[i-1] - 1
			}
		}
		v, ok := RSI(closes, 14)
		if !ok {
			t.Fatal("Expected RSI to be computable")
		}
		if v < 45 || v > 55 {
			t.Errorf("Expected RSI near 50, got %v", v)
		}
	})

	t.Run("insufficient data", func(t *testing.T) {
		if _, ok := RSI([]float64{1, 2, 3}, 14); ok {
			t.Error("Expected failure with short series")
		}
	})
}

func TestMACD(t *testing.T) {
	t.Run("constant series is flat", func(t *testing.T) {
		closes := make([]float64, 40)
		for i := range closes {
			closes[i] = 42950
		}
		v, ok := MACD(closes, 12, 26)
		if !ok {
			t.Fatal("Expected MACD to be computable")
		}
		if v != 0 {
			t.Errorf("Expected 0 for constant series, got %v", v)
		}
	})

	t.Run("uptrend is positive", func(t *testing.T) {
		closes := make([]float64, 40)
		for i := range closes {
			closes[i] = 100 + float64(i)*2
		}
		v, ok := MACD(closes, 12, 26)
		if !ok || v <= 0 {
			t.Errorf("Expected positive MACD in an uptrend, got %v (ok=%v)", v, ok)
		}
	})

	t.Run("insufficient data", func(t *testing.T) {
		if _, ok := MACD([]float64{1, 2}, 12, 26); ok {
			t.Error("Expected failure with short series")
		}
	})
}

func TestSampleStdDev(t *testing.T) {
	v, ok := SampleStdDev([]float64{1, 2, 3, 4})
	if !ok {
		t.Fatal("Expected stddev to be computable")
	}
	if !almostEqual(v, math.Sqrt(5.0/3.0), 1e-12) {
		t.Errorf("Expected %v, got %v", math.Sqrt(5.0/3.0), v)
	}

	if _, ok := SampleStdDev([]float64{1}); ok {
		t.Error("Expected failure with a single value")
	}
}
