package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"fundscope/internal/exchange"
)

// FundingSnapshot is the live funding estimate from the mark-price stream
type FundingSnapshot struct {
	Symbol          string    `json:"symbol"`
	MarkPrice       float64   `json:"mark_price"`
	PredictedRate   float64   `json:"predicted_rate"`
	NextFundingTime time.Time `json:"next_funding_time"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// FundingWatcher keeps the latest funding estimate per symbol from the
// Binance futures mark-price stream. It is advisory only: the collector
// always fetches settled rates over REST, the watcher just lets the
// scheduler and API see the next funding boundary without polling.
type FundingWatcher struct {
	wsURL   string
	symbols []string
	log     *logrus.Entry

	mu        sync.RWMutex
	snapshots map[string]FundingSnapshot

	cancel context.CancelFunc
	done   chan struct{}
}

// NewFundingWatcher creates a watcher for the given symbols
func NewFundingWatcher(wsURL string, symbols []string, log *logrus.Logger) *FundingWatcher {
	if wsURL == "" {
		wsURL = "wss://fstream.binance.com/stream"
	}
	return &FundingWatcher{
		wsURL:     wsURL,
		symbols:   symbols,
		log:       log.WithField("component", "funding_watcher"),
		snapshots: make(map[string]FundingSnapshot),
		done:      make(chan struct{}),
	}
}

// Start launches the stream loop; reconnects with backoff until Stop
func (w *FundingWatcher) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	go func() {
		defer close(w.done)
		wait := time.Second
		for {
			if err := w.stream(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				w.log.WithError(err).Warn("mark price stream disconnected, reconnecting")
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			if wait < 30*time.Second {
				wait *= 2
			}
		}
	}()
}

// Stop shuts the watcher down and waits for the stream loop to exit
func (w *FundingWatcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	<-w.done
}

// Snapshot returns the latest funding estimate for a symbol
func (w *FundingWatcher) Snapshot(symbol string) (FundingSnapshot, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	snap, ok := w.snapshots[symbol]
	return snap, ok
}

// NextFundingTime returns the exchange-announced next settlement time for
// a symbol, falling back to boundary alignment when the stream has no data.
func (w *FundingWatcher) NextFundingTime(symbol string, interval time.Duration) time.Time {
	if snap, ok := w.Snapshot(symbol); ok && !snap.NextFundingTime.IsZero() {
		return snap.NextFundingTime
	}
	return exchange.NextFundingTime(time.Now(), interval)
}

type markPriceEvent struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType       string `json:"e"`
		EventTime       int64  `json:"E"`
		Symbol          string `json:"s"`
		MarkPrice       string `json:"p"`
		FundingRate     string `json:"r"`
		NextFundingTime int64  `json:"T"`
	} `json:"data"`
}

func (w *FundingWatcher) stream(ctx context.Context) error {
	streams := make([]string, 0, len(w.symbols))
	for _, s := range w.symbols {
		streams = append(streams, strings.ToLower(s)+"@markPrice")
	}
	endpoint := fmt.Sprintf("%s?streams=%s", w.wsURL, strings.Join(streams, "/"))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to dial mark price stream: %w", err)
	}
	defer conn.Close()

	// Unblock ReadJSON on shutdown
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	w.log.WithField("symbols", w.symbols).Info("mark price stream connected")

	for {
		var event markPriceEvent
		if err := conn.ReadJSON(&event); err != nil {
			return err
		}
		if event.Data.EventType != "markPriceUpdate" {
			continue
		}

		markPrice, _ := strconv.ParseFloat(event.Data.MarkPrice, 64)
		rate, _ := strconv.ParseFloat(event.Data.FundingRate, 64)

		w.mu.Lock()
		w.snapshots[event.Data.Symbol] = FundingSnapshot{
			Symbol:          event.Data.Symbol,
			MarkPrice:       markPrice,
			PredictedRate:   rate * 100,
			NextFundingTime: time.UnixMilli(event.Data.NextFundingTime).UTC(),
			UpdatedAt:       time.UnixMilli(event.Data.EventTime).UTC(),
		}
		w.mu.Unlock()
	}
}
