package scheduler

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"fundscope/internal/analyzer"
	"fundscope/internal/config"
	apperrors "fundscope/internal/errors"
	"fundscope/internal/sink"
)

var testPeriod = time.Date(2023, 12, 12, 0, 0, 0, 0, time.UTC)

type fakeRunner struct {
	mu    sync.Mutex
	calls int
	errs  []error
	block chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, symbol string, period time.Time) (*analyzer.Record, sink.Outcome, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.mu.Unlock()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}
	if call < len(f.errs) && f.errs[call] != nil {
		return nil, "", f.errs[call]
	}
	record := &analyzer.Record{
		Version:   analyzer.RecordVersion,
		Period:    period,
		PriceData: analyzer.PriceData{Symbol: symbol},
	}
	return record, sink.OutcomeStored, nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixedIntervals struct{}

func (fixedIntervals) FundingInterval(ctx context.Context, symbol string) (time.Duration, error) {
	return 8 * time.Hour, nil
}

func newTestScheduler(runner Runner, cfg config.SchedulerConfig) *Scheduler {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return New(runner, fixedIntervals{}, cfg, nil, log)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Condition not reached in time")
}

func TestOverlappingTickDropped(t *testing.T) {
	runner := &fakeRunner{block: make(chan struct{})}
	s := newTestScheduler(runner, config.SchedulerConfig{
		Symbols:     []string{"BTCUSDT"},
		MaxAttempts: 1,
	})
	ctx := context.Background()

	s.trigger(ctx, "BTCUSDT", testPeriod)
	waitFor(t, func() bool { return s.State("BTCUSDT") == StateRunning })

	// Second tick while the first run is in flight must be dropped
	s.trigger(ctx, "BTCUSDT", testPeriod)
	if got := runner.callCount(); got != 1 {
		t.Errorf("Expected 1 run, got %d", got)
	}

	close(runner.block)
	s.Stop()
	if got := runner.callCount(); got != 1 {
		t.Errorf("Dropped tick must not be queued, got %d runs", got)
	}
	if s.State("BTCUSDT") != StateIdle {
		t.Errorf("Expected idle after completion, got %s", s.State("BTCUSDT"))
	}
}

func TestRetryAfterTransientFailure(t *testing.T) {
	transient := apperrors.NewAppError(apperrors.ErrCodeTransientNetwork, "flaky", nil)
	runner := &fakeRunner{errs: []error{transient, nil}}
	s := newTestScheduler(runner, config.SchedulerConfig{
		Symbols:        []string{"BTCUSDT"},
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})

	s.trigger(context.Background(), "BTCUSDT", testPeriod)
	s.Stop()

	if got := runner.callCount(); got != 2 {
		t.Errorf("Expected 2 attempts, got %d", got)
	}
	if s.Alerting("BTCUSDT") {
		t.Error("Successful retry must not leave the symbol alerting")
	}
	if s.State("BTCUSDT") != StateIdle {
		t.Errorf("Expected idle, got %s", s.State("BTCUSDT"))
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	transient := apperrors.NewAppError(apperrors.ErrCodeTransientNetwork, "flaky", nil)
	runner := &fakeRunner{errs: []error{transient, transient, transient}}
	s := newTestScheduler(runner, config.SchedulerConfig{
		Symbols:        []string{"BTCUSDT"},
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
	})

	s.trigger(context.Background(), "BTCUSDT", testPeriod)
	s.Stop()

	if got := runner.callCount(); got != 2 {
		t.Errorf("Expected attempts capped at 2, got %d", got)
	}
	if !s.Alerting("BTCUSDT") {
		t.Error("Exhausted retry budget must raise the alert")
	}
	if s.State("BTCUSDT") != StateFailed {
		t.Errorf("Expected failed, got %s", s.State("BTCUSDT"))
	}
}

func TestTerminalErrorNotRetried(t *testing.T) {
	terminal := apperrors.NewAppError(apperrors.ErrCodeInsufficientHistory, "no candles", nil)
	runner := &fakeRunner{errs: []error{terminal, terminal}}
	s := newTestScheduler(runner, config.SchedulerConfig{
		Symbols:        []string{"BTCUSDT"},
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	})

	s.trigger(context.Background(), "BTCUSDT", testPeriod)
	s.Stop()

	if got := runner.callCount(); got != 1 {
		t.Errorf("Terminal errors must not be retried, got %d attempts", got)
	}
}

func TestRetryPolicyFromConfig(t *testing.T) {
	s := newTestScheduler(&fakeRunner{}, config.SchedulerConfig{
		Symbols:        []string{"BTCUSDT"},
		MaxAttempts:    4,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	})

	policy := s.retryPolicy()
	if policy.MaxRetries != 3 {
		t.Errorf("Expected 3 retries from 4 attempts, got %d", policy.MaxRetries)
	}
	if policy.InitialWait != 250*time.Millisecond {
		t.Errorf("Unexpected initial wait %v", policy.InitialWait)
	}
	if policy.MaxWait != 10*time.Second {
		t.Errorf("Unexpected max wait %v", policy.MaxWait)
	}
	if policy.Jitter != 0 {
		t.Errorf("Scheduler backoff must not jitter, got %v", policy.Jitter)
	}

	t.Run("single attempt floor", func(t *testing.T) {
		s := newTestScheduler(&fakeRunner{}, config.SchedulerConfig{Symbols: []string{"BTCUSDT"}})
		if got := s.retryPolicy().MaxRetries; got != 0 {
			t.Errorf("Unset attempt budget must mean one attempt, got %d retries", got)
		}
	})
}

type variableIntervals struct{ interval time.Duration }

func (v variableIntervals) FundingInterval(ctx context.Context, symbol string) (time.Duration, error) {
	return v.interval, nil
}

func TestPeriodAt(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := config.SchedulerConfig{Symbols: []string{"BTCUSDT"}}
	at := time.Date(2023, 12, 12, 13, 59, 0, 0, time.UTC)

	t.Run("4h settlement", func(t *testing.T) {
		s := New(&fakeRunner{}, variableIntervals{interval: 4 * time.Hour}, cfg, nil, log)
		want := time.Date(2023, 12, 12, 12, 0, 0, 0, time.UTC)
		if got := s.PeriodAt(context.Background(), "BTCUSDT", at); !got.Equal(want) {
			t.Errorf("PeriodAt = %v, want %v", got, want)
		}
	})

	t.Run("8h settlement", func(t *testing.T) {
		s := New(&fakeRunner{}, variableIntervals{interval: 8 * time.Hour}, cfg, nil, log)
		want := time.Date(2023, 12, 12, 8, 0, 0, 0, time.UTC)
		if got := s.PeriodAt(context.Background(), "BTCUSDT", at); !got.Equal(want) {
			t.Errorf("PeriodAt = %v, want %v", got, want)
		}
	})
}

func TestRunNow(t *testing.T) {
	t.Run("synchronous run", func(t *testing.T) {
		runner := &fakeRunner{}
		s := newTestScheduler(runner, config.SchedulerConfig{
			Symbols:     []string{"BTCUSDT"},
			MaxAttempts: 1,
		})

		record, outcome, err := s.RunNow(context.Background(), "BTCUSDT", testPeriod)
		if err != nil {
			t.Fatalf("RunNow failed: %v", err)
		}
		if outcome != sink.OutcomeStored {
			t.Errorf("Expected stored, got %s", outcome)
		}
		if record.Symbol() != "BTCUSDT" {
			t.Errorf("Unexpected record symbol %s", record.Symbol())
		}
	})

	t.Run("rejected while run in flight", func(t *testing.T) {
		runner := &fakeRunner{block: make(chan struct{})}
		s := newTestScheduler(runner, config.SchedulerConfig{
			Symbols:     []string{"BTCUSDT"},
			MaxAttempts: 1,
		})

		s.trigger(context.Background(), "BTCUSDT", testPeriod)
		waitFor(t, func() bool { return s.State("BTCUSDT") == StateRunning })

		_, _, err := s.RunNow(context.Background(), "BTCUSDT", testPeriod)
		if !apperrors.IsCode(err, apperrors.ErrCodeSchedulerOverrun) {
			t.Errorf("Expected SCHEDULER_OVERRUN, got %v", err)
		}

		close(runner.block)
		s.Stop()
	})
}
