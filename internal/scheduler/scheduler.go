package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"fundscope/internal/analyzer"
	"fundscope/internal/config"
	apperrors "fundscope/internal/errors"
	"fundscope/internal/exchange"
	"fundscope/internal/monitor"
	"fundscope/internal/sink"
)

// RunState is the lifecycle state of a symbol's collection runs.
type RunState string

const (
	StateIdle      RunState = "idle"
	StateRunning   RunState = "running"
	StateSucceeded RunState = "succeeded"
	StateFailed    RunState = "failed"
)

// Runner executes one collection run. Satisfied by pipeline.Pipeline.
type Runner interface {
	Run(ctx context.Context, symbol string, period time.Time) (*analyzer.Record, sink.Outcome, error)
}

// IntervalSource resolves a symbol's funding settlement interval. Satisfied
// by any exchange client.
type IntervalSource interface {
	FundingInterval(ctx context.Context, symbol string) (time.Duration, error)
}

type symbolState struct {
	state    RunState
	lastRun  string
	lastErr  error
	alerting bool
}

// Scheduler owns run lifecycle state per symbol. A symbol has at most one
// run in flight: a tick that fires while a run is executing is dropped and
// counted, never queued. Failed runs are retried with exponential backoff up
// to the configured attempt ceiling, after which the symbol's alert is
// raised until the next successful run.
type Scheduler struct {
	runner    Runner
	intervals IntervalSource
	cfg       config.SchedulerConfig
	metrics   *monitor.MetricsCollector
	log       *logrus.Logger

	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	states map[string]*symbolState
}

// New creates a Scheduler for the configured symbols. metrics may be nil.
func New(runner Runner, intervals IntervalSource, cfg config.SchedulerConfig, metrics *monitor.MetricsCollector, log *logrus.Logger) *Scheduler {
	states := make(map[string]*symbolState, len(cfg.Symbols))
	for _, symbol := range cfg.Symbols {
		states[symbol] = &symbolState{state: StateIdle}
	}
	return &Scheduler{
		runner:    runner,
		intervals: intervals,
		cfg:       cfg,
		metrics:   metrics,
		log:       log,
		states:    states,
	}
}

// Start begins triggering runs. Trigger mode is chosen from configuration:
// a cron expression when set, a fixed interval when positive, otherwise each
// symbol is woken at its own funding settlement boundary.
func (s *Scheduler) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	switch {
	case s.cfg.Cron != "":
		s.cron = cron.New()
		_, err := s.cron.AddFunc(s.cfg.Cron, func() { s.tickAll(ctx) })
		if err != nil {
			return apperrors.WrapError(err, apperrors.ErrCodeInvalidInput, "parse cron expression")
		}
		s.cron.Start()
	case s.cfg.Interval > 0:
		s.wg.Add(1)
		go s.intervalLoop(ctx)
	default:
		for _, symbol := range s.cfg.Symbols {
			s.wg.Add(1)
			go s.boundaryLoop(ctx, symbol)
		}
	}

	s.log.WithField("symbols", s.cfg.Symbols).Info("Scheduler started")
	return nil
}

// Stop cancels triggering and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.Info("Scheduler stopped")
}

// State returns the current run state for a symbol.
func (s *Scheduler) State(symbol string) RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[symbol]; ok {
		return st.state
	}
	return StateIdle
}

// PeriodAt returns the funding settlement boundary covering at for a symbol,
// resolved against the symbol's settlement interval.
func (s *Scheduler) PeriodAt(ctx context.Context, symbol string, at time.Time) time.Time {
	return exchange.AlignPeriod(at, s.fundingInterval(ctx, symbol))
}

// RunNow triggers a synchronous run for (symbol, period), bypassing the
// trigger loops but honoring the one-run-per-symbol invariant.
func (s *Scheduler) RunNow(ctx context.Context, symbol string, period time.Time) (*analyzer.Record, sink.Outcome, error) {
	if !s.beginRun(symbol) {
		return nil, "", apperrors.NewAppError(apperrors.ErrCodeSchedulerOverrun,
			"run already in flight", nil).WithContext("symbol", symbol)
	}

	runCtx := ctx
	if s.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
		defer cancel()
	}
	record, outcome, err := s.runner.Run(runCtx, symbol, period)
	s.finishRun(symbol, err)
	return record, outcome, err
}

func (s *Scheduler) intervalLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tickAll(ctx)
		}
	}
}

// boundaryLoop wakes a symbol at each of its funding settlement boundaries.
func (s *Scheduler) boundaryLoop(ctx context.Context, symbol string) {
	defer s.wg.Done()
	for {
		interval := s.fundingInterval(ctx, symbol)
		next := exchange.NextFundingTime(time.Now(), interval)
		// Small grace period so the exchanges have settled the rate
		wait := time.Until(next.Add(15 * time.Second))

		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
			s.trigger(ctx, symbol, next)
		}
	}
}

func (s *Scheduler) tickAll(ctx context.Context) {
	for _, symbol := range s.cfg.Symbols {
		interval := s.fundingInterval(ctx, symbol)
		s.trigger(ctx, symbol, exchange.AlignPeriod(time.Now(), interval))
	}
}

func (s *Scheduler) fundingInterval(ctx context.Context, symbol string) time.Duration {
	interval, err := s.intervals.FundingInterval(ctx, symbol)
	if err != nil || interval <= 0 {
		return 8 * time.Hour
	}
	return interval
}

// trigger starts an asynchronous run unless one is already in flight for the
// symbol, in which case the tick is dropped and counted.
func (s *Scheduler) trigger(ctx context.Context, symbol string, period time.Time) {
	if !s.beginRun(symbol) {
		if s.metrics != nil {
			s.metrics.ObserveTickSkipped(symbol)
		}
		s.log.WithFields(logrus.Fields{
			"symbol": symbol,
			"period": period.Format(time.RFC3339),
		}).Warn("Dropping tick, run still in flight")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(ctx, symbol, period)
	}()
}

// execute drives one run to a terminal state, retrying transient failures
// with exponential backoff up to the attempt ceiling.
func (s *Scheduler) execute(ctx context.Context, symbol string, period time.Time) {
	runID := uuid.New().String()
	log := s.log.WithFields(logrus.Fields{
		"run_id": runID,
		"symbol": symbol,
		"period": period.Format(time.RFC3339),
	})
	s.setLastRun(symbol, runID)

	start := time.Now()
	policy := s.retryPolicy()

	attempt := 0
	err := exchange.WithRetry(ctx, func(ctx context.Context) error {
		attempt++
		runCtx := ctx
		if s.cfg.RunTimeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, s.cfg.RunTimeout)
			defer cancel()
		}
		_, _, runErr := s.runner.Run(runCtx, symbol, period)
		if runErr != nil && apperrors.IsRetryable(runErr) && attempt <= policy.MaxRetries {
			log.WithError(runErr).WithField("attempt", attempt).Warn("Run failed, retrying")
		}
		return runErr
	}, policy)

	if err == nil {
		s.finishRun(symbol, nil)
		if s.metrics != nil {
			s.metrics.ObserveRun(symbol, string(StateSucceeded), time.Since(start))
			s.metrics.SetAlert(symbol, false)
		}
		log.WithField("attempts", attempt).Info("Run succeeded")
		return
	}
	if ctx.Err() != nil {
		s.finishRun(symbol, ctx.Err())
		return
	}

	if apperrors.IsRetryable(err) {
		log.WithError(err).WithField("attempts", attempt).Error("Run exhausted its attempts")
	} else {
		log.WithError(err).Error("Run failed with terminal error")
	}
	s.finishRun(symbol, err)
	s.raiseAlert(symbol)
	if s.metrics != nil {
		s.metrics.ObserveRun(symbol, string(StateFailed), time.Since(start))
		s.metrics.SetAlert(symbol, true)
	}
}

// retryPolicy maps the scheduler configuration onto the shared retry policy.
// Jitter is left at zero so boundary-triggered runs stay aligned.
func (s *Scheduler) retryPolicy() *exchange.RetryConfig {
	policy := exchange.DefaultRetryConfig()
	policy.Jitter = 0
	policy.MaxRetries = 0
	if s.cfg.MaxAttempts > 1 {
		policy.MaxRetries = s.cfg.MaxAttempts - 1
	}
	if s.cfg.InitialBackoff > 0 {
		policy.InitialWait = s.cfg.InitialBackoff
	}
	if s.cfg.MaxBackoff > 0 {
		policy.MaxWait = s.cfg.MaxBackoff
	}
	return policy
}

func (s *Scheduler) beginRun(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[symbol]
	if !ok {
		st = &symbolState{state: StateIdle}
		s.states[symbol] = st
	}
	if st.state == StateRunning {
		return false
	}
	st.state = StateRunning
	return true
}

func (s *Scheduler) finishRun(symbol string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.states[symbol]
	st.lastErr = err
	if err != nil {
		st.state = StateFailed
		return
	}
	st.state = StateIdle
	st.alerting = false
}

func (s *Scheduler) setLastRun(symbol, runID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[symbol].lastRun = runID
}

func (s *Scheduler) raiseAlert(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[symbol].alerting = true
}

// Alerting reports whether a symbol has exhausted its retry budget without
// a subsequent successful run.
func (s *Scheduler) Alerting(symbol string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.states[symbol]; ok {
		return st.alerting
	}
	return false
}
