package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"fundscope/internal/analyzer"
	"fundscope/internal/collector"
	"fundscope/internal/config"
	apperrors "fundscope/internal/errors"
	"fundscope/internal/monitor"
	"fundscope/internal/sink"
)

// Pipeline executes one end-to-end collection run: collect funding readings,
// fetch the price window, derive the record and store it idempotently.
type Pipeline struct {
	collector *collector.Collector
	analyzer  *analyzer.Analyzer
	sink      sink.Sink
	metrics   *monitor.MetricsCollector
	cfg       config.AnalyzerConfig
	log       *logrus.Logger
}

// New wires a Pipeline from its stages. metrics may be nil in tests.
func New(col *collector.Collector, an *analyzer.Analyzer, snk sink.Sink, metrics *monitor.MetricsCollector, cfg config.AnalyzerConfig, log *logrus.Logger) *Pipeline {
	return &Pipeline{
		collector: col,
		analyzer:  an,
		sink:      snk,
		metrics:   metrics,
		cfg:       cfg,
		log:       log,
	}
}

// Run produces and stores the record for (symbol, period). The funding event
// and candle window are required; the order book sample and correlated
// symbols are best effort and their failures only degrade the record.
func (p *Pipeline) Run(ctx context.Context, symbol string, period time.Time) (*analyzer.Record, sink.Outcome, error) {
	start := time.Now()

	event, err := p.collector.Collect(ctx, symbol, period)
	if err != nil {
		return nil, "", err
	}

	candles, err := p.collector.Candles(ctx, symbol, period)
	if err != nil {
		return nil, "", err
	}

	book, err := p.collector.OrderBook(ctx, symbol)
	if err != nil {
		p.log.WithError(err).WithField("symbol", symbol).
			Warn("Order book sample unavailable, continuing without liquidity snapshot")
		book = nil
	}

	record, err := p.analyzer.Analyze(event, candles, book, p.correlatedInputs(ctx, symbol, period))
	if err != nil {
		return nil, "", err
	}

	outcome, err := p.sink.Store(ctx, record)
	if err != nil {
		return nil, "", err
	}
	if p.metrics != nil {
		p.metrics.ObserveStore(symbol, string(outcome))
	}

	fields := logrus.Fields{
		"symbol":  symbol,
		"period":  period.Format(time.RFC3339),
		"outcome": string(outcome),
		"elapsed": time.Since(start).String(),
	}
	if outcome == sink.OutcomeConflict {
		p.log.WithFields(fields).Warn("Analysis conflicts with stored record, keeping original")
	} else {
		p.log.WithFields(fields).Info("Collection run finished")
	}
	return record, outcome, nil
}

// correlatedInputs collects funding and candles for each configured
// correlated symbol. Failures are logged and the symbol is carried with an
// empty input so the record still names it.
func (p *Pipeline) correlatedInputs(ctx context.Context, symbol string, period time.Time) map[string]analyzer.CorrelatedInput {
	inputs := make(map[string]analyzer.CorrelatedInput, len(p.cfg.CorrelatedSymbols))
	for _, correlated := range p.cfg.CorrelatedSymbols {
		if correlated == symbol {
			continue
		}
		input := analyzer.CorrelatedInput{}
		event, err := p.collector.Collect(ctx, correlated, period)
		if err != nil {
			if !apperrors.IsCode(err, apperrors.ErrCodeNoData) {
				p.log.WithError(err).WithField("symbol", correlated).
					Warn("Correlated funding collection failed")
			}
			inputs[correlated] = input
			continue
		}
		input.Event = event

		candles, err := p.collector.Candles(ctx, correlated, period)
		if err != nil {
			p.log.WithError(err).WithField("symbol", correlated).
				Warn("Correlated candle window unavailable")
		} else {
			input.Candles = candles
		}
		inputs[correlated] = input
	}
	return inputs
}
