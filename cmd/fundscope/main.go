package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"fundscope/internal/analyzer"
	"fundscope/internal/api"
	"fundscope/internal/cache"
	"fundscope/internal/collector"
	"fundscope/internal/config"
	"fundscope/internal/database"
	"fundscope/internal/exchange"
	"fundscope/internal/exchange/binance"
	"fundscope/internal/exchange/bitget"
	"fundscope/internal/exchange/bybit"
	"fundscope/internal/logger"
	"fundscope/internal/monitor"
	"fundscope/internal/pipeline"
	"fundscope/internal/scheduler"
	"fundscope/internal/sink"
)

func main() {
	var (
		configFile = flag.String("config", "configs/config.yaml", "Configuration file path")
		envFile    = flag.String("env", ".env", "Environment file path")
	)
	flag.Parse()

	config.LoadEnvFile(*envFile)
	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg := logger.New(cfg.Logging)
	logg.WithField("env", cfg.App.Env).Infof("Starting %s %s", cfg.App.Name, cfg.App.Version)

	db, err := database.New(cfg.Database)
	if err != nil {
		logg.WithError(err).Fatal("Database connection failed")
	}
	defer db.Close()
	if err := db.Migrate(cfg.Database.MigrationsPath); err != nil {
		logg.WithError(err).Fatal("Schema migration failed")
	}

	cacher, err := cache.NewCacher(cfg.Redis)
	if err != nil {
		logg.WithError(err).Fatal("Cache connection failed")
	}
	defer cacher.Close()

	clients, err := buildClients(cfg.Exchanges)
	if err != nil {
		logg.WithError(err).Fatal("Exchange client setup failed")
	}

	metrics := monitor.NewMetricsCollector()
	col := collector.New(clients, cfg.Collector, metrics, logg)
	an := analyzer.New(cfg.Analyzer, logg)
	store := sink.NewCachedSink(sink.NewPostgresSink(db), cacher, cfg.Sink.CacheTTL, logg)
	pipe := pipeline.New(col, an, store, metrics, cfg.Analyzer, logg)

	intervals, err := intervalSource(clients, cfg.Collector.CandleSource)
	if err != nil {
		logg.WithError(err).Fatal("Scheduler setup failed")
	}
	sched := scheduler.New(pipe, intervals, cfg.Scheduler, metrics, logg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sched.Start(ctx); err != nil {
		logg.WithError(err).Fatal("Scheduler start failed")
	}

	watcher := startFundingWatcher(cfg, logg)
	var snapshotter api.Snapshotter
	if watcher != nil {
		snapshotter = watcher
	}

	checks := map[string]api.HealthChecker{
		"database": db,
		"cache":    cacher,
	}
	server := api.NewServer(cfg.Server, store, sched, snapshotter, checks, logg)
	go func() {
		if err := server.Start(); err != nil {
			logg.WithError(err).Fatal("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logg.WithField("signal", sig.String()).Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.WithError(err).Warn("HTTP shutdown incomplete")
	}
	if watcher != nil {
		watcher.Stop()
	}
	sched.Stop()
	logg.Info("Shutdown complete")
}

// buildClients creates a client for every enabled exchange, in stable order.
func buildClients(cfgs config.ExchangesConfig) ([]exchange.Client, error) {
	names := make([]string, 0, len(cfgs))
	for name, ec := range cfgs {
		if ec.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	clients := make([]exchange.Client, 0, len(names))
	for _, name := range names {
		ec := cfgs[name]
		switch name {
		case "bitget":
			clients = append(clients, bitget.NewClient(ec))
		case "binance":
			clients = append(clients, binance.NewClient(ec))
		case "bybit":
			clients = append(clients, bybit.NewClient(ec))
		default:
			return nil, fmt.Errorf("unknown exchange %q", name)
		}
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("no exchange clients enabled")
	}
	return clients, nil
}

// intervalSource picks the funding-interval authority for the scheduler,
// preferring the candle source exchange.
func intervalSource(clients []exchange.Client, candleSource string) (scheduler.IntervalSource, error) {
	for _, client := range clients {
		if client.Name() == candleSource {
			return client, nil
		}
	}
	if len(clients) > 0 {
		return clients[0], nil
	}
	return nil, fmt.Errorf("no exchange clients available")
}

// startFundingWatcher begins streaming live mark-price funding estimates
// from Binance when its websocket endpoint is configured.
func startFundingWatcher(cfg *config.Config, logg *logrus.Logger) *binance.FundingWatcher {
	ec, ok := cfg.Exchanges["binance"]
	if !ok || !ec.Enabled || ec.WSURL == "" || len(cfg.Scheduler.Symbols) == 0 {
		return nil
	}
	watcher := binance.NewFundingWatcher(ec.WSURL, cfg.Scheduler.Symbols, logg)
	watcher.Start()
	return watcher
}
