package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/allendforbes/0dte-bot-v2-sub000/internal/chain"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/config"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/contracts"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/decision"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/decisionlog"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/feed"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/gate"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/mandate"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/observ"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/selector"
	"github.com/allendforbes/0dte-bot-v2-sub000/internal/signal"
)

func main() {
	configPath := flag.String("config", "config/engine.yaml", "path to engine config")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observ.InitLogging(cfg.Logging.Level, cfg.Logging.Format)

	dlog, err := decisionlog.New(cfg.DecisionLog.Dir, cfg.DecisionLog.Phase)
	if err != nil {
		return err
	}
	defer dlog.Close()

	agg := chain.NewAggregator(cfg.Symbols)
	for symbol, w := range cfg.DeltaWindow {
		agg.SetDeltaWindow(symbol, w)
	}

	// The sim feed stands in for the venue websocket; a live adapter
	// implements the same callbacks.
	sim := feed.NewSimFeed()
	sink := &feed.RecordingSink{}
	calendar := &feed.SameDayCalendar{Symbols: cfg.Symbols}

	pcfg := cfg.Pipeline
	pcfg.Vwap = cfg.Vwap
	pcfg.Trail = cfg.Trail

	eng := decision.NewEngine(pcfg, decision.Deps{
		Aggregator: agg,
		Freshness:  chain.NewFreshnessMonitor(cfg.Freshness),
		Contracts:  contracts.NewEngine(cfg.Contracts, calendar, sink),
		Mandates:   mandate.NewEngine(cfg.Mandate),
		Signals:    signal.NewBuilder(cfg.Signal),
		Selector:   selector.NewSelector(cfg.Selector),
		Gate:       gate.NewGate(cfg.Gate),
		Sizer:      &feed.PremiumSizer{ExposurePct: cfg.Risk.ExposurePct, MaxContract: cfg.Risk.MaxContract},
		Log:        dlog,
	})

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sim.OnTick(func(t feed.UnderlyingTick) { eng.OnUnderlying(ctx, t) })
	sim.OnOptionTick(func(t feed.OptionTick) { eng.OnOption(ctx, t) })
	sim.OnHeartbeat(eng.OnHeartbeat)

	mux := http.NewServeMux()
	mux.Handle("/metrics", observ.Handler())
	srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			observ.Warn("metrics_server_failed", map[string]any{"error": err.Error()})
		}
	}()

	observ.Log("engine_started", map[string]any{
		"symbols": cfg.Symbols,
		"phase":   cfg.DecisionLog.Phase,
		"metrics": cfg.MetricsAddr,
	})

	<-ctx.Done()
	observ.Log("engine_stopping", nil)
	return srv.Shutdown(context.Background())
}
