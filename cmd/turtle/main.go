// Package main is the turtle trading engine CLI. Four subcommands
// cover the operational surface:
//
//	setup-db   create or migrate the Postgres schema
//	daily-run  one scan of the universe for new entries
//	monitor    the continuous position monitor and status server
//	backtest   replay historical bars through the engine
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/donchian-labs/turtle-engine/internal/api"
	"github.com/donchian-labs/turtle-engine/internal/backtester"
	"github.com/donchian-labs/turtle-engine/internal/broker"
	"github.com/donchian-labs/turtle-engine/internal/config"
	"github.com/donchian-labs/turtle-engine/internal/datafeed"
	"github.com/donchian-labs/turtle-engine/internal/engine"
	"github.com/donchian-labs/turtle-engine/internal/equity"
	"github.com/donchian-labs/turtle-engine/internal/events"
	"github.com/donchian-labs/turtle-engine/internal/indicator"
	"github.com/donchian-labs/turtle-engine/internal/metrics"
	"github.com/donchian-labs/turtle-engine/internal/storage"
	"github.com/donchian-labs/turtle-engine/internal/workers"
	"github.com/donchian-labs/turtle-engine/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "setup-db":
		err = runSetupDB(os.Args[2:])
	case "daily-run":
		err = runDaily(os.Args[2:])
	case "monitor":
		err = runMonitor(os.Args[2:])
	case "backtest":
		err = runBacktest(os.Args[2:])
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: turtle <command> [flags]

commands:
  setup-db   create or migrate the database schema
  daily-run  scan the universe once for new entry signals
  monitor    run the position monitor loop and status server
  backtest   replay historical bars through the engine

run "turtle <command> -h" for command flags`)
}

// commonFlags registers the flags every command shares.
func commonFlags(fs *flag.FlagSet) (configPath, logLevel *string) {
	configPath = fs.String("config", "", "path to config file")
	logLevel = fs.String("log-level", "info", "log level (debug, info, warn, error)")
	return
}

func runSetupDB(args []string) error {
	fs := flag.NewFlagSet("setup-db", flag.ExitOnError)
	configPath, logLevel := commonFlags(fs)
	fs.Parse(args)

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	// Seed reference data so position restore can resolve specs.
	universe, err := config.LoadUniverse(cfg.UniverseFile)
	if err != nil {
		logger.Warn("universe file not loaded, markets table left as is", zap.Error(err))
	} else {
		for _, spec := range universe {
			if err := store.UpsertMarket(ctx, spec); err != nil {
				return err
			}
		}
		logger.Info("markets seeded", zap.Int("count", len(universe)))
	}

	logger.Info("schema ready")
	return nil
}

func runDaily(args []string) error {
	fs := flag.NewFlagSet("daily-run", flag.ExitOnError)
	configPath, logLevel := commonFlags(fs)
	dryRun := fs.Bool("dry-run", false, "detect and log signals without placing orders")
	symbols := fs.String("symbols", "", "comma-separated symbols (default: whole universe)")
	fs.Parse(args)

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	universe, err := config.LoadUniverse(cfg.UniverseFile)
	if err != nil {
		return err
	}
	universe, err = filterUniverse(universe, *symbols)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	store, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	eng, _, err := buildEngine(ctx, logger, cfg, store, events.SourceScanner, *dryRun, nil)
	if err != nil {
		return err
	}

	report, err := eng.Scan(ctx, universe, time.Now().UTC())
	if err != nil {
		return err
	}
	logger.Info("daily run complete",
		zap.Int("scanned", report.Scanned),
		zap.Int("signaled", report.Signaled),
		zap.Int("entered", report.Entered),
		zap.Int("errors", report.Errors),
		zap.Bool("dry_run", *dryRun),
	)
	return nil
}

func runMonitor(args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	configPath, logLevel := commonFlags(fs)
	once := fs.Bool("once", false, "run a single monitor cycle and exit")
	interval := fs.Duration("interval", 0, "override the check interval")
	listen := fs.String("listen", "", "override the status server address")
	fs.Parse(args)

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *interval > 0 {
		cfg.CheckInterval = *interval
	}
	if *listen != "" {
		cfg.Listen = *listen
	}

	ctx, cancel := signalContext()
	defer cancel()

	store, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	eng, bus, err := buildEngine(ctx, logger, cfg, store, events.SourceMonitor, false, registry)
	if err != nil {
		return err
	}

	if err := eng.Reconcile(ctx); err != nil {
		logger.Error("reconciliation flagged drift, halting", zap.Error(err))
		return err
	}

	if *once {
		report, err := eng.MonitorCycle(ctx)
		if err != nil {
			return err
		}
		logger.Info("single cycle complete",
			zap.Int("checked", report.Checked),
			zap.Int("exits", report.Exits),
			zap.Int("pyramids", report.Pyramids),
		)
		return nil
	}

	hub := api.NewHub(logger)
	go hub.Run(ctx, bus)

	server := api.NewServer(api.Options{
		Logger:   logger,
		Listen:   cfg.Listen,
		Engine:   eng,
		Alerts:   store,
		Registry: registry,
		Hub:      hub,
	})
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("status server failed", zap.Error(err))
		}
	}()

	eng.MonitorLoop(ctx, cfg.CheckInterval)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("status server shutdown failed", zap.Error(err))
	}
	logger.Info("monitor stopped")
	return nil
}

func runBacktest(args []string) error {
	fs := flag.NewFlagSet("backtest", flag.ExitOnError)
	configPath, logLevel := commonFlags(fs)
	startStr := fs.String("start", "", "start date (YYYY-MM-DD)")
	endStr := fs.String("end", "", "end date (YYYY-MM-DD)")
	equityStr := fs.String("equity", "1000000", "initial equity")
	symbols := fs.String("symbols", "", "comma-separated symbols (default: whole universe)")
	out := fs.String("out", "", "write the full result as JSON to this file")
	fs.Parse(args)

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	universe, err := config.LoadUniverse(cfg.UniverseFile)
	if err != nil {
		return err
	}
	universe, err = filterUniverse(universe, *symbols)
	if err != nil {
		return err
	}

	start, err := time.Parse("2006-01-02", *startStr)
	if err != nil {
		return fmt.Errorf("parsing -start: %w", err)
	}
	end, err := time.Parse("2006-01-02", *endStr)
	if err != nil {
		return fmt.Errorf("parsing -end: %w", err)
	}
	initialEquity, err := decimal.NewFromString(*equityStr)
	if err != nil {
		return fmt.Errorf("parsing -equity: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	feed := datafeed.NewFileFeed(logger, cfg.DataDir, types.AccountSummary{})
	bt := backtester.New(logger, feed)
	result, err := bt.Run(ctx, backtester.Config{
		Start:         start,
		End:           end,
		InitialEquity: initialEquity,
		Commission:    cfg.CommissionPer,
		Rules:         cfg.Rules,
		Universe:      universe,
	})
	if err != nil {
		return err
	}

	printBacktestSummary(result)
	if *out != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding result: %w", err)
		}
		if err := os.WriteFile(*out, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", *out, err)
		}
		logger.Info("result written", zap.String("path", *out))
	}
	return nil
}

func printBacktestSummary(r *backtester.Result) {
	fmt.Printf("period          %s .. %s (%d trading days)\n",
		r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"), r.Days)
	fmt.Printf("equity          %s -> %s\n", r.InitialEquity, r.FinalEquity)
	fmt.Printf("total return    %s\n", r.Stats.TotalReturn.Mul(decimal.NewFromInt(100)).Round(2))
	fmt.Printf("max drawdown    %s\n", r.Stats.MaxDrawdown.Mul(decimal.NewFromInt(100)).Round(2))
	fmt.Printf("trades          %d (%d open at end)\n", r.Stats.TotalTrades, r.OpenPositions)
	fmt.Printf("win rate        %s\n", r.Stats.WinRate.Mul(decimal.NewFromInt(100)).Round(1))
	fmt.Printf("profit factor   %s\n", r.Stats.ProfitFactor.Round(2))
	fmt.Printf("net pnl         %s\n", r.Stats.NetPnL.Round(2))
}

// buildEngine wires the production engine: file feed with optional
// failover, paper broker behind the retry wrapper, Postgres
// repository, and the audit event pipeline.
func buildEngine(ctx context.Context, logger *zap.Logger, cfg config.Config, store *storage.Store, source events.Source, dryRun bool, registry *prometheus.Registry) (*engine.Engine, *events.Bus, error) {
	account := types.AccountSummary{
		NetLiquidation: cfg.InitialEquity,
		Cash:           cfg.InitialEquity,
		Currency:       "USD",
		ReportedAt:     time.Now().UTC(),
	}

	var feed datafeed.Feed = datafeed.NewFileFeed(logger, cfg.DataDir, account)
	if cfg.BackupDataDir != "" {
		backup := datafeed.NewFileFeed(logger, cfg.BackupDataDir, account)
		feed = datafeed.NewFailoverFeed(logger, feed, backup)
	}

	paper := broker.NewPaper(logger, feedQuoter{feed})
	retrying := broker.NewRetrying(logger, paper, 30*time.Second)

	bus := events.NewBus(logger, cfg.EventBuffer)
	emitter := events.NewEmitter(logger, store, bus, source, dryRun)

	var m *metrics.Metrics
	if registry != nil {
		m = metrics.New(registry)
	}

	validator := indicator.NewBarValidator(logger, decimal.NewFromFloat(0.25))
	eng := engine.New(engine.Options{
		Logger:     logger,
		Rules:      cfg.Rules,
		Feed:       feed,
		Broker:     retrying,
		Repo:       store,
		Tracker:    equity.NewDrawdownTracker(logger, cfg.Rules, cfg.InitialEquity),
		Emitter:    emitter,
		Metrics:    m,
		Builder:    engine.NewMarketDataBuilder(logger, cfg.Rules, feed, store, validator),
		Pool:       workers.NewPool(logger, 8),
		Commission: cfg.CommissionPer,
		DryRun:     dryRun,
	})

	if err := eng.Restore(ctx); err != nil {
		return nil, nil, fmt.Errorf("restoring positions: %w", err)
	}
	return eng, bus, nil
}

// feedQuoter lets the paper broker price fills off the data feed.
type feedQuoter struct {
	feed datafeed.Feed
}

func (q feedQuoter) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return q.feed.CurrentPrice(ctx, symbol)
}

func filterUniverse(universe []types.MarketSpec, csv string) ([]types.MarketSpec, error) {
	if csv == "" {
		return universe, nil
	}
	want := make(map[string]bool)
	for _, s := range strings.Split(csv, ",") {
		if s = strings.TrimSpace(s); s != "" {
			want[s] = true
		}
	}
	var out []types.MarketSpec
	for _, spec := range universe {
		if want[spec.Symbol] {
			out = append(out, spec)
			delete(want, spec.Symbol)
		}
	}
	if len(want) > 0 {
		for sym := range want {
			return nil, fmt.Errorf("symbol %s not in universe file", sym)
		}
	}
	return out, nil
}

// signalContext cancels on SIGINT or SIGTERM. The monitor loop honors
// cancellation between cycles, so a single Ctrl-C is a clean stop.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
