package backtester

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/internal/datafeed"
	"github.com/donchian-labs/turtle-engine/pkg/types"
)

var baseDay = time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)

func day(i int) time.Time { return baseDay.AddDate(0, 0, i) }

func bar(symbol string, i int, close float64) types.Bar {
	c := decimal.NewFromFloat(close)
	return types.Bar{
		Symbol: symbol,
		Date:   day(i),
		Open:   c.Sub(decimal.NewFromInt(1)),
		High:   c.Add(decimal.NewFromInt(2)),
		Low:    c.Sub(decimal.NewFromInt(2)),
		Close:  c,
		Volume: 10_000,
	}
}

// trendSeries builds a base, a breakout trend and a crash: 80 flat
// days in [100, 110], 15 days rising 5 a day, 15 days falling 8 a day.
func trendSeries(symbol string) []types.Bar {
	var bars []types.Bar
	for i := 0; i < 80; i++ {
		bars = append(bars, types.Bar{
			Symbol: symbol,
			Date:   day(i),
			Open:   decimal.NewFromInt(105),
			High:   decimal.NewFromInt(110),
			Low:    decimal.NewFromInt(100),
			Close:  decimal.NewFromInt(105),
			Volume: 10_000,
		})
	}
	price := 105.0
	for i := 80; i < 95; i++ {
		price += 5
		bars = append(bars, bar(symbol, i, price))
	}
	for i := 95; i < 110; i++ {
		price -= 8
		bars = append(bars, bar(symbol, i, price))
	}
	return bars
}

func writeBarFile(t *testing.T, dir, symbol string, bars []types.Bar) {
	t.Helper()
	data, err := json.Marshal(bars)
	if err != nil {
		t.Fatalf("marshal bars: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, symbol+".json"), data, 0o644); err != nil {
		t.Fatalf("write bar file: %v", err)
	}
}

func TestBacktestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeBarFile(t, dir, "GC", trendSeries("GC"))

	logger := zap.NewNop()
	feed := datafeed.NewFileFeed(logger, dir, types.AccountSummary{})
	bt := New(logger, feed)

	cfg := Config{
		Start:         day(75),
		End:           day(109),
		InitialEquity: decimal.NewFromInt(1_000_000),
		Commission:    decimal.NewFromFloat(2.50),
		Rules:         types.DefaultRules(),
		Universe: []types.MarketSpec{{
			Symbol:           "GC",
			PointValue:       decimal.NewFromInt(100),
			TickSize:         decimal.NewFromFloat(0.10),
			CorrelationGroup: "metals",
			AssetClass:       "futures",
			Active:           true,
		}},
	}

	result, err := bt.Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Days != 35 {
		t.Errorf("expected 35 trading days, got %d", result.Days)
	}
	if len(result.EquityCurve) != result.Days {
		t.Errorf("curve length %d != days %d", len(result.EquityCurve), result.Days)
	}
	if len(result.Trades) == 0 {
		t.Fatal("the trend should have produced at least one round trip")
	}

	trade := result.Trades[0]
	if trade.System != types.SystemOne && trade.System != types.SystemTwo {
		t.Errorf("trade has no system: %+v", trade)
	}
	if trade.ExitReason == "" {
		t.Error("closed trade missing exit reason")
	}
	if trade.NetPnL == nil {
		t.Fatal("closed trade missing net pnl")
	}
	// Riding a 75-point trend with a trailing 2N stop should settle
	// profitable even after the crash.
	if !trade.NetPnL.IsPositive() {
		t.Errorf("expected a winning trend trade, net pnl %s", trade.NetPnL)
	}
	if len(trade.PyramidLevels) < 2 {
		t.Errorf("trend should have pyramided, got %d levels", len(trade.PyramidLevels))
	}

	if result.Stats.TotalTrades != len(result.Trades) {
		t.Errorf("stats count %d != trades %d", result.Stats.TotalTrades, len(result.Trades))
	}
	if result.Stats.MaxDrawdown.IsNegative() {
		t.Errorf("max drawdown negative: %s", result.Stats.MaxDrawdown)
	}

	if result.OpenPositions == 0 {
		want := cfg.InitialEquity.Add(result.Stats.NetPnL)
		if !result.FinalEquity.Equal(want) {
			t.Errorf("final equity %s, want initial+net %s", result.FinalEquity, want)
		}
	}
}

func TestBacktestRejectsEmptyRange(t *testing.T) {
	dir := t.TempDir()
	writeBarFile(t, dir, "GC", trendSeries("GC"))

	logger := zap.NewNop()
	bt := New(logger, datafeed.NewFileFeed(logger, dir, types.AccountSummary{}))

	cfg := Config{
		Start:         day(10),
		End:           day(5),
		InitialEquity: decimal.NewFromInt(100_000),
		Rules:         types.DefaultRules(),
		Universe:      []types.MarketSpec{{Symbol: "GC", PointValue: decimal.NewFromInt(100), TickSize: decimal.NewFromFloat(0.10), Active: true}},
	}
	if _, err := bt.Run(context.Background(), cfg); err == nil {
		t.Fatal("inverted range should fail")
	}

	cfg.End = day(20)
	cfg.Universe = nil
	if _, err := bt.Run(context.Background(), cfg); err == nil {
		t.Fatal("empty universe should fail")
	}
}
