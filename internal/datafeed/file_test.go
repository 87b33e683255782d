package datafeed

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

func writeBarFile(t *testing.T, dir, symbol string, bars []types.Bar) {
	t.Helper()
	raw, err := json.Marshal(bars)
	if err != nil {
		t.Fatalf("marshal bars: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, symbol+".json"), raw, 0o644); err != nil {
		t.Fatalf("write bar file: %v", err)
	}
}

func testBars(symbol string, count int) []types.Bar {
	bars := make([]types.Bar, count)
	for i := range bars {
		price := decimal.NewFromInt(int64(2700 + i))
		bars[i] = types.Bar{
			Symbol: symbol,
			Date:   time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
			Open:   price,
			High:   price.Add(decimal.NewFromInt(5)),
			Low:    price.Sub(decimal.NewFromInt(5)),
			Close:  price,
			Volume: 1000,
		}
	}
	return bars
}

func TestFileFeedBarsWindow(t *testing.T) {
	dir := t.TempDir()
	writeBarFile(t, dir, "GC", testBars("GC", 30))
	feed := NewFileFeed(zap.NewNop(), dir, types.AccountSummary{})

	asOf := time.Date(2026, 1, 25, 0, 0, 0, 0, time.UTC)
	bars, err := feed.Bars(context.Background(), "GC", asOf, 10)
	if err != nil {
		t.Fatalf("Bars failed: %v", err)
	}
	if len(bars) != 10 {
		t.Fatalf("expected 10 bars, got %d", len(bars))
	}
	last := bars[len(bars)-1]
	if last.Date.After(asOf) {
		t.Errorf("bar after asOf leaked in: %v", last.Date)
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Date.After(bars[i-1].Date) {
			t.Errorf("bars not in ascending order at %d", i)
		}
	}
}

func TestFileFeedCurrentPrice(t *testing.T) {
	dir := t.TempDir()
	writeBarFile(t, dir, "GC", testBars("GC", 5))
	feed := NewFileFeed(zap.NewNop(), dir, types.AccountSummary{})

	price, err := feed.CurrentPrice(context.Background(), "GC")
	if err != nil {
		t.Fatalf("CurrentPrice failed: %v", err)
	}
	if !price.Equal(decimal.NewFromInt(2704)) {
		t.Errorf("expected last close 2704, got %s", price)
	}
}

func TestFileFeedMissingSymbol(t *testing.T) {
	feed := NewFileFeed(zap.NewNop(), t.TempDir(), types.AccountSummary{})

	_, err := feed.Bars(context.Background(), "XX", time.Now(), 10)
	if !errors.Is(err, types.ErrDataSourceUnavailable) {
		t.Fatalf("expected ErrDataSourceUnavailable, got %v", err)
	}
}

func TestFailoverOnOutage(t *testing.T) {
	primaryDir := t.TempDir()
	secondaryDir := t.TempDir()
	writeBarFile(t, secondaryDir, "GC", testBars("GC", 5))

	primary := NewFileFeed(zap.NewNop(), primaryDir, types.AccountSummary{})
	secondary := NewFileFeed(zap.NewNop(), secondaryDir, types.AccountSummary{})
	feed := NewFailoverFeed(zap.NewNop(), primary, secondary)

	bars, err := feed.Bars(context.Background(), "GC", time.Now(), 5)
	if err != nil {
		t.Fatalf("failover should serve from secondary: %v", err)
	}
	if len(bars) != 5 {
		t.Errorf("expected 5 bars from secondary, got %d", len(bars))
	}
}

func TestFailoverSkipsNonOutageErrors(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "GC.json"), []byte("not json"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	secondaryDir := t.TempDir()
	writeBarFile(t, secondaryDir, "GC", testBars("GC", 5))

	primary := NewFileFeed(zap.NewNop(), dir, types.AccountSummary{})
	secondary := NewFileFeed(zap.NewNop(), secondaryDir, types.AccountSummary{})
	feed := NewFailoverFeed(zap.NewNop(), primary, secondary)

	if _, err := feed.Bars(context.Background(), "GC", time.Now(), 5); err == nil {
		t.Fatal("parse error should propagate, not fail over")
	}
}
