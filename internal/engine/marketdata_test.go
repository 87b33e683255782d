package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/internal/indicator"
	"github.com/donchian-labs/turtle-engine/pkg/types"
)

func newTestBuilder(feed *fakeFeed, repo *fakeRepo) *MarketDataBuilder {
	logger := zap.NewNop()
	validator := indicator.NewBarValidator(logger, decimal.NewFromFloat(0.20))
	return NewMarketDataBuilder(logger, types.DefaultRules(), feed, repo, validator)
}

func TestBuildChannelsExcludeLatestBar(t *testing.T) {
	feed := newFakeFeed(1_000_000)
	repo := newFakeRepo()
	bars := flatBars("GC", 70)
	// The latest session spikes to 120; the channel must still read
	// from the completed days before it.
	bars[len(bars)-1].High = decimal.NewFromInt(120)
	bars[len(bars)-1].Close = decimal.NewFromInt(118)
	feed.bars["GC"] = bars
	feed.prices["GC"] = decimal.NewFromInt(118)

	md, err := newTestBuilder(feed, repo).Build(context.Background(), spec("GC", "metals"), time.Now())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !md.Donchian20.Upper.Equal(decimal.NewFromInt(110)) {
		t.Errorf("20-day upper should exclude the live bar: got %s, want 110", md.Donchian20.Upper)
	}
}

func TestBuildFoldsMissedBars(t *testing.T) {
	feed := newFakeFeed(1_000_000)
	repo := newFakeRepo()

	// 70 flat bars (TR 10), then three wide sessions (TR 15) the
	// scanner never saw. The persisted N sits on the last flat bar.
	bars := flatBars("GC", 70)
	lastFlat := bars[len(bars)-1].Date
	for i := 1; i <= 3; i++ {
		bars = append(bars, types.Bar{
			Symbol: "GC",
			Date:   lastFlat.AddDate(0, 0, i),
			Open:   decimal.NewFromInt(105),
			High:   decimal.NewFromInt(115),
			Low:    decimal.NewFromInt(100),
			Close:  decimal.NewFromInt(105),
			Volume: 5000,
		})
	}
	feed.bars["GC"] = bars
	feed.prices["GC"] = decimal.NewFromInt(105)
	repo.latestN["GC"] = &types.NValue{
		Value:        decimal.NewFromInt(10),
		Period:       20,
		Method:       types.ATRMethodWilders,
		CalculatedAt: lastFlat,
	}

	md, err := newTestBuilder(feed, repo).Build(context.Background(), spec("GC", "metals"), time.Now())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// Three Wilder steps with TR 15: 10 -> 10.25 -> 10.4875 -> 10.713125.
	// Folding only the newest bar would leave N at 10.25.
	want := decimal.RequireFromString("10.713125")
	if !md.N.Value.Equal(want) {
		t.Errorf("N incorrect after gap: got %s, want %s", md.N.Value, want)
	}
}

func TestBuildReseedsWhenGapExceedsWindow(t *testing.T) {
	feed := newFakeFeed(1_000_000)
	repo := newFakeRepo()
	bars := flatBars("GC", 70)
	feed.bars["GC"] = bars
	feed.prices["GC"] = decimal.NewFromInt(105)

	// Persisted N predates every fetched bar; the walk has no bridge,
	// so the builder reseeds from scratch.
	repo.latestN["GC"] = &types.NValue{
		Value:        decimal.NewFromInt(37),
		Period:       20,
		Method:       types.ATRMethodWilders,
		CalculatedAt: bars[0].Date.AddDate(0, 0, -30),
	}

	md, err := newTestBuilder(feed, repo).Build(context.Background(), spec("GC", "metals"), time.Now())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !md.N.Value.Equal(decimal.NewFromInt(10)) {
		t.Errorf("expected reseeded N 10, got %s", md.N.Value)
	}
}
