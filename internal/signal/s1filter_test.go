package signal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

type stubHistory struct {
	trade *types.Trade
	err   error
}

func (s *stubHistory) LastClosedTrade(_ context.Context, _ string, _ types.System) (*types.Trade, error) {
	return s.trade, s.err
}

func closedTrade(netPnL float64) *types.Trade {
	exit := time.Now()
	pnl := decimal.NewFromFloat(netPnL)
	return &types.Trade{
		ID:       "trade-1",
		Symbol:   "GC",
		System:   types.SystemOne,
		ExitDate: &exit,
		NetPnL:   &pnl,
	}
}

func s1Signal() types.Signal {
	return types.Signal{Symbol: "GC", System: types.SystemOne, Direction: types.DirectionLong}
}

func TestFilterSkipsAfterWinner(t *testing.T) {
	f := NewS1Filter(zap.NewNop(), &stubHistory{trade: closedTrade(5000)})

	v, err := f.Check(context.Background(), s1Signal())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if v.Take {
		t.Errorf("signal should be skipped after winning s1 trade, reason=%q", v.Reason)
	}
}

func TestFilterTakesAfterLoser(t *testing.T) {
	f := NewS1Filter(zap.NewNop(), &stubHistory{trade: closedTrade(-3000)})

	v, err := f.Check(context.Background(), s1Signal())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !v.Take {
		t.Errorf("signal should pass after losing s1 trade, reason=%q", v.Reason)
	}
}

func TestFilterTakesWithoutHistory(t *testing.T) {
	f := NewS1Filter(zap.NewNop(), &stubHistory{})

	v, err := f.Check(context.Background(), s1Signal())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !v.Take {
		t.Errorf("first-ever signal should pass, reason=%q", v.Reason)
	}
}

func TestFilterNeverBlocksS2(t *testing.T) {
	// Even with a winning prior trade on the books, S2 passes.
	f := NewS1Filter(zap.NewNop(), &stubHistory{trade: closedTrade(5000)})

	sig := s1Signal()
	sig.System = types.SystemTwo
	v, err := f.Check(context.Background(), sig)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !v.Take {
		t.Errorf("s2 must never be filtered, reason=%q", v.Reason)
	}
}

func TestFilterPropagatesHistoryError(t *testing.T) {
	wantErr := errors.New("db down")
	f := NewS1Filter(zap.NewNop(), &stubHistory{err: wantErr})

	if _, err := f.Check(context.Background(), s1Signal()); !errors.Is(err, wantErr) {
		t.Fatalf("expected history error, got %v", err)
	}
}
