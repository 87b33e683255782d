package broker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

type fixedQuoter struct {
	price decimal.Decimal
	err   error
}

func (q *fixedQuoter) CurrentPrice(_ context.Context, _ string) (decimal.Decimal, error) {
	return q.price, q.err
}

func TestPaperFillAtQuote(t *testing.T) {
	p := NewPaper(zap.NewNop(), &fixedQuoter{price: decimal.NewFromInt(2805)})

	fill, err := p.PlaceBracketOrder(context.Background(), BracketOrder{
		Symbol:    "GC",
		Direction: types.DirectionLong,
		Contracts: 2,
		StopPrice: decimal.NewFromInt(2760),
	})
	if err != nil {
		t.Fatalf("PlaceBracketOrder failed: %v", err)
	}
	if !fill.Price.Equal(decimal.NewFromInt(2805)) {
		t.Errorf("fill price incorrect: %s", fill.Price)
	}
	if fill.Contracts != 2 {
		t.Errorf("fill contracts incorrect: %d", fill.Contracts)
	}

	positions, err := p.Positions(context.Background())
	if err != nil {
		t.Fatalf("Positions failed: %v", err)
	}
	if len(positions) != 1 || positions[0].Contracts != 2 {
		t.Errorf("position state incorrect: %+v", positions)
	}
}

func TestPaperRejectsOppositeDirection(t *testing.T) {
	p := NewPaper(zap.NewNop(), &fixedQuoter{price: decimal.NewFromInt(2805)})

	if _, err := p.PlaceBracketOrder(context.Background(), BracketOrder{
		Symbol: "GC", Direction: types.DirectionLong, Contracts: 1, StopPrice: decimal.NewFromInt(2760),
	}); err != nil {
		t.Fatalf("first order failed: %v", err)
	}

	_, err := p.PlaceBracketOrder(context.Background(), BracketOrder{
		Symbol: "GC", Direction: types.DirectionShort, Contracts: 1, StopPrice: decimal.NewFromInt(2850),
	})
	if !errors.Is(err, types.ErrBrokerRejected) {
		t.Fatalf("expected ErrBrokerRejected, got %v", err)
	}
}

func TestPaperClosePosition(t *testing.T) {
	p := NewPaper(zap.NewNop(), &fixedQuoter{price: decimal.NewFromInt(2805)})

	if _, err := p.PlaceBracketOrder(context.Background(), BracketOrder{
		Symbol: "GC", Direction: types.DirectionLong, Contracts: 3, StopPrice: decimal.NewFromInt(2760),
	}); err != nil {
		t.Fatalf("order failed: %v", err)
	}

	fill, err := p.ClosePosition(context.Background(), "GC")
	if err != nil {
		t.Fatalf("ClosePosition failed: %v", err)
	}
	if fill.Direction != types.DirectionShort || fill.Contracts != 3 {
		t.Errorf("closing fill incorrect: %+v", fill)
	}

	if _, err := p.ClosePosition(context.Background(), "GC"); !errors.Is(err, types.ErrBrokerRejected) {
		t.Fatalf("closing a flat symbol should reject, got %v", err)
	}
}

type flakyBroker struct {
	Broker
	failures    int
	placeCalls  int
	closeCalls  int
	cancelCalls int
	modifyCalls int
}

func (f *flakyBroker) PlaceBracketOrder(_ context.Context, order BracketOrder) (Fill, error) {
	f.placeCalls++
	if f.placeCalls <= f.failures {
		return Fill{}, fmt.Errorf("%w: gateway timeout", types.ErrBrokerTransient)
	}
	return Fill{Symbol: order.Symbol, Contracts: order.Contracts, Price: decimal.NewFromInt(2805)}, nil
}

func (f *flakyBroker) ClosePosition(_ context.Context, symbol string) (Fill, error) {
	f.closeCalls++
	if f.closeCalls <= f.failures {
		return Fill{}, fmt.Errorf("%w: gateway timeout", types.ErrBrokerTransient)
	}
	return Fill{Symbol: symbol, Contracts: 1, Price: decimal.NewFromInt(2805)}, nil
}

func (f *flakyBroker) CancelAllOrders(_ context.Context, _ string) error {
	f.cancelCalls++
	if f.cancelCalls <= f.failures {
		return fmt.Errorf("%w: gateway timeout", types.ErrBrokerTransient)
	}
	return nil
}

func (f *flakyBroker) ModifyStop(_ context.Context, _ string, _ decimal.Decimal) error {
	f.modifyCalls++
	return fmt.Errorf("%w: margin check failed", types.ErrBrokerRejected)
}

func TestRetryingRecoversFromTransient(t *testing.T) {
	flaky := &flakyBroker{failures: 2}
	r := NewRetrying(zap.NewNop(), flaky, 10*time.Second)

	if err := r.CancelAllOrders(context.Background(), "GC"); err != nil {
		t.Fatalf("retry should recover: %v", err)
	}
	if flaky.cancelCalls != 3 {
		t.Errorf("expected 3 attempts, got %d", flaky.cancelCalls)
	}
}

func TestRetryingStopsOnRejection(t *testing.T) {
	flaky := &flakyBroker{}
	r := NewRetrying(zap.NewNop(), flaky, 10*time.Second)

	err := r.ModifyStop(context.Background(), "GC", decimal.NewFromInt(2770))
	if !errors.Is(err, types.ErrBrokerRejected) {
		t.Fatalf("expected ErrBrokerRejected, got %v", err)
	}
	if flaky.modifyCalls != 1 {
		t.Errorf("rejection must not retry, got %d calls", flaky.modifyCalls)
	}
}

func TestAmbiguousEntryIsNotRetried(t *testing.T) {
	flaky := &flakyBroker{failures: 1}
	r := NewRetrying(zap.NewNop(), flaky, 10*time.Second)

	// The inner broker would fill on a second attempt, but a timed-out
	// entry may already sit at the venue; retrying risks a double fill.
	_, err := r.PlaceBracketOrder(context.Background(), BracketOrder{
		Symbol: "GC", Direction: types.DirectionLong, Contracts: 1, StopPrice: decimal.NewFromInt(2760),
	})
	if err == nil {
		t.Fatal("ambiguous entry must fail, not silently retry")
	}
	if !errors.Is(err, types.ErrReconciliationRequired) {
		t.Errorf("expected ErrReconciliationRequired, got %v", err)
	}
	if !errors.Is(err, types.ErrBrokerTransient) {
		t.Errorf("underlying transient cause should be preserved: %v", err)
	}
	if flaky.placeCalls != 1 {
		t.Errorf("entry must be attempted exactly once, got %d", flaky.placeCalls)
	}
}

func TestAmbiguousCloseIsNotRetried(t *testing.T) {
	flaky := &flakyBroker{failures: 1}
	r := NewRetrying(zap.NewNop(), flaky, 10*time.Second)

	_, err := r.ClosePosition(context.Background(), "GC")
	if !errors.Is(err, types.ErrReconciliationRequired) {
		t.Fatalf("expected ErrReconciliationRequired, got %v", err)
	}
	if flaky.closeCalls != 1 {
		t.Errorf("close must be attempted exactly once, got %d", flaky.closeCalls)
	}
}
