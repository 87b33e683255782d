package equity

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

func newTracker(initial int64) *DrawdownTracker {
	return NewDrawdownTracker(zap.NewNop(), types.DefaultRules(), decimal.NewFromInt(initial))
}

func TestNoDrawdownNoReduction(t *testing.T) {
	tr := newTracker(100_000)

	snap := tr.Update(decimal.NewFromInt(95_000), time.Now())
	if snap.ReductionSteps != 0 {
		t.Errorf("5%% drawdown should not trigger, got %d steps", snap.ReductionSteps)
	}
	if !snap.NotionalEquity.Equal(decimal.NewFromInt(95_000)) {
		t.Errorf("notional should equal actual: %s", snap.NotionalEquity)
	}
}

func TestSingleReductionStep(t *testing.T) {
	tr := newTracker(100_000)

	// 12% off the peak: one 20% cut, 88,000 * 0.8 = 70,400.
	snap := tr.Update(decimal.NewFromInt(88_000), time.Now())
	if snap.ReductionSteps != 1 {
		t.Fatalf("expected 1 reduction step, got %d", snap.ReductionSteps)
	}
	if !snap.NotionalEquity.Equal(decimal.NewFromInt(70_400)) {
		t.Errorf("notional incorrect: expected 70400, got %s", snap.NotionalEquity)
	}
	if !snap.PeakEquity.Equal(decimal.NewFromInt(100_000)) {
		t.Errorf("peak should hold at 100000, got %s", snap.PeakEquity)
	}
}

func TestReductionStepsAreLinear(t *testing.T) {
	tr := newTracker(100_000)

	// 25% off the peak: two steps subtract 40% from the multiplier,
	// 75,000 * (1 - 2*0.20) = 45,000. The steps add, they do not
	// compound.
	snap := tr.Update(decimal.NewFromInt(75_000), time.Now())
	if snap.ReductionSteps != 2 {
		t.Fatalf("expected 2 reduction steps, got %d", snap.ReductionSteps)
	}
	if !snap.NotionalEquity.Equal(decimal.NewFromInt(45_000)) {
		t.Errorf("notional incorrect: expected 45000, got %s", snap.NotionalEquity)
	}
}

func TestNotionalFloor(t *testing.T) {
	tr := newTracker(100_000)

	// 55% off the peak: five steps would drive the multiplier to zero,
	// clamped at the 40% floor: 45,000 * 0.4 = 18,000.
	snap := tr.Update(decimal.NewFromInt(45_000), time.Now())
	if !snap.NotionalEquity.Equal(decimal.NewFromInt(18_000)) {
		t.Errorf("notional should be floored at 18000, got %s", snap.NotionalEquity)
	}
}

func TestRecoveryResetsReduction(t *testing.T) {
	tr := newTracker(100_000)

	tr.Update(decimal.NewFromInt(88_000), time.Now())

	// New peak: reduction clears and the peak advances.
	snap := tr.Update(decimal.NewFromInt(105_000), time.Now())
	if snap.ReductionSteps != 0 {
		t.Errorf("recovery should clear reduction, got %d steps", snap.ReductionSteps)
	}
	if !snap.NotionalEquity.Equal(decimal.NewFromInt(105_000)) {
		t.Errorf("notional should equal new peak: %s", snap.NotionalEquity)
	}
	if !snap.PeakEquity.Equal(decimal.NewFromInt(105_000)) {
		t.Errorf("peak should advance to 105000, got %s", snap.PeakEquity)
	}
}

func TestPartialRecoveryKeepsPeak(t *testing.T) {
	tr := newTracker(100_000)

	tr.Update(decimal.NewFromInt(75_000), time.Now())
	snap := tr.Update(decimal.NewFromInt(92_000), time.Now())

	// 8% off the original peak: no reduction, but the peak is unchanged.
	if snap.ReductionSteps != 0 {
		t.Errorf("8%% drawdown should not trigger, got %d steps", snap.ReductionSteps)
	}
	if !snap.PeakEquity.Equal(decimal.NewFromInt(100_000)) {
		t.Errorf("peak should remain 100000, got %s", snap.PeakEquity)
	}
}
