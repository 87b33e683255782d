package equity

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// Snapshot is the equity state used for sizing: actual account value,
// the peak it is measured against, and the reduced notional value all
// unit sizing runs on.
type Snapshot struct {
	ActualEquity   decimal.Decimal `json:"actualEquity"`
	PeakEquity     decimal.Decimal `json:"peakEquity"`
	NotionalEquity decimal.Decimal `json:"notionalEquity"`
	Drawdown       decimal.Decimal `json:"drawdown"` // fraction off the peak
	ReductionSteps int             `json:"reductionSteps"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// DrawdownTracker scales notional equity down as the account falls
// from its peak. Every full trigger step of drawdown subtracts the
// reduction fraction from the notional multiplier, which never falls
// below the configured floor. A new equity peak resets the reduction.
type DrawdownTracker struct {
	mu     sync.RWMutex
	logger *zap.Logger
	rules  types.Rules
	state  Snapshot
}

func NewDrawdownTracker(logger *zap.Logger, rules types.Rules, initialEquity decimal.Decimal) *DrawdownTracker {
	return &DrawdownTracker{
		logger: logger,
		rules:  rules,
		state: Snapshot{
			ActualEquity:   initialEquity,
			PeakEquity:     initialEquity,
			NotionalEquity: initialEquity,
			UpdatedAt:      time.Now().UTC(),
		},
	}
}

// Update records the latest actual equity and recomputes the notional.
func (t *DrawdownTracker) Update(actual decimal.Decimal, asOf time.Time) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	peak := t.state.PeakEquity
	if actual.GreaterThan(peak) {
		peak = actual
	}

	drawdown := decimal.Zero
	if peak.IsPositive() {
		drawdown = peak.Sub(actual).Div(peak)
	}

	steps := 0
	if t.rules.DrawdownTrigger.IsPositive() {
		steps = int(drawdown.Div(t.rules.DrawdownTrigger).Floor().IntPart())
	}

	notional := actual
	if steps > 0 {
		multiplier := decimal.NewFromInt(1).
			Sub(decimal.NewFromInt(int64(steps)).Mul(t.rules.DrawdownReduction))
		if multiplier.LessThan(t.rules.NotionalFloor) {
			multiplier = t.rules.NotionalFloor
		}
		notional = actual.Mul(multiplier)
	}

	if steps != t.state.ReductionSteps {
		t.logger.Info("drawdown reduction changed",
			zap.Int("steps", steps),
			zap.String("drawdown", drawdown.String()),
			zap.String("actual", actual.String()),
			zap.String("notional", notional.String()),
		)
	}

	t.state = Snapshot{
		ActualEquity:   actual,
		PeakEquity:     peak,
		NotionalEquity: notional,
		Drawdown:       drawdown,
		ReductionSteps: steps,
		UpdatedAt:      asOf,
	}
	return t.state
}

// Snapshot returns the current equity state.
func (t *DrawdownTracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}
