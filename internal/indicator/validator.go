package indicator

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// BarValidator rejects malformed bars before they reach any indicator.
// A close more than maxGap away from the previous close is logged as a
// suspected bad tick but does not fail validation.
type BarValidator struct {
	logger *zap.Logger
	maxGap decimal.Decimal
}

// NewBarValidator creates a validator with the given bad-tick threshold
// (e.g. 0.20 for 20%).
func NewBarValidator(logger *zap.Logger, maxGap decimal.Decimal) *BarValidator {
	return &BarValidator{logger: logger, maxGap: maxGap}
}

// Validate checks OHLC ordering and price positivity. prevClose may be
// zero when no prior bar exists; the gap check is skipped in that case.
func (v *BarValidator) Validate(bar types.Bar, prevClose decimal.Decimal) error {
	if !bar.Open.IsPositive() || !bar.High.IsPositive() || !bar.Low.IsPositive() || !bar.Close.IsPositive() {
		return fmt.Errorf("%w: %s %s: non-positive price", types.ErrBarValidation, bar.Symbol, bar.Date.Format("2006-01-02"))
	}
	if bar.High.LessThan(bar.Low) {
		return fmt.Errorf("%w: %s %s: high %s below low %s",
			types.ErrBarValidation, bar.Symbol, bar.Date.Format("2006-01-02"), bar.High, bar.Low)
	}
	if bar.High.LessThan(bar.Open) || bar.High.LessThan(bar.Close) {
		return fmt.Errorf("%w: %s %s: high %s below open/close",
			types.ErrBarValidation, bar.Symbol, bar.Date.Format("2006-01-02"), bar.High)
	}
	if bar.Low.GreaterThan(bar.Open) || bar.Low.GreaterThan(bar.Close) {
		return fmt.Errorf("%w: %s %s: low %s above open/close",
			types.ErrBarValidation, bar.Symbol, bar.Date.Format("2006-01-02"), bar.Low)
	}

	if prevClose.IsPositive() {
		change := bar.Close.Sub(prevClose).Abs().Div(prevClose)
		if change.GreaterThan(v.maxGap) {
			v.logger.Warn("suspected bad tick",
				zap.String("symbol", bar.Symbol),
				zap.String("date", bar.Date.Format("2006-01-02")),
				zap.String("close", bar.Close.String()),
				zap.String("prev_close", prevClose.String()),
				zap.String("change", change.String()),
			)
		}
	}

	return nil
}

// ValidateSeries validates an ordered bar sequence, chaining previous
// closes. The first failing bar aborts the series.
func (v *BarValidator) ValidateSeries(bars []types.Bar) error {
	prevClose := decimal.Zero
	for _, bar := range bars {
		if err := v.Validate(bar, prevClose); err != nil {
			return err
		}
		prevClose = bar.Close
	}
	return nil
}
