package types

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ExposureMode selects how the total-exposure cap is enforced.
type ExposureMode string

const (
	// ExposureUnitCap caps the total number of open units.
	ExposureUnitCap ExposureMode = "UNIT_CAP"
	// ExposureRiskCap caps the sum of per-unit dollar risk as a
	// fraction of notional equity.
	ExposureRiskCap ExposureMode = "RISK_CAP"
)

// Rules is the complete, enumerated rule set of the system. Every
// recognized option lives here; unknown configuration keys are a
// startup error.
type Rules struct {
	RiskFactor        decimal.Decimal `json:"riskFactor"`        // fraction of notional equity risked per unit
	StopMultiplier    decimal.Decimal `json:"stopMultiplier"`    // stop distance in units of N
	PyramidInterval   decimal.Decimal `json:"pyramidInterval"`   // price advance between pyramid adds, in units of N
	MaxUnitsPerMarket int             `json:"maxUnitsPerMarket"` //
	MaxUnitsGroup     int             `json:"maxUnitsGroup"`     // cap per correlation group
	ExposureMode      ExposureMode    `json:"exposureMode"`      //
	MaxTotalUnits     int             `json:"maxTotalUnits"`     // UNIT_CAP mode
	RiskCapFraction   decimal.Decimal `json:"riskCapFraction"`   // RISK_CAP mode
	ATRPeriod         int             `json:"atrPeriod"`         //
	ATRMethod         ATRMethod       `json:"atrMethod"`         //
	S1EntryPeriod     int             `json:"s1EntryPeriod"`     //
	S2EntryPeriod     int             `json:"s2EntryPeriod"`     //
	S1ExitPeriod      int             `json:"s1ExitPeriod"`      //
	S2ExitPeriod      int             `json:"s2ExitPeriod"`      //
	DrawdownTrigger   decimal.Decimal `json:"drawdownTrigger"`   // drawdown step that triggers a reduction
	DrawdownReduction decimal.Decimal `json:"drawdownReduction"` // notional reduction per trigger step
	NotionalFloor     decimal.Decimal `json:"notionalFloor"`     // minimum notional as fraction of actual
}

// DefaultRules returns the modern rule set: 0.5% risk per unit,
// half-N pyramid interval, risk-capped total exposure.
func DefaultRules() Rules {
	return Rules{
		RiskFactor:        decimal.NewFromFloat(0.005),
		StopMultiplier:    decimal.NewFromInt(2),
		PyramidInterval:   decimal.NewFromFloat(0.5),
		MaxUnitsPerMarket: 4,
		MaxUnitsGroup:     6,
		ExposureMode:      ExposureRiskCap,
		MaxTotalUnits:     12,
		RiskCapFraction:   decimal.NewFromFloat(0.20),
		ATRPeriod:         20,
		ATRMethod:         ATRMethodWilders,
		S1EntryPeriod:     20,
		S2EntryPeriod:     55,
		S1ExitPeriod:      10,
		S2ExitPeriod:      20,
		DrawdownTrigger:   decimal.NewFromFloat(0.10),
		DrawdownReduction: decimal.NewFromFloat(0.20),
		NotionalFloor:     decimal.NewFromFloat(0.40),
	}
}

// OriginalRules returns the 1980s rule set: 1% risk per unit and a
// fixed 12-unit total cap.
func OriginalRules() Rules {
	r := DefaultRules()
	r.RiskFactor = decimal.NewFromFloat(0.01)
	r.ExposureMode = ExposureUnitCap
	return r
}

// EntryPeriod returns the entry channel length for a system.
func (r Rules) EntryPeriod(s System) int {
	if s == SystemTwo {
		return r.S2EntryPeriod
	}
	return r.S1EntryPeriod
}

// ExitPeriod returns the opposite-channel exit length for a system.
func (r Rules) ExitPeriod(s System) int {
	if s == SystemTwo {
		return r.S2ExitPeriod
	}
	return r.S1ExitPeriod
}

// Validate checks the rule set for internal consistency. Any failure
// here is fatal at startup.
func (r Rules) Validate() error {
	if !r.RiskFactor.IsPositive() || r.RiskFactor.GreaterThan(decimal.NewFromFloat(0.05)) {
		return fmt.Errorf("%w: risk_factor %s outside (0, 0.05]", ErrFatalConfig, r.RiskFactor)
	}
	if !r.StopMultiplier.IsPositive() {
		return fmt.Errorf("%w: stop_multiplier must be positive", ErrFatalConfig)
	}
	half := decimal.NewFromFloat(0.5)
	one := decimal.NewFromInt(1)
	if !r.PyramidInterval.Equal(half) && !r.PyramidInterval.Equal(one) {
		return fmt.Errorf("%w: pyramid_interval must be 0.5 or 1.0, got %s", ErrFatalConfig, r.PyramidInterval)
	}
	if r.MaxUnitsPerMarket < 1 {
		return fmt.Errorf("%w: max_units_per_market must be at least 1", ErrFatalConfig)
	}
	if r.MaxUnitsGroup < r.MaxUnitsPerMarket {
		return fmt.Errorf("%w: max_units_correlated %d below max_units_per_market %d",
			ErrFatalConfig, r.MaxUnitsGroup, r.MaxUnitsPerMarket)
	}
	switch r.ExposureMode {
	case ExposureUnitCap:
		if r.MaxTotalUnits < r.MaxUnitsPerMarket {
			return fmt.Errorf("%w: max_total_units %d below max_units_per_market %d",
				ErrFatalConfig, r.MaxTotalUnits, r.MaxUnitsPerMarket)
		}
	case ExposureRiskCap:
		if !r.RiskCapFraction.IsPositive() || r.RiskCapFraction.GreaterThan(one) {
			return fmt.Errorf("%w: risk_cap_fraction %s outside (0, 1]", ErrFatalConfig, r.RiskCapFraction)
		}
	default:
		return fmt.Errorf("%w: unknown exposure mode %q", ErrFatalConfig, r.ExposureMode)
	}
	if r.ATRPeriod < 2 {
		return fmt.Errorf("%w: atr_period must be at least 2", ErrFatalConfig)
	}
	if r.ATRMethod != ATRMethodWilders && r.ATRMethod != ATRMethodSMA {
		return fmt.Errorf("%w: unknown atr_method %q", ErrFatalConfig, r.ATRMethod)
	}
	if r.S1EntryPeriod <= r.S1ExitPeriod || r.S2EntryPeriod <= r.S2ExitPeriod {
		return fmt.Errorf("%w: exit periods must be shorter than entry periods", ErrFatalConfig)
	}
	if !r.DrawdownTrigger.IsPositive() || !r.DrawdownReduction.IsPositive() {
		return fmt.Errorf("%w: drawdown trigger and reduction must be positive", ErrFatalConfig)
	}
	if !r.NotionalFloor.IsPositive() || r.NotionalFloor.GreaterThan(one) {
		return fmt.Errorf("%w: notional_floor %s outside (0, 1]", ErrFatalConfig, r.NotionalFloor)
	}
	return nil
}

// MinHistoryBars is the bar count the scanner requests per symbol:
// enough for the 55-day channel plus ATR seeding headroom.
func (r Rules) MinHistoryBars() int {
	n := r.S2EntryPeriod + r.ATRPeriod/2
	if m := r.ATRPeriod + 1; m > n {
		n = m
	}
	return n
}
