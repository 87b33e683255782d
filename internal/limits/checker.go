package limits

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// PortfolioExposure summarizes open units for limit checks. It is a
// point-in-time view built from the position book.
type PortfolioExposure struct {
	UnitsBySymbol map[string]int
	UnitsByGroup  map[string]int
	TotalUnits    int
	// TotalRisk is the sum of entry-time stop risk across all open
	// units, in dollars. Used only in RISK_CAP mode.
	TotalRisk decimal.Decimal
}

// Candidate describes a prospective unit, either a fresh entry or a
// pyramid add.
type Candidate struct {
	Symbol           string
	CorrelationGroup string
	// UnitRisk is the dollar loss at the stop for this unit.
	UnitRisk decimal.Decimal
}

// Verdict reports whether a unit may be added and, when blocked, which
// limit refused it.
type Verdict struct {
	Allowed bool
	Reason  string
}

// Checker enforces the exposure ladder. Limits are evaluated from the
// narrowest scope outward: per-market first, then correlation group,
// then total exposure. The reason names the first limit that fails.
type Checker struct {
	logger *zap.Logger
	rules  types.Rules
}

func NewChecker(logger *zap.Logger, rules types.Rules) *Checker {
	return &Checker{logger: logger, rules: rules}
}

// Check evaluates one candidate unit against current exposure.
// notionalEquity is only consulted in RISK_CAP mode.
func (c *Checker) Check(exp PortfolioExposure, cand Candidate, notionalEquity decimal.Decimal) Verdict {
	if units := exp.UnitsBySymbol[cand.Symbol]; units >= c.rules.MaxUnitsPerMarket {
		return c.blocked(cand, fmt.Sprintf("market %s at %d/%d units", cand.Symbol, units, c.rules.MaxUnitsPerMarket))
	}
	if cand.CorrelationGroup != "" {
		if units := exp.UnitsByGroup[cand.CorrelationGroup]; units >= c.rules.MaxUnitsGroup {
			return c.blocked(cand, fmt.Sprintf("group %s at %d/%d units", cand.CorrelationGroup, units, c.rules.MaxUnitsGroup))
		}
	}

	switch c.rules.ExposureMode {
	case types.ExposureUnitCap:
		if exp.TotalUnits >= c.rules.MaxTotalUnits {
			return c.blocked(cand, fmt.Sprintf("portfolio at %d/%d units", exp.TotalUnits, c.rules.MaxTotalUnits))
		}
	case types.ExposureRiskCap:
		cap := c.rules.RiskCapFraction.Mul(notionalEquity)
		if after := exp.TotalRisk.Add(cand.UnitRisk); after.GreaterThan(cap) {
			return c.blocked(cand, fmt.Sprintf("portfolio risk %s would exceed cap %s", after, cap))
		}
	}

	return Verdict{Allowed: true}
}

func (c *Checker) blocked(cand Candidate, reason string) Verdict {
	c.logger.Info("unit blocked by exposure limit",
		zap.String("symbol", cand.Symbol),
		zap.String("reason", reason),
	)
	return Verdict{Allowed: false, Reason: reason}
}
