package sizing

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// UnitSize is the outcome of sizing one unit. Contracts of zero means
// the account cannot afford a single contract at the target risk; the
// caller skips the entry rather than rounding up.
type UnitSize struct {
	Contracts        int64           `json:"contracts"`
	RiskAmount       decimal.Decimal `json:"riskAmount"`       // dollars risked at the target
	DollarVolatility decimal.Decimal `json:"dollarVolatility"` // N * point value, per contract
	StopRisk         decimal.Decimal `json:"stopRisk"`         // dollars lost per contract at the stop
	Tradeable        bool            `json:"tradeable"`
}

// UnitSizer converts notional equity and market volatility into a
// contract count using the N-based volatility formula.
type UnitSizer struct {
	logger *zap.Logger
	rules  types.Rules
}

func NewUnitSizer(logger *zap.Logger, rules types.Rules) *UnitSizer {
	return &UnitSizer{logger: logger, rules: rules}
}

// Size computes contracts = floor(riskFactor * notionalEquity / (N *
// pointValue)). The result is never rounded up: a fractional contract
// count below 1 yields a non-tradeable size.
func (s *UnitSizer) Size(notionalEquity decimal.Decimal, n decimal.Decimal, spec types.MarketSpec) UnitSize {
	dollarVol := n.Mul(spec.PointValue)
	if !dollarVol.IsPositive() || !notionalEquity.IsPositive() {
		return UnitSize{DollarVolatility: dollarVol}
	}

	riskAmount := s.rules.RiskFactor.Mul(notionalEquity)
	contracts := riskAmount.Div(dollarVol).Floor().IntPart()
	stopRisk := n.Mul(s.rules.StopMultiplier).Mul(spec.PointValue)

	size := UnitSize{
		Contracts:        contracts,
		RiskAmount:       riskAmount,
		DollarVolatility: dollarVol,
		StopRisk:         stopRisk,
		Tradeable:        contracts >= 1,
	}
	if !size.Tradeable {
		s.logger.Info("unit size below one contract",
			zap.String("symbol", spec.Symbol),
			zap.String("risk_amount", riskAmount.String()),
			zap.String("dollar_volatility", dollarVol.String()),
		)
		size.Contracts = 0
	}
	return size
}
