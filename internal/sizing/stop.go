package sizing

import (
	"github.com/shopspring/decimal"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// StopPrice places the protective stop a multiple of N away from the
// entry: below for longs, above for shorts.
func StopPrice(entry, n decimal.Decimal, dir types.Direction, multiplier decimal.Decimal) decimal.Decimal {
	offset := n.Mul(multiplier)
	if dir == types.DirectionLong {
		return entry.Sub(offset)
	}
	return entry.Add(offset)
}
