package indicator

import (
	"fmt"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// Donchian computes the channel extremes over the last period bars:
// upper = max(high), lower = min(low).
func Donchian(bars []types.Bar, period int) (types.DonchianChannel, error) {
	if len(bars) < period {
		return types.DonchianChannel{}, fmt.Errorf("%w: need %d bars for donchian channel, have %d",
			types.ErrInsufficientHistory, period, len(bars))
	}

	window := bars[len(bars)-period:]
	upper := window[0].High
	lower := window[0].Low
	for _, bar := range window[1:] {
		if bar.High.GreaterThan(upper) {
			upper = bar.High
		}
		if bar.Low.LessThan(lower) {
			lower = bar.Low
		}
	}

	return types.DonchianChannel{
		Upper:        upper,
		Lower:        lower,
		Period:       period,
		CalculatedAt: window[len(window)-1].Date,
	}, nil
}
