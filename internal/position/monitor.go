package position

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// Action is what the monitor wants done with a position.
type Action string

const (
	ActionHold         Action = "HOLD"
	ActionExitStop     Action = "EXIT_STOP"
	ActionExitBreakout Action = "EXIT_BREAKOUT"
	ActionPyramid      Action = "PYRAMID"
)

// Decision is the monitor's verdict for one position against one
// market snapshot. FillPrice is set for exits: the stop price normally,
// or the bar open when the market gapped through the stop.
type Decision struct {
	Action       Action
	TriggerPrice decimal.Decimal
	FillPrice    decimal.Decimal
	Reason       string
}

// CheckPosition evaluates a position against fresh market data. Checks
// run in strict priority: protective stop, then breakout exit, then
// pyramid. A price that satisfies several at once resolves to the
// highest-priority action.
func CheckPosition(p *Position, md types.MarketData, rules types.Rules) Decision {
	if d, hit := checkStop(p, md); hit {
		return d
	}
	if d, hit := checkBreakoutExit(p, md, rules); hit {
		return d
	}
	if d, hit := checkPyramid(p, md, rules); hit {
		return d
	}
	return Decision{Action: ActionHold}
}

// checkStop uses the intraday high/low when a bar is available so a
// stop touched during the session triggers even if price has since
// recovered. Equality triggers: the stop is part of the danger zone.
func checkStop(p *Position, md types.MarketData) (Decision, bool) {
	stop := p.CurrentStop

	extreme := md.CurrentPrice
	open := md.CurrentPrice
	if md.LatestBar != nil {
		open = md.LatestBar.Open
		if p.Direction == types.DirectionLong {
			extreme = md.LatestBar.Low
		} else {
			extreme = md.LatestBar.High
		}
	}

	hit := false
	if p.Direction == types.DirectionLong {
		hit = extreme.LessThanOrEqual(stop)
	} else {
		hit = extreme.GreaterThanOrEqual(stop)
	}
	if !hit {
		return Decision{}, false
	}

	fill := stop
	if p.Direction == types.DirectionLong && open.LessThan(stop) {
		fill = open
	}
	if p.Direction == types.DirectionShort && open.GreaterThan(stop) {
		fill = open
	}

	return Decision{
		Action:       ActionExitStop,
		TriggerPrice: stop,
		FillPrice:    fill,
		Reason:       fmt.Sprintf("stop %s hit", stop),
	}, true
}

// checkBreakoutExit tests the opposite channel for the position's
// system: the 10-day extreme for S1, the 20-day for S2. A touch is
// enough; no strict cross is required on the way out.
func checkBreakoutExit(p *Position, md types.MarketData, rules types.Rules) (Decision, bool) {
	ch := md.Channel(rules.ExitPeriod(p.System))
	price := md.CurrentPrice

	var trigger decimal.Decimal
	hit := false
	if p.Direction == types.DirectionLong {
		trigger = ch.Lower
		hit = price.LessThanOrEqual(trigger)
	} else {
		trigger = ch.Upper
		hit = price.GreaterThanOrEqual(trigger)
	}
	if !hit {
		return Decision{}, false
	}

	return Decision{
		Action:       ActionExitBreakout,
		TriggerPrice: trigger,
		FillPrice:    price,
		Reason:       fmt.Sprintf("%d-day channel exit at %s", ch.Period, trigger),
	}, true
}

// checkPyramid fires when price has advanced a full interval beyond
// the latest entry and the per-market cap allows another unit. The
// interval is measured in the latest level's N, not today's.
func checkPyramid(p *Position, md types.MarketData, rules types.Rules) (Decision, bool) {
	if !p.CanPyramid(rules) {
		return Decision{}, false
	}

	trigger := p.NextPyramidTrigger(rules)
	price := md.CurrentPrice

	hit := false
	if p.Direction == types.DirectionLong {
		hit = price.GreaterThanOrEqual(trigger)
	} else {
		hit = price.LessThanOrEqual(trigger)
	}
	if !hit {
		return Decision{}, false
	}

	return Decision{
		Action:       ActionPyramid,
		TriggerPrice: trigger,
		FillPrice:    price,
		Reason:       fmt.Sprintf("price advanced to pyramid trigger %s", trigger),
	}, true
}
