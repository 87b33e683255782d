package position

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

func marketAt(price float64) types.MarketData {
	return types.MarketData{
		Spec:         goldSpec(),
		CurrentPrice: decimal.NewFromFloat(price),
		N:            types.NValue{Value: decimal.NewFromInt(20), Period: 20, Method: types.ATRMethodWilders},
		Donchian10:   types.DonchianChannel{Upper: decimal.NewFromInt(2830), Lower: decimal.NewFromInt(2720), Period: 10},
		Donchian20:   types.DonchianChannel{Upper: decimal.NewFromInt(2840), Lower: decimal.NewFromInt(2700), Period: 20},
		Donchian55:   types.DonchianChannel{Upper: decimal.NewFromInt(2880), Lower: decimal.NewFromInt(2650), Period: 55},
		UpdatedAt:    time.Now(),
	}
}

func withBar(md types.MarketData, open, high, low float64) types.MarketData {
	md.LatestBar = &types.Bar{
		Symbol: md.Spec.Symbol,
		Date:   time.Now(),
		Open:   decimal.NewFromFloat(open),
		High:   decimal.NewFromFloat(high),
		Low:    decimal.NewFromFloat(low),
		Close:  md.CurrentPrice,
	}
	return md
}

func TestHoldInsideAllTriggers(t *testing.T) {
	p := openLong(t) // entry 2800, stop 2760, pyramid trigger 2810

	d := CheckPosition(p, marketAt(2805), types.DefaultRules())
	if d.Action != ActionHold {
		t.Errorf("expected HOLD, got %s (%s)", d.Action, d.Reason)
	}
}

func TestStopHitOnTouch(t *testing.T) {
	p := openLong(t) // stop 2760

	d := CheckPosition(p, marketAt(2760), types.DefaultRules())
	if d.Action != ActionExitStop {
		t.Fatalf("touching the stop should exit, got %s", d.Action)
	}
	if !d.FillPrice.Equal(decimal.NewFromInt(2760)) {
		t.Errorf("fill should be the stop price, got %s", d.FillPrice)
	}
}

func TestIntradayLowTriggersStop(t *testing.T) {
	p := openLong(t) // stop 2760

	// Price recovered to 2790 but the session low pierced the stop.
	md := withBar(marketAt(2790), 2785, 2795, 2755)
	d := CheckPosition(p, md, types.DefaultRules())
	if d.Action != ActionExitStop {
		t.Fatalf("intraday low through the stop should exit, got %s", d.Action)
	}
	if !d.FillPrice.Equal(decimal.NewFromInt(2760)) {
		t.Errorf("fill should be the stop price, got %s", d.FillPrice)
	}
}

func TestGapThroughStopFillsAtOpen(t *testing.T) {
	p := openLong(t) // stop 2760

	md := withBar(marketAt(2745), 2740, 2750, 2735)
	d := CheckPosition(p, md, types.DefaultRules())
	if d.Action != ActionExitStop {
		t.Fatalf("gap through stop should exit, got %s", d.Action)
	}
	if !d.FillPrice.Equal(decimal.NewFromInt(2740)) {
		t.Errorf("gap exit should fill at the open, got %s", d.FillPrice)
	}
}

func TestShortStopOnHigh(t *testing.T) {
	lv := level(1, 2800, 20, 2)
	p, err := Open(goldSpec(), types.SystemOne, types.DirectionShort, lv, decimal.NewFromInt(2840))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	md := withBar(marketAt(2820), 2810, 2845, 2805)
	d := CheckPosition(p, md, types.DefaultRules())
	if d.Action != ActionExitStop {
		t.Fatalf("session high through short stop should exit, got %s", d.Action)
	}
}

func TestBreakoutExitS1(t *testing.T) {
	p := openLong(t) // S1: exits on the 10-day low, 2720

	d := CheckPosition(p, marketAt(2720), types.DefaultRules())
	if d.Action != ActionExitBreakout {
		t.Fatalf("touch of the 10-day low should exit, got %s", d.Action)
	}
	if !d.TriggerPrice.Equal(decimal.NewFromInt(2720)) {
		t.Errorf("trigger should be the 10-day low, got %s", d.TriggerPrice)
	}
}

func TestBreakoutExitS2UsesTwentyDay(t *testing.T) {
	lv := level(1, 2800, 20, 2)
	p, err := Open(goldSpec(), types.SystemTwo, types.DirectionLong, lv, lv.OriginalStop)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// 2710 is through the 10-day low (2720) but above the 20-day low
	// (2700): an S2 position holds. Stop is at 2760 though, so drop the
	// stop out of the way first.
	p.CurrentStop = decimal.NewFromInt(2600)
	d := CheckPosition(p, marketAt(2710), types.DefaultRules())
	if d.Action != ActionHold {
		t.Fatalf("s2 should hold above the 20-day low, got %s (%s)", d.Action, d.Reason)
	}

	d = CheckPosition(p, marketAt(2700), types.DefaultRules())
	if d.Action != ActionExitBreakout {
		t.Fatalf("s2 should exit at the 20-day low, got %s", d.Action)
	}
}

func TestStopBeatsBreakoutExit(t *testing.T) {
	p := openLong(t)
	// Stop above the 10-day low: price at 2720 hits both.
	p.CurrentStop = decimal.NewFromInt(2730)

	d := CheckPosition(p, marketAt(2720), types.DefaultRules())
	if d.Action != ActionExitStop {
		t.Errorf("stop must take priority over breakout exit, got %s", d.Action)
	}
}

func TestPyramidTriggerOnTouch(t *testing.T) {
	p := openLong(t) // trigger 2810

	d := CheckPosition(p, marketAt(2810), types.DefaultRules())
	if d.Action != ActionPyramid {
		t.Fatalf("touching the trigger should pyramid, got %s", d.Action)
	}
	if !d.TriggerPrice.Equal(decimal.NewFromInt(2810)) {
		t.Errorf("trigger incorrect: %s", d.TriggerPrice)
	}
}

func TestNoPyramidAtUnitCap(t *testing.T) {
	p := openLong(t)
	for unit := 2; unit <= 4; unit++ {
		entry := 2800 + float64(unit-1)*10
		if err := p.AppendPyramid(level(unit, entry, 20, 2), decimal.NewFromFloat(entry-40)); err != nil {
			t.Fatalf("AppendPyramid failed: %v", err)
		}
	}

	d := CheckPosition(p, marketAt(2900), types.DefaultRules())
	if d.Action == ActionPyramid {
		t.Error("full position must not pyramid")
	}
}
