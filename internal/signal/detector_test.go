package signal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

func testMarket(price float64) types.MarketData {
	return types.MarketData{
		Spec: types.MarketSpec{
			Symbol:           "GC",
			PointValue:       decimal.NewFromInt(100),
			TickSize:         decimal.NewFromFloat(0.10),
			CorrelationGroup: "metals",
			Active:           true,
		},
		CurrentPrice: decimal.NewFromFloat(price),
		N:            types.NValue{Value: decimal.NewFromInt(20), Period: 20, Method: types.ATRMethodWilders},
		Donchian10:   types.DonchianChannel{Upper: decimal.NewFromInt(2790), Lower: decimal.NewFromInt(2710), Period: 10},
		Donchian20:   types.DonchianChannel{Upper: decimal.NewFromInt(2800), Lower: decimal.NewFromInt(2700), Period: 20},
		Donchian55:   types.DonchianChannel{Upper: decimal.NewFromInt(2850), Lower: decimal.NewFromInt(2650), Period: 55},
		UpdatedAt:    time.Now(),
	}
}

func TestDetectLongBreakout(t *testing.T) {
	d := NewDetector(zap.NewNop(), types.DefaultRules())

	// Above the 20-day high but inside the 55-day channel: S1 only.
	sigs := d.Detect(testMarket(2810), time.Now())
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(sigs))
	}
	sig := sigs[0]
	if sig.System != types.SystemOne || sig.Direction != types.DirectionLong {
		t.Errorf("unexpected signal: %+v", sig)
	}
	if !sig.BreakoutPrice.Equal(decimal.NewFromInt(2800)) {
		t.Errorf("breakout price incorrect: %s", sig.BreakoutPrice)
	}
	if sig.DonchianPeriod != 20 {
		t.Errorf("donchian period incorrect: %d", sig.DonchianPeriod)
	}
}

func TestDetectBothSystems(t *testing.T) {
	d := NewDetector(zap.NewNop(), types.DefaultRules())

	// Above both the 20-day and 55-day highs.
	sigs := d.Detect(testMarket(2860), time.Now())
	if len(sigs) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(sigs))
	}
	if sigs[0].System != types.SystemOne || sigs[1].System != types.SystemTwo {
		t.Errorf("unexpected systems: %v %v", sigs[0].System, sigs[1].System)
	}
}

func TestDetectShortBreakout(t *testing.T) {
	d := NewDetector(zap.NewNop(), types.DefaultRules())

	sigs := d.Detect(testMarket(2640), time.Now())
	if len(sigs) != 2 {
		t.Fatalf("expected 2 signals, got %d", len(sigs))
	}
	for _, sig := range sigs {
		if sig.Direction != types.DirectionShort {
			t.Errorf("expected short, got %+v", sig)
		}
	}
}

func TestTouchIsNotBreakout(t *testing.T) {
	d := NewDetector(zap.NewNop(), types.DefaultRules())

	// Price exactly at the channel boundary must not fire.
	for _, price := range []float64{2800, 2700, 2850, 2650} {
		if sigs := d.Detect(testMarket(price), time.Now()); len(sigs) != 0 {
			t.Errorf("price %v at boundary produced %d signals", price, len(sigs))
		}
	}
}

func TestInsideChannelNoSignal(t *testing.T) {
	d := NewDetector(zap.NewNop(), types.DefaultRules())
	if sigs := d.Detect(testMarket(2750), time.Now()); len(sigs) != 0 {
		t.Errorf("price inside channel produced %d signals", len(sigs))
	}
}
