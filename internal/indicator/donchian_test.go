package indicator

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

func TestDonchianBounds(t *testing.T) {
	bars := []types.Bar{
		rangeBar(0, 100, 110, 105),
		rangeBar(1, 98, 112, 104),
		rangeBar(2, 101, 109, 102),
		rangeBar(3, 99, 115, 110),
		rangeBar(4, 103, 108, 106),
	}

	ch, err := Donchian(bars, 5)
	if err != nil {
		t.Fatalf("Donchian failed: %v", err)
	}
	if !ch.Upper.Equal(decimal.NewFromInt(115)) {
		t.Errorf("upper incorrect: expected 115, got %s", ch.Upper)
	}
	if !ch.Lower.Equal(decimal.NewFromInt(98)) {
		t.Errorf("lower incorrect: expected 98, got %s", ch.Lower)
	}
	if ch.Upper.LessThan(ch.Lower) {
		t.Error("upper below lower")
	}
	if !ch.CalculatedAt.Equal(day(4)) {
		t.Errorf("CalculatedAt should be last bar date, got %v", ch.CalculatedAt)
	}
}

func TestDonchianUsesOnlyWindow(t *testing.T) {
	// An extreme outside the window must not leak in.
	bars := []types.Bar{
		rangeBar(0, 50, 200, 105), // outside a 3-bar window
		rangeBar(1, 100, 110, 105),
		rangeBar(2, 101, 111, 106),
		rangeBar(3, 102, 112, 107),
	}

	ch, err := Donchian(bars, 3)
	if err != nil {
		t.Fatalf("Donchian failed: %v", err)
	}
	if !ch.Upper.Equal(decimal.NewFromInt(112)) {
		t.Errorf("upper should ignore bars outside window: got %s", ch.Upper)
	}
	if !ch.Lower.Equal(decimal.NewFromInt(100)) {
		t.Errorf("lower should ignore bars outside window: got %s", ch.Lower)
	}
}

func TestDonchianInsufficientHistory(t *testing.T) {
	_, err := Donchian(constantTRBars(54), 55)
	if !errors.Is(err, types.ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
}
