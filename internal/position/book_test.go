package position

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

func TestBookAddRejectsDuplicate(t *testing.T) {
	b := NewBook()
	if err := b.Add(openLong(t)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := b.Add(openLong(t)); err == nil {
		t.Fatal("second position for the same symbol should fail")
	}
	if b.Len() != 1 {
		t.Errorf("book should hold 1 position, got %d", b.Len())
	}
}

func TestBookAllSorted(t *testing.T) {
	b := NewBook()
	for _, sym := range []string{"ZC", "CL", "GC"} {
		spec := goldSpec()
		spec.Symbol = sym
		lv := level(1, 2800, 20, 2)
		p, err := Open(spec, types.SystemOne, types.DirectionLong, lv, lv.OriginalStop)
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		if err := b.Add(p); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
	}

	all := b.All()
	want := []string{"CL", "GC", "ZC"}
	for i, sym := range want {
		if all[i].Symbol != sym {
			t.Errorf("position %d: expected %s, got %s", i, sym, all[i].Symbol)
		}
	}
}

func TestBookExposure(t *testing.T) {
	rules := types.DefaultRules()
	b := NewBook()

	p := openLong(t)
	if err := p.AppendPyramid(level(2, 2810, 20, 2), decimal.NewFromInt(2770)); err != nil {
		t.Fatalf("AppendPyramid failed: %v", err)
	}
	if err := b.Add(p); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	exp := b.Exposure(rules)
	if exp.UnitsBySymbol["GC"] != 2 {
		t.Errorf("GC units incorrect: %d", exp.UnitsBySymbol["GC"])
	}
	if exp.UnitsByGroup["metals"] != 2 {
		t.Errorf("metals units incorrect: %d", exp.UnitsByGroup["metals"])
	}
	if exp.TotalUnits != 2 {
		t.Errorf("total units incorrect: %d", exp.TotalUnits)
	}
	// Two levels, each 2 contracts * 2N(40) * $100 = 8,000.
	if !exp.TotalRisk.Equal(decimal.NewFromInt(16_000)) {
		t.Errorf("total risk incorrect: expected 16000, got %s", exp.TotalRisk)
	}
}

func TestBookRemove(t *testing.T) {
	b := NewBook()
	if err := b.Add(openLong(t)); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	b.Remove("GC")
	if b.Get("GC") != nil {
		t.Error("removed position still present")
	}
}
