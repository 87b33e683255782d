package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "turtle.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Rules.RiskFactor.Equal(decimal.NewFromFloat(0.005)) {
		t.Errorf("default risk factor incorrect: %s", cfg.Rules.RiskFactor)
	}
	if cfg.Rules.ExposureMode != types.ExposureRiskCap {
		t.Errorf("default exposure mode incorrect: %s", cfg.Rules.ExposureMode)
	}
	if cfg.CheckInterval.Minutes() != 5 {
		t.Errorf("default check interval incorrect: %s", cfg.CheckInterval)
	}
}

func TestLoadOverridesRules(t *testing.T) {
	path := writeConfig(t, `
database_url: postgres://db/turtle
rules:
  risk_factor: "0.01"
  exposure_mode: unit_cap
  pyramid_interval: "1"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.Rules.RiskFactor.Equal(decimal.NewFromFloat(0.01)) {
		t.Errorf("risk factor override lost: %s", cfg.Rules.RiskFactor)
	}
	if cfg.Rules.ExposureMode != types.ExposureUnitCap {
		t.Errorf("exposure mode override lost: %s", cfg.Rules.ExposureMode)
	}
	if !cfg.Rules.PyramidInterval.Equal(decimal.NewFromInt(1)) {
		t.Errorf("pyramid interval override lost: %s", cfg.Rules.PyramidInterval)
	}
}

func TestLoadRejectsUnknownRuleKey(t *testing.T) {
	path := writeConfig(t, `
rules:
  risk_facter: "0.01"
`)
	_, err := Load(path)
	if !errors.Is(err, types.ErrFatalConfig) {
		t.Fatalf("typoed rule key should be fatal, got %v", err)
	}
}

func TestLoadRejectsBadPyramidInterval(t *testing.T) {
	path := writeConfig(t, `
rules:
  pyramid_interval: "0.75"
`)
	_, err := Load(path)
	if !errors.Is(err, types.ErrFatalConfig) {
		t.Fatalf("invalid pyramid interval should be fatal, got %v", err)
	}
}

func TestLoadUniverse(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.json")
	content := `[
		{"symbol":"GC","pointValue":"100","tickSize":"0.1","correlationGroup":"metals","assetClass":"futures","active":true},
		{"symbol":"CL","pointValue":"1000","tickSize":"0.01","correlationGroup":"energy","assetClass":"futures","active":true}
	]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write universe: %v", err)
	}

	specs, err := LoadUniverse(path)
	if err != nil {
		t.Fatalf("LoadUniverse failed: %v", err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 markets, got %d", len(specs))
	}
	if specs[0].Symbol != "GC" || !specs[0].PointValue.Equal(decimal.NewFromInt(100)) {
		t.Errorf("first market incorrect: %+v", specs[0])
	}
}

func TestLoadUniverseRejectsDuplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "universe.json")
	content := `[
		{"symbol":"GC","pointValue":"100","tickSize":"0.1"},
		{"symbol":"GC","pointValue":"100","tickSize":"0.1"}
	]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write universe: %v", err)
	}
	if _, err := LoadUniverse(path); !errors.Is(err, types.ErrFatalConfig) {
		t.Fatalf("duplicate symbol should be fatal, got %v", err)
	}
}
