// Package config loads engine configuration from YAML and the
// environment. Unknown keys inside the rules block are fatal; a typo
// there silently changes trading behavior otherwise.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// Config is the full engine configuration.
type Config struct {
	DatabaseURL   string
	DataDir       string
	BackupDataDir string
	UniverseFile  string
	CheckInterval time.Duration
	Listen        string
	InitialEquity decimal.Decimal
	CommissionPer decimal.Decimal
	EventBuffer   int
	Rules         types.Rules
}

var recognizedRuleKeys = map[string]struct{}{
	"risk_factor":           {},
	"stop_multiplier":       {},
	"pyramid_interval":      {},
	"max_units_per_market":  {},
	"max_units_correlated":  {},
	"exposure_mode":         {},
	"max_total_units":       {},
	"risk_cap_fraction":     {},
	"atr_period":            {},
	"atr_method":            {},
	"s1_entry_period":       {},
	"s2_entry_period":       {},
	"s1_exit_period":        {},
	"s2_exit_period":        {},
	"drawdown_trigger":      {},
	"drawdown_reduction":    {},
	"notional_floor":        {},
}

// Load reads the config file at path (optional, "" skips it), applies
// TURTLE_-prefixed environment overrides, validates the rule set and
// returns the result. Any failure wraps types.ErrFatalConfig.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TURTLE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database_url", "postgres://localhost:5432/turtle?sslmode=disable")
	v.SetDefault("data_dir", "data")
	v.SetDefault("universe_file", "universe.json")
	v.SetDefault("check_interval", "5m")
	v.SetDefault("listen", ":8089")
	v.SetDefault("initial_equity", "1000000")
	v.SetDefault("commission_per_contract", "2.50")
	v.SetDefault("event_buffer", 256)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("%w: reading %s: %v", types.ErrFatalConfig, path, err)
		}
	}

	rules, err := loadRules(v)
	if err != nil {
		return Config{}, err
	}

	initialEquity, err := decimal.NewFromString(v.GetString("initial_equity"))
	if err != nil {
		return Config{}, fmt.Errorf("%w: initial_equity: %v", types.ErrFatalConfig, err)
	}
	commission, err := decimal.NewFromString(v.GetString("commission_per_contract"))
	if err != nil {
		return Config{}, fmt.Errorf("%w: commission_per_contract: %v", types.ErrFatalConfig, err)
	}
	interval := v.GetDuration("check_interval")
	if interval <= 0 {
		return Config{}, fmt.Errorf("%w: check_interval must be positive", types.ErrFatalConfig)
	}

	cfg := Config{
		DatabaseURL:   v.GetString("database_url"),
		DataDir:       v.GetString("data_dir"),
		BackupDataDir: v.GetString("backup_data_dir"),
		UniverseFile:  v.GetString("universe_file"),
		CheckInterval: interval,
		Listen:        v.GetString("listen"),
		InitialEquity: initialEquity,
		CommissionPer: commission,
		EventBuffer:   v.GetInt("event_buffer"),
		Rules:         rules,
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("%w: database_url is required", types.ErrFatalConfig)
	}
	return cfg, nil
}

func loadRules(v *viper.Viper) (types.Rules, error) {
	rules := types.DefaultRules()

	sub := v.GetStringMap("rules")
	for key := range sub {
		if _, ok := recognizedRuleKeys[strings.ToLower(key)]; !ok {
			return types.Rules{}, fmt.Errorf("%w: unknown rules key %q", types.ErrFatalConfig, key)
		}
	}

	setDecimal := func(key string, target *decimal.Decimal) error {
		full := "rules." + key
		if !v.IsSet(full) {
			return nil
		}
		parsed, err := decimal.NewFromString(v.GetString(full))
		if err != nil {
			return fmt.Errorf("%w: rules.%s: %v", types.ErrFatalConfig, key, err)
		}
		*target = parsed
		return nil
	}
	setInt := func(key string, target *int) {
		full := "rules." + key
		if v.IsSet(full) {
			*target = v.GetInt(full)
		}
	}

	decimals := map[string]*decimal.Decimal{
		"risk_factor":        &rules.RiskFactor,
		"stop_multiplier":    &rules.StopMultiplier,
		"pyramid_interval":   &rules.PyramidInterval,
		"risk_cap_fraction":  &rules.RiskCapFraction,
		"drawdown_trigger":   &rules.DrawdownTrigger,
		"drawdown_reduction": &rules.DrawdownReduction,
		"notional_floor":     &rules.NotionalFloor,
	}
	for key, target := range decimals {
		if err := setDecimal(key, target); err != nil {
			return types.Rules{}, err
		}
	}

	setInt("max_units_per_market", &rules.MaxUnitsPerMarket)
	setInt("max_units_correlated", &rules.MaxUnitsGroup)
	setInt("max_total_units", &rules.MaxTotalUnits)
	setInt("atr_period", &rules.ATRPeriod)
	setInt("s1_entry_period", &rules.S1EntryPeriod)
	setInt("s2_entry_period", &rules.S2EntryPeriod)
	setInt("s1_exit_period", &rules.S1ExitPeriod)
	setInt("s2_exit_period", &rules.S2ExitPeriod)

	if v.IsSet("rules.exposure_mode") {
		rules.ExposureMode = types.ExposureMode(strings.ToUpper(v.GetString("rules.exposure_mode")))
	}
	if v.IsSet("rules.atr_method") {
		rules.ATRMethod = types.ATRMethod(strings.ToUpper(v.GetString("rules.atr_method")))
	}

	if err := rules.Validate(); err != nil {
		return types.Rules{}, err
	}
	return rules, nil
}
