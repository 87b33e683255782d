package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// LoadUniverse reads the tradeable universe from a JSON file holding
// an array of market specs. Inactive markets are kept; the scanner
// filters on the Active flag.
func LoadUniverse(path string) ([]types.MarketSpec, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading universe file %s: %v", types.ErrFatalConfig, path, err)
	}
	var specs []types.MarketSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("%w: parsing universe file %s: %v", types.ErrFatalConfig, path, err)
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: universe file %s is empty", types.ErrFatalConfig, path)
	}
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if spec.Symbol == "" {
			return nil, fmt.Errorf("%w: universe entry with empty symbol", types.ErrFatalConfig)
		}
		if seen[spec.Symbol] {
			return nil, fmt.Errorf("%w: duplicate universe symbol %s", types.ErrFatalConfig, spec.Symbol)
		}
		seen[spec.Symbol] = true
		if !spec.PointValue.IsPositive() || !spec.TickSize.IsPositive() {
			return nil, fmt.Errorf("%w: %s needs positive point_value and tick_size", types.ErrFatalConfig, spec.Symbol)
		}
	}
	return specs, nil
}
