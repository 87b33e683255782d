package datafeed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// FileFeed serves bars from per-symbol JSON files in a directory,
// <dir>/<SYMBOL>.json, each holding an array of daily bars. Files are
// parsed once and cached. Account state comes from a static summary
// set at construction; the paper broker owns the real balance.
type FileFeed struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	dir     string
	cache   map[string][]types.Bar
	account types.AccountSummary
}

func NewFileFeed(logger *zap.Logger, dir string, account types.AccountSummary) *FileFeed {
	return &FileFeed{
		logger:  logger,
		dir:     dir,
		cache:   make(map[string][]types.Bar),
		account: account,
	}
}

func (f *FileFeed) load(symbol string) ([]types.Bar, error) {
	f.mu.RLock()
	bars, ok := f.cache[symbol]
	f.mu.RUnlock()
	if ok {
		return bars, nil
	}

	path := filepath.Join(f.dir, symbol+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no bar file for %s", types.ErrDataSourceUnavailable, symbol)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var parsed []types.Bar
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	sort.Slice(parsed, func(i, j int) bool { return parsed[i].Date.Before(parsed[j].Date) })

	f.mu.Lock()
	f.cache[symbol] = parsed
	f.mu.Unlock()

	f.logger.Debug("bar file loaded",
		zap.String("symbol", symbol),
		zap.Int("bars", len(parsed)),
	)
	return parsed, nil
}

// Bars returns up to limit bars ending at or before asOf, oldest first.
func (f *FileFeed) Bars(ctx context.Context, symbol string, asOf time.Time, limit int) ([]types.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	all, err := f.load(symbol)
	if err != nil {
		return nil, err
	}

	end := sort.Search(len(all), func(i int) bool { return all[i].Date.After(asOf) })
	window := all[:end]
	if len(window) > limit {
		window = window[len(window)-limit:]
	}
	out := make([]types.Bar, len(window))
	copy(out, window)
	return out, nil
}

// CurrentPrice returns the most recent close on file.
func (f *FileFeed) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	all, err := f.load(symbol)
	if err != nil {
		return decimal.Zero, err
	}
	if len(all) == 0 {
		return decimal.Zero, fmt.Errorf("%w: empty bar file for %s", types.ErrDataSourceUnavailable, symbol)
	}
	return all[len(all)-1].Close, nil
}

// AccountSummary returns the static account state.
func (f *FileFeed) AccountSummary(ctx context.Context) (types.AccountSummary, error) {
	if err := ctx.Err(); err != nil {
		return types.AccountSummary{}, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.account, nil
}

// SetAccountSummary replaces the static account state.
func (f *FileFeed) SetAccountSummary(a types.AccountSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.account = a
}
