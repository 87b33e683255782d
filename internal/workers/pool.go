// Package workers provides bounded parallel fetching for the scanner
// and monitor: many symbols, a few goroutines, deterministic results.
package workers

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// Result pairs one input symbol with its outcome. Symbols keep their
// input order in the returned slice regardless of completion order.
type Result[T any] struct {
	Symbol string
	Value  T
	Err    error
}

// Pool runs per-symbol work with a fixed concurrency limit. Panics in
// work functions are recovered and reported as errors so one bad
// symbol cannot take down a cycle.
type Pool struct {
	logger  *zap.Logger
	workers int
}

func NewPool(logger *zap.Logger, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{logger: logger, workers: workers}
}

// ForEachSymbol applies fn to every symbol in parallel and folds the
// results back into input order.
func ForEachSymbol[T any](ctx context.Context, p *Pool, symbols []string, fn func(ctx context.Context, symbol string) (T, error)) []Result[T] {
	results := make([]Result[T], len(symbols))
	sem := make(chan struct{}, p.workers)
	var wg sync.WaitGroup

	for i, symbol := range symbols {
		wg.Add(1)
		go func(idx int, sym string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("worker panic recovered",
						zap.String("symbol", sym),
						zap.Any("panic", r),
					)
					results[idx] = Result[T]{Symbol: sym, Err: newPanicError(r)}
				}
			}()

			if err := ctx.Err(); err != nil {
				results[idx] = Result[T]{Symbol: sym, Err: err}
				return
			}
			value, err := fn(ctx, sym)
			results[idx] = Result[T]{Symbol: sym, Value: value, Err: err}
		}(i, symbol)
	}
	wg.Wait()
	return results
}
