package broker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// Retrying wraps a broker with bounded exponential backoff on its
// idempotent calls. Transient errors there retry until the budget runs
// out; rejections fail immediately. Order placement and position
// closes are never retried: a timeout does not say whether the order
// reached the venue, and a second attempt could double the fill. Those
// failures surface as ErrReconciliationRequired instead.
type Retrying struct {
	logger     *zap.Logger
	inner      Broker
	maxElapsed time.Duration
}

func NewRetrying(logger *zap.Logger, inner Broker, maxElapsed time.Duration) *Retrying {
	if maxElapsed <= 0 {
		maxElapsed = 30 * time.Second
	}
	return &Retrying{logger: logger, inner: inner, maxElapsed: maxElapsed}
}

func (r *Retrying) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxElapsedTime = r.maxElapsed
	return backoff.WithContext(b, ctx)
}

func (r *Retrying) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, types.ErrBrokerTransient) {
		return err
	}
	return backoff.Permanent(err)
}

func retryResult[T any](r *Retrying, ctx context.Context, op string, fn func() (T, error)) (T, error) {
	var result T
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		var err error
		result, err = fn()
		if err != nil && errors.Is(err, types.ErrBrokerTransient) {
			r.logger.Warn("broker call failed, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return r.classify(err)
	}, r.policy(ctx))
	return result, err
}

func (r *Retrying) PlaceBracketOrder(ctx context.Context, order BracketOrder) (Fill, error) {
	fill, err := r.inner.PlaceBracketOrder(ctx, order)
	if err != nil && errors.Is(err, types.ErrBrokerTransient) {
		r.logger.Error("entry order outcome unknown",
			zap.String("symbol", order.Symbol),
			zap.Error(err),
		)
		return Fill{}, fmt.Errorf("%w: %s entry outcome unknown: %w",
			types.ErrReconciliationRequired, order.Symbol, err)
	}
	return fill, err
}

func (r *Retrying) ModifyStop(ctx context.Context, symbol string, newStop decimal.Decimal) error {
	_, err := retryResult(r, ctx, "modify_stop", func() (struct{}, error) {
		return struct{}{}, r.inner.ModifyStop(ctx, symbol, newStop)
	})
	return err
}

func (r *Retrying) ClosePosition(ctx context.Context, symbol string) (Fill, error) {
	fill, err := r.inner.ClosePosition(ctx, symbol)
	if err != nil && errors.Is(err, types.ErrBrokerTransient) {
		r.logger.Error("close order outcome unknown",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return Fill{}, fmt.Errorf("%w: %s close outcome unknown: %w",
			types.ErrReconciliationRequired, symbol, err)
	}
	return fill, err
}

func (r *Retrying) CancelAllOrders(ctx context.Context, symbol string) error {
	_, err := retryResult(r, ctx, "cancel_all_orders", func() (struct{}, error) {
		return struct{}{}, r.inner.CancelAllOrders(ctx, symbol)
	})
	return err
}

func (r *Retrying) Positions(ctx context.Context) ([]BrokerPosition, error) {
	return retryResult(r, ctx, "positions", func() ([]BrokerPosition, error) {
		return r.inner.Positions(ctx)
	})
}
