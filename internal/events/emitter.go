package events

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Emitter stamps events with the run identity and a monotonic sequence
// before handing them to the sink. Safe for concurrent use. A sink
// failure is logged, never propagated; the trading decision already
// happened and must not be rolled back over an audit write.
type Emitter struct {
	logger *zap.Logger
	sink   Sink
	bus    *Bus
	runID  string
	source Source
	dryRun bool
	seq    atomic.Uint64
}

func NewEmitter(logger *zap.Logger, sink Sink, bus *Bus, source Source, dryRun bool) *Emitter {
	return &Emitter{
		logger: logger,
		sink:   sink,
		bus:    bus,
		runID:  uuid.New().String(),
		source: source,
		dryRun: dryRun,
	}
}

// RunID returns the identifier shared by every event of this run.
func (e *Emitter) RunID() string { return e.runID }

// Emit records one audit event.
func (e *Emitter) Emit(ctx context.Context, t Type, outcome Outcome, symbol string, fields map[string]any) {
	ev := Event{
		ID:        uuid.New().String(),
		RunID:     e.runID,
		Sequence:  e.seq.Add(1),
		Timestamp: time.Now().UTC(),
		Type:      t,
		Outcome:   outcome,
		Source:    e.source,
		Symbol:    symbol,
		DryRun:    e.dryRun,
		Context:   fields,
	}

	if e.sink != nil {
		if err := e.sink.Append(ctx, ev); err != nil {
			e.logger.Error("event append failed",
				zap.String("type", string(t)),
				zap.String("symbol", symbol),
				zap.Error(err),
			)
		}
	}
	if e.bus != nil {
		e.bus.Publish(ev)
	}
}
