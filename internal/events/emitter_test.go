package events

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"
)

type memorySink struct {
	mu     sync.Mutex
	events []Event
}

func (m *memorySink) Append(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func TestEmitterSequenceMonotonic(t *testing.T) {
	sink := &memorySink{}
	em := NewEmitter(zap.NewNop(), sink, nil, SourceScanner, false)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		em.Emit(ctx, TypeSignalDetected, OutcomeOK, "GC", nil)
	}

	if len(sink.events) != 5 {
		t.Fatalf("expected 5 events, got %d", len(sink.events))
	}
	for i, ev := range sink.events {
		if ev.Sequence != uint64(i+1) {
			t.Errorf("event %d: sequence %d, expected %d", i, ev.Sequence, i+1)
		}
		if ev.RunID != em.RunID() {
			t.Errorf("event %d: run id mismatch", i)
		}
		if ev.Source != SourceScanner {
			t.Errorf("event %d: source incorrect: %s", i, ev.Source)
		}
	}
}

func TestEmitterConcurrentSequenceUnique(t *testing.T) {
	sink := &memorySink{}
	em := NewEmitter(zap.NewNop(), sink, nil, SourceMonitor, true)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			em.Emit(context.Background(), TypePyramidAdded, OutcomeOK, "CL", nil)
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for _, ev := range sink.events {
		if seen[ev.Sequence] {
			t.Fatalf("duplicate sequence %d", ev.Sequence)
		}
		seen[ev.Sequence] = true
		if !ev.DryRun {
			t.Error("dry-run flag should propagate")
		}
	}
	if len(seen) != 20 {
		t.Errorf("expected 20 unique sequences, got %d", len(seen))
	}
}

func TestBusFanout(t *testing.T) {
	bus := NewBus(zap.NewNop(), 4)

	ch1, cancel1 := bus.Subscribe()
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()

	bus.Publish(Event{Type: TypeScanStarted, Sequence: 1})

	if ev := <-ch1; ev.Type != TypeScanStarted {
		t.Errorf("subscriber 1 got %s", ev.Type)
	}
	if ev := <-ch2; ev.Type != TypeScanStarted {
		t.Errorf("subscriber 2 got %s", ev.Type)
	}

	cancel1()
	if bus.SubscriberCount() != 1 {
		t.Errorf("expected 1 subscriber after cancel, got %d", bus.SubscriberCount())
	}
	if _, open := <-ch1; open {
		t.Error("cancelled channel should be closed")
	}
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus(zap.NewNop(), 1)
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish(Event{Sequence: 1})
	bus.Publish(Event{Sequence: 2}) // dropped, never blocks

	ev := <-ch
	if ev.Sequence != 1 {
		t.Errorf("expected first event, got sequence %d", ev.Sequence)
	}
	select {
	case ev := <-ch:
		t.Errorf("unexpected second event: %d", ev.Sequence)
	default:
	}
}
