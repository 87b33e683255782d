// Package events provides the append-only audit trail of every
// decision the engine makes, plus a fanout bus for live subscribers.
package events

import (
	"context"
	"time"
)

// Type categorizes an audit event.
type Type string

const (
	TypeScanStarted     Type = "scan_started"
	TypeScanFinished    Type = "scan_finished"
	TypeSignalDetected  Type = "signal_detected"
	TypeSignalFiltered  Type = "signal_filtered"
	TypeSignalRanked    Type = "signal_ranked"
	TypeEntrySkipped    Type = "entry_skipped"
	TypeOrderPlaced     Type = "order_placed"
	TypeOrderRejected   Type = "order_rejected"
	TypePositionOpened  Type = "position_opened"
	TypePyramidAdded    Type = "pyramid_added"
	TypeStopAdvanced    Type = "stop_advanced"
	TypePositionClosed  Type = "position_closed"
	TypeRolloverAlert   Type = "rollover_alert"
	TypeEquityUpdated   Type = "equity_updated"
	TypeReconcileDrift  Type = "reconcile_drift"
	TypeSymbolError     Type = "symbol_error"
)

// Outcome states how the step concluded.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeSkipped Outcome = "skipped"
	OutcomeBlocked Outcome = "blocked"
	OutcomeFailed  Outcome = "failed"
)

// Source identifies which loop produced the event.
type Source string

const (
	SourceScanner  Source = "scanner"
	SourceMonitor  Source = "monitor"
	SourceBacktest Source = "backtest"
)

// Event is one audit record. Sequence is monotonic within a run, so
// (RunID, Sequence) totally orders a run's decisions.
type Event struct {
	ID        string         `json:"id"`
	RunID     string         `json:"runId"`
	Sequence  uint64         `json:"sequence"`
	Timestamp time.Time      `json:"timestamp"`
	Type      Type           `json:"type"`
	Outcome   Outcome        `json:"outcome"`
	Source    Source         `json:"source"`
	Symbol    string         `json:"symbol,omitempty"`
	DryRun    bool           `json:"dryRun"`
	Context   map[string]any `json:"context,omitempty"`
}

// Sink persists events. The storage layer implements this; tests use
// an in-memory slice.
type Sink interface {
	Append(ctx context.Context, e Event) error
}
