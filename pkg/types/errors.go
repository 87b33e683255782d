package types

import "errors"

// Sentinel errors for the failure taxonomy. Policy outcomes such as a
// denied limit or a zero-contract unit are verdict values, not errors.
var (
	// ErrInsufficientHistory: not enough bars for an indicator window.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrBarValidation: a bar violated OHLC constraints and was rejected.
	ErrBarValidation = errors.New("bar validation failed")

	// ErrDataSourceUnavailable: all configured data feeds failed.
	ErrDataSourceUnavailable = errors.New("data source unavailable")

	// ErrBrokerTransient: network/timeout on a broker call; idempotent
	// calls may be retried with bounded backoff.
	ErrBrokerTransient = errors.New("transient broker failure")

	// ErrBrokerRejected: business rejection (margin, halted symbol).
	ErrBrokerRejected = errors.New("broker rejected order")

	// ErrReconciliationRequired: in-memory positions drifted from the
	// broker's; no new orders on the affected symbol until reconciled.
	ErrReconciliationRequired = errors.New("reconciliation required")

	// ErrFatalConfig: missing or invalid configuration at startup.
	ErrFatalConfig = errors.New("invalid configuration")

	// ErrPositionClosed: mutation attempted on a closed position.
	ErrPositionClosed = errors.New("position already closed")
)
