// Package types provides shared type definitions for the turtle trading engine.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction represents long or short exposure.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Opposite returns the reverse direction.
func (d Direction) Opposite() Direction {
	if d == DirectionLong {
		return DirectionShort
	}
	return DirectionLong
}

// System identifies which breakout system generated a signal.
// S1 enters on the 20-day channel and exits on the 10-day;
// S2 enters on the 55-day channel and exits on the 20-day.
type System string

const (
	SystemOne System = "S1"
	SystemTwo System = "S2"
)

// ExitReason records why a trade was closed.
type ExitReason string

const (
	ExitReasonStopHit      ExitReason = "STOP_HIT"
	ExitReasonBreakoutExit ExitReason = "BREAKOUT_EXIT"
	ExitReasonManual       ExitReason = "MANUAL"
	ExitReasonRollover     ExitReason = "ROLLOVER"
)

// ATRMethod selects the smoothing applied to true range.
type ATRMethod string

const (
	ATRMethodWilders ATRMethod = "WILDERS"
	ATRMethodSMA     ATRMethod = "SMA"
)

// Bar is a single daily OHLCV bar.
type Bar struct {
	Symbol string          `json:"symbol"`
	Date   time.Time       `json:"date"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// NValue is the volatility measure N: a smoothed average true range.
// Immutable once computed for a (symbol, date).
type NValue struct {
	Value        decimal.Decimal `json:"value"`
	Period       int             `json:"period"`
	Method       ATRMethod       `json:"method"`
	CalculatedAt time.Time       `json:"calculatedAt"`
}

// DonchianChannel holds the channel extremes over a lookback window.
type DonchianChannel struct {
	Upper        decimal.Decimal `json:"upper"`
	Lower        decimal.Decimal `json:"lower"`
	Period       int             `json:"period"`
	CalculatedAt time.Time       `json:"calculatedAt"`
}

// MarketSpec is immutable reference data for a tradeable market.
type MarketSpec struct {
	Symbol           string          `json:"symbol"`
	PointValue       decimal.Decimal `json:"pointValue"`
	TickSize         decimal.Decimal `json:"tickSize"`
	CorrelationGroup string          `json:"correlationGroup"`
	AssetClass       string          `json:"assetClass"`
	Active           bool            `json:"active"`
}

// MarketData is the per-symbol snapshot consumed by the decision engine.
// It is rebuilt on every scan or monitor cycle and never mutated in place.
type MarketData struct {
	Spec         MarketSpec      `json:"spec"`
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	N            NValue          `json:"n"`
	Donchian10   DonchianChannel `json:"donchian10"`
	Donchian20   DonchianChannel `json:"donchian20"`
	Donchian55   DonchianChannel `json:"donchian55"`
	// LatestBar carries today's bar when available so stop checks can use
	// the intraday high/low rather than the last price.
	LatestBar *Bar      `json:"latestBar,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Channel returns the Donchian channel for the given period.
func (m MarketData) Channel(period int) DonchianChannel {
	switch period {
	case 10:
		return m.Donchian10
	case 55:
		return m.Donchian55
	default:
		return m.Donchian20
	}
}

// Signal is a detected breakout. Immutable.
type Signal struct {
	Symbol         string          `json:"symbol"`
	System         System          `json:"system"`
	Direction      Direction       `json:"direction"`
	BreakoutPrice  decimal.Decimal `json:"breakoutPrice"`
	TriggeredAt    time.Time       `json:"triggeredAt"`
	DonchianPeriod int             `json:"donchianPeriod"`
}

// PyramidLevel is one unit of an open position. Immutable; pyramiding
// appends a new level rather than modifying existing ones.
type PyramidLevel struct {
	UnitNumber   int             `json:"unitNumber"`
	EntryPrice   decimal.Decimal `json:"entryPrice"`
	EntryTime    time.Time       `json:"entryTime"`
	NAtEntry     decimal.Decimal `json:"nAtEntry"`
	Contracts    int64           `json:"contracts"`
	OriginalStop decimal.Decimal `json:"originalStop"`
}

// Trade is the audit record of a round trip, open or closed.
type Trade struct {
	ID              string           `json:"id"`
	Symbol          string           `json:"symbol"`
	System          System           `json:"system"`
	Direction       Direction        `json:"direction"`
	EntryDate       time.Time        `json:"entryDate"`
	EntryPrice      decimal.Decimal  `json:"entryPrice"`
	NAtEntry        decimal.Decimal  `json:"nAtEntry"`
	InitialStop     decimal.Decimal  `json:"initialStop"`
	PyramidLevels   []PyramidLevel   `json:"pyramidLevels"`
	MaxUnits        int              `json:"maxUnits"`
	ExitDate        *time.Time       `json:"exitDate,omitempty"`
	ExitPrice       *decimal.Decimal `json:"exitPrice,omitempty"`
	ExitReason      ExitReason       `json:"exitReason,omitempty"`
	RealizedPnL     *decimal.Decimal `json:"realizedPnl,omitempty"`
	CommissionTotal decimal.Decimal  `json:"commissionTotal"`
	NetPnL          *decimal.Decimal `json:"netPnl,omitempty"`
}

// Closed reports whether the trade has been exited.
func (t *Trade) Closed() bool { return t.ExitDate != nil }

// WasWinner reports whether a closed trade finished with positive net P&L.
func (t *Trade) WasWinner() bool {
	return t.NetPnL != nil && t.NetPnL.IsPositive()
}

// AccountSummary is the broker-reported account state.
type AccountSummary struct {
	NetLiquidation decimal.Decimal `json:"netLiquidation"`
	Cash           decimal.Decimal `json:"cash"`
	Currency       string          `json:"currency"`
	ReportedAt     time.Time       `json:"reportedAt"`
}

// AlertType enumerates the alert categories written to the alerts table.
type AlertType string

const (
	AlertEntrySignal    AlertType = "ENTRY_SIGNAL"
	AlertPositionOpened AlertType = "POSITION_OPENED"
	AlertPositionClosed AlertType = "POSITION_CLOSED"
	AlertExitStop       AlertType = "EXIT_STOP"
	AlertExitBreakout   AlertType = "EXIT_BREAKOUT"
	AlertPyramidTrigger AlertType = "PYRAMID_TRIGGER"
)

// Alert is a user-facing notification row.
type Alert struct {
	ID           string           `json:"id"`
	Timestamp    time.Time        `json:"timestamp"`
	Symbol       string           `json:"symbol"`
	AlertType    AlertType        `json:"alertType"`
	Direction    Direction        `json:"direction,omitempty"`
	System       System           `json:"system,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	Details      string           `json:"details"`
	Acknowledged bool             `json:"acknowledged"`
}

// OpenPositionRow is the persisted snapshot of an open position,
// upserted on significant change and deleted on close.
type OpenPositionRow struct {
	Symbol        string           `json:"symbol"`
	Direction     Direction        `json:"direction"`
	System        System           `json:"system"`
	EntryPrice    decimal.Decimal  `json:"entryPrice"`
	EntryDate     time.Time        `json:"entryDate"`
	Contracts     int64            `json:"contracts"`
	Units         int              `json:"units"`
	CurrentPrice  *decimal.Decimal `json:"currentPrice,omitempty"`
	StopPrice     *decimal.Decimal `json:"stopPrice,omitempty"`
	UnrealizedPnL *decimal.Decimal `json:"unrealizedPnl,omitempty"`
	NValue        *decimal.Decimal `json:"nValue,omitempty"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}
