// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the engine updates. A single instance
// is shared by the scanner, monitor and broker layers.
type Metrics struct {
	ScansTotal        prometheus.Counter
	SymbolsScanned    prometheus.Counter
	SignalsDetected   *prometheus.CounterVec
	SignalsFiltered   prometheus.Counter
	EntriesPlaced     prometheus.Counter
	EntriesBlocked    *prometheus.CounterVec
	MonitorDecisions  *prometheus.CounterVec
	CycleDuration     prometheus.Histogram
	BrokerErrors      *prometheus.CounterVec
	SymbolErrors      prometheus.Counter
	OpenPositions     prometheus.Gauge
	OpenUnits         prometheus.Gauge
	ActualEquity      prometheus.Gauge
	NotionalEquity    prometheus.Gauge
	EventsEmitted     prometheus.Counter
}

// New registers all collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ScansTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "turtle_scans_total",
			Help: "Completed daily scans.",
		}),
		SymbolsScanned: factory.NewCounter(prometheus.CounterOpts{
			Name: "turtle_symbols_scanned_total",
			Help: "Symbols evaluated across all scans.",
		}),
		SignalsDetected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "turtle_signals_detected_total",
			Help: "Breakout signals by system and direction.",
		}, []string{"system", "direction"}),
		SignalsFiltered: factory.NewCounter(prometheus.CounterOpts{
			Name: "turtle_signals_filtered_total",
			Help: "S1 signals suppressed by the last-winner filter.",
		}),
		EntriesPlaced: factory.NewCounter(prometheus.CounterOpts{
			Name: "turtle_entries_placed_total",
			Help: "Entry orders placed.",
		}),
		EntriesBlocked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "turtle_entries_blocked_total",
			Help: "Entries blocked, by reason class.",
		}, []string{"reason"}),
		MonitorDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "turtle_monitor_decisions_total",
			Help: "Monitor decisions by action.",
		}, []string{"action"}),
		CycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "turtle_cycle_duration_seconds",
			Help:    "Duration of scan and monitor cycles.",
			Buckets: prometheus.DefBuckets,
		}),
		BrokerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "turtle_broker_errors_total",
			Help: "Broker call failures by class.",
		}, []string{"class"}),
		SymbolErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "turtle_symbol_errors_total",
			Help: "Per-symbol errors isolated by the orchestrators.",
		}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "turtle_open_positions",
			Help: "Open positions in the book.",
		}),
		OpenUnits: factory.NewGauge(prometheus.GaugeOpts{
			Name: "turtle_open_units",
			Help: "Open units across all positions.",
		}),
		ActualEquity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "turtle_actual_equity",
			Help: "Latest actual account equity.",
		}),
		NotionalEquity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "turtle_notional_equity",
			Help: "Drawdown-reduced equity used for sizing.",
		}),
		EventsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "turtle_events_emitted_total",
			Help: "Audit events emitted.",
		}),
	}
}
