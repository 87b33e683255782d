// Package api serves the operator surface: health, open positions,
// portfolio state, Prometheus metrics and a WebSocket event stream.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/donchian-labs/turtle-engine/internal/equity"
	"github.com/donchian-labs/turtle-engine/internal/position"
	"github.com/donchian-labs/turtle-engine/pkg/types"
)

// Engine is the slice of the trading engine the API reads from.
type Engine interface {
	Book() *position.Book
	Equity() equity.Snapshot
}

// AlertStore is the slice of storage the API needs for the alert
// endpoints.
type AlertStore interface {
	RecentAlerts(ctx context.Context, limit int) ([]types.Alert, error)
	AcknowledgeAlert(ctx context.Context, id string) error
}

// Server is the HTTP and WebSocket status server.
type Server struct {
	logger     *zap.Logger
	engine     Engine
	alerts     AlertStore
	registry   *prometheus.Registry
	hub        *Hub
	router     *mux.Router
	httpServer *http.Server
	started    time.Time
}

// Options collects the server's collaborators. Alerts and Registry may
// be nil; the matching endpoints report unavailable.
type Options struct {
	Logger   *zap.Logger
	Listen   string
	Engine   Engine
	Alerts   AlertStore
	Registry *prometheus.Registry
	Hub      *Hub
}

func NewServer(opts Options) *Server {
	s := &Server{
		logger:   opts.Logger,
		engine:   opts.Engine,
		alerts:   opts.Alerts,
		registry: opts.Registry,
		hub:      opts.Hub,
		router:   mux.NewRouter(),
		started:  time.Now().UTC(),
	}
	s.setupRoutes()

	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         opts.Listen,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/positions", s.handlePositions).Methods("GET")
	s.router.HandleFunc("/api/v1/portfolio", s.handlePortfolio).Methods("GET")
	s.router.HandleFunc("/api/v1/alerts", s.handleAlerts).Methods("GET")
	s.router.HandleFunc("/api/v1/alerts/{id}/ack", s.handleAckAlert).Methods("POST")
	if s.registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	if s.hub != nil {
		s.router.HandleFunc("/ws", s.hub.handleUpgrade)
	}
}

// Start blocks serving HTTP until the listener fails or Stop is
// called.
func (s *Server) Start() error {
	s.logger.Info("status server listening", zap.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop drains the server. WebSocket clients are closed by the hub when
// its context ends.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the routed handler for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"uptime":     time.Since(s.started).Round(time.Second).String(),
		"ws_clients": clients,
		"time":       time.Now().UTC().Format(time.RFC3339),
	})
}

// positionView is the wire shape of one open position.
type positionView struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	System       types.System    `json:"system"`
	Direction    types.Direction `json:"direction"`
	Units        int             `json:"units"`
	Contracts    int64           `json:"contracts"`
	AverageEntry decimal.Decimal `json:"averageEntry"`
	CurrentStop  decimal.Decimal `json:"currentStop"`
	OpenedAt     time.Time       `json:"openedAt"`
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	open := s.engine.Book().All()
	views := make([]positionView, 0, len(open))
	for _, p := range open {
		views = append(views, positionView{
			ID:           p.ID,
			Symbol:       p.Symbol,
			System:       p.System,
			Direction:    p.Direction,
			Units:        p.TotalUnits(),
			Contracts:    p.TotalContracts(),
			AverageEntry: p.AverageEntry(),
			CurrentStop:  p.CurrentStop,
			OpenedAt:     p.OpenedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"positions": views,
		"count":     len(views),
	})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Equity()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"actualEquity":   snap.ActualEquity,
		"peakEquity":     snap.PeakEquity,
		"notionalEquity": snap.NotionalEquity,
		"drawdown":       snap.Drawdown,
		"reductionSteps": snap.ReductionSteps,
		"updatedAt":      snap.UpdatedAt,
	})
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		http.Error(w, "alert store not configured", http.StatusServiceUnavailable)
		return
	}
	limit := 50
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 500 {
			http.Error(w, "limit must be 1-500", http.StatusBadRequest)
			return
		}
		limit = n
	}
	alerts, err := s.alerts.RecentAlerts(r.Context(), limit)
	if err != nil {
		s.logger.Error("alert query failed", zap.Error(err))
		http.Error(w, "alert query failed", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

func (s *Server) handleAckAlert(w http.ResponseWriter, r *http.Request) {
	if s.alerts == nil {
		http.Error(w, "alert store not configured", http.StatusServiceUnavailable)
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.alerts.AcknowledgeAlert(r.Context(), id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"acknowledged": id})
}
