// Package api exposes the health/status HTTP and WebSocket surface
// shared by both agents: REST endpoints for status/trades/plan, a
// Prometheus metrics endpoint, and a WebSocket broadcast hub status
// changes are pushed to.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/farming"
	"github.com/atlas-desktop/trading-backend/internal/tracker"
	"github.com/atlas-desktop/trading-backend/internal/trading"
	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

const shutdownGrace = 5 * time.Second

// Server is the HTTP/WebSocket status server.
type Server struct {
	logger  *zap.Logger
	cfg     types.ServerConfig
	router  *mux.Router
	http    *http.Server
	hub     *Hub
	stopHub chan struct{}

	trading *trading.Agent
	farming *farming.Agent
	tracker *tracker.Tracker
}

// NewServer constructs a Server wired to the running agents.
func NewServer(logger *zap.Logger, cfg types.ServerConfig, tradingAgent *trading.Agent, farmingAgent *farming.Agent, tr *tracker.Tracker) *Server {
	s := &Server{
		logger:  logger,
		cfg:     cfg,
		router:  mux.NewRouter(),
		hub:     NewHub(logger),
		stopHub: make(chan struct{}),
		trading: tradingAgent,
		farming: farmingAgent,
		tracker: tr,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/trading/status", s.handleTradingStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/farming/status", s.handleFarmingStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/trades", s.handleTrades).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.hub.ServeWS)
}

// Start runs the hub and blocks serving HTTP until the server is
// stopped or fails.
func (s *Server) Start() error {
	go s.hub.Run(s.stopHub)
	go s.publishLoop()

	handler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler(s.router)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{Addr: addr, Handler: handler}

	s.logger.Info("api server starting", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the HTTP server and the broadcast hub.
func (s *Server) Stop(ctx context.Context) error {
	close(s.stopHub)
	ctx, cancel := context.WithTimeout(ctx, shutdownGrace)
	defer cancel()
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// publishLoop periodically pushes a status snapshot of both agents
// onto the WebSocket hub, independent of each agent's own tick cadence.
func (s *Server) publishLoop() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopHub:
			return
		case <-ticker.C:
			if status, err := s.trading.Status(context.Background()); err == nil {
				s.hub.Publish("trading_status", status)
				tradingEquity.Set(status.Equity.InexactFloat64())
				tradingOpenPositions.Set(float64(status.OpenPositions))
				tradingWinRate.Set(status.Stats.WinRatePct.InexactFloat64())
				if status.Paused {
					tradingPaused.Set(1)
				} else {
					tradingPaused.Set(0)
				}
			}
			if s.farming != nil {
				snap := s.farming.StatusSnapshot()
				s.hub.Publish("farming_status", snap)
				farmingTotalActions.Set(float64(snap.TotalActions))
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) handleTradingStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.trading.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, status)
}

func (s *Server) handleFarmingStatus(w http.ResponseWriter, r *http.Request) {
	if s.farming == nil {
		http.Error(w, "farming agent not configured", http.StatusNotFound)
		return
	}
	writeJSON(w, s.farming.StatusSnapshot())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := parsePositiveInt(raw); err == nil {
			limit = n
		}
	}
	writeJSON(w, map[string]interface{}{
		"open":   s.tracker.OpenTrades(),
		"closed": s.tracker.ClosedTrades(limit),
	})
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not a number: %q", s)
		}
		n = n*10 + int(c-'0')
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive: %q", s)
	}
	return n, nil
}
