package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/robik3456/tradebot/pkg/ledger"
	"github.com/robik3456/tradebot/pkg/trader"
)

// Server is a read-only JSON status surface over the running loop: health,
// current positions, recent ledger entries, and Prometheus metrics.
type Server struct {
	trader  *trader.LiveTrader
	journal ledger.Journal
	logger  *logrus.Logger
	port    string
}

func NewServer(trader *trader.LiveTrader, journal ledger.Journal, logger *logrus.Logger, port string) *Server {
	return &Server{
		trader:  trader,
		journal: journal,
		logger:  logger,
		port:    port,
	}
}

func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/positions", s.handlePositions)
	mux.HandleFunc("/api/trades", s.handleTrades)
	mux.Handle("/metrics", promhttp.Handler())

	s.logger.Infof("Starting API server on port %s", s.port)
	return http.ListenAndServe(":"+s.port, mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, s.trader.Positions())
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, http.StatusOK, s.journal.Recent(100))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
