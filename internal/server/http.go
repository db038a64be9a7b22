// Package server wires the HTTP surface: the indexer webhook, the read API,
// the websocket feed, and health endpoints, plus a separate metrics listener.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"CurveLedger/internal/broadcast"
	"CurveLedger/internal/event"
	"CurveLedger/internal/ingestion"
	"CurveLedger/internal/observability"
	"CurveLedger/internal/query"
	"CurveLedger/internal/views"
)

const shutdownTimeout = 5 * time.Second

// Deps holds everything the HTTP server mounts.
type Deps struct {
	Query         *query.Service
	Webhook       *ingestion.Webhook
	Hub           *broadcast.Hub
	HealthChecker *observability.HealthChecker
	Metrics       *observability.Metrics
}

// Server runs the main API listener and a separate metrics listener so
// scrapes never contend with indexer traffic.
type Server struct {
	httpServer    *http.Server
	metricsServer *http.Server
	router        *mux.Router
	log           zerolog.Logger
	deps          *Deps
}

func New(httpAddr, metricsAddr string, log zerolog.Logger, deps *Deps) *Server {
	s := &Server{
		log:  log.With().Str("component", "server").Logger(),
		deps: deps,
	}

	r := mux.NewRouter()
	deps.Webhook.Register(r)

	r.HandleFunc("/tokens", s.handleTokens).Methods(http.MethodGet)
	r.HandleFunc("/tokens/{addr}", s.handleToken).Methods(http.MethodGet)
	r.HandleFunc("/tokens/{addr}/trades", s.handleTokenTrades).Methods(http.MethodGet)
	r.HandleFunc("/tokens/{addr}/holders", s.handleHolders).Methods(http.MethodGet)
	r.HandleFunc("/tokens/{addr}/chart", s.handleChart).Methods(http.MethodGet)
	r.HandleFunc("/tokens/{addr}/pnl/{user}", s.handleTokenPNL).Methods(http.MethodGet)
	r.HandleFunc("/trades", s.handleRecentTrades).Methods(http.MethodGet)
	r.HandleFunc("/users/{user}/pnl", s.handleUserPNL).Methods(http.MethodGet)
	r.HandleFunc("/stakes/{addr}", s.handleStakeStats).Methods(http.MethodGet)
	r.HandleFunc("/stakes/{addr}/users/{user}", s.handleStakePosition).Methods(http.MethodGet)

	r.HandleFunc("/ws", deps.Hub.ServeWS)
	r.HandleFunc("/healthz", deps.HealthChecker.LivenessHandler)
	r.HandleFunc("/readyz", deps.HealthChecker.ReadinessHandler)

	s.router = r
	// No global read/write timeouts: /ws connections are long-lived and the
	// hub enforces its own ping/pong deadlines.
	s.httpServer = &http.Server{
		Addr:              httpAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	s.metricsServer = &http.Server{Addr: metricsAddr, Handler: metricsMux}

	return s
}

// Handler exposes the API router.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves the main API until the context ends (blocking).
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.log.Info().Msg("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.httpServer.Addr).Msg("http server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartMetrics serves the Prometheus endpoint until the context ends (blocking).
func (s *Server) StartMetrics(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.metricsServer.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", s.metricsServer.Addr).Msg("metrics server listening")
	if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ============================================================================
// Query handlers
// ============================================================================

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	s.respond(w, "tokens", s.deps.Query.Tokens(), nil)
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	resp, err := s.deps.Query.Token(mux.Vars(r)["addr"])
	s.respond(w, "token", resp, err)
}

func (s *Server) handleTokenTrades(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 0)
	offset := intParam(r, "offset", 0)
	resp, err := s.deps.Query.TokenTrades(mux.Vars(r)["addr"], limit, offset)
	s.respond(w, "token_trades", resp, err)
}

func (s *Server) handleRecentTrades(w http.ResponseWriter, r *http.Request) {
	s.respond(w, "recent_trades", s.deps.Query.RecentTrades(intParam(r, "limit", 0)), nil)
}

func (s *Server) handleHolders(w http.ResponseWriter, r *http.Request) {
	resp, err := s.deps.Query.Holders(mux.Vars(r)["addr"])
	s.respond(w, "holders", resp, err)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	interval := int64Param(r, "interval", 300)
	from := int64Param(r, "from", 0)
	to := int64Param(r, "to", 0)
	if interval <= 0 || (to > 0 && to <= from) {
		s.badRequest(w, "chart", "interval must be positive and from must precede to")
		return
	}
	resp, err := s.deps.Query.Chart(mux.Vars(r)["addr"], interval, from, to)
	s.respond(w, "chart", resp, err)
}

func (s *Server) handleTokenPNL(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	resp, err := s.deps.Query.TokenPNL(vars["addr"], vars["user"])
	s.respond(w, "token_pnl", resp, err)
}

func (s *Server) handleUserPNL(w http.ResponseWriter, r *http.Request) {
	resp, err := s.deps.Query.UserPNL(mux.Vars(r)["user"])
	s.respond(w, "user_pnl", resp, err)
}

func (s *Server) handleStakeStats(w http.ResponseWriter, r *http.Request) {
	resp, err := s.deps.Query.StakeStats(mux.Vars(r)["addr"])
	s.respond(w, "stake_stats", resp, err)
}

func (s *Server) handleStakePosition(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	resp, err := s.deps.Query.StakePosition(vars["addr"], vars["user"])
	s.respond(w, "stake_position", resp, err)
}

// ============================================================================
// Response plumbing
// ============================================================================

type errorResponse struct {
	Error string `json:"error"`
}

// respond maps service errors to HTTP status codes and records per-endpoint
// metrics. Domain not-found errors become 404, bad input 400, the rest 500.
func (s *Server) respond(w http.ResponseWriter, endpoint string, body any, err error) {
	start := time.Now()
	status := http.StatusOK

	if err != nil {
		switch {
		case errors.Is(err, event.ErrUnknownToken),
			errors.Is(err, event.ErrUnknownStake),
			errors.Is(err, views.ErrUnknownUser):
			status = http.StatusNotFound
		case errors.Is(err, event.ErrMalformedEvent):
			status = http.StatusBadRequest
		default:
			status = http.StatusInternalServerError
			s.log.Error().Err(err).Str("endpoint", endpoint).Msg("query failed")
		}
		body = errorResponse{Error: err.Error()}
		if status == http.StatusInternalServerError {
			body = errorResponse{Error: "internal error"}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)

	if s.deps.Metrics != nil {
		s.deps.Metrics.QueryRequests.WithLabelValues(endpoint, fmt.Sprintf("%d", status)).Inc()
		s.deps.Metrics.QueryDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}
}

func (s *Server) badRequest(w http.ResponseWriter, endpoint, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(errorResponse{Error: msg})
	if s.deps.Metrics != nil {
		s.deps.Metrics.QueryRequests.WithLabelValues(endpoint, "400").Inc()
	}
}

func intParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func int64Param(r *http.Request, name string, fallback int64) int64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
