package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mikey/agenda-relay/internal/core"
	"github.com/mikey/agenda-relay/internal/poller"
)

// maxEventLimit caps the limit query parameter of the events endpoint
const maxEventLimit = 1000

// Controller is the part of the poller the API drives
type Controller interface {
	Trigger(ctx context.Context) (*core.CycleReport, error)
	Check(ctx context.Context) error
	ResetCounters()
	SetInterval(d time.Duration) error
	Snapshot() poller.Status
}

// Server is the status and control HTTP API
type Server struct {
	addr            string
	shutdownTimeout time.Duration
	controller      Controller
	journal         core.Journal
	logger          *zap.Logger
	server          *http.Server
	listener        net.Listener
	done            chan struct{}
}

// NewServer creates a new status server
func NewServer(addr string, shutdownTimeout time.Duration, controller Controller, journal core.Journal, logger *zap.Logger) *Server {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	s := &Server{
		addr:            addr,
		shutdownTimeout: shutdownTimeout,
		controller:      controller,
		journal:         journal,
		logger:          logger,
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler serving every route
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr returns the address the server listens on once started
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Start binds the listen address and serves in the background
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.done = make(chan struct{})

	s.logger.Info("Starting status API server", zap.String("address", ln.Addr().String()))
	go func() {
		defer close(s.done)
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Status API server failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop() error {
	if s.listener == nil {
		return nil
	}
	s.logger.Info("Shutting down status API server")

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down status API server: %w", err)
	}
	<-s.done
	return nil
}

// setupRoutes configures all HTTP routes and middleware
func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.loggingMiddleware)

	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Registered on the root router: a method mismatch must answer 405
	router.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/poll", s.handlePoll).Methods(http.MethodPost)
	router.HandleFunc("/api/check", s.handleCheck).Methods(http.MethodPost)
	router.HandleFunc("/api/events", s.handleListEvents).Methods(http.MethodGet)
	router.HandleFunc("/api/events", s.handleClearEvents).Methods(http.MethodDelete)
	router.HandleFunc("/api/counters/reset", s.handleResetCounters).Methods(http.MethodPost)
	router.HandleFunc("/api/interval", s.handleSetInterval).Methods(http.MethodPut)

	return router
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("Status API request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("remote", r.RemoteAddr),
			zap.Duration("duration", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handlePoll(w http.ResponseWriter, r *http.Request) {
	report, err := s.controller.Trigger(r.Context())
	if errors.Is(err, poller.ErrStopped) {
		s.writeError(w, http.StatusServiceUnavailable, "Poller is stopped")
		return
	}
	if err != nil {
		resp := map[string]any{"error": err.Error()}
		if report != nil {
			resp["report"] = report
		}
		s.writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Check(r.Context()); err != nil {
		s.writeJSON(w, http.StatusBadGateway, map[string]any{"connected": false, "error": err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"connected": true})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	level := core.Level(query.Get("level"))
	switch level {
	case "", core.LevelInfo, core.LevelSuccess, core.LevelWarning, core.LevelConflict, core.LevelError:
	default:
		s.writeError(w, http.StatusBadRequest, "Unknown level")
		return
	}

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > maxEventLimit {
			s.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	events, err := s.journal.List(r.Context(), level, limit)
	if err != nil {
		s.logger.Error("Failed to list events", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

func (s *Server) handleClearEvents(w http.ResponseWriter, r *http.Request) {
	if err := s.journal.Clear(r.Context()); err != nil {
		s.logger.Error("Failed to clear events", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Failed to clear events")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResetCounters(w http.ResponseWriter, r *http.Request) {
	s.controller.ResetCounters()
	s.writeJSON(w, http.StatusOK, s.controller.Snapshot().Counters)
}

// IntervalRequest is the body of PUT /api/interval
type IntervalRequest struct {
	Seconds int `json:"seconds"`
}

func (s *Server) handleSetInterval(w http.ResponseWriter, r *http.Request) {
	var req IntervalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := s.controller.SetInterval(time.Duration(req.Seconds) * time.Second); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"seconds": req.Seconds})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Warn("Error encoding JSON response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
