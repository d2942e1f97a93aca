// Package httpapi is the §6 HTTP surface: a thin chi router translating the
// Agent Manager's API onto REST endpoints and a WebSocket event relay. It is
// a documented boundary, not core — handlers only marshal/unmarshal and
// translate apperr.Kind to HTTP status, with no business logic of their own.
// Grounded directly on the teacher's internal/server (chi + go-chi/cors +
// middleware.Recoverer/RequestID/RealIP/Timeout/Compress).
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/sacahan/casualtrader-go/internal/agent"
	"github.com/sacahan/casualtrader-go/internal/apperr"
	"github.com/sacahan/casualtrader-go/internal/calendar"
	"github.com/sacahan/casualtrader-go/internal/repository"
)

// Server wraps chi's router over the Agent Manager.
type Server struct {
	router      chi.Router
	manager     *agent.Manager
	repo        repository.Repository
	calendar    *calendar.Calendar
	log         zerolog.Logger
	startupTime time.Time
}

// New builds a Server with routes and middleware installed.
func New(manager *agent.Manager, repo repository.Repository, cal *calendar.Calendar, log zerolog.Logger) *Server {
	s := &Server{
		router:      chi.NewRouter(),
		manager:     manager,
		repo:        repo,
		calendar:    cal,
		log:         log.With().Str("component", "httpapi").Logger(),
		startupTime: time.Now(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// ServeHTTP lets Server satisfy http.Handler directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/market/status", s.handleMarketStatus)
	s.router.Get("/ws", s.handleWebSocket)

	s.router.Route("/agents", func(r chi.Router) {
		r.Post("/", s.handleCreateAgent)
		r.Get("/", s.handleListAgents)

		r.Route("/{agentID}", func(r chi.Router) {
			r.Get("/", s.handleGetAgent)
			r.Put("/", s.handleUpdateAgent)
			r.Delete("/", s.handleDeleteAgent)

			r.Post("/start", s.handleStartAgent)
			r.Post("/stop", s.handleStopAgent)
			r.Put("/mode", s.handleSetMode)

			r.Get("/portfolio", s.handlePortfolio)
			r.Get("/trades", s.handleTrades)
			r.Get("/strategies", s.handleStrategies)
			r.Get("/sessions/{sessionID}", s.handleGetSession)
		})
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

// --- response helpers -------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(log zerolog.Logger, w http.ResponseWriter, err error) {
	status := statusFor(apperr.KindOf(err))
	log.Warn().Err(err).Int("status", status).Msg("request failed")
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor translates an apperr.Kind to its HTTP status, per §6.
func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindUpstreamUnavailable:
		return http.StatusBadGateway
	case apperr.KindBudgetExceeded:
		return http.StatusUnprocessableEntity
	case apperr.KindCancelled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := s.systemStats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"time":         time.Now().UTC(),
		"uptime":       time.Since(s.startupTime).String(),
		"cpu_percent":  cpuPercent,
		"ram_percent":  ramPercent,
	})
}

// systemStats reports instantaneous CPU and RAM usage percentages, the same
// way the teacher's system_handlers.go getSystemStats does: a short-window
// CPU sample so the health check still responds quickly.
func (s *Server) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read CPU percentage")
		cpuPercent = []float64{0}
	}
	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to read memory statistics")
		return cpuPercent[0], 0
	}
	return cpuPercent[0], memStat.UsedPercent
}

func (s *Server) handleMarketStatus(w http.ResponseWriter, r *http.Request) {
	status := s.calendar.StatusAt(time.Now())
	writeJSON(w, http.StatusOK, status)
}

func pageFrom(r *http.Request) repository.Page {
	q := r.URL.Query()
	limit := atoiDefault(q.Get("limit"), 0)
	offset := atoiDefault(q.Get("offset"), 0)
	return repository.Page{Limit: limit, Offset: offset}
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	var n int
	for _, c := range s {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	return n
}

