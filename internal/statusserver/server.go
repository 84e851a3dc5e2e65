// Package statusserver exposes the read-only operator surface the
// orchestrator runs alongside a scheduled invocation: liveness, the last
// persisted state snapshot, and the current breaker posture. It never
// accepts a write - triggering a run, placing an order, or anything else
// that mutates state happens through the orchestrator's own entry point,
// never through this API.
package statusserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/tradecore/decision-core/internal/domain"
	"github.com/tradecore/decision-core/internal/state"
)

// Server is the minimal read-only HTTP status surface.
type Server struct {
	router *chi.Mux
	http   *http.Server
	store  *state.Store
	log    zerolog.Logger
}

// New builds a Server bound to addr (e.g. ":8090"), reading state through
// store on every request rather than caching it, since requests are
// infrequent (operator polling, not a hot path).
func New(addr string, store *state.Store, log zerolog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		store:  store,
		log:    log.With().Str("component", "status_server").Logger(),
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Timeout(10 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	}))

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Get("/state", s.handleState)
	s.router.Get("/breaker", s.handleBreaker)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving the status surface until the process is
// killed or the listener errors.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("status server listening")
	return s.http.ListenAndServe()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	loaded, err := s.store.Load()
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("load state: %v", err)})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"freshness": loaded.Freshness,
		"usable":    loaded.Usable,
		"state":     loaded.State,
	})
}

func (s *Server) handleBreaker(w http.ResponseWriter, r *http.Request) {
	loaded, err := s.store.Load()
	if err != nil {
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": fmt.Sprintf("load state: %v", err)})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]domain.BreakerState{
		"portfolio": loaded.State.PortfolioBreaker,
	})
}
