package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/soulscore/internal/emotion"
	"github.com/MikeSquared-Agency/soulscore/internal/reputation"
)

// Reputations is the per-identity reputation ledger.
type Reputations interface {
	Get(ctx context.Context, identityID uuid.UUID) (reputation.State, error)
	Apply(ctx context.Context, identityID uuid.UUID, activity reputation.Activity, now int64) (reputation.State, error)
	History(ctx context.Context, identityID uuid.UUID, limit int) ([]reputation.Point, error)
}

// Snapshots serves cached reputation reads.
type Snapshots interface {
	Get(ctx context.Context, identityID uuid.UUID) (reputation.State, error)
}

// Observations looks up stored emotional observations.
type Observations interface {
	NearestObservations(ctx context.Context, identityID uuid.UUID, obs emotion.Observation, k int) (emotion.Trajectory, error)
}

// Deps bundles the collaborators behind the identity routes.
type Deps struct {
	Reputations  Reputations
	Snapshots    Snapshots
	Observations Observations
	Publisher    Publisher
}

// Publisher announces updates made through the API.
type Publisher interface {
	Publish(subject string, data any) error
}

type Server struct {
	router *chi.Mux
	http   *http.Server
	port   int
	deps   Deps
	logger *slog.Logger
	now    func() time.Time
}

func NewServer(port int, apiToken string, deps Deps, logger *slog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
		port:   port,
		deps:   deps,
		logger: logger,
		now:    time.Now,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/soulscore/status", s.status)
	router.Post("/api/v1/emotion/analyze", s.analyze)

	router.Route("/api/v1/identities/{id}", func(r chi.Router) {
		r.Get("/reputation", s.getReputation)
		r.Get("/reputation/history", s.getHistory)
		r.Get("/observations/similar", s.similarObservations)
		r.With(BearerAuthMiddleware(apiToken)).Post("/activities", s.postActivity)
	})

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called, then returns http.ErrServerClosed.
func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"agent":  "soulscore",
		"status": "active",
	})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
