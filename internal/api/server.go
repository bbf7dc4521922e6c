package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/bathroom-buddy/internal/auth"
	"github.com/JakeFAU/bathroom-buddy/internal/config"
	"github.com/JakeFAU/bathroom-buddy/internal/middleware"
	"github.com/JakeFAU/bathroom-buddy/internal/policy/ratelimit"
	"github.com/JakeFAU/bathroom-buddy/internal/search"
	"github.com/JakeFAU/bathroom-buddy/internal/store"
	"github.com/JakeFAU/bathroom-buddy/internal/telemetry"
)

const (
	defaultRequestTimeout = 60 * time.Second
	readyTimeout          = 2 * time.Second
	maxBodyBytes          = 1 << 20
)

// Searcher runs a restroom search for a free-text location.
type Searcher interface {
	Run(ctx context.Context, query string) (search.Result, error)
}

// PasswordHasher hashes and verifies account passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Check(hash, password string) error
}

// IDGenerator issues user and request identifiers.
type IDGenerator interface {
	NewUserID() (uuid.UUID, error)
	NewRequestID() string
}

// Clock supplies timestamps for new records.
type Clock interface {
	Now() time.Time
}

// Deps bundles the collaborators of a Server. Limiter may be nil.
type Deps struct {
	Repo     store.Repository
	Searcher Searcher
	Sessions *auth.Sessions
	Hasher   PasswordHasher
	IDs      IDGenerator
	Clock    Clock
	Limiter  *ratelimit.Limiter
	Config   config.Config
	Logger   *zap.Logger
}

// Server wires HTTP handlers to the search pipeline and the repository.
type Server struct {
	router   chi.Router
	repo     store.Repository
	searcher Searcher
	sessions *auth.Sessions
	hasher   PasswordHasher
	ids      IDGenerator
	clock    Clock
	limiter  *ratelimit.Limiter
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		repo:     deps.Repo,
		searcher: deps.Searcher,
		sessions: deps.Sessions,
		hasher:   deps.Hasher,
		ids:      deps.IDs,
		clock:    deps.Clock,
		limiter:  deps.Limiter,
		cfg:      deps.Config,
		logger:   logger,
	}

	timeout := s.cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID(s.ids))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Timeout(timeout))
	r.Use(telemetry.Middleware)
	r.Use(middleware.NoCache)
	r.Use(s.sessions.Middleware)

	r.Get("/", s.home)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/signup", s.signup)
		r.Post("/login", s.login)
		r.Post("/logout", s.logout)
		r.Get("/users/{user_id}/favorites", s.listFavorites)
		r.Get("/restrooms/{place_id}", s.getRestroom)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUser)
			r.Get("/users/me", s.getMe)
			r.Put("/users/me", s.updateMe)
			r.Delete("/users/me", s.deleteMe)
			r.With(s.searchLimit()).Get("/search", s.search)
			r.Post("/restrooms/{place_id}/favorite", s.addFavorite)
			r.Delete("/restrooms/{place_id}/favorite", s.removeFavorite)
			r.Post("/restrooms/{place_id}/blacklist", s.blacklist)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) searchLimit() func(http.Handler) http.Handler {
	if s.limiter == nil || !s.cfg.RateLimit.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}
	return s.limiter.Middleware(func(r *http.Request) string {
		p, ok := auth.FromContext(r.Context())
		if !ok {
			return ""
		}
		return p.UserID.String()
	})
}

func (s *Server) home(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "bathroom-buddy",
		"message": "Find a restroom near you.",
		"search":  "/v1/search?q=<address or zip code>",
	})
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.repo.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// internalError logs err and answers 500 with a generic message.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.Error(msg,
		zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFieldErrors answers 400 with per-field validation messages.
func writeFieldErrors(w http.ResponseWriter, fe auth.FieldErrors) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "invalid form",
		"fields": fe,
	})
}
