// Package httpapi exposes the session service over HTTP. It is a thin
// controller layer: decode, rate-limit, call the service, map errors.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"devicehub/backend/internal/ratelimit"
	"devicehub/backend/internal/session"
	"devicehub/backend/internal/token"
)

// Server holds the handler dependencies.
type Server struct {
	svc     *session.Service
	codec   *token.Codec
	limiter ratelimit.Limiter
	log     *slog.Logger
	tracer  trace.Tracer
}

// NewServer returns a Server. limiter may be nil (no login throttling);
// tracerProvider may be nil (no spans).
func NewServer(svc *session.Service, codec *token.Codec, limiter ratelimit.Limiter, logger *slog.Logger, tp trace.TracerProvider) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Server{
		svc:     svc,
		codec:   codec,
		limiter: limiter,
		log:     logger,
		tracer:  tp.Tracer("devicehub/backend/internal/httpapi"),
	}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.traceMiddleware)
	r.Use(s.logMiddleware)

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/register", s.handleRegister)
		r.Post("/login", s.handleLogin)
		r.Post("/refresh", s.handleRefresh)
		r.Post("/logout", s.handleLogout)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
