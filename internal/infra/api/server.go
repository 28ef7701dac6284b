package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	ports "device-pairing-service/internal/domain/ports/usecase"
)

// Server exposes the pairing lifecycle over HTTP.
//
// Public surface (display device + identity-bearing device):
//
//	POST /api/v1/pairing          issue a code
//	POST /api/v1/pairing/claim    bind a code to a user
//	GET  /api/v1/pairing/{code}   poll for claim completion
//
// Trusted surface (session-materialization collaborator, Bearer-guarded):
//
//	POST /api/v1/pairing/consume  exchange a claimed code for a session token
type Server struct {
	pairing    ports.PairingService
	consumeKey string
	timeout    time.Duration
	log        *zerolog.Logger
}

func NewServer(pairing ports.PairingService, consumeKey string, timeout time.Duration, logger *zerolog.Logger) *Server {
	return &Server{
		pairing:    pairing,
		consumeKey: consumeKey,
		timeout:    timeout,
		log:        logger,
	}
}

// Router builds the chi router with the standard middleware chain.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID())
	r.Use(Recover(s.log))
	r.Use(RequestLog(s.log))
	r.Use(Timeout(s.timeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1/pairing", func(r chi.Router) {
		r.Post("/", s.handleIssue)
		r.Post("/claim", s.handleClaim)
		r.Get("/{code}", s.handlePoll)
		r.With(s.bearerAuth).Post("/consume", s.handleConsume)
	})

	return r
}

// bearerAuth guards the consume route: only the trusted collaborator that
// materializes sessions may call it.
func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.consumeKey == "" {
			s.log.Error().Msg("consume API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		if tokenParts[1] != s.consumeKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
