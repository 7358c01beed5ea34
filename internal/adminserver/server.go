// Package adminserver is the read-only status/metrics HTTP surface: a
// chi + logrus request pipeline exposing every account's Supervisor
// status.
package adminserver

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/cycletrader/orchestrator/internal/supervisor"
)

// StatusProvider is satisfied by *supervisor.Supervisor; the interface
// keeps this package's tests independent of a real broker/store/remote
// wiring.
type StatusProvider interface {
	AccountID() string
	Status() supervisor.Status
}

// Config configures the admin server.
type Config struct {
	Port      int
	AuthToken string
}

// Server exposes every managed account's status as JSON.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	providers []StatusProvider
	logger    *logrus.Logger
	port      int
	authToken string
}

// New builds a Server over providers (one per account the process supervises).
func New(cfg Config, providers []StatusProvider, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		router:    chi.NewRouter(),
		providers: providers,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLoggerMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	s.router.Get("/health", s.handleHealth)

	if s.authToken != "" {
		s.router.Route("/", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/status", s.handleStatus)
			r.Get("/status/{accountID}", s.handleAccountStatus)
		})
		return
	}
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/status/{accountID}", s.handleAccountStatus)
}

func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wrapped.Status(),
			"duration": time.Since(start),
		}).Info("admin request")
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || strings.HasPrefix(r.URL.Path, "/static/") {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if !s.isValidToken(token) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) isValidToken(token string) bool {
	if len(token) != len(s.authToken) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) == 1
}

// Start blocks serving HTTP until Shutdown is called or ListenAndServe
// fails for a reason other than a graceful shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Infof("starting admin server on port %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	statuses := make([]supervisor.Status, 0, len(s.providers))
	for _, p := range s.providers {
		statuses = append(statuses, p.Status())
	}
	writeJSON(w, s.logger, http.StatusOK, statuses)
}

func (s *Server) handleAccountStatus(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountID")
	for _, p := range s.providers {
		if p.AccountID() == accountID {
			writeJSON(w, s.logger, http.StatusOK, p.Status())
			return
		}
	}
	s.logger.WithField("account_id", accountID).Warn("admin status: account not found")
	http.Error(w, "Not Found", http.StatusNotFound)
}

func writeJSON(w http.ResponseWriter, logger *logrus.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("admin server: encoding response")
	}
}

