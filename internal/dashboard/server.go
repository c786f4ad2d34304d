// Package dashboard provides a read-only HTTP status surface over a
// running engine's stub registry and reconciliation ledger.
package dashboard

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/fixharness/engine/internal/ledger"
	"github.com/fixharness/engine/internal/stub"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Server is the dashboard's HTTP surface.
type Server struct {
	router     *chi.Mux
	server     *http.Server
	registry   *stub.Registry
	ledger     *ledger.Ledger
	logger     *logrus.Logger
	port       int
	authTokens []string // empty disables authentication
	redactKeys []string // query params masked out of request logs

	readTimeout       time.Duration
	writeTimeout      time.Duration
	idleTimeout       time.Duration
	readHeaderTimeout time.Duration
}

// Default HTTP server timeouts, applied when Config leaves the
// corresponding field at its zero value.
const (
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 15 * time.Second
	defaultIdleTimeout       = 60 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
)

// Config configures a Server. Several operators may each hold a distinct
// token (a CI runner, a human on-call, a second harness instance polling
// for status), so auth accepts a set rather than a single shared secret.
type Config struct {
	Port       int
	AuthTokens []string // empty disables authentication
	RedactKeys []string // query params to mask in request logs; nil uses a built-in default

	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ReadHeaderTimeout time.Duration
}

// NewServer wires a chi router over registry and ldg.
func NewServer(cfg Config, registry *stub.Registry, ldg *ledger.Ledger, logger *logrus.Logger) *Server {
	redactKeys := cfg.RedactKeys
	if redactKeys == nil {
		redactKeys = []string{"token", "auth_token"}
	}

	s := &Server{
		router:            chi.NewRouter(),
		registry:          registry,
		ledger:            ldg,
		logger:            logger,
		port:              cfg.Port,
		authTokens:        cfg.AuthTokens,
		redactKeys:        redactKeys,
		readTimeout:       orDefault(cfg.ReadTimeout, defaultReadTimeout),
		writeTimeout:      orDefault(cfg.WriteTimeout, defaultWriteTimeout),
		idleTimeout:       orDefault(cfg.IdleTimeout, defaultIdleTimeout),
		readHeaderTimeout: orDefault(cfg.ReadHeaderTimeout, defaultReadHeaderTimeout),
	}
	s.setupRoutes()
	return s
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLoggerMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.idleTimeout))
	s.router.Use(middleware.Compress(5))

	if len(s.authTokens) > 0 {
		s.router.Route("/", func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Get("/stubs", s.handleStubs)
			r.Get("/reconcile/{key}", s.handleReconcileOne)
			r.Get("/reconcile", s.handleReconcileAll)
		})
	} else {
		s.router.Get("/stubs", s.handleStubs)
		s.router.Get("/reconcile/{key}", s.handleReconcileOne)
		s.router.Get("/reconcile", s.handleReconcileAll)
	}

	// Health endpoint is always public.
	s.router.Get("/healthz", s.handleHealth)
}

func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		loggedURL := s.redactTokenFromURL(r.URL)

		logEntry := s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"url":        loggedURL.String(),
			"user_agent": r.UserAgent(),
			"remote_ip":  r.RemoteAddr,
		})

		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)

		logEntry.WithFields(logrus.Fields{
			"status":   wrapped.Status(),
			"bytes":    wrapped.BytesWritten(),
			"duration": time.Since(start),
		}).Info("HTTP Request")
	})
}

func (s *Server) redactTokenFromURL(originalURL *url.URL) *url.URL {
	loggedURL := &url.URL{
		Scheme:   originalURL.Scheme,
		Host:     originalURL.Host,
		Path:     originalURL.Path,
		RawQuery: originalURL.RawQuery,
		Fragment: originalURL.Fragment,
	}

	if originalURL.RawQuery != "" {
		values := originalURL.Query()
		for _, k := range s.redactKeys {
			if values.Has(k) {
				values.Set(k, "[REDACTED]")
			}
		}
		loggedURL.RawQuery = values.Encode()
	}

	return loggedURL
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			if cookie, err := r.Cookie("auth_token"); err == nil {
				token = cookie.Value
			}
		}

		if !s.isValidToken(token) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isValidToken reports whether token constant-time-matches any of the
// server's configured tokens. An empty token never matches, even against
// a misconfigured empty entry in authTokens.
func (s *Server) isValidToken(token string) bool {
	if token == "" {
		return false
	}
	for _, want := range s.authTokens {
		if len(token) == len(want) && subtle.ConstantTimeCompare([]byte(token), []byte(want)) == 1 {
			return true
		}
	}
	return false
}

// Start begins serving and blocks until Shutdown is called or the server
// fails to start.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadTimeout:       s.readTimeout,
		WriteTimeout:      s.writeTimeout,
		IdleTimeout:       s.idleTimeout,
		ReadHeaderTimeout: s.readHeaderTimeout,
	}

	s.logger.Infof("starting dashboard server on port %d", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

type stubView struct {
	Label     string `json:"label"`
	CallCount int64  `json:"callCount"`
	DelayMS   int64  `json:"delayMs"`
}

func (s *Server) handleStubs(w http.ResponseWriter, r *http.Request) {
	rules := s.registry.Mappings()
	views := make([]stubView, 0, len(rules))
	for _, rule := range rules {
		views = append(views, stubView{
			Label:     rule.Label,
			CallCount: rule.CallCount(),
			DelayMS:   rule.Delay.Milliseconds(),
		})
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(views); err != nil {
		s.logger.WithError(err).Error("failed to encode stub views")
	}
}

func (s *Server) handleReconcileOne(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	result := s.ledger.Reconcile(key)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.WithError(err).Error("failed to encode reconciliation result")
	}
}

func (s *Server) handleReconcileAll(w http.ResponseWriter, r *http.Request) {
	results, err := s.ledger.ReconcileAll()
	if err != nil {
		s.logger.WithError(err).Error("failed to reconcile all keys")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(results); err != nil {
		s.logger.WithError(err).Error("failed to encode reconciliation results")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.WithError(err).Error("failed to encode health response")
	}
}

