// Package api exposes the HTTP surface: the form submission endpoints, health
// and metrics, and static file serving for the site pages.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/busybox42/formrelay/internal/attachment"
	"github.com/busybox42/formrelay/internal/delivery"
	"github.com/busybox42/formrelay/internal/form"
)

// Deliverer sends one normalized submission. Satisfied by *delivery.Pipeline.
type Deliverer interface {
	Deliver(ctx context.Context, spec form.Spec, sub *form.Submission, attachments []*attachment.Attachment) delivery.Outcome
}

// Config represents the HTTP server configuration.
type Config struct {
	ListenAddr string
	WebRoot    string
	RateLimit  RateLimitConfig
	CORS       CORSConfig
}

// Server is the formrelay HTTP server.
type Server struct {
	config      Config
	router      *mux.Router
	httpServer  *http.Server
	pipeline    Deliverer
	resolver    *attachment.Resolver
	rateLimiter *RateLimitMiddleware
	metrics     *delivery.Metrics
	logger      *slog.Logger
}

// NewServer creates the HTTP server and wires its routes.
func NewServer(config Config, pipeline Deliverer, resolver *attachment.Resolver) *Server {
	if config.ListenAddr == "" {
		config.ListenAddr = ":3000"
	}
	if config.WebRoot == "" {
		config.WebRoot = "./web/static"
	}

	s := &Server{
		config:      config,
		router:      mux.NewRouter(),
		pipeline:    pipeline,
		resolver:    resolver,
		rateLimiter: NewRateLimitMiddleware(config.RateLimit),
		metrics:     delivery.GetMetrics(),
		logger:      slog.Default().With("component", "api-server"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(LoggingMiddleware)
	s.router.Use(NewCORSMiddleware(s.config.CORS).Handler)

	// Submission endpoints sit behind the per-IP limiter; health, metrics
	// and static pages do not.
	s.router.Handle("/submit-contact-form", s.rateLimiter.Limit(http.HandlerFunc(s.handleContactForm))).Methods(http.MethodPost, http.MethodOptions)
	s.router.Handle("/subscribe", s.rateLimiter.Limit(http.HandlerFunc(s.handleSubscribe))).Methods(http.MethodPost, http.MethodOptions)
	s.router.Handle("/submit-quote-form", s.rateLimiter.Limit(http.HandlerFunc(s.handleQuoteForm))).Methods(http.MethodPost, http.MethodOptions)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.router.HandleFunc("/api/logging/level", s.handleGetLogLevel).Methods(http.MethodGet)
	s.router.HandleFunc("/api/logging/level", s.handleSetLogLevel).Methods(http.MethodPost, http.MethodPut)

	s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.config.WebRoot)))
}

// Handler returns the configured router. Exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins serving. It returns once the listener is running; serve errors
// other than a clean shutdown are logged.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.config.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("Starting HTTP server", "addr", s.config.ListenAddr, "web_root", s.config.WebRoot)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
		}
	}()

	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop() error {
	s.rateLimiter.Stop()

	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.logger.Info("Stopping HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
