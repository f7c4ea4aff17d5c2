// Package api provides the HTTP surface of pagebot.
//
// It exposes the platform webhook (verification handshake and event
// deliveries), a health check, and a cache refresh endpoint. Webhook
// payloads are parsed into events and handed to the dispatcher.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rodge1109/pagebot/internal/dispatch"
	"github.com/rodge1109/pagebot/internal/models"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8080"

// Timeouts for the HTTP server.
const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 15 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Pinger checks that the configuration backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Refresher drops cached configuration so the next lookup rereads it.
type Refresher interface {
	InvalidateKeywords()
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr        string
	VerifyToken string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithVerifyToken sets the webhook verification token.
func WithVerifyToken(token string) Option {
	return func(o *Opts) { o.VerifyToken = token }
}

// Server hosts the webhook endpoints.
type Server struct {
	dispatcher  *dispatch.Dispatcher
	pinger      Pinger
	refresher   Refresher
	verifyToken string
	addr        string
	httpServer  *http.Server
}

// NewServer builds the API server around a dispatcher. The verify token
// is required for the webhook subscription handshake.
func NewServer(dispatcher *dispatch.Dispatcher, pinger Pinger, refresher Refresher, opts ...Option) (*Server, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.VerifyToken == "" {
		return nil, fmt.Errorf("webhook verify token not set")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	return &Server{
		dispatcher:  dispatcher,
		pinger:      pinger,
		refresher:   refresher,
		verifyToken: cfg.VerifyToken,
		addr:        cfg.Addr,
	}, nil
}

// Handler returns the route table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/refresh", s.refreshHandler)
	return mux
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("API server shutting down")
	return s.httpServer.Shutdown(shutdownCtx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			slog.Error("Health check failed", "error", err)
			writeJSONResponse(w, http.StatusServiceUnavailable, models.Error("config backend unreachable"))
			return
		}
	}
	writeJSONResponse(w, http.StatusOK, models.Ok("healthy"))
}

func (s *Server) refreshHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if s.refresher != nil {
		s.refresher.InvalidateKeywords()
	}
	slog.Info("Keyword cache invalidated via API")
	writeJSONResponse(w, http.StatusOK, models.Ok("cache cleared"))
}
