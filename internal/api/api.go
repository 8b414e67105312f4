// Package api provides HTTP handlers and the main API server for SupportFlow.
//
// It exposes RESTful endpoints for chatting with the orchestrator, inspecting
// and resetting sessions, reading conversation transcripts, and loading
// knowledge documents. When a Twilio messaging service is attached, the
// server also hosts its inbound webhook.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/supportflow/supportflow/internal/knowledge"
	"github.com/supportflow/supportflow/internal/messaging"
	"github.com/supportflow/supportflow/internal/store"
)

// Default server configuration.
const (
	DefaultAddr            = ":8080"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 90 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// MessageHandler produces a reply for a user message. Implemented by
// flow.Orchestrator.
type MessageHandler interface {
	HandleMessage(ctx context.Context, userID, text string) (string, error)
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr       string
	Index      knowledge.Index
	MsgService messaging.Service
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithKnowledgeIndex attaches a knowledge index, enabling the document
// endpoints.
func WithKnowledgeIndex(index knowledge.Index) Option {
	return func(o *Opts) { o.Index = index }
}

// WithMessagingService attaches a messaging service. A Twilio service gets
// its inbound webhook mounted.
func WithMessagingService(svc messaging.Service) Option {
	return func(o *Opts) { o.MsgService = svc }
}

// Server hosts the SupportFlow HTTP API.
type Server struct {
	handler    MessageHandler
	st         store.Store
	index      knowledge.Index
	msgService messaging.Service
	httpServer *http.Server
}

// NewServer creates an API server over the given message handler and store.
func NewServer(handler MessageHandler, st store.Store, opts ...Option) (*Server, error) {
	if handler == nil {
		return nil, fmt.Errorf("message handler must be provided")
	}
	if st == nil {
		return nil, fmt.Errorf("store must be provided")
	}

	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{
		handler:    handler,
		st:         st,
		index:      cfg.Index,
		msgService: cfg.MsgService,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.routes(),
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
	}
	return s, nil
}

// routes builds the request multiplexer.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("POST /v1/chat", s.chatHandler)
	mux.HandleFunc("GET /v1/sessions/{user_id}", s.getSessionHandler)
	mux.HandleFunc("DELETE /v1/sessions/{user_id}", s.deleteSessionHandler)
	mux.HandleFunc("GET /v1/messages", s.messagesHandler)
	if s.index != nil {
		mux.HandleFunc("POST /v1/knowledge", s.addKnowledgeHandler)
	}
	if twilioSvc, ok := s.msgService.(*messaging.TwilioService); ok {
		mux.HandleFunc("POST /v1/webhooks/twilio", twilioSvc.WebhookHandler)
	}
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("API server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	return nil
}
