// Package server provides the kaiwa HTTP API with lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/raphaelgruber/kaiwa/internal/db"
	"github.com/raphaelgruber/kaiwa/internal/metrics"
	"github.com/raphaelgruber/kaiwa/internal/models"
)

// ConversationStore is the persistence the conversation routes need.
type ConversationStore interface {
	ListConversations(ctx context.Context) ([]models.ConversationListItem, error)
	CreateConversation(ctx context.Context, title string) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	UpdateConversation(ctx context.Context, id string, in db.UpdateInput) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
}

// Options configures a Server.
type Options struct {
	Addr         string
	WriteTimeout time.Duration
	Store        ConversationStore
	Chat         http.Handler
	Metrics      *metrics.Collector
	Logger       *slog.Logger
}

// Server wraps the HTTP server with its routes and lifecycle management.
type Server struct {
	http    *http.Server
	store   ConversationStore
	metrics *metrics.Collector
	logger  *slog.Logger
}

// New creates a server with all routes registered.
func New(opts Options) *Server {
	s := &Server{
		store:   opts.Store,
		metrics: opts.Metrics,
		logger:  opts.Logger,
	}
	s.http = &http.Server{
		Addr:        opts.Addr,
		Handler:     s.routes(opts.Chat),
		ReadTimeout: 5 * time.Second,
		// Long enough for a full model reply
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) routes(chat http.Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /conversations", s.listConversations)
	mux.HandleFunc("POST /conversations", s.createConversation)
	mux.HandleFunc("GET /conversations/{id}", s.getConversation)
	mux.HandleFunc("PUT /conversations/{id}", s.updateConversation)
	mux.HandleFunc("DELETE /conversations/{id}", s.deleteConversation)
	mux.Handle("POST /chat", chat)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	mux.HandleFunc("GET /stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.metrics.Snapshot())
	})

	return LoggingMiddleware(s.logger, "/chat")(mux)
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API available", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server stopped")
	return nil
}
