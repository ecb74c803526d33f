// Package api exposes the indexing, question answering, and suggestion
// operations over HTTP.
//
// Endpoints:
//
//	GET  /health                            liveness probe
//	GET  /ready                             readiness probe (database ping)
//	POST /api/documents                     register a transcript or document
//	POST /api/documents/upload              upload a file (text extracted server-side)
//	GET  /api/documents/{id}                document indexing status
//	POST /api/documents/{id}/prepare        chunk + embed + index the document
//	POST /api/meetings/{id}/questions       ask a question about the meeting
//	GET  /api/meetings/{id}/conversation    conversation history
//	POST /api/meetings/{id}/agenda-points   draft agenda points from indexed notes
//	GET  /api/suggestions                   related excerpts from prior meetings
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - health.go: health check endpoints
//   - documents.go: document registration and indexing endpoints
//   - questions.go: question answering and conversation history
//   - suggestions.go: cross-meeting suggestions and agenda points
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meetscribe/meetscribe/internal/log"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:8600"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Generation calls can take a while, so this is generous.
	WriteTimeout = 120 * time.Second

	// IdleTimeout is the maximum time to wait for the next request on
	// keep-alive connections.
	IdleTimeout = 120 * time.Second
)

// Deps carries everything the server's handlers need.
type Deps struct {
	Pool      *pgxpool.Pool
	Documents DocumentStore
	Preparer  Preparer
	Asker     Asker
	Turns     TurnLister
	Suggester Suggester
	Logger    log.Logger
}

// Server is the HTTP server for the REST API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health      *HealthHandler
	documents   *DocumentHandler
	questions   *QuestionHandler
	suggestions *SuggestionHandler
}

// NewServer creates a new HTTP server with all routes registered.
func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = log.NewNop()
	}
	mux := http.NewServeMux()

	s := &Server{
		mux:         mux,
		logger:      d.Logger,
		health:      NewHealthHandler(d.Pool, d.Logger),
		documents:   NewDocumentHandler(d.Documents, d.Preparer, d.Logger),
		questions:   NewQuestionHandler(d.Asker, d.Turns, d.Logger),
		suggestions: NewSuggestionHandler(d.Suggester, d.Logger),
	}

	s.health.RegisterRoutes(mux)
	s.documents.RegisterRoutes(mux)
	s.questions.RegisterRoutes(mux)
	s.suggestions.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler
func (s *Server) Handler() http.Handler {
	return chain(s.mux, recoveryMiddleware(s.logger), loggingMiddleware(s.logger))
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It handles graceful shutdown when the context is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
