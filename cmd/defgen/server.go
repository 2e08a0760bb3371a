package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/CTAG07/defgen/pkg/markov"
	"github.com/CTAG07/defgen/pkg/render"
	"github.com/google/uuid"
)

type contextKey string

const contextKeyRequestID = contextKey("request_id")

// Server hosts the definitions API and the metrics endpoint.
type Server struct {
	config  *Config
	logger  *slog.Logger
	metrics *Metrics
	api     *DefinitionsAPI
	mux     *http.ServeMux
}

// NewServer creates a Server and registers its routes.
func NewServer(config *Config, logger *slog.Logger, store *markov.Store, renderer *render.Renderer, metrics *Metrics) *Server {
	s := &Server{
		config:  config,
		logger:  logger,
		metrics: metrics,
		api:     NewDefinitionsAPI(config, store, renderer, metrics, logger),
		mux:     http.NewServeMux(),
	}

	s.api.RegisterRoutes(s.mux)
	s.mux.HandleFunc("/api/health", handleHealthCheck)
	s.mux.Handle("/metrics", metrics.Handler())
	return s
}

// Handler returns the root handler with request IDs attached.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.mux)
}

// Run serves on the configured address until ctx is cancelled, then shuts the
// server down gracefully.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.config.Server.ApiAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("Starting api server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("Stopping api server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(s.config.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown failed: %w", err)
	}
	s.logger.Info("Api server stopped.")
	return nil
}

// withRequestID tags every request with an ID, reusing the client's
// X-Request-Id when present.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		req := r.WithContext(context.WithValue(r.Context(), contextKeyRequestID, id))
		next.ServeHTTP(rec, req)

		// The mux records the matched pattern on req, which keeps the label
		// set bounded.
		pattern := req.Pattern
		if pattern == "" {
			pattern = "unmatched"
		}
		s.metrics.ObserveRequest(pattern, strconv.Itoa(rec.status), start)
		s.logger.Debug("Handled request",
			slog.String("request_id", id),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

// requestID returns the ID attached by withRequestID, or "" outside a request.
func requestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// handleHealthCheck reports that the server is up.
func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			slog.Error("Failed to encode JSON response", "error", err)
		}
	}
}
