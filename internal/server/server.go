// Package server exposes the model manager over HTTP: health, model
// listing, model load/unload, inference, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quiver-ml/quiver/internal/backend"
	"github.com/quiver-ml/quiver/internal/errdefs"
	"github.com/quiver-ml/quiver/internal/manager"
)

// Server is the HTTP front end over a model manager.
type Server struct {
	manager      *manager.Manager
	logger       *zap.Logger
	gatherer     prometheus.Gatherer
	inferTimeout time.Duration
	http         *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithGatherer sets the registry served at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithInferTimeout bounds each inference request.
func WithInferTimeout(d time.Duration) Option {
	return func(s *Server) { s.inferTimeout = d }
}

// New creates a server over m listening on addr once Run is called.
func New(addr string, m *manager.Manager, opts ...Option) (*Server, error) {
	if m == nil {
		return nil, errdefs.InvalidArgumentf("nil manager")
	}
	s := &Server{
		manager:      m,
		logger:       zap.NewNop(),
		gatherer:     prometheus.DefaultGatherer,
		inferTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
	}
	return s, nil
}

// Handler returns the route table, usable directly in tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /models", s.handleListModels)
	mux.HandleFunc("POST /models", s.handleLoadModel)
	mux.HandleFunc("DELETE /models/{id}", s.handleUnloadModel)
	mux.HandleFunc("POST /models/{id}/infer", s.handleInfer)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Run serves until ctx is cancelled, then shuts down within grace.
func (s *Server) Run(ctx context.Context, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"models": s.manager.Len(),
	})
}

func (s *Server) handleListModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"models": s.manager.Models()})
}

type loadRequest struct {
	ModelPath string `json:"model_path"`
	ModelID   string `json:"model_id"`
	Backend   string `json:"backend"`
}

func (s *Server) handleLoadModel(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ModelPath == "" {
		writeError(w, http.StatusBadRequest, errdefs.InvalidArgumentf("model_path is required"))
		return
	}

	kind := backend.Kind(-1)
	if req.Backend != "" {
		var err error
		if kind, err = backend.ParseKind(req.Backend); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	id, err := s.manager.LoadModel(r.Context(), req.ModelPath, req.ModelID, kind)
	if err != nil {
		s.logger.Warn("model load failed", zap.String("path", req.ModelPath), zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"status": "ok", "model_id": id})
}

func (s *Server) handleUnloadModel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.manager.UnloadModel(id); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleInfer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req inferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	inputs, err := req.tensors()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.inferTimeout)
	defer cancel()

	outputs, err := s.manager.Infer(ctx, id, inputs)
	if err != nil {
		s.logger.Warn("inference failed", zap.String("model", id), zap.Error(err))
		writeError(w, statusFor(err), err)
		return
	}

	resp, err := inferResponseFrom(outputs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errdefs.ErrModelNotFound),
		errors.Is(err, errdefs.ErrPluginNotFound):
		return http.StatusNotFound
	case errors.Is(err, errdefs.ErrInvalidArgument),
		errors.Is(err, errdefs.ErrShapeMismatch),
		errors.Is(err, errdefs.ErrMissingInput),
		errors.Is(err, errdefs.ErrUnsupportedConversion),
		errors.Is(err, errdefs.ErrInvalidCondition):
		return http.StatusBadRequest
	case errors.Is(err, errdefs.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"status": "error", "message": err.Error()})
}
