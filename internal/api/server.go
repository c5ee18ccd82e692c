// Package api serves the price-check HTTP API.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/rewired-gh/resaleoracle/internal/estimator"
	"github.com/rewired-gh/resaleoracle/internal/logger"
	"github.com/rewired-gh/resaleoracle/internal/models"
	"github.com/rewired-gh/resaleoracle/internal/storage"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500

	maxBatchItems = 50
	maxBatchBytes = 1 << 20
)

// Estimator prices validated requests.
type Estimator interface {
	Estimate(ctx context.Context, req estimator.Request) (*models.Estimate, error)
	EstimateBatch(ctx context.Context, reqs []estimator.Request) ([]*models.Estimate, error)
}

// History reads persisted estimates.
type History interface {
	GetRecentEstimates(limit int) ([]models.Estimate, error)
	GetEstimate(id string) (*models.Estimate, error)
}

type errorResponse struct {
	Error string `json:"error"`
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	estimator Estimator
	history   History
	metrics   http.Handler
}

// New creates a Server. history and metrics may be nil; the matching routes
// are then not mounted.
func New(est Estimator, history History, metrics http.Handler) *Server {
	return &Server{estimator: est, history: history, metrics: metrics}
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/api/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/price-check", s.handlePriceCheck)
		r.Post("/price-check/batch", s.handlePriceCheckBatch)
		if s.history != nil {
			r.Get("/estimates", s.handleListEstimates)
			r.Get("/estimates/{id}", s.handleGetEstimate)
		}
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return r
}

// ListenAndServe runs the HTTP server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("Shutting down HTTP API")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) handlePriceCheck(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw := estimator.RawRequest{
		Brand:     q.Get("brand"),
		ItemType:  q.Get("item_type"),
		Size:      q.Get("size"),
		Condition: q.Get("condition"),
		Speed:     q.Get("speed"),
	}
	if v := q.Get("vision_confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "vision_confidence must be a number")
			return
		}
		raw.VisionConfidence = f
	}

	req, err := raw.Parse()
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	est, err := s.estimator.Estimate(r.Context(), req)
	if err != nil {
		logger.Error("Price check failed: %v", err)
		writeError(w, r, http.StatusInternalServerError, "estimation failed")
		return
	}
	render.JSON(w, r, est)
}

// handlePriceCheckBatch prices a JSON array of price checks. Any invalid item
// rejects the whole batch.
func (s *Server) handlePriceCheckBatch(w http.ResponseWriter, r *http.Request) {
	var raws []estimator.RawRequest
	if err := render.DecodeJSON(http.MaxBytesReader(w, r.Body, maxBatchBytes), &raws); err != nil {
		writeError(w, r, http.StatusBadRequest, "body must be a JSON array of price checks")
		return
	}
	switch {
	case len(raws) == 0:
		writeError(w, r, http.StatusBadRequest, "batch is empty")
		return
	case len(raws) > maxBatchItems:
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf("batch has %d items, limit is %d", len(raws), maxBatchItems))
		return
	}

	reqs := make([]estimator.Request, len(raws))
	for i, raw := range raws {
		req, err := raw.Parse()
		if err != nil {
			writeError(w, r, http.StatusBadRequest, fmt.Sprintf("item %d: %v", i, err))
			return
		}
		reqs[i] = req
	}

	ests, err := s.estimator.EstimateBatch(r.Context(), reqs)
	if err != nil {
		logger.Error("Batch price check of %d items failed: %v", len(reqs), err)
		writeError(w, r, http.StatusInternalServerError, "estimation failed")
		return
	}
	render.JSON(w, r, ests)
}

func (s *Server) handleListEstimates(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	estimates, err := s.history.GetRecentEstimates(limit)
	if err != nil {
		logger.Error("Failed to list estimates: %v", err)
		writeError(w, r, http.StatusInternalServerError, "failed to list estimates")
		return
	}
	render.JSON(w, r, estimates)
}

func (s *Server) handleGetEstimate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	est, err := s.history.GetEstimate(id)
	if errors.Is(err, storage.ErrEstimateNotFound) {
		writeError(w, r, http.StatusNotFound, "estimate not found")
		return
	}
	if err != nil {
		logger.Error("Failed to load estimate %s: %v", id, err)
		writeError(w, r, http.StatusInternalServerError, "failed to get estimate")
		return
	}
	render.JSON(w, r, est)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		log := logger.With("api")
		log.Debug().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
