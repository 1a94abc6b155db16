// Package server exposes the geocoder over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-geocoder/pkg/geocode"
)

// MaxBatchAddresses caps a single batch request.
const MaxBatchAddresses = 10_000

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 8 << 20

// Geocoder is the geocoding surface served over HTTP.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (geocode.Result, error)
	GeocodeBatch(ctx context.Context, addresses []string, opts geocode.BatchOptions) ([]geocode.Result, error)
	Stats() geocode.StatsSnapshot
	Providers() []geocode.Source
}

// Config controls the HTTP surface.
type Config struct {
	Port        int
	CORSOrigins []string
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
}

// Server is the geocoder HTTP API.
type Server struct {
	geocoder Geocoder
	cfg      Config
}

// New creates a server for g.
func New(g Geocoder, cfg Config) *Server {
	return &Server{geocoder: g, cfg: cfg}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/geocode", s.handleGeocode)
		r.Post("/geocode/batch", s.handleBatch)
		r.Get("/stats", s.handleStats)
	})

	if s.cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server: shutdown", zap.Error(err))
		}
	}()

	zap.L().Info("starting server", zap.Int("port", s.cfg.Port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server: listen")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	providers := s.geocoder.Providers()
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = string(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"providers": names,
	})
}

type geocodeRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	var req geocodeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	res, err := s.geocoder.Geocode(r.Context(), req.Address)
	if err != nil {
		s.geocodeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type batchRequest struct {
	Addresses     []string `json:"addresses"`
	BatchSize     int      `json:"batch_size"`
	MaxConcurrent int      `json:"max_concurrent"`
}

type batchResponse struct {
	Results []geocode.Result `json:"results"`
}

// handleBatch answers with positional results, or a GeoJSON
// FeatureCollection when ?format=geojson.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	switch {
	case len(req.Addresses) > MaxBatchAddresses:
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("at most %d addresses per batch", MaxBatchAddresses))
		return
	case req.BatchSize < 0, req.MaxConcurrent < 0, req.MaxConcurrent > 100:
		writeError(w, http.StatusBadRequest, "batch_size and max_concurrent must be non-negative, max_concurrent at most 100")
		return
	}

	results, err := s.geocoder.GeocodeBatch(r.Context(), req.Addresses, geocode.BatchOptions{
		BatchSize:     req.BatchSize,
		MaxConcurrent: req.MaxConcurrent,
	})
	if err != nil {
		s.geocodeError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "geojson" {
		fc, err := geocode.FeatureCollection(req.Addresses, results)
		if err != nil {
			s.geocodeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/geo+json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(fc) //nolint:errcheck
		return
	}

	if results == nil {
		results = []geocode.Result{}
	}
	writeJSON(w, http.StatusOK, batchResponse{Results: results})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.geocoder.Stats())
}

func (s *Server) geocodeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
		return
	}
	zap.L().Error("server: geocode failed",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "geocode failed")
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requestLogger logs each request through the global zap logger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
