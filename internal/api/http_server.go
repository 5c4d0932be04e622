package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"fixhub/internal/config"
	"fixhub/internal/database"
	"fixhub/internal/domain"
	"fixhub/internal/models"
	"fixhub/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Exporter is the slice of the export package the API needs.
type Exporter interface {
	ExportBookings(ctx context.Context, start, end time.Time) (string, error)
}

// HTTPServer exposes the booking lifecycle over HTTP.
type HTTPServer struct {
	cfg      config.APIConfig
	service  domain.BookingService
	exporter Exporter
	catalog  []models.ServiceCatalogEntry
	server   *http.Server
	auth     *HTTPAuth
	logger   zerolog.Logger
}

// SetServiceCatalog installs the repair service catalog served on
// /api/v1/services. Call before Start.
func (s *HTTPServer) SetServiceCatalog(entries []models.ServiceCatalogEntry) {
	s.catalog = entries
}

func NewHTTPServer(cfg config.APIConfig, svc domain.BookingService, exporter Exporter, logger zerolog.Logger) *HTTPServer {
	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, service: svc, exporter: exporter, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	mux.HandleFunc("/api/v1/bookings", srv.handleBookings)
	mux.HandleFunc("/api/v1/bookings/", srv.handleBookingByID)
	mux.HandleFunc("/api/v1/services", srv.handleServices)
	mux.HandleFunc("/api/v1/export", srv.handleExport)
	mux.HandleFunc("/healthz", srv.handleHealth)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// Handler returns the fully wrapped handler, used by tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// actor resolves the acting role for a request. Authenticated keys carry a
// role; without auth every caller is treated as the system.
func (s *HTTPServer) actor(r *http.Request) models.ActorRole {
	if c, ok := clientFromContext(r.Context()); ok {
		return c.Role
	}
	return models.ActorSystem
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("x-request-id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("x-request-id", requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// writeServiceError maps domain errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *service.ValidationError
	var terr *models.InvalidTransitionError

	switch {
	case errors.Is(err, database.ErrNotFound):
		writeError(w, http.StatusNotFound, "booking not found")
	case errors.Is(err, database.ErrConcurrentModification):
		writeError(w, http.StatusConflict, "booking was modified concurrently, retry")
	case errors.Is(err, service.ErrForceNotAllowed):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &terr):
		writeError(w, http.StatusBadRequest, terr.Error())
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
