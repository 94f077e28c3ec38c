package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/scoutear/gestor-turnos/internal/config"
	"github.com/scoutear/gestor-turnos/internal/domain"
	"github.com/scoutear/gestor-turnos/internal/metrics"
	"github.com/scoutear/gestor-turnos/internal/service"
)

// HTTPServer exposes the reservation grid over a small JSON API.
type HTTPServer struct {
	cfg           config.APIConfig
	svc           *service.ReservationService
	health        domain.HealthChecker
	upcomingLimit int
	server        *http.Server
	limiter       *rateLimiter
	log           zerolog.Logger
}

// NewHTTPServer builds the server. health may be nil when the adapter cannot be probed.
func NewHTTPServer(cfg config.APIConfig, svc *service.ReservationService, health domain.HealthChecker, upcomingLimit int, logger *zerolog.Logger) *HTTPServer {
	srv := &HTTPServer{
		cfg:           cfg,
		svc:           svc,
		health:        health,
		upcomingLimit: upcomingLimit,
		limiter:       newRateLimiter(&cfg),
		log:           zerolog.Nop(),
	}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.HandleFunc("GET /readyz", srv.handleReady)
	mux.HandleFunc("GET /api/v1/slots", srv.handleSlots)
	mux.HandleFunc("GET /api/v1/days/{date}", srv.handleDay)
	mux.HandleFunc("GET /api/v1/weeks/{week}/stats", srv.handleWeekStats)
	mux.HandleFunc("GET /api/v1/weeks/{week}/upcoming", srv.handleUpcoming)
	mux.HandleFunc("GET /api/v1/weeks/{week}/export.xlsx", srv.handleExport)
	mux.HandleFunc("GET /api/v1/weeks/{week}/snapshot.json", srv.handleSnapshot)
	mux.HandleFunc("POST /api/v1/weeks/{week}/reload", srv.handleReload)
	mux.HandleFunc("POST /api/v1/reservations", srv.handleReserve)
	mux.HandleFunc("GET /api/v1/reservations/{date}/{time}", srv.handleLookup)
	mux.HandleFunc("PATCH /api/v1/reservations/{date}/{time}", srv.handleModify)
	mux.HandleFunc("DELETE /api/v1/reservations/{date}/{time}", srv.handleRelease)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.loggingMiddleware(srv.limiter.Wrap(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
	}
	return srv
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint, strconv.Itoa(recorder.status))

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidSlot):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSlotConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSyncUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Error().Err(err).Msg("request failed")
	}
	writeError(w, code, err.Error())
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
