// Package http serves the checkout core's public contract
// (reserve/confirm/getReservation) plus ambient health, readiness,
// and metrics endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amiosamu/checkout-core/internal/domain"
	"github.com/amiosamu/checkout-core/internal/platform/database/mongodb"
	platformerrors "github.com/amiosamu/checkout-core/internal/platform/errors"
	"github.com/amiosamu/checkout-core/internal/platform/observability/logging"
	"github.com/amiosamu/checkout-core/internal/platform/observability/metrics"
	"github.com/amiosamu/checkout-core/internal/ratelimit"
	"github.com/amiosamu/checkout-core/internal/service"
)

// Server is the checkout core's HTTP transport.
type Server struct {
	engine    *service.Engine
	conn      *mongodb.Connection
	limiter   *ratelimit.Limiter
	metrics   *metrics.PrometheusMetrics
	logger    logging.Logger
	startedAt time.Time
	port      string
	server    *http.Server
}

// NewServer constructs the HTTP transport server.
func NewServer(
	engine *service.Engine,
	conn *mongodb.Connection,
	limiter *ratelimit.Limiter,
	m *metrics.PrometheusMetrics,
	logger logging.Logger,
	port string,
) *Server {
	return &Server{
		engine:    engine,
		conn:      conn,
		limiter:   limiter,
		metrics:   m,
		logger:    logger,
		startedAt: time.Now(),
		port:      port,
	}
}

// Start builds the router and begins serving in a background
// goroutine.
func (s *Server) Start(ctx context.Context) error {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(s.requestLogger)

	router.Get("/healthz", s.handleHealthz)
	router.Get("/readyz", s.handleReadyz)
	router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	router.Route("/reservations", func(r chi.Router) {
		r.Use(s.requireCaller)
		r.Use(s.rateLimited)
		r.Post("/", s.handleReserve)
		r.Get("/{id}", s.handleGetReservation)
		r.Post("/{id}/confirm", s.handleConfirm)
	})

	s.server = &http.Server{
		Addr:         ":" + s.port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info(ctx, "starting HTTP server", map[string]interface{}{"port": s.port})

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error(ctx, "HTTP server failed", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

const callerIDHeader = "X-Caller-ID"

type callerIDKeyType struct{}

var callerIDKey = callerIDKeyType{}

// requireCaller enforces the transport-level contract that caller
// identity is always present before a request reaches the Engine;
// absence is a 401 that the Engine never observes.
func (s *Server) requireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callerID := r.Header.Get(callerIDHeader)
		if callerID == "" {
			writeError(w, http.StatusUnauthorized, "missing "+callerIDHeader+" header")
			return
		}
		ctx := context.WithValue(r.Context(), callerIDKey, callerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		callerID, _ := r.Context().Value(callerIDKey).(string)
		if !s.limiter.Allow(callerID) {
			s.metrics.IncrementCounter("rate_limiter_blocked", nil)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "http request", map[string]interface{}{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start).String(),
		})
	})
}

type reserveRequestBody struct {
	Address        addressBody `json:"address"`
	ShippingMethod string      `json:"shippingMethod"`
}

type addressBody struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Line1   string `json:"line1"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
}

type reserveResponseBody struct {
	ReservationID string    `json:"reservationId"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

func (s *Server) handleReserve(w http.ResponseWriter, r *http.Request) {
	callerID, _ := r.Context().Value(callerIDKey).(string)

	var body reserveRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	result, err := s.engine.Reserve(r.Context(), service.ReserveRequest{
		CallerID: callerID,
		Address: domain.Address{
			Name:    body.Address.Name,
			Phone:   body.Address.Phone,
			Line1:   body.Address.Line1,
			City:    body.Address.City,
			State:   body.Address.State,
			Pincode: body.Address.Pincode,
		},
		ShippingMethod: body.ShippingMethod,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, reserveResponseBody{
		ReservationID: result.ReservationID,
		ExpiresAt:     result.ExpiresAt,
	})
}

type confirmRequestBody struct {
	ReservationID string `json:"reservationId"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	callerID, _ := r.Context().Value(callerIDKey).(string)
	reservationID := chi.URLParam(r, "id")

	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		writeError(w, http.StatusBadRequest, domain.ErrMissingIdempotencyKey.Error())
		return
	}

	var body confirmRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if body.ReservationID == "" {
		body.ReservationID = reservationID
	}

	result, err := s.engine.Confirm(r.Context(), service.ConfirmRequest{
		CallerID:       callerID,
		ReservationID:  reservationID,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type reservationResponseBody struct {
	ID             string    `json:"id"`
	CallerID       string    `json:"callerId"`
	State          string    `json:"state"`
	ShippingMethod string    `json:"shippingMethod"`
	ExpiresAt      time.Time `json:"expiresAt"`
	CreatedAt      time.Time `json:"createdAt"`
	IsValid        bool      `json:"isValid"`
}

func (s *Server) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	reservationID := chi.URLParam(r, "id")

	result, err := s.engine.GetReservation(r.Context(), reservationID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	res := result.Reservation
	writeJSON(w, http.StatusOK, reservationResponseBody{
		ID:             res.ID,
		CallerID:       res.CallerID,
		State:          string(res.State),
		ShippingMethod: res.ShippingMethod,
		ExpiresAt:      res.ExpiresAt,
		CreatedAt:      res.CreatedAt,
		IsValid:        result.IsValid,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(s.startedAt).String(),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.conn.HealthCheck(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"reason": err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ready"})
}

// errorResponseBody is the tagged-kind-plus-message shape every error
// response is serialized as, so clients can branch on Type without
// parsing Message.
type errorResponseBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func writeAppError(w http.ResponseWriter, err error) {
	var appErr *platformerrors.AppError
	if !errors.As(err, &appErr) {
		writeJSON(w, http.StatusInternalServerError, errorResponseBody{
			Type:    platformerrors.ErrorTypeInternal,
			Message: "internal error",
		})
		return
	}

	status := httpStatusForErrorType(appErr.Type)
	message := appErr.Message
	if appErr.Type == platformerrors.ErrorTypeInternal {
		message = "internal error"
	}

	writeJSON(w, status, errorResponseBody{Type: appErr.Type, Message: message})
}

func httpStatusForErrorType(errType string) int {
	switch errType {
	case platformerrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case platformerrors.ErrorTypeForbidden:
		return http.StatusForbidden
	case platformerrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case platformerrors.ErrorTypeInsufficient, platformerrors.ErrorTypeIdempotencyMismatch:
		return http.StatusConflict
	case platformerrors.ErrorTypeGone:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponseBody{Type: "validation", Message: message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
