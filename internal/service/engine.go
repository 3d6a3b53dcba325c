// Package service implements the Reservation Engine: the reserve ->
// confirm protocol that sits between the transport layer and the
// storage-backed stores.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/amiosamu/checkout-core/internal/domain"
	platformmongo "github.com/amiosamu/checkout-core/internal/platform/database/mongodb"
	platformredis "github.com/amiosamu/checkout-core/internal/platform/database/redis"
	platformerrors "github.com/amiosamu/checkout-core/internal/platform/errors"
	"github.com/amiosamu/checkout-core/internal/platform/messaging/kafka"
	"github.com/amiosamu/checkout-core/internal/platform/observability/logging"
	"github.com/amiosamu/checkout-core/internal/platform/observability/metrics"
	"github.com/amiosamu/checkout-core/internal/platform/observability/tracing"
)

const confirmEndpoint = "confirm"

// maxTransactionRetries bounds the in-process retry of a transaction
// that failed with a storage-reported transient conflict (for
// instance, a write conflict with a concurrent sweep of the same
// reservation). Non-transient errors (validation, insufficient stock,
// not found, ...) are never retried.
const maxTransactionRetries = 3

// confirmCacheTTL bounds how long a succeeded confirm response stays
// in the read-through cache. It only needs to outlive the window in
// which a client is likely to retry after a dropped response, not the
// lifetime of the idempotency record itself.
const confirmCacheTTL = 10 * time.Minute

// Stores bundles the six repository interfaces the Engine depends on.
type Stores struct {
	Products     domain.InventoryRepository
	Reservations domain.ReservationRepository
	Orders       domain.OrderRepository
	Idempotency  domain.IdempotencyRepository
	LowStock     domain.LowStockSignalRepository
	Carts        domain.CartRepository
}

// Engine implements the reserve -> confirm protocol: reserve holds
// inventory against a caller's cart, and confirm atomically commits a
// held reservation into an order under an idempotency key.
type Engine struct {
	conn               *platformmongo.Connection
	stores             Stores
	cache              *platformredis.Connection
	producer           *kafka.Producer
	logger             logging.Logger
	metrics            metrics.Metrics
	tracer             tracing.Tracer
	holdDuration       time.Duration
	idempotencyLockTTL time.Duration
}

// NewEngine constructs a Reservation Engine. producer may be nil, in
// which case low-stock signals are persisted but never published.
// cache may be nil, in which case confirm always falls through to the
// Idempotency Store.
func NewEngine(
	conn *platformmongo.Connection,
	stores Stores,
	cache *platformredis.Connection,
	producer *kafka.Producer,
	logger logging.Logger,
	m metrics.Metrics,
	tracer tracing.Tracer,
	holdDuration time.Duration,
	idempotencyLockTTL time.Duration,
) *Engine {
	return &Engine{
		conn:               conn,
		stores:             stores,
		cache:              cache,
		producer:           producer,
		logger:             logger,
		metrics:            m,
		tracer:             tracer,
		holdDuration:       holdDuration,
		idempotencyLockTTL: idempotencyLockTTL,
	}
}

// ReserveRequest is the Engine's public reserve contract.
type ReserveRequest struct {
	CallerID       string
	Address        domain.Address
	ShippingMethod string
}

// ReserveResult is returned on a successful reserve.
type ReserveResult struct {
	ReservationID string
	ExpiresAt     time.Time
}

// Reserve validates the request, reads the caller's cart, and attempts
// to hold every line atomically against the Inventory Store. Either
// every line succeeds and a Reservation is written, or none are held.
func (e *Engine) Reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Reserve")
	defer span.End()

	start := time.Now()
	result, err := e.reserve(ctx, req)
	e.recordOperation("reserve", time.Since(start), err)
	return result, err
}

func (e *Engine) reserve(ctx context.Context, req ReserveRequest) (*ReserveResult, error) {
	if err := domain.ValidateShippingMethod(req.ShippingMethod); err != nil {
		return nil, platformerrors.NewValidation(err.Error())
	}
	if err := domain.ValidateAddress(req.Address); err != nil {
		return nil, platformerrors.NewValidation(err.Error())
	}

	cart, err := e.stores.Carts.FindByCallerID(ctx, req.CallerID)
	if err != nil {
		return nil, e.mapDomainError(err)
	}
	if len(cart.Lines) == 0 {
		return nil, platformerrors.NewValidation(domain.ErrEmptyCart.Error())
	}

	lines := make([]domain.CartLine, len(cart.Lines))
	copy(lines, cart.Lines)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	for _, l := range lines {
		if err := domain.ValidateQuantity(l.Quantity); err != nil {
			return nil, platformerrors.NewValidation(err.Error())
		}
	}

	now := time.Now().UTC()
	reservation := &domain.Reservation{
		ID:             uuid.NewString(),
		CallerID:       req.CallerID,
		State:          domain.ReservationActive,
		Address:        req.Address,
		ShippingMethod: req.ShippingMethod,
		ExpiresAt:      now.Add(e.holdDuration),
		CreatedAt:      now,
	}

	txErr := e.conn.WithTransactionRetry(ctx, maxTransactionRetries, func(sessCtx mongo.SessionContext) error {
		snapshots := make([]domain.LineSnapshot, 0, len(lines))

		for _, l := range lines {
			product, err := e.stores.Products.Read(sessCtx, l.ProductID)
			if err != nil {
				return err
			}
			if err := e.stores.Products.TryIncrementReserved(sessCtx, l.ProductID, l.Quantity); err != nil {
				return err
			}

			snap := product.Snapshot()
			snap.Quantity = l.Quantity
			snapshots = append(snapshots, snap)
		}

		reservation.Lines = snapshots
		return e.stores.Reservations.Insert(sessCtx, reservation)
	})
	if txErr != nil {
		return nil, e.mapDomainError(txErr)
	}

	return &ReserveResult{ReservationID: reservation.ID, ExpiresAt: reservation.ExpiresAt}, nil
}

// ConfirmRequest is the Engine's public confirm contract.
type ConfirmRequest struct {
	CallerID       string
	ReservationID  string
	IdempotencyKey string
}

// ConfirmResult is returned on a successful confirm, and replayed
// verbatim on an idempotent retry.
type ConfirmResult struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

type confirmFingerprintPayload struct {
	ReservationID string `json:"reservationId"`
}

// cachedConfirmResponse is the JSON shape stored under a confirm cache
// key: the fingerprint travels alongside the response so a cache hit
// can still be checked against the request before being trusted.
type cachedConfirmResponse struct {
	Fingerprint string          `json:"fingerprint"`
	Response    json.RawMessage `json:"response"`
}

// confirmCacheKey identifies the cache slot for one caller/token pair.
// It mirrors the composite key the Idempotency Store uniquely indexes
// on, so the cache and the store never disagree about which request a
// slot belongs to.
func confirmCacheKey(callerID, token string) string {
	return "confirm-cache:" + callerID + ":" + token
}

// Confirm commits a held reservation into an order, guarded by an
// idempotency key so a retried request with the same key and payload
// replays the original result instead of creating a second order.
func (e *Engine) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Confirm")
	defer span.End()

	start := time.Now()
	result, err := e.confirm(ctx, req)
	e.recordOperation("confirm", time.Since(start), err)
	return result, err
}

func (e *Engine) confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	if req.IdempotencyKey == "" {
		return nil, platformerrors.NewValidation(domain.ErrMissingIdempotencyKey.Error())
	}

	fingerprint, err := domain.BuildFingerprint(confirmEndpoint, confirmFingerprintPayload{ReservationID: req.ReservationID})
	if err != nil {
		return nil, platformerrors.Wrap(err, "failed to compute idempotency fingerprint")
	}

	if cached, ok := e.readConfirmCache(ctx, req.CallerID, req.IdempotencyKey, fingerprint); ok {
		e.metrics.IncrementCounter("idempotency_outcome", map[string]string{"outcome": "replay_cache"})
		return cached, nil
	}

	record, inserted, err := e.stores.Idempotency.ReserveSlot(ctx, req.CallerID, confirmEndpoint, req.IdempotencyKey, fingerprint, e.idempotencyLockTTL)
	if err != nil {
		return nil, platformerrors.Wrap(err, "failed to reserve idempotency slot")
	}

	if !inserted {
		if record.Fingerprint != fingerprint {
			e.metrics.IncrementCounter("idempotency_outcome", map[string]string{"outcome": "mismatch"})
			return nil, platformerrors.NewIdempotencyMismatch(domain.ErrIdempotencyMismatch.Error())
		}
		if record.State == domain.IdempotencySucceeded {
			e.metrics.IncrementCounter("idempotency_outcome", map[string]string{"outcome": "replay"})
			var cached ConfirmResult
			if err := json.Unmarshal(record.Response, &cached); err != nil {
				return nil, platformerrors.Wrap(err, "failed to decode cached confirm response")
			}
			e.writeConfirmCache(ctx, req.CallerID, req.IdempotencyKey, fingerprint, record.Response)
			return &cached, nil
		}
		e.metrics.IncrementCounter("idempotency_outcome", map[string]string{"outcome": "retry"})
		// in_progress or failed with a matching fingerprint: proceed.
	}

	result, lowStockSignals, txErr := e.runConfirmTransaction(ctx, req)
	if txErr != nil {
		e.finishIdempotency(req.CallerID, req.ReservationID, req.IdempotencyKey, domain.IdempotencyFailed, nil)
		return nil, e.mapDomainError(txErr)
	}

	if responseJSON, err := json.Marshal(result); err == nil {
		e.writeConfirmCache(ctx, req.CallerID, req.IdempotencyKey, fingerprint, responseJSON)
	}

	e.publishLowStockSignals(ctx, lowStockSignals)

	return result, nil
}

// readConfirmCache checks Redis for a cached succeeded response before
// touching Mongo at all. A hit is only trusted when its fingerprint
// matches the current request; anything else, including a cache miss
// or a read error, falls through to the authoritative Idempotency
// Store so correctness never depends on the cache being available.
func (e *Engine) readConfirmCache(ctx context.Context, callerID, token, fingerprint string) (*ConfirmResult, bool) {
	if e.cache == nil {
		return nil, false
	}

	raw, err := e.cache.Get(ctx, confirmCacheKey(callerID, token))
	if err != nil {
		return nil, false
	}

	var cached cachedConfirmResponse
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		return nil, false
	}
	if cached.Fingerprint != fingerprint {
		return nil, false
	}

	var result ConfirmResult
	if err := json.Unmarshal(cached.Response, &result); err != nil {
		return nil, false
	}

	return &result, true
}

// writeConfirmCache populates the cache after a confirm outcome is
// already durably recorded in the Idempotency Store. A write failure
// is logged but never returned: the cache is a latency optimization,
// not a source of truth.
func (e *Engine) writeConfirmCache(ctx context.Context, callerID, token, fingerprint string, response json.RawMessage) {
	if e.cache == nil {
		return
	}

	payload, err := json.Marshal(cachedConfirmResponse{Fingerprint: fingerprint, Response: response})
	if err != nil {
		return
	}

	if err := e.cache.Set(ctx, confirmCacheKey(callerID, token), payload, confirmCacheTTL); err != nil {
		e.logger.Warn(ctx, "failed to populate confirm response cache", map[string]interface{}{
			"caller_id": callerID,
			"error":     err.Error(),
		})
	}
}

func (e *Engine) runConfirmTransaction(ctx context.Context, req ConfirmRequest) (*ConfirmResult, []*domain.LowStockSignal, error) {
	var result *ConfirmResult
	var signals []*domain.LowStockSignal

	txErr := e.conn.WithTransactionRetry(ctx, maxTransactionRetries, func(sessCtx mongo.SessionContext) error {
		reservation, err := e.stores.Reservations.FindByID(sessCtx, req.ReservationID)
		if err != nil {
			return err
		}
		if reservation.CallerID != req.CallerID {
			return domain.ErrWrongCaller
		}
		if !reservation.IsValid(time.Now().UTC()) {
			return domain.ErrReservationNotActive
		}

		lines := make([]domain.LineSnapshot, len(reservation.Lines))
		copy(lines, reservation.Lines)
		sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

		for _, l := range lines {
			stockAfter, threshold, err := e.stores.Products.TryCommit(sessCtx, l.ProductID, l.Quantity)
			if err != nil {
				return err
			}
			if stockAfter < threshold {
				signals = append(signals, &domain.LowStockSignal{
					ID:         uuid.NewString(),
					ProductID:  l.ProductID,
					StockAfter: stockAfter,
					Threshold:  threshold,
					Processed:  false,
					CreatedAt:  time.Now().UTC(),
				})
			}
		}

		order := domain.NewOrder(uuid.NewString(), reservation, time.Now().UTC())
		if err := e.stores.Orders.Insert(sessCtx, order); err != nil {
			return err
		}

		if err := e.stores.Reservations.TryTransition(sessCtx, reservation.ID, domain.ReservationActive, domain.ReservationConsumed, time.Now().UTC()); err != nil {
			return err
		}

		if err := e.stores.Carts.DeleteByCallerID(sessCtx, reservation.CallerID); err != nil {
			return err
		}

		for _, s := range signals {
			if err := e.stores.LowStock.Insert(sessCtx, s); err != nil {
				return err
			}
		}

		result = &ConfirmResult{OrderID: order.ID, Status: "created"}
		responseJSON, err := json.Marshal(result)
		if err != nil {
			return err
		}

		return e.stores.Idempotency.Finish(sessCtx, req.CallerID, confirmEndpoint, req.IdempotencyKey, domain.IdempotencySucceeded, responseJSON)
	})
	if txErr != nil {
		return nil, nil, txErr
	}

	return result, signals, nil
}

// GetReservationResult is the Engine's public getReservation contract.
type GetReservationResult struct {
	Reservation *domain.Reservation
	IsValid     bool
}

// GetReservation returns a reservation's current state and whether it
// is still a valid, usable hold.
func (e *Engine) GetReservation(ctx context.Context, reservationID string) (*GetReservationResult, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.GetReservation")
	defer span.End()

	reservation, err := e.stores.Reservations.FindByID(ctx, reservationID)
	if err != nil {
		return nil, e.mapDomainError(err)
	}

	return &GetReservationResult{
		Reservation: reservation,
		IsValid:     reservation.IsValid(time.Now().UTC()),
	}, nil
}

// finishIdempotency marks a slot failed on best-effort basis; a
// failure here is logged but never returned to the caller, since the
// real error has already been determined.
func (e *Engine) finishIdempotency(callerID, reservationID, token string, state domain.IdempotencyState, response json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := e.stores.Idempotency.Finish(ctx, callerID, confirmEndpoint, token, state, response); err != nil {
		e.logger.Warn(ctx, "failed to mark idempotency record failed", map[string]interface{}{
			"caller_id":      callerID,
			"reservation_id": reservationID,
			"error":          err.Error(),
		})
	}
}

// publishLowStockSignals is a best-effort publish to Kafka: the
// signals are already durably persisted inside the confirm
// transaction, so a publish failure here never rolls anything back.
func (e *Engine) publishLowStockSignals(ctx context.Context, signals []*domain.LowStockSignal) {
	for _, s := range signals {
		e.metrics.IncrementCounter("low_stock_signal", nil)
		if e.producer == nil {
			continue
		}
		event := kafka.NewEvent("low_stock.raised", "checkout-core", s.ProductID, s)
		if err := e.producer.SendEvent(ctx, "low-stock-signals", event); err != nil {
			e.logger.Warn(ctx, "failed to publish low-stock signal", map[string]interface{}{
				"product_id": s.ProductID,
				"error":      err.Error(),
			})
		}
	}
}

func (e *Engine) recordOperation(operation string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	e.metrics.IncrementCounter("engine_operation", map[string]string{"operation": operation, "outcome": outcome})
	e.metrics.RecordDuration("engine_operation", duration, map[string]string{"operation": operation})
}

// mapDomainError translates the domain's sentinel errors into the
// platform's tagged AppError kinds, the contract the transport layer
// maps onto HTTP status codes.
func (e *Engine) mapDomainError(err error) error {
	// Transaction errors arrive wrapped by the connection helper, so
	// unwrap to the domain sentinel before switching on it.
	for _, sentinel := range []error{
		domain.ErrProductNotFound, domain.ErrReservationNotFound, domain.ErrOrderNotFound,
		domain.ErrInsufficientStock, domain.ErrWrongCaller, domain.ErrReservationNotActive,
		domain.ErrIdempotencyMismatch, domain.ErrReservationStateConflict,
	} {
		if errors.Is(err, sentinel) {
			err = sentinel
			break
		}
	}

	switch err {
	case domain.ErrProductNotFound, domain.ErrReservationNotFound, domain.ErrOrderNotFound:
		return platformerrors.NewNotFound(err.Error())
	case domain.ErrInsufficientStock:
		return platformerrors.NewInsufficient(err.Error())
	case domain.ErrWrongCaller:
		return platformerrors.NewForbidden(err.Error())
	case domain.ErrReservationNotActive:
		return platformerrors.NewGone(err.Error())
	case domain.ErrIdempotencyMismatch:
		return platformerrors.NewIdempotencyMismatch(err.Error())
	case domain.ErrReservationStateConflict:
		return platformerrors.NewGone(err.Error())
	case domain.ErrEmptyCart, domain.ErrInvalidQuantity, domain.ErrUnknownShippingMethod, domain.ErrMissingAddressField, domain.ErrMissingIdempotencyKey:
		return platformerrors.NewValidation(err.Error())
	}

	if platformerrors.IsStorageTransient(err) {
		return err
	}

	return platformerrors.Wrap(err, "internal engine error")
}
