// Package sweeper implements the Expiry Sweeper: a long-running,
// fixed-interval task that reclaims inventory held by reservations
// whose hold has lapsed.
package sweeper

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/amiosamu/checkout-core/internal/domain"
	platformmongo "github.com/amiosamu/checkout-core/internal/platform/database/mongodb"
	"github.com/amiosamu/checkout-core/internal/platform/observability/logging"
	"github.com/amiosamu/checkout-core/internal/platform/observability/metrics"
)

// Sweeper runs reservation expiry on a fixed interval. At most one
// cycle runs at a time; a tick arriving while a cycle is still in
// flight is dropped rather than queued.
type Sweeper struct {
	conn         *platformmongo.Connection
	products     domain.InventoryRepository
	reservations domain.ReservationRepository
	logger       logging.Logger
	metrics      metrics.Metrics

	interval   time.Duration
	batchLimit int

	running atomic.Bool
	wg      sync.WaitGroup
	stop    chan struct{}
	done    chan struct{}
}

// New constructs a Sweeper. Call Start to begin its ticker.
func New(
	conn *platformmongo.Connection,
	products domain.InventoryRepository,
	reservations domain.ReservationRepository,
	logger logging.Logger,
	m metrics.Metrics,
	interval time.Duration,
	batchLimit int,
) *Sweeper {
	return &Sweeper{
		conn:         conn,
		products:     products,
		reservations: reservations,
		logger:       logger,
		metrics:      m,
		interval:     interval,
		batchLimit:   batchLimit,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start runs one cycle immediately, then continues on the configured
// interval until Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop cancels the next scheduled cycle and blocks until any in-flight
// cycle finishes.
func (s *Sweeper) Stop() {
	close(s.stop)
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	s.runCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle enforces the single-flight guard: if a previous cycle is
// still running (should not normally happen given the ticker's
// interval, but possible under storage latency spikes), this tick is
// skipped entirely.
func (s *Sweeper) runCycle(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn(ctx, "sweeper cycle skipped: previous cycle still running")
		return
	}
	defer s.running.Store(false)

	s.metrics.IncrementCounter("sweeper_cycle", nil)

	now := time.Now().UTC()
	expired, err := s.reservations.FindExpiredActive(ctx, now, s.batchLimit)
	if err != nil {
		s.logger.Error(ctx, "sweeper failed to query expired reservations", err)
		s.metrics.IncrementCounter("sweeper_error", nil)
		return
	}

	var totalExpired, totalUnitsReleased float64

	for _, reservation := range expired {
		released, transitioned, err := s.expireOne(ctx, reservation, now)
		if err != nil {
			s.logger.Error(ctx, "sweeper failed to expire reservation", err, map[string]interface{}{
				"reservation_id": reservation.ID,
			})
			s.metrics.IncrementCounter("sweeper_error", nil)
			continue
		}
		if transitioned {
			totalExpired++
		}
		totalUnitsReleased += float64(released)
	}

	s.metrics.RecordValue("sweeper_expired", totalExpired, nil)
	s.metrics.RecordValue("sweeper_units_released", totalUnitsReleased, nil)

	s.logger.Info(ctx, "sweeper cycle complete", map[string]interface{}{
		"candidates":     len(expired),
		"expired":        totalExpired,
		"units_released": totalUnitsReleased,
	})
}

// expireOne releases every line of a single expired reservation and
// transitions it to expired, all inside its own transaction so a
// crash mid-reservation never leaves a partially-released hold
// committed. A reservation that is no longer active (confirm won the
// race) is left untouched and nothing is released.
func (s *Sweeper) expireOne(ctx context.Context, reservation *domain.Reservation, now time.Time) (int, bool, error) {
	lines := make([]domain.LineSnapshot, len(reservation.Lines))
	copy(lines, reservation.Lines)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	released := 0
	transitioned := false

	err := s.conn.WithTransactionRetry(ctx, 2, func(sessCtx mongo.SessionContext) error {
		released = 0
		transitioned = false

		err := s.reservations.TryTransition(sessCtx, reservation.ID, domain.ReservationActive, domain.ReservationExpired, now)
		if err == domain.ErrReservationStateConflict {
			// confirm won the race first; nothing left to do.
			return nil
		}
		if err != nil {
			return err
		}
		transitioned = true

		for _, l := range lines {
			if err := s.products.ReleaseReserved(sessCtx, l.ProductID, l.Quantity); err != nil {
				// A guard failure here implies corruption or a prior
				// partial release; the line is logged and skipped so
				// the cycle can continue rather than wedging on one
				// bad reservation.
				s.logger.Warn(sessCtx, "sweeper release guard failed, skipping line", map[string]interface{}{
					"reservation_id": reservation.ID,
					"product_id":     l.ProductID,
					"quantity":       l.Quantity,
					"error":          err.Error(),
				})
				continue
			}
			released += l.Quantity
		}

		return nil
	})
	if err != nil {
		return 0, false, err
	}

	return released, transitioned, nil
}
