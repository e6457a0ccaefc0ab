package issuance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"goflare.io/issuance/coupon"
	"goflare.io/issuance/metrics"
	"goflare.io/issuance/models"
	"goflare.io/issuance/monitor"
)

// Engine binds payment ids to coupons. It holds no mutable state of its own; every
// coordination point is a uniqueness constraint or conditional update in the store,
// so any number of engines may share one store.
type Engine struct {
	store   coupon.Service
	sink    monitor.Sink
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewEngine(store coupon.Service, sink monitor.Sink, m *metrics.Metrics, logger *zap.Logger) *Engine {
	return &Engine{
		store:   store,
		sink:    sink,
		metrics: m,
		logger:  logger.Named("engine"),
	}
}

// AllocateForPayment returns the coupon bound to paymentID, claiming the oldest available
// one if none is bound yet. Repeated and concurrent calls for one payment return the same coupon.
func (e *Engine) AllocateForPayment(ctx context.Context, paymentID string) (*models.Coupon, error) {
	c, _, err := e.Allocate(ctx, paymentID)
	return c, err
}

// Allocate is AllocateForPayment that also reports whether the coupon was already bound
// before this call.
func (e *Engine) Allocate(ctx context.Context, paymentID string) (*models.Coupon, bool, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		e.metrics.Allocation(metrics.AllocationRejected)
		return nil, false, ErrInvalidPaymentID
	}
	logger := e.logger.With(zap.String("payment_id", paymentID))

	existing, err := e.lookup(ctx, paymentID)
	if err != nil {
		return nil, false, e.storeFailure(logger, "lookup", err)
	}
	if existing != nil {
		issued, err := e.complete(ctx, existing)
		if err != nil {
			return nil, false, e.storeFailure(logger, "complete reserved coupon", err)
		}
		e.metrics.Allocation(metrics.AllocationReplayed)
		logger.Debug("payment already holds a coupon", zap.String("coupon_code", issued.Code))
		return issued, true, nil
	}

	reserved, err := e.store.Reserve(ctx, paymentID)
	switch {
	case err == nil:
	case errors.Is(err, coupon.ErrConflict):
		// 另一個並行請求已綁定此付款，回傳它的結果
		logger.Info("concurrent allocation won, reading its coupon")
		winner, err := e.lookup(ctx, paymentID)
		if err != nil {
			return nil, false, e.storeFailure(logger, "lookup after conflict", err)
		}
		if winner == nil {
			return nil, false, e.storeFailure(logger, "lookup after conflict", coupon.ErrNotFound)
		}
		return e.resolveWinner(ctx, logger, winner)
	case errors.Is(err, coupon.ErrNoneAvailable):
		// The last coupon may have gone to a concurrent call for this same payment.
		winner, lookupErr := e.lookup(ctx, paymentID)
		if lookupErr != nil {
			return nil, false, e.storeFailure(logger, "lookup after empty claim", lookupErr)
		}
		if winner != nil {
			return e.resolveWinner(ctx, logger, winner)
		}
		exhausted := fmt.Errorf("%w: payment %s", ErrPoolExhausted, paymentID)
		e.metrics.Allocation(metrics.AllocationExhausted)
		logger.Error("coupon pool exhausted")
		e.sink.Capture(ctx, exhausted, zap.String("payment_id", paymentID))
		return nil, false, exhausted
	default:
		return nil, false, e.storeFailure(logger, "reserve", err)
	}

	// A failure here leaves the coupon reserved for paymentID; the next call completes it.
	issued, err := e.store.MarkIssued(ctx, reserved)
	if err != nil {
		return nil, false, e.storeFailure(logger, "mark issued", err)
	}

	e.metrics.Allocation(metrics.AllocationAllocated)
	logger.Info("coupon allocated", zap.String("coupon_code", issued.Code), zap.Int64("coupon_id", issued.ID))
	return issued, false, nil
}

func (e *Engine) resolveWinner(ctx context.Context, logger *zap.Logger, winner *models.Coupon) (*models.Coupon, bool, error) {
	issued, err := e.complete(ctx, winner)
	if err != nil {
		return nil, false, e.storeFailure(logger, "complete winner coupon", err)
	}
	e.metrics.Allocation(metrics.AllocationConflictResolved)
	return issued, true, nil
}

// Lookup returns the coupon bound to paymentID in any state, or nil when none is bound.
func (e *Engine) Lookup(ctx context.Context, paymentID string) (*models.Coupon, error) {
	c, err := e.lookup(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return c, nil
}

func (e *Engine) lookup(ctx context.Context, paymentID string) (*models.Coupon, error) {
	c, err := e.store.GetByPaymentID(ctx, paymentID)
	if errors.Is(err, coupon.ErrNotFound) {
		return nil, nil
	}
	return c, err
}

func (e *Engine) complete(ctx context.Context, c *models.Coupon) (*models.Coupon, error) {
	if c.Issued() {
		return c, nil
	}
	return e.store.MarkIssued(ctx, c)
}

func (e *Engine) storeFailure(logger *zap.Logger, op string, err error) error {
	e.metrics.Allocation(metrics.AllocationStoreError)
	logger.Warn("coupon store failure", zap.String("op", op), zap.Error(err))
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
