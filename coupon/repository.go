package coupon

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/issuance/driver"
	"goflare.io/issuance/models"
	"goflare.io/issuance/models/enum"
)

var _ Repository = (*repository)(nil)

const couponColumns = `id, code, payment_id, status, created_at, updated_at, issued_at`

const (
	getByPaymentIDQuery = `SELECT ` + couponColumns + ` FROM coupons WHERE payment_id = $1`

	// The inner SELECT picks the oldest available coupon and skips rows another claim is
	// holding, so concurrent claims never queue behind each other.
	claimNextQuery = `
    UPDATE coupons
    SET payment_id = $1, status = 'reserved', updated_at = now()
    WHERE id = (
        SELECT id FROM coupons
        WHERE status = 'available' AND payment_id IS NULL
        ORDER BY created_at, id
        LIMIT 1
        FOR UPDATE SKIP LOCKED
    )
    RETURNING ` + couponColumns

	markIssuedQuery = `
    UPDATE coupons
    SET status = 'issued', issued_at = COALESCE(issued_at, now()), updated_at = now()
    WHERE id = $1 AND payment_id = $2 AND status IN ('reserved', 'issued')
    RETURNING ` + couponColumns

	hasAvailableQuery = `SELECT EXISTS (SELECT 1 FROM coupons WHERE status = 'available')`

	statsQuery = `SELECT status, count(*) FROM coupons GROUP BY status`
)

type Repository interface {
	GetByPaymentID(ctx context.Context, tx pgx.Tx, paymentID string) (*models.Coupon, error)
	ClaimNext(ctx context.Context, tx pgx.Tx, paymentID string) (*models.Coupon, error)
	MarkIssued(ctx context.Context, tx pgx.Tx, id int64, paymentID string) (*models.Coupon, error)
	HasAvailable(ctx context.Context, tx pgx.Tx) (bool, error)
	Stats(ctx context.Context, tx pgx.Tx) (*models.PoolStats, error)
}

type repository struct {
	conn   driver.PostgresPool
	logger *zap.Logger
}

func NewRepository(conn driver.PostgresPool, logger *zap.Logger) Repository {
	return &repository{
		conn:   conn,
		logger: logger.Named("coupon.repository"),
	}
}

func (r *repository) GetByPaymentID(ctx context.Context, tx pgx.Tx, paymentID string) (*models.Coupon, error) {
	coupon, err := scanCoupon(tx.QueryRow(ctx, getByPaymentIDQuery, paymentID))
	if err != nil {
		return nil, mapError(err)
	}
	return coupon, nil
}

func (r *repository) ClaimNext(ctx context.Context, tx pgx.Tx, paymentID string) (*models.Coupon, error) {
	coupon, err := scanCoupon(tx.QueryRow(ctx, claimNextQuery, paymentID))
	if err != nil {
		err = mapError(err)
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrConflict) {
			r.logger.Error("error claiming coupon", zap.String("payment_id", paymentID), zap.Error(err))
		}
		return nil, err
	}
	return coupon, nil
}

func (r *repository) MarkIssued(ctx context.Context, tx pgx.Tx, id int64, paymentID string) (*models.Coupon, error) {
	coupon, err := scanCoupon(tx.QueryRow(ctx, markIssuedQuery, id, paymentID))
	if err != nil {
		return nil, mapError(err)
	}
	return coupon, nil
}

func (r *repository) HasAvailable(ctx context.Context, tx pgx.Tx) (bool, error) {
	var exists bool
	if err := tx.QueryRow(ctx, hasAvailableQuery).Scan(&exists); err != nil {
		return false, mapError(err)
	}
	return exists, nil
}

func (r *repository) Stats(ctx context.Context, tx pgx.Tx) (*models.PoolStats, error) {
	rows, err := tx.Query(ctx, statsQuery)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	stats := new(models.PoolStats)
	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err = rows.Scan(&status, &count); err != nil {
			return nil, mapError(err)
		}
		switch enum.CouponStatus(status) {
		case enum.CouponStatusAvailable:
			stats.Available = count
		case enum.CouponStatusReserved:
			stats.Reserved = count
		case enum.CouponStatusIssued:
			stats.Issued = count
		default:
			r.logger.Warn("unexpected coupon status", zap.String("status", status))
		}
	}
	if err = rows.Err(); err != nil {
		return nil, mapError(err)
	}

	return stats, nil
}

func scanCoupon(row pgx.Row) (*models.Coupon, error) {
	var (
		coupon models.Coupon
		status string
	)
	if err := row.Scan(
		&coupon.ID,
		&coupon.Code,
		&coupon.PaymentID,
		&status,
		&coupon.CreatedAt,
		&coupon.UpdatedAt,
		&coupon.IssuedAt,
	); err != nil {
		return nil, err
	}
	coupon.Status = enum.CouponStatus(status)
	if !coupon.Status.Valid() {
		return nil, fmt.Errorf("coupon %d has unknown status %q", coupon.ID, status)
	}
	return &coupon, nil
}

// mapError turns driver errors into the store's error kinds. Anything unrecognised is
// returned wrapped so callers can still inspect the cause.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return ErrNotFound
	case driver.IsUniqueViolation(err):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return fmt.Errorf("coupon store: %w", err)
	}
}
