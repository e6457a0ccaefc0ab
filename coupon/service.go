package coupon

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"goflare.io/issuance/driver"
	"goflare.io/issuance/models"
)

var (
	ErrNotFound      = errors.New("coupon not found")
	ErrConflict      = errors.New("payment is already bound to a coupon")
	ErrNoneAvailable = errors.New("no available coupon")
)

// errClaimSkipped means the claim found nothing while available rows still exist,
// i.e. every candidate was held by a concurrent claim.
var errClaimSkipped = errors.New("available coupons are locked by concurrent claims")

const (
	claimAttempts = 5
	// claimBackoff is the base pause between claims that found every available row locked.
	// Attempt n waits n*claimBackoff plus up to one claimBackoff of jitter.
	claimBackoff = 5 * time.Millisecond
)

// Service is the store contract the allocation engine depends on.
type Service interface {
	GetByPaymentID(ctx context.Context, paymentID string) (*models.Coupon, error)
	// Reserve binds the oldest available coupon to paymentID.
	// It returns ErrConflict when another coupon already holds paymentID and
	// ErrNoneAvailable when the pool is empty.
	Reserve(ctx context.Context, paymentID string) (*models.Coupon, error)
	// MarkIssued moves a reserved coupon to issued. Issuing an issued coupon is a no-op.
	MarkIssued(ctx context.Context, coupon *models.Coupon) (*models.Coupon, error)
	Stats(ctx context.Context) (*models.PoolStats, error)
}

type service struct {
	repo               Repository
	transactionManager *driver.TransactionManager
	logger             *zap.Logger

	claimAttempts int
	claimBackoff  time.Duration
}

func NewService(repo Repository, tm *driver.TransactionManager, logger *zap.Logger) Service {
	return &service{
		repo:               repo,
		transactionManager: tm,
		logger:             logger.Named("coupon.service"),
		claimAttempts:      claimAttempts,
		claimBackoff:       claimBackoff,
	}
}

func (s *service) GetByPaymentID(ctx context.Context, paymentID string) (*models.Coupon, error) {
	var coupon *models.Coupon
	err := s.transactionManager.ExecuteReadOnly(ctx, func(tx pgx.Tx) error {
		var err error
		coupon, err = s.repo.GetByPaymentID(ctx, tx, paymentID)
		return err
	})
	return coupon, err
}

func (s *service) Reserve(ctx context.Context, paymentID string) (*models.Coupon, error) {
	for attempt := 1; attempt <= s.claimAttempts; attempt++ {
		if attempt > 1 {
			if err := s.waitForClaim(ctx, attempt-1); err != nil {
				return nil, fmt.Errorf("%w: %w", errClaimSkipped, err)
			}
		}

		var coupon *models.Coupon
		err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
			var err error
			coupon, err = s.repo.ClaimNext(ctx, tx, paymentID)
			if !errors.Is(err, ErrNotFound) {
				return err
			}

			available, err := s.repo.HasAvailable(ctx, tx)
			if err != nil {
				return err
			}
			if available {
				return errClaimSkipped
			}
			return ErrNoneAvailable
		})
		if errors.Is(err, errClaimSkipped) {
			s.logger.Debug("claim skipped locked coupons, retrying",
				zap.String("payment_id", paymentID),
				zap.Int("attempt", attempt))
			continue
		}
		return coupon, err
	}
	// Every attempt lost to concurrent claims; the caller treats this as a transient failure.
	return nil, errClaimSkipped
}

// waitForClaim gives the transaction holding the locked rows time to commit.
func (s *service) waitForClaim(ctx context.Context, attempt int) error {
	if s.claimBackoff <= 0 {
		return ctx.Err()
	}
	delay := time.Duration(attempt)*s.claimBackoff + rand.N(s.claimBackoff)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *service) MarkIssued(ctx context.Context, coupon *models.Coupon) (*models.Coupon, error) {
	if coupon.PaymentID == nil {
		return nil, ErrNotFound
	}
	var issued *models.Coupon
	err := s.transactionManager.ExecuteTransaction(ctx, func(tx pgx.Tx) error {
		var err error
		issued, err = s.repo.MarkIssued(ctx, tx, coupon.ID, *coupon.PaymentID)
		return err
	})
	return issued, err
}

func (s *service) Stats(ctx context.Context) (*models.PoolStats, error) {
	var stats *models.PoolStats
	err := s.transactionManager.ExecuteReadOnly(ctx, func(tx pgx.Tx) error {
		var err error
		stats, err = s.repo.Stats(ctx, tx)
		return err
	})
	return stats, err
}
