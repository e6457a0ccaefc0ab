// Package coupontest provides an in-memory coupon.Service with the same guarantees as the
// Postgres store: unique payment binding, FIFO claims and conditional status transitions.
package coupontest

import (
	"context"
	"sort"
	"sync"
	"time"

	"goflare.io/issuance/coupon"
	"goflare.io/issuance/models"
	"goflare.io/issuance/models/enum"
)

var _ coupon.Service = (*Store)(nil)

type Store struct {
	mu      sync.Mutex
	coupons []*models.Coupon
	nextID  int64
	clock   time.Time

	// BeforeReserve runs before the claim, outside the lock. Tests use it to interleave
	// a competing claim between the idempotency lookup and the reservation.
	BeforeReserve func(paymentID string)
	// Fail, when set, is consulted before every operation; a non-nil result is returned as is.
	Fail func(op string) error

	reserveCalls int
	issueCalls   int
}

func NewStore(codes ...string) *Store {
	s := &Store{clock: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s.Seed(codes...)
	return s
}

// Seed appends available coupons; each code is created one second after the previous one.
func (s *Store) Seed(codes ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, code := range codes {
		s.nextID++
		s.clock = s.clock.Add(time.Second)
		s.coupons = append(s.coupons, &models.Coupon{
			ID:        s.nextID,
			Code:      code,
			Status:    enum.CouponStatusAvailable,
			CreatedAt: s.clock,
			UpdatedAt: s.clock,
		})
	}
}

// Put inserts a coupon in an arbitrary state, e.g. one left reserved by a crashed process.
func (s *Store) Put(c models.Coupon) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	if c.ID == 0 {
		c.ID = s.nextID
	}
	if c.CreatedAt.IsZero() {
		s.clock = s.clock.Add(time.Second)
		c.CreatedAt = s.clock
	}
	s.coupons = append(s.coupons, &c)
}

// ForceReserve binds the available coupon with the given code to paymentID, bypassing hooks.
// It reports whether the coupon was claimed.
func (s *Store) ForceReserve(code, paymentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.coupons {
		if c.Code == code && c.Status == enum.CouponStatusAvailable {
			pid := paymentID
			c.PaymentID = &pid
			c.Status = enum.CouponStatusReserved
			return true
		}
	}
	return false
}

func (s *Store) GetByPaymentID(_ context.Context, paymentID string) (*models.Coupon, error) {
	if err := s.fail("get"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.coupons {
		if c.BoundTo(paymentID) {
			return clone(c), nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (s *Store) Reserve(_ context.Context, paymentID string) (*models.Coupon, error) {
	if s.BeforeReserve != nil {
		s.BeforeReserve(paymentID)
	}
	if err := s.fail("reserve"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reserveCalls++

	var candidate *models.Coupon
	for _, c := range s.ordered() {
		if c.Status == enum.CouponStatusAvailable && c.PaymentID == nil {
			candidate = c
			break
		}
	}
	if candidate == nil {
		return nil, coupon.ErrNoneAvailable
	}
	for _, c := range s.coupons {
		if c.BoundTo(paymentID) {
			return nil, coupon.ErrConflict
		}
	}

	pid := paymentID
	candidate.PaymentID = &pid
	candidate.Status = enum.CouponStatusReserved
	candidate.UpdatedAt = time.Now().UTC()
	return clone(candidate), nil
}

func (s *Store) MarkIssued(_ context.Context, in *models.Coupon) (*models.Coupon, error) {
	if err := s.fail("issue"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issueCalls++
	if in.PaymentID == nil {
		return nil, coupon.ErrNotFound
	}
	for _, c := range s.coupons {
		if c.ID != in.ID || !c.BoundTo(*in.PaymentID) {
			continue
		}
		if c.Status == enum.CouponStatusAvailable {
			return nil, coupon.ErrNotFound
		}
		if c.Status != enum.CouponStatusIssued {
			now := time.Now().UTC()
			c.Status = enum.CouponStatusIssued
			c.IssuedAt = &now
			c.UpdatedAt = now
		}
		return clone(c), nil
	}
	return nil, coupon.ErrNotFound
}

func (s *Store) Stats(_ context.Context) (*models.PoolStats, error) {
	if err := s.fail("stats"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := new(models.PoolStats)
	for _, c := range s.coupons {
		switch c.Status {
		case enum.CouponStatusAvailable:
			stats.Available++
		case enum.CouponStatusReserved:
			stats.Reserved++
		case enum.CouponStatusIssued:
			stats.Issued++
		}
	}
	return stats, nil
}

// Snapshot returns copies of every coupon in creation order.
func (s *Store) Snapshot() []models.Coupon {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Coupon, 0, len(s.coupons))
	for _, c := range s.ordered() {
		out = append(out, *clone(c))
	}
	return out
}

// BoundCount returns how many coupons are bound to paymentID.
func (s *Store) BoundCount(paymentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.coupons {
		if c.BoundTo(paymentID) {
			n++
		}
	}
	return n
}

func (s *Store) ReserveCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserveCalls
}

func (s *Store) IssueCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueCalls
}

func (s *Store) fail(op string) error {
	if s.Fail == nil {
		return nil
	}
	return s.Fail(op)
}

func (s *Store) ordered() []*models.Coupon {
	out := make([]*models.Coupon, len(s.coupons))
	copy(out, s.coupons)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func clone(c *models.Coupon) *models.Coupon {
	cp := *c
	if c.PaymentID != nil {
		pid := *c.PaymentID
		cp.PaymentID = &pid
	}
	if c.IssuedAt != nil {
		at := *c.IssuedAt
		cp.IssuedAt = &at
	}
	return &cp
}
