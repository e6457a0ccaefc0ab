package enum

type CouponStatus string

const (
	CouponStatusAvailable CouponStatus = "available"
	CouponStatusReserved  CouponStatus = "reserved"
	CouponStatusIssued    CouponStatus = "issued"
)

func (s CouponStatus) Valid() bool {
	switch s {
	case CouponStatusAvailable, CouponStatusReserved, CouponStatusIssued:
		return true
	}
	return false
}
