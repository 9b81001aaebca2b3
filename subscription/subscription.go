package subscription

import (
	"math"
	"time"
)

// UnlimitedUnits is the saturated remaining value reported for packages
// sold without a usage cap (TotalUnits == 0).
const UnlimitedUnits = math.MaxInt32

// Subscription is a bounded-use grooming package sold to a pet owner.
// UsedUnits and ReservedUnits are the usage ledger: UsedUnits are visits
// permanently consumed, ReservedUnits are visits provisionally held by
// reservations that have not reached a terminal status yet.
// Counters only change through the ledger operations on Manager.
type Subscription struct {
	ID            string    `json:"id" gorm:"primaryKey"`
	PetID         string    `json:"petId" gorm:"index"`
	StartDate     time.Time `json:"startDate"` // validity window start, date granularity
	EndDate       time.Time `json:"endDate"`   // validity window end, inclusive
	TotalUnits    int       `json:"totalUnits"` // 0 means unlimited
	UsedUnits     int       `json:"usedUnits"`
	ReservedUnits int       `json:"reservedUnits"`
	PriceCents    int64     `json:"priceCents"`
	Notes         string    `json:"notes"`
	CreatedBy     string    `json:"createdBy"`
	UpdatedBy     string    `json:"updatedBy"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Unlimited reports whether the package was sold without a usage cap
func (s *Subscription) Unlimited() bool {
	return s.TotalUnits == 0
}

// Remaining returns how many units can still be reserved or used.
// Saturates to UnlimitedUnits for uncapped packages and never goes negative.
func (s *Subscription) Remaining() int {
	if s.Unlimited() {
		return UnlimitedUnits
	}
	remaining := s.TotalUnits - s.UsedUnits - s.ReservedUnits
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ActiveOn reports whether the validity window contains the given date.
// The end date is inclusive.
func (s *Subscription) ActiveOn(t time.Time) bool {
	d := DateOnly(t)
	return !d.Before(DateOnly(s.StartDate)) && !d.After(DateOnly(s.EndDate))
}

// DateOnly truncates a timestamp to date granularity in UTC
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
