package reservation

import (
	"strings"
	"time"
)

// Reservation is a grooming appointment for a pet. When UseSubscription is
// true the appointment draws DeductionUnits from SubscriptionID instead of
// being paid per visit, and the ledger hold follows the reservation status:
// held while non-terminal, consumed on Completed, returned on Cancelled,
// NoShow or deletion. UseSubscription and SubscriptionID are fixed at
// creation time; only the status mutates afterwards.
type Reservation struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	PetID           string    `json:"petId" gorm:"index"`
	CustomerID      string    `json:"customerId" gorm:"index"`
	SubscriptionID  string    `json:"subscriptionId"` // empty when paying per visit
	UseSubscription bool      `json:"useSubscription"`
	DeductionUnits  int       `json:"deductionUnits"` // units consumed if the visit completes
	Status          string    `json:"status" gorm:"index"`
	PreviousStatus  string    `json:"previousStatus"`
	ServiceIDs      string    `json:"serviceIds"` // comma-separated menu service ids
	ScheduledAt     time.Time `json:"scheduledAt"`
	DurationMinutes int       `json:"durationMinutes"`
	TotalCents      int64     `json:"totalCents"` // zero for subscription-paid visits
	Notes           string    `json:"notes"`
	CreatedBy       string    `json:"createdBy"`
	UpdatedBy       string    `json:"updatedBy"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ServiceIDList splits the stored service ids
func (r *Reservation) ServiceIDList() []string {
	if len(r.ServiceIDs) == 0 {
		return nil
	}
	return strings.Split(r.ServiceIDs, ",")
}

func joinServiceIDs(ids []string) string {
	return strings.Join(ids, ",")
}
