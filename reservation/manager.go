package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pawprint/groombook/subscription"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UsageLedger is the capacity ledger a reservation draws units from.
// Satisfied by *subscription.Manager; the Tx variants let a status write and
// its ledger effect commit in the same transaction, both or neither.
type UsageLedger interface {
	GetByID(ctx context.Context, id string) (*subscription.Subscription, error)
	GetActiveForPet(ctx context.Context, petID string, onDate time.Time) (*subscription.Subscription, error)
	ReserveUsage(ctx context.Context, id string, units int, actor string) error
	ReleaseUsage(ctx context.Context, id string, units int, actor string) error
	ConfirmUsageTx(tx *gorm.DB, id string, units int, actor string) error
	ReleaseUsageTx(tx *gorm.DB, id string, units int, actor string) error
}

var _ UsageLedger = (*subscription.Manager)(nil)

// Sentinel errors returned by reservation operations
var (
	// ErrNotFound means no reservation exists with the given id
	ErrNotFound = errors.New("reservation not found")
	// ErrInvalidTransition means the requested status change is not allowed
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict means a concurrent transition on the same reservation won the race
	ErrConflict = errors.New("reservation was modified concurrently")
)

// Manager handles the database operations relating to Reservations and
// drives the ledger effects of status transitions exactly once per edge
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
	ledger UsageLedger
}

// NewManager returns a new Manager for reservations
func NewManager(logger *zap.Logger, db *gorm.DB, ledger UsageLedger) (*Manager, error) {
	if logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if db == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if ledger == nil {
		return nil, fmt.Errorf("nil UsageLedger is invalid")
	}
	if err := db.AutoMigrate(&Reservation{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize reservation.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
		ledger: ledger,
	}, nil
}

// Create persists a new reservation row. The caller (see Service.newReservation)
// is responsible for holding ledger capacity before calling and for releasing
// it again if this write fails.
func (m *Manager) Create(ctx context.Context, resv *Reservation) error {
	if len(resv.ID) == 0 {
		return fmt.Errorf("empty ID is invalid")
	}
	if resv.UseSubscription && len(resv.SubscriptionID) == 0 {
		return fmt.Errorf("UseSubscription requires a SubscriptionID")
	}
	if resv.UseSubscription && resv.DeductionUnits <= 0 {
		return fmt.Errorf("non-positive DeductionUnits is invalid")
	}
	result := m.db.WithContext(ctx).Create(resv)
	if result.Error != nil {
		m.logger.Error("Unable to create new reservation in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create reservation")
	}
	return nil
}

// GetByID will try to return the reservation in the database by id
func (m *Manager) GetByID(ctx context.Context, id string) (*Reservation, error) {
	var resv Reservation

	result := m.db.WithContext(ctx).First(&resv, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get reservation by id")
	}

	return &resv, nil
}

// ListOption filters the reservations to return
type ListOption struct {
	CustomerID string
	PetID      string
	Before     time.Time
	Limit      int
}

// List returns reservations for a customer, newest first
func (m *Manager) List(ctx context.Context, opt ListOption) ([]Reservation, error) {
	if len(opt.CustomerID) == 0 {
		return nil, fmt.Errorf("ListOption.CustomerID is required")
	}
	baseQuery := m.db.WithContext(ctx).
		Order("scheduled_at desc").
		Where("customer_id = ?", opt.CustomerID)
	if len(opt.PetID) > 0 {
		baseQuery = baseQuery.Where("pet_id = ?", opt.PetID)
	}
	if !opt.Before.IsZero() {
		baseQuery = baseQuery.Where("scheduled_at < ?", opt.Before)
	}
	if opt.Limit > 0 {
		baseQuery = baseQuery.Limit(opt.Limit)
	}

	results := make([]Reservation, 0, 1)
	result := baseQuery.Find(&results)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}

// TransitionResult reports the outcome of a status transition request
type TransitionResult struct {
	Reservation *Reservation
	// NoOp is true when the requested status equals the current one;
	// no ledger effect fired
	NoOp bool
}

// Transition moves a reservation to the next status and fires the ledger
// effect of the edge in the same transaction. Requesting the current status
// again is a no-op so that Completed/Cancelled cannot double-fire their
// confirm/release. If a concurrent transition commits first, the whole
// transaction (ledger effect included) rolls back and ErrConflict is returned.
func (m *Manager) Transition(ctx context.Context, id, next, actor string) (*TransitionResult, error) {
	if !ValidStatus(next) {
		return nil, ErrInvalidTransition
	}

	var out TransitionResult
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current Reservation
		lookupRes := tx.First(&current, "id = ?", id)
		if errors.Is(lookupRes.Error, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if lookupRes.Error != nil {
			return extErrors.Wrap(lookupRes.Error, "Cannot look up reservation")
		}

		if current.Status == next {
			out.Reservation = &current
			out.NoOp = true
			return nil
		}
		if !CanTransition(current.Status, next) {
			return ErrInvalidTransition
		}

		if current.UseSubscription {
			switch EffectFor(next) {
			case EffectConfirm:
				if err := m.ledger.ConfirmUsageTx(tx, current.SubscriptionID, current.DeductionUnits, actor); err != nil {
					return err
				}
			case EffectRelease:
				if err := m.ledger.ReleaseUsageTx(tx, current.SubscriptionID, current.DeductionUnits, actor); err != nil {
					return err
				}
			}
		}

		// Guarded on the status we read: if a competitor moved it first,
		// zero rows match and the ledger effect above rolls back with us
		res := tx.Model(&Reservation{}).
			Where("id = ? AND status = ?", id, current.Status).
			Updates(map[string]interface{}{
				"status":          next,
				"previous_status": current.Status,
				"updated_by":      actor,
			})
		if res.Error != nil {
			return extErrors.Wrap(res.Error, "Cannot update reservation status")
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}

		updated := current
		updated.PreviousStatus = current.Status
		updated.Status = next
		updated.UpdatedBy = actor
		out.Reservation = &updated
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Delete removes a reservation. Deleting one that is still non-terminal and
// holds subscription units releases the hold in the same transaction,
// otherwise the capacity would leak forever.
func (m *Manager) Delete(ctx context.Context, id, actor string) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current Reservation
		lookupRes := tx.First(&current, "id = ?", id)
		if errors.Is(lookupRes.Error, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if lookupRes.Error != nil {
			return extErrors.Wrap(lookupRes.Error, "Cannot look up reservation")
		}

		if !IsTerminal(current.Status) && current.UseSubscription {
			if err := m.ledger.ReleaseUsageTx(tx, current.SubscriptionID, current.DeductionUnits, actor); err != nil {
				return err
			}
		}

		// Guarded on the status we read: a concurrent transition (or delete)
		// may have already settled the hold, and an unguarded delete would
		// stack a second release on top of it
		res := tx.Delete(&Reservation{}, "id = ? AND status = ?", id, current.Status)
		if res.Error != nil {
			return extErrors.Wrap(res.Error, "Cannot delete reservation")
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
		return nil
	})
}
