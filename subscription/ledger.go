package subscription

import (
	"context"
	"time"

	"github.com/pawprint/groombook/metrics"

	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// The ledger operations below mutate the (UsedUnits, ReservedUnits) counters
// of a single subscription. Each availability check and its counter write is a
// single conditional UPDATE, so two callers racing for the last unit serialize
// on the row write lock and the loser's WHERE clause re-evaluates to no rows.
// No partial mutation is ever visible.

// CheckAvailability reports whether the subscription is currently active and
// has at least units remaining. Read-only and advisory: the answer may be
// stale by the time a mutating call re-validates it.
func (m *Manager) CheckAvailability(ctx context.Context, id string, units int) (bool, error) {
	if units <= 0 {
		return false, ErrInvalidCount
	}
	sub, err := m.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, ErrNotFound
	}
	return sub.ActiveOn(time.Now()) && sub.Remaining() >= units, nil
}

// ReserveUsage places a provisional hold of units on the subscription.
// The subscription must be within its validity window and have enough
// remaining units, both re-validated atomically with the counter write.
// Returns ErrNoCapacity when a concurrent competitor won the last units.
func (m *Manager) ReserveUsage(ctx context.Context, id string, units int, actor string) error {
	if units <= 0 {
		return ErrInvalidCount
	}
	today := DateOnly(time.Now())
	res := m.db.WithContext(ctx).Model(&Subscription{}).
		Where("id = ?", id).
		Where("start_date <= ? AND ? <= end_date", today, today).
		Where("total_units = 0 OR used_units + reserved_units + ? <= total_units", units).
		Updates(map[string]interface{}{
			"reserved_units": gorm.Expr("reserved_units + ?", units),
			"updated_by":     actor,
		})
	if res.Error != nil {
		m.logger.Error("Unable to reserve units",
			zap.Error(res.Error),
			zap.String("SubscriptionID", id),
		)
		return extErrors.Wrap(res.Error, "Cannot reserve units")
	}
	if res.RowsAffected == 1 {
		metrics.LedgerReserves.Inc()
		return nil
	}
	return m.explainReserveFailure(ctx, id)
}

// explainReserveFailure distinguishes why the guarded reserve matched no rows
func (m *Manager) explainReserveFailure(ctx context.Context, id string) error {
	sub, err := m.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if sub == nil {
		return ErrNotFound
	}
	if !sub.ActiveOn(time.Now()) {
		return ErrNotActive
	}
	metrics.CapacityRejections.Inc()
	return ErrNoCapacity
}

// ConfirmUsage permanently consumes a previously held number of units,
// moving them from reserved to used. Confirming is allowed past the validity
// window so that in-flight reservations created before expiry can settle.
func (m *Manager) ConfirmUsage(ctx context.Context, id string, units int, actor string) error {
	if units <= 0 {
		return ErrInvalidCount
	}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return m.ConfirmUsageTx(tx, id, units, actor)
	})
	if err != nil {
		return err
	}
	metrics.LedgerConfirms.Inc()
	return nil
}

// ConfirmUsageTx is ConfirmUsage scoped to an existing transaction, used when
// the caller needs the ledger effect and another write to commit together
func (m *Manager) ConfirmUsageTx(tx *gorm.DB, id string, units int, actor string) error {
	if units <= 0 {
		return ErrInvalidCount
	}
	res := tx.Model(&Subscription{}).
		Where("id = ? AND reserved_units >= ?", id, units).
		Updates(map[string]interface{}{
			"used_units":     gorm.Expr("used_units + ?", units),
			"reserved_units": gorm.Expr("reserved_units - ?", units),
			"updated_by":     actor,
		})
	if res.Error != nil {
		return extErrors.Wrap(res.Error, "Cannot confirm units")
	}
	if res.RowsAffected == 1 {
		return nil
	}
	// The hold is smaller than units: clamp reserved to zero instead of
	// going negative, still consuming the full count
	res = tx.Model(&Subscription{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"used_units":     gorm.Expr("used_units + ?", units),
			"reserved_units": 0,
			"updated_by":     actor,
		})
	if res.Error != nil {
		return extErrors.Wrap(res.Error, "Cannot confirm units")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseUsage returns a provisional hold of units back to available
// capacity, e.g. when the reservation holding them is cancelled or deleted.
// Releasing is allowed past the validity window.
func (m *Manager) ReleaseUsage(ctx context.Context, id string, units int, actor string) error {
	if units <= 0 {
		return ErrInvalidCount
	}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return m.ReleaseUsageTx(tx, id, units, actor)
	})
	if err != nil {
		return err
	}
	metrics.LedgerReleases.Inc()
	return nil
}

// ReleaseUsageTx is ReleaseUsage scoped to an existing transaction
func (m *Manager) ReleaseUsageTx(tx *gorm.DB, id string, units int, actor string) error {
	if units <= 0 {
		return ErrInvalidCount
	}
	res := tx.Model(&Subscription{}).
		Where("id = ? AND reserved_units >= ?", id, units).
		Updates(map[string]interface{}{
			"reserved_units": gorm.Expr("reserved_units - ?", units),
			"updated_by":     actor,
		})
	if res.Error != nil {
		return extErrors.Wrap(res.Error, "Cannot release units")
	}
	if res.RowsAffected == 1 {
		return nil
	}
	res = tx.Model(&Subscription{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"reserved_units": 0,
			"updated_by":     actor,
		})
	if res.Error != nil {
		return extErrors.Wrap(res.Error, "Cannot release units")
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
