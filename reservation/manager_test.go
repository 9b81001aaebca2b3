package reservation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pawprint/groombook/subscription"

	"github.com/lithammer/shortuuid/v3"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testManagers(t *testing.T) (*Manager, *subscription.Manager) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("getting database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	subManager, err := subscription.NewManager(zap.NewNop(), db)
	if err != nil {
		t.Fatalf("initializing subscription manager: %v", err)
	}
	resvManager, err := NewManager(zap.NewNop(), db, subManager)
	if err != nil {
		t.Fatalf("initializing reservation manager: %v", err)
	}
	return resvManager, subManager
}

// bookVisit seeds a subscription-backed Pending reservation with its hold
// already placed, the way Service.newReservation leaves things
func bookVisit(t *testing.T, m *Manager, subManager *subscription.Manager, totalUnits int) (*Reservation, *subscription.Subscription) {
	t.Helper()
	ctx := context.Background()

	sub, err := subManager.Create(ctx, subscription.CreateOption{
		PetID:      "pet-1",
		StartDate:  time.Now().AddDate(0, 0, -7),
		EndDate:    time.Now().AddDate(0, 0, 7),
		TotalUnits: totalUnits,
		Actor:      "owner@example.com",
	})
	if err != nil {
		t.Fatalf("seeding subscription: %v", err)
	}
	if err := subManager.ReserveUsage(ctx, sub.ID, 1, "owner@example.com"); err != nil {
		t.Fatalf("placing hold: %v", err)
	}

	resv := &Reservation{
		ID:              shortuuid.New(),
		PetID:           "pet-1",
		CustomerID:      "cust-1",
		SubscriptionID:  sub.ID,
		UseSubscription: true,
		DeductionUnits:  1,
		Status:          StatusPending,
		ServiceIDs:      "svc-bath",
		ScheduledAt:     time.Now().AddDate(0, 0, 1),
		CreatedBy:       "owner@example.com",
		UpdatedBy:       "owner@example.com",
	}
	if err := m.Create(ctx, resv); err != nil {
		t.Fatalf("creating reservation: %v", err)
	}
	return resv, sub
}

func TestTransitionCompleteConsumesHoldOnce(t *testing.T) {
	m, subManager := testManagers(t)
	ctx := context.Background()
	resv, sub := bookVisit(t, m, subManager, 5)

	result, err := m.Transition(ctx, resv.ID, StatusCompleted, "groomer@example.com")
	if err != nil {
		t.Fatalf("transition to Completed: %v", err)
	}
	if result.NoOp {
		t.Fatal("first transition reported as no-op")
	}
	if result.Reservation.Status != StatusCompleted || result.Reservation.PreviousStatus != StatusPending {
		t.Fatalf("status = %s (prev %s), expected Completed from Pending",
			result.Reservation.Status, result.Reservation.PreviousStatus)
	}

	got, _ := subManager.GetByID(ctx, sub.ID)
	if got.UsedUnits != 1 || got.ReservedUnits != 0 {
		t.Fatalf("after complete: used=%d reserved=%d, expected 1/0", got.UsedUnits, got.ReservedUnits)
	}

	// Completing again is a no-op and must not consume a second unit
	result, err = m.Transition(ctx, resv.ID, StatusCompleted, "groomer@example.com")
	if err != nil {
		t.Fatalf("repeat transition: %v", err)
	}
	if !result.NoOp {
		t.Fatal("repeat transition not reported as no-op")
	}
	got, _ = subManager.GetByID(ctx, sub.ID)
	if got.UsedUnits != 1 || got.ReservedUnits != 0 {
		t.Fatalf("after repeat: used=%d reserved=%d, ledger effect fired twice", got.UsedUnits, got.ReservedUnits)
	}
}

func TestTransitionCancelReturnsHold(t *testing.T) {
	m, subManager := testManagers(t)
	ctx := context.Background()
	resv, sub := bookVisit(t, m, subManager, 5)

	if _, err := m.Transition(ctx, resv.ID, StatusCancelled, "owner@example.com"); err != nil {
		t.Fatalf("transition to Cancelled: %v", err)
	}
	got, _ := subManager.GetByID(ctx, sub.ID)
	if got.UsedUnits != 0 || got.ReservedUnits != 0 {
		t.Fatalf("after cancel: used=%d reserved=%d, expected hold returned", got.UsedUnits, got.ReservedUnits)
	}
	if got.Remaining() != 5 {
		t.Fatalf("remaining = %d, expected full capacity back", got.Remaining())
	}

	// Cancelling again is a no-op and must not release a second time
	result, err := m.Transition(ctx, resv.ID, StatusCancelled, "owner@example.com")
	if err != nil {
		t.Fatalf("repeat cancel: %v", err)
	}
	if !result.NoOp {
		t.Fatal("repeat cancel not reported as no-op")
	}
	got, _ = subManager.GetByID(ctx, sub.ID)
	if got.UsedUnits != 0 || got.ReservedUnits != 0 || got.Remaining() != 5 {
		t.Fatalf("after repeat cancel: used=%d reserved=%d, ledger effect fired twice",
			got.UsedUnits, got.ReservedUnits)
	}
}

func TestTransitionNoShowReturnsHold(t *testing.T) {
	m, subManager := testManagers(t)
	ctx := context.Background()
	resv, sub := bookVisit(t, m, subManager, 5)

	if _, err := m.Transition(ctx, resv.ID, StatusConfirmed, "groomer@example.com"); err != nil {
		t.Fatalf("transition to Confirmed: %v", err)
	}
	got, _ := subManager.GetByID(ctx, sub.ID)
	if got.ReservedUnits != 1 {
		t.Fatalf("Confirmed changed the ledger: reserved=%d, expected hold untouched", got.ReservedUnits)
	}

	if _, err := m.Transition(ctx, resv.ID, StatusNoShow, "groomer@example.com"); err != nil {
		t.Fatalf("transition to NoShow: %v", err)
	}
	got, _ = subManager.GetByID(ctx, sub.ID)
	if got.UsedUnits != 0 || got.ReservedUnits != 0 {
		t.Fatalf("after no-show: used=%d reserved=%d, expected hold returned", got.UsedUnits, got.ReservedUnits)
	}
}

func TestTransitionRejectsInvalidEdges(t *testing.T) {
	m, subManager := testManagers(t)
	ctx := context.Background()
	resv, _ := bookVisit(t, m, subManager, 5)

	if _, err := m.Transition(ctx, resv.ID, "Bogus", "a@example.com"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("unknown status: err = %v, expected ErrInvalidTransition", err)
	}

	if _, err := m.Transition(ctx, resv.ID, StatusCompleted, "a@example.com"); err != nil {
		t.Fatalf("transition to Completed: %v", err)
	}
	if _, err := m.Transition(ctx, resv.ID, StatusCancelled, "a@example.com"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("transition out of terminal: err = %v, expected ErrInvalidTransition", err)
	}

	if _, err := m.Transition(ctx, "no-such-id", StatusCancelled, "a@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("transition on missing reservation: err = %v, expected ErrNotFound", err)
	}
}

// hookLedger lets a test interleave a competing write between Delete's status
// read and its row delete
type hookLedger struct {
	*subscription.Manager
	onReleaseTx func(tx *gorm.DB)
}

func (h *hookLedger) ReleaseUsageTx(tx *gorm.DB, id string, units int, actor string) error {
	if h.onReleaseTx != nil {
		h.onReleaseTx(tx)
	}
	return h.Manager.ReleaseUsageTx(tx, id, units, actor)
}

func TestDeleteConflictRollsBackRelease(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("getting database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	subManager, err := subscription.NewManager(zap.NewNop(), db)
	if err != nil {
		t.Fatalf("initializing subscription manager: %v", err)
	}
	hooked := &hookLedger{Manager: subManager}
	m, err := NewManager(zap.NewNop(), db, hooked)
	if err != nil {
		t.Fatalf("initializing reservation manager: %v", err)
	}

	ctx := context.Background()
	resv, sub := bookVisit(t, m, subManager, 5)

	// A competitor cancels the reservation after Delete has read Pending but
	// before its row delete runs; the guarded delete must then match nothing
	// and take the duplicate release down with the rollback
	hooked.onReleaseTx = func(tx *gorm.DB) {
		tx.Model(&Reservation{}).
			Where("id = ?", resv.ID).
			Update("status", StatusCancelled)
	}

	if err := m.Delete(ctx, resv.ID, "owner@example.com"); !errors.Is(err, ErrConflict) {
		t.Fatalf("delete under concurrent transition: err = %v, expected ErrConflict", err)
	}

	still, err := m.GetByID(ctx, resv.ID)
	if err != nil || still == nil {
		t.Fatalf("reservation gone after conflicted delete: %+v, %v", still, err)
	}
	got, _ := subManager.GetByID(ctx, sub.ID)
	if got.ReservedUnits != 1 {
		t.Fatalf("reserved = %d, expected the hold untouched after rollback", got.ReservedUnits)
	}
}

func TestDeleteReleasesOpenHold(t *testing.T) {
	m, subManager := testManagers(t)
	ctx := context.Background()
	resv, sub := bookVisit(t, m, subManager, 5)

	if err := m.Delete(ctx, resv.ID, "owner@example.com"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	gone, err := m.GetByID(ctx, resv.ID)
	if err != nil || gone != nil {
		t.Fatalf("reservation still present after delete: %+v, %v", gone, err)
	}
	got, _ := subManager.GetByID(ctx, sub.ID)
	if got.ReservedUnits != 0 {
		t.Fatalf("reserved = %d, expected hold returned on delete", got.ReservedUnits)
	}
}

func TestDeleteTerminalDoesNotTouchLedger(t *testing.T) {
	m, subManager := testManagers(t)
	ctx := context.Background()
	resv, sub := bookVisit(t, m, subManager, 5)

	if _, err := m.Transition(ctx, resv.ID, StatusCompleted, "a@example.com"); err != nil {
		t.Fatalf("transition to Completed: %v", err)
	}
	if err := m.Delete(ctx, resv.ID, "a@example.com"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, _ := subManager.GetByID(ctx, sub.ID)
	if got.UsedUnits != 1 || got.ReservedUnits != 0 {
		t.Fatalf("deleting a completed visit changed the ledger: used=%d reserved=%d",
			got.UsedUnits, got.ReservedUnits)
	}
}

func TestListFilters(t *testing.T) {
	m, subManager := testManagers(t)
	ctx := context.Background()
	resv, _ := bookVisit(t, m, subManager, 5)

	results, err := m.List(ctx, ListOption{CustomerID: "cust-1"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != 1 || results[0].ID != resv.ID {
		t.Fatalf("list returned %d rows, expected the one booked visit", len(results))
	}

	results, err = m.List(ctx, ListOption{CustomerID: "someone-else"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("list leaked %d rows across customers", len(results))
	}

	results, err = m.List(ctx, ListOption{
		CustomerID: "cust-1",
		Before:     time.Now().AddDate(0, 0, -1),
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("before filter ignored, got %d rows", len(results))
	}
}
