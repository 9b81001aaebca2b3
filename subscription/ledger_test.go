package subscription

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testManager(t *testing.T) *Manager {
	t.Helper()

	name := strings.NewReplacer("/", "_", "=", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
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
	// sqlite serializes writers anyway; a single connection keeps the
	// in-memory database alive for the whole test
	sqlDB.SetMaxOpenConns(1)

	m, err := NewManager(zap.NewNop(), db)
	if err != nil {
		t.Fatalf("initializing manager: %v", err)
	}
	return m
}

func seedSubscription(t *testing.T, m *Manager, totalUnits int, start, end time.Time) *Subscription {
	t.Helper()
	sub, err := m.Create(context.Background(), CreateOption{
		PetID:      "pet-1",
		StartDate:  start,
		EndDate:    end,
		TotalUnits: totalUnits,
		Actor:      "seed@example.com",
	})
	if err != nil {
		t.Fatalf("seeding subscription: %v", err)
	}
	return sub
}

func activeWindow() (time.Time, time.Time) {
	now := time.Now()
	return now.AddDate(0, 0, -7), now.AddDate(0, 0, 7)
}

func TestReserveConfirmRoundTrip(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	start, end := activeWindow()
	sub := seedSubscription(t, m, 10, start, end)

	if err := m.ReserveUsage(ctx, sub.ID, 2, "groomer@example.com"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	got, _ := m.GetByID(ctx, sub.ID)
	if got.ReservedUnits != 2 || got.UsedUnits != 0 {
		t.Fatalf("after reserve: used=%d reserved=%d, expected 0/2", got.UsedUnits, got.ReservedUnits)
	}

	if err := m.ConfirmUsage(ctx, sub.ID, 2, "groomer@example.com"); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	got, _ = m.GetByID(ctx, sub.ID)
	if got.ReservedUnits != 0 || got.UsedUnits != 2 {
		t.Fatalf("after confirm: used=%d reserved=%d, expected 2/0", got.UsedUnits, got.ReservedUnits)
	}
	if got.Remaining() != 8 {
		t.Fatalf("remaining = %d, expected 8", got.Remaining())
	}
	if got.UpdatedBy != "groomer@example.com" {
		t.Fatalf("UpdatedBy = %q, expected actor to be recorded", got.UpdatedBy)
	}
}

func TestReserveReleaseRoundTrip(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	start, end := activeWindow()
	sub := seedSubscription(t, m, 3, start, end)

	if err := m.ReserveUsage(ctx, sub.ID, 3, "a@example.com"); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := m.ReserveUsage(ctx, sub.ID, 1, "a@example.com"); !errors.Is(err, ErrNoCapacity) {
		t.Fatalf("reserve beyond capacity: err = %v, expected ErrNoCapacity", err)
	}
	if err := m.ReleaseUsage(ctx, sub.ID, 3, "a@example.com"); err != nil {
		t.Fatalf("release: %v", err)
	}
	got, _ := m.GetByID(ctx, sub.ID)
	if got.Remaining() != 3 {
		t.Fatalf("remaining = %d, expected full capacity back", got.Remaining())
	}
}

func TestReserveRejectsOutsideWindow(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	expired := seedSubscription(t, m, 10,
		time.Now().AddDate(0, -2, 0),
		time.Now().AddDate(0, -1, 0),
	)
	future := seedSubscription(t, m, 10,
		time.Now().AddDate(0, 1, 0),
		time.Now().AddDate(0, 2, 0),
	)

	if err := m.ReserveUsage(ctx, expired.ID, 1, "a@example.com"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("reserve on expired: err = %v, expected ErrNotActive", err)
	}
	if err := m.ReserveUsage(ctx, future.ID, 1, "a@example.com"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("reserve on not-yet-started: err = %v, expected ErrNotActive", err)
	}
}

func TestSettlePastExpiry(t *testing.T) {
	// A hold placed before expiry must still be able to settle after it:
	// confirm and release do not re-check the validity window
	m := testManager(t)
	ctx := context.Background()
	sub := seedSubscription(t, m, 10,
		time.Now().AddDate(0, -2, 0),
		time.Now().AddDate(0, -1, 0),
	)

	res := m.db.Model(&Subscription{}).
		Where("id = ?", sub.ID).
		Update("reserved_units", 2)
	if res.Error != nil {
		t.Fatalf("seeding hold: %v", res.Error)
	}

	if err := m.ConfirmUsage(ctx, sub.ID, 1, "a@example.com"); err != nil {
		t.Fatalf("confirm past expiry: %v", err)
	}
	if err := m.ReleaseUsage(ctx, sub.ID, 1, "a@example.com"); err != nil {
		t.Fatalf("release past expiry: %v", err)
	}
	got, _ := m.GetByID(ctx, sub.ID)
	if got.UsedUnits != 1 || got.ReservedUnits != 0 {
		t.Fatalf("after settle: used=%d reserved=%d, expected 1/0", got.UsedUnits, got.ReservedUnits)
	}
}

func TestUnlimitedNeverRejects(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	start, end := activeWindow()
	sub := seedSubscription(t, m, 0, start, end)

	for i := 0; i < 50; i++ {
		if err := m.ReserveUsage(ctx, sub.ID, 1, "a@example.com"); err != nil {
			t.Fatalf("reserve %d on unlimited: %v", i, err)
		}
	}
	got, _ := m.GetByID(ctx, sub.ID)
	if got.ReservedUnits != 50 {
		t.Fatalf("reserved = %d, expected 50", got.ReservedUnits)
	}
	if got.Remaining() != UnlimitedUnits {
		t.Fatalf("remaining = %d, expected saturation", got.Remaining())
	}
}

func TestLedgerRejectsBadInput(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	start, end := activeWindow()
	sub := seedSubscription(t, m, 10, start, end)

	for _, units := range []int{0, -1} {
		if err := m.ReserveUsage(ctx, sub.ID, units, "a@example.com"); !errors.Is(err, ErrInvalidCount) {
			t.Errorf("ReserveUsage(%d): err = %v, expected ErrInvalidCount", units, err)
		}
		if err := m.ConfirmUsage(ctx, sub.ID, units, "a@example.com"); !errors.Is(err, ErrInvalidCount) {
			t.Errorf("ConfirmUsage(%d): err = %v, expected ErrInvalidCount", units, err)
		}
		if err := m.ReleaseUsage(ctx, sub.ID, units, "a@example.com"); !errors.Is(err, ErrInvalidCount) {
			t.Errorf("ReleaseUsage(%d): err = %v, expected ErrInvalidCount", units, err)
		}
	}

	if err := m.ReserveUsage(ctx, "no-such-id", 1, "a@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("reserve on missing subscription: err = %v, expected ErrNotFound", err)
	}
}

func TestLedgerInvariantUnderRandomSequences(t *testing.T) {
	// The counters must satisfy 0 <= used, 0 <= reserved and
	// used + reserved <= total after every operation, whatever the sequence
	rng := rand.New(rand.NewSource(42))

	for _, total := range []int{1, 3, 10} {
		total := total
		t.Run(fmt.Sprintf("total=%d", total), func(t *testing.T) {
			m := testManager(t)
			ctx := context.Background()
			start, end := activeWindow()
			sub := seedSubscription(t, m, total, start, end)

			held := 0
			for i := 0; i < 200; i++ {
				switch rng.Intn(3) {
				case 0:
					units := rng.Intn(3) + 1
					err := m.ReserveUsage(ctx, sub.ID, units, "fuzz@example.com")
					if err == nil {
						held += units
					} else if !errors.Is(err, ErrNoCapacity) {
						t.Fatalf("op %d: reserve %d: %v", i, units, err)
					}
				case 1:
					if held == 0 {
						continue
					}
					units := rng.Intn(held) + 1
					if err := m.ConfirmUsage(ctx, sub.ID, units, "fuzz@example.com"); err != nil {
						t.Fatalf("op %d: confirm %d of %d held: %v", i, units, held, err)
					}
					held -= units
				case 2:
					if held == 0 {
						continue
					}
					units := rng.Intn(held) + 1
					if err := m.ReleaseUsage(ctx, sub.ID, units, "fuzz@example.com"); err != nil {
						t.Fatalf("op %d: release %d of %d held: %v", i, units, held, err)
					}
					held -= units
				}

				got, err := m.GetByID(ctx, sub.ID)
				if err != nil {
					t.Fatalf("op %d: read back: %v", i, err)
				}
				if got.UsedUnits < 0 || got.ReservedUnits < 0 {
					t.Fatalf("op %d: negative counter: used=%d reserved=%d",
						i, got.UsedUnits, got.ReservedUnits)
				}
				if got.UsedUnits+got.ReservedUnits > total {
					t.Fatalf("op %d: oversold: used=%d reserved=%d total=%d",
						i, got.UsedUnits, got.ReservedUnits, total)
				}
				if got.ReservedUnits != held {
					t.Fatalf("op %d: reserved=%d, expected %d outstanding holds",
						i, got.ReservedUnits, held)
				}
			}
		})
	}
}

func TestConcurrentReserveNeverOversells(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	start, end := activeWindow()

	const capacity = 5
	const competitors = 20
	sub := seedSubscription(t, m, capacity, start, end)

	var wg sync.WaitGroup
	results := make(chan error, competitors)
	for i := 0; i < competitors; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- m.ReserveUsage(ctx, sub.ID, 1, "race@example.com")
		}()
	}
	wg.Wait()
	close(results)

	var won, lost int
	for err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrNoCapacity):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if won != capacity {
		t.Errorf("winners = %d, expected exactly %d", won, capacity)
	}
	if lost != competitors-capacity {
		t.Errorf("losers = %d, expected %d", lost, competitors-capacity)
	}

	got, _ := m.GetByID(ctx, sub.ID)
	if got.UsedUnits+got.ReservedUnits > got.TotalUnits {
		t.Fatalf("oversold: used=%d reserved=%d total=%d",
			got.UsedUnits, got.ReservedUnits, got.TotalUnits)
	}
}
