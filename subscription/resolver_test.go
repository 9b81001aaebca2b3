package subscription

import (
	"context"
	"testing"
	"time"
)

func TestGetActiveForPetPicksSoonestExpiring(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	now := time.Now()

	longer := seedSubscription(t, m, 10, now.AddDate(0, 0, -7), now.AddDate(0, 2, 0))
	shorter := seedSubscription(t, m, 10, now.AddDate(0, 0, -7), now.AddDate(0, 1, 0))

	got, err := m.GetActiveForPet(ctx, "pet-1", now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got == nil {
		t.Fatal("resolve returned nil, expected a subscription")
	}
	if got.ID != shorter.ID {
		t.Errorf("resolved %s, expected the soonest-expiring %s (not %s)", got.ID, shorter.ID, longer.ID)
	}
}

func TestGetActiveForPetSkipsExhausted(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	now := time.Now()

	exhausted := seedSubscription(t, m, 2, now.AddDate(0, 0, -7), now.AddDate(0, 1, 0))
	spare := seedSubscription(t, m, 5, now.AddDate(0, 0, -7), now.AddDate(0, 2, 0))

	if err := m.ReserveUsage(ctx, exhausted.ID, 2, "a@example.com"); err != nil {
		t.Fatalf("exhausting first subscription: %v", err)
	}

	got, err := m.GetActiveForPet(ctx, "pet-1", now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got == nil || got.ID != spare.ID {
		t.Fatalf("resolve skipped to wrong subscription: got %+v, expected %s", got, spare.ID)
	}
}

func TestGetActiveForPetNoneEligible(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	now := time.Now()

	// expired
	seedSubscription(t, m, 10, now.AddDate(0, -2, 0), now.AddDate(0, -1, 0))

	got, err := m.GetActiveForPet(ctx, "pet-1", now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != nil {
		t.Fatalf("resolve returned %+v, expected nil when nothing is eligible", got)
	}

	got, err = m.GetActiveForPet(ctx, "pet-without-packages", now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != nil {
		t.Fatalf("resolve returned %+v for a pet with no packages", got)
	}
}

func TestGetActiveForPetHonorsDate(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	now := time.Now()

	future := seedSubscription(t, m, 10, now.AddDate(0, 1, 0), now.AddDate(0, 2, 0))

	got, err := m.GetActiveForPet(ctx, "pet-1", now)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != nil {
		t.Fatal("resolved a subscription whose window has not started")
	}

	got, err = m.GetActiveForPet(ctx, "pet-1", now.AddDate(0, 1, 7))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got == nil || got.ID != future.ID {
		t.Fatalf("resolve on a future date: got %+v, expected %s", got, future.ID)
	}
}
