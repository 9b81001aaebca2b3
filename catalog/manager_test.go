package catalog

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func testManager(t *testing.T) *Manager {
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

	m, err := NewManager(zap.NewNop(), db)
	if err != nil {
		t.Fatalf("initializing manager: %v", err)
	}
	return m
}

func seedService(t *testing.T, m *Manager, name string, priceCents int64, durationMinutes int) *GroomService {
	t.Helper()
	svc := &GroomService{
		Name:            name,
		PriceCents:      priceCents,
		DurationMinutes: durationMinutes,
		Active:          true,
	}
	if err := m.CreateService(context.Background(), svc); err != nil {
		t.Fatalf("seeding service: %v", err)
	}
	return svc
}

func TestEffectiveDefaults(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	svc := seedService(t, m, "Full Groom", 6500, 90)

	price, err := m.EffectivePrice(ctx, "pet-1", svc.ID)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if price != 6500 {
		t.Errorf("price = %d, expected the menu default", price)
	}

	duration, err := m.EffectiveDuration(ctx, "pet-1", svc.ID)
	if err != nil {
		t.Fatalf("duration: %v", err)
	}
	if duration != 90 {
		t.Errorf("duration = %d, expected the menu default", duration)
	}
}

func TestEffectiveWithOverride(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	svc := seedService(t, m, "Full Groom", 6500, 90)

	// long-haired breed: longer and pricier, but only for this pet
	price := int64(8000)
	duration := 120
	if err := m.SetOverride(ctx, &PetServiceOverride{
		PetID:           "fluffy",
		ServiceID:       svc.ID,
		PriceCents:      &price,
		DurationMinutes: &duration,
	}); err != nil {
		t.Fatalf("set override: %v", err)
	}

	gotPrice, err := m.EffectivePrice(ctx, "fluffy", svc.ID)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if gotPrice != 8000 {
		t.Errorf("price = %d, expected the override", gotPrice)
	}

	gotPrice, err = m.EffectivePrice(ctx, "other-pet", svc.ID)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if gotPrice != 6500 {
		t.Errorf("price for other pet = %d, override leaked", gotPrice)
	}
}

func TestPartialOverrideFallsBack(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	svc := seedService(t, m, "Bath", 3000, 45)

	duration := 60
	if err := m.SetOverride(ctx, &PetServiceOverride{
		PetID:           "fluffy",
		ServiceID:       svc.ID,
		DurationMinutes: &duration,
	}); err != nil {
		t.Fatalf("set override: %v", err)
	}

	gotPrice, err := m.EffectivePrice(ctx, "fluffy", svc.ID)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if gotPrice != 3000 {
		t.Errorf("price = %d, expected fallback to default when override price is nil", gotPrice)
	}

	gotDuration, err := m.EffectiveDuration(ctx, "fluffy", svc.ID)
	if err != nil {
		t.Fatalf("duration: %v", err)
	}
	if gotDuration != 60 {
		t.Errorf("duration = %d, expected the override", gotDuration)
	}
}

func TestSetOverrideUpserts(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()
	svc := seedService(t, m, "Nail Trim", 1500, 15)

	first := int64(2000)
	if err := m.SetOverride(ctx, &PetServiceOverride{
		PetID:      "fluffy",
		ServiceID:  svc.ID,
		PriceCents: &first,
	}); err != nil {
		t.Fatalf("first set: %v", err)
	}

	second := int64(2500)
	if err := m.SetOverride(ctx, &PetServiceOverride{
		PetID:      "fluffy",
		ServiceID:  svc.ID,
		PriceCents: &second,
	}); err != nil {
		t.Fatalf("second set: %v", err)
	}

	gotPrice, err := m.EffectivePrice(ctx, "fluffy", svc.ID)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if gotPrice != 2500 {
		t.Errorf("price = %d, expected the latest override", gotPrice)
	}
}

func TestEffectiveUnknownService(t *testing.T) {
	m := testManager(t)
	if _, err := m.EffectivePrice(context.Background(), "pet-1", "no-such-service"); err != ErrServiceNotFound {
		t.Errorf("err = %v, expected ErrServiceNotFound", err)
	}
}
