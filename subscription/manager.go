package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v3"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manager handles the database operations relating to Subscriptions,
// including the usage ledger (see ledger.go)
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for subscriptions
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if db == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if err := db.AutoMigrate(&Subscription{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize subscription.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// CreateOption describes a new package purchase
type CreateOption struct {
	PetID      string
	StartDate  time.Time
	EndDate    time.Time
	TotalUnits int // 0 means unlimited
	PriceCents int64
	Notes      string
	Actor      string
}

func (o *CreateOption) validate() error {
	if len(o.PetID) == 0 {
		return fmt.Errorf("empty PetID is invalid")
	}
	if o.TotalUnits < 0 {
		return fmt.Errorf("negative TotalUnits is invalid")
	}
	if o.StartDate.IsZero() || o.EndDate.IsZero() {
		return fmt.Errorf("StartDate and EndDate are required")
	}
	if DateOnly(o.EndDate).Before(DateOnly(o.StartDate)) {
		return fmt.Errorf("EndDate cannot be before StartDate")
	}
	if o.PriceCents < 0 {
		return fmt.Errorf("negative PriceCents is invalid")
	}
	return nil
}

// Create persists a new subscription with an empty ledger
func (m *Manager) Create(ctx context.Context, opt CreateOption) (*Subscription, error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	sub := &Subscription{
		ID:         shortuuid.New(),
		PetID:      opt.PetID,
		StartDate:  DateOnly(opt.StartDate),
		EndDate:    DateOnly(opt.EndDate),
		TotalUnits: opt.TotalUnits,
		PriceCents: opt.PriceCents,
		Notes:      opt.Notes,
		CreatedBy:  opt.Actor,
		UpdatedBy:  opt.Actor,
	}
	result := m.db.WithContext(ctx).Create(sub)
	if result.Error != nil {
		m.logger.Error("Unable to create new subscription in database",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot create subscription")
	}
	return sub, nil
}

// GetByID will try to return the subscription in the database by id
func (m *Manager) GetByID(ctx context.Context, id string) (*Subscription, error) {
	var sub Subscription

	result := m.db.WithContext(ctx).First(&sub, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get subscription by id")
	}

	return &sub, nil
}

// ListOption filters the subscriptions to return
type ListOption struct {
	PetID string
	Limit int
}

// List returns the subscriptions belonging to a pet, most recent purchase first
func (m *Manager) List(ctx context.Context, opt ListOption) ([]Subscription, error) {
	if len(opt.PetID) == 0 {
		return nil, fmt.Errorf("ListOption.PetID is required")
	}
	baseQuery := m.db.WithContext(ctx).Order("created_at desc").Where("pet_id = ?", opt.PetID)
	if opt.Limit > 0 {
		baseQuery = baseQuery.Limit(opt.Limit)
	}

	results := make([]Subscription, 0, 1)
	result := baseQuery.Find(&results)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}

// GetActiveForPet returns a subscription of the pet whose validity window
// contains onDate and which still has remaining units, or nil if none.
// When multiple qualify, the soonest-expiring one wins so that the scarcer
// package is consumed first.
func (m *Manager) GetActiveForPet(ctx context.Context, petID string, onDate time.Time) (*Subscription, error) {
	if len(petID) == 0 {
		return nil, fmt.Errorf("empty PetID is invalid")
	}
	day := DateOnly(onDate)

	subs := make([]Subscription, 0, 1)
	result := m.db.WithContext(ctx).
		Where("pet_id = ?", petID).
		Where("start_date <= ? AND ? <= end_date", day, day).
		Order("end_date asc, id asc").
		Find(&subs)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot look up active subscription")
	}

	for i := range subs {
		if subs[i].Remaining() > 0 {
			return &subs[i], nil
		}
	}
	return nil, nil
}
