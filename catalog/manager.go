package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/lithammer/shortuuid/v3"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrServiceNotFound means no service exists on the menu with the given id
var ErrServiceNotFound = errors.New("service not found")

// Manager handles the database operations relating to the grooming menu
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for the service catalog
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if db == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if err := db.AutoMigrate(&GroomService{}, &PetServiceOverride{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize catalog.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// CreateService adds an offering to the grooming menu
func (m *Manager) CreateService(ctx context.Context, svc *GroomService) error {
	if len(svc.Name) == 0 {
		return fmt.Errorf("empty Name is invalid")
	}
	if svc.PriceCents < 0 {
		return fmt.Errorf("negative PriceCents is invalid")
	}
	if svc.DurationMinutes <= 0 {
		return fmt.Errorf("non-positive DurationMinutes is invalid")
	}
	if len(svc.ID) == 0 {
		svc.ID = shortuuid.New()
	}
	result := m.db.WithContext(ctx).Create(svc)
	if result.Error != nil {
		m.logger.Error("Unable to create new service in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create service")
	}
	return nil
}

// GetServiceByID will try to return the service in the database by id
func (m *Manager) GetServiceByID(ctx context.Context, id string) (*GroomService, error) {
	var svc GroomService

	result := m.db.WithContext(ctx).First(&svc, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get service by id")
	}

	return &svc, nil
}

// ListServices returns the active offerings on the menu
func (m *Manager) ListServices(ctx context.Context) ([]GroomService, error) {
	results := make([]GroomService, 0, 4)
	result := m.db.WithContext(ctx).
		Order("name asc").
		Find(&results, "active = ?", true)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}

// SetOverride upserts the per-pet customization of a service
func (m *Manager) SetOverride(ctx context.Context, o *PetServiceOverride) error {
	if len(o.PetID) == 0 {
		return fmt.Errorf("empty PetID is invalid")
	}
	if len(o.ServiceID) == 0 {
		return fmt.Errorf("empty ServiceID is invalid")
	}

	var existing PetServiceOverride
	result := m.db.WithContext(ctx).
		First(&existing, "pet_id = ? AND service_id = ?", o.PetID, o.ServiceID)
	if result.Error == nil {
		o.ID = existing.ID
		o.CreatedAt = existing.CreatedAt
		return m.db.WithContext(ctx).Save(o).Error
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return extErrors.Wrap(result.Error, "Cannot look up existing override")
	}

	o.ID = shortuuid.New()
	createRes := m.db.WithContext(ctx).Create(o)
	if createRes.Error != nil {
		m.logger.Error("Unable to create override in database",
			zap.Error(createRes.Error),
		)
		return extErrors.Wrap(createRes.Error, "Cannot create override")
	}
	return nil
}

func (m *Manager) getOverride(ctx context.Context, petID, serviceID string) (*PetServiceOverride, error) {
	var o PetServiceOverride
	result := m.db.WithContext(ctx).
		First(&o, "pet_id = ? AND service_id = ?", petID, serviceID)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		return nil, extErrors.Wrap(result.Error, "Cannot get override")
	}
	return &o, nil
}

// EffectivePrice returns the price in cents of a service for a pet,
// applying the per-pet override if one exists, else the service default
func (m *Manager) EffectivePrice(ctx context.Context, petID, serviceID string) (int64, error) {
	svc, err := m.GetServiceByID(ctx, serviceID)
	if err != nil {
		return 0, err
	}
	if svc == nil {
		return 0, ErrServiceNotFound
	}
	o, err := m.getOverride(ctx, petID, serviceID)
	if err != nil {
		return 0, err
	}
	if o != nil && o.PriceCents != nil {
		return *o.PriceCents, nil
	}
	return svc.PriceCents, nil
}

// EffectiveDuration returns the duration in minutes of a service for a pet,
// applying the per-pet override if one exists, else the service default
func (m *Manager) EffectiveDuration(ctx context.Context, petID, serviceID string) (int, error) {
	svc, err := m.GetServiceByID(ctx, serviceID)
	if err != nil {
		return 0, err
	}
	if svc == nil {
		return 0, ErrServiceNotFound
	}
	o, err := m.getOverride(ctx, petID, serviceID)
	if err != nil {
		return 0, err
	}
	if o != nil && o.DurationMinutes != nil {
		return *o.DurationMinutes, nil
	}
	return svc.DurationMinutes, nil
}
