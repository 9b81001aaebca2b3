package pet

import (
	"context"
	"errors"
	"fmt"

	"github.com/lithammer/shortuuid/v3"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Manager handles the database operations relating to Pets
type Manager struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewManager returns a new Manager for pets
func NewManager(logger *zap.Logger, db *gorm.DB) (*Manager, error) {
	if logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if db == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if err := db.AutoMigrate(&Pet{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize pet.Manager")
	}
	return &Manager{
		db:     db,
		logger: logger,
	}, nil
}

// Create will persist a new pet profile
func (m *Manager) Create(ctx context.Context, p *Pet) error {
	if len(p.CustomerID) == 0 {
		return fmt.Errorf("empty CustomerID is invalid")
	}
	if len(p.Name) == 0 {
		return fmt.Errorf("empty Name is invalid")
	}
	if len(p.ID) == 0 {
		p.ID = shortuuid.New()
	}
	result := m.db.WithContext(ctx).Create(p)
	if result.Error != nil {
		m.logger.Error("Unable to create new pet in database",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot create pet")
	}
	return nil
}

// GetByID will try to return the pet in the database by id
func (m *Manager) GetByID(ctx context.Context, id string) (*Pet, error) {
	var p Pet

	result := m.db.WithContext(ctx).First(&p, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get pet by id")
	}

	return &p, nil
}

// List returns all pets belonging to a customer
func (m *Manager) List(ctx context.Context, customerID string) ([]Pet, error) {
	results := make([]Pet, 0, 1)
	result := m.db.WithContext(ctx).
		Order("created_at desc").
		Find(&results, "customer_id = ?", customerID)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}
	return results, nil
}

// Update saves the pet profile
func (m *Manager) Update(ctx context.Context, p *Pet) error {
	result := m.db.WithContext(ctx).Save(p)
	if result.Error != nil {
		m.logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return result.Error
	}
	return nil
}
