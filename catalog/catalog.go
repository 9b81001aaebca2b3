package catalog

import "time"

// GroomService is an offering on the grooming menu, e.g. full groom or bath
type GroomService struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	PriceCents      int64     `json:"priceCents"`      // default price
	DurationMinutes int       `json:"durationMinutes"` // default duration
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// PetServiceOverride customizes price and/or duration of a service for one
// pet, e.g. a long-haired breed taking longer. Nil fields fall back to the
// service defaults.
type PetServiceOverride struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	PetID           string    `json:"petId" gorm:"index:idx_pet_service,unique"`
	ServiceID       string    `json:"serviceId" gorm:"index:idx_pet_service,unique"`
	PriceCents      *int64    `json:"priceCents"`
	DurationMinutes *int      `json:"durationMinutes"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
