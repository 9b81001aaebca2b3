package pet

import "time"

// Pet describes a grooming client's pet
type Pet struct {
	ID         string     `json:"id" gorm:"primaryKey"`
	CustomerID string     `json:"customerId" gorm:"index"` // owning customer
	Name       string     `json:"name"`
	Species    string     `json:"species"` // e.g. dog, cat
	Breed      string     `json:"breed"`
	BirthDate  *time.Time `json:"birthDate"`
	Notes      string     `json:"notes"` // grooming notes, temperament, allergies
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}
