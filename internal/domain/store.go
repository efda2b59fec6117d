package domain

import "time"

// Store is a physical marketplace location. ExternalID is the
// marketplace-assigned identifier and is unique across the marketplace.
// Stores are created or updated when observed; never deleted.
type Store struct {
	ExternalID string
	Name       string
	Address    string
	Region     string // region key the store was discovered under
	Latitude   float64
	Longitude  float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
