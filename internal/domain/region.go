// Package domain defines the core types shared across the deal pipeline.
package domain

// Region is a configured geographic polling target.
// Regions are immutable configuration loaded at startup.
type Region struct {
	Key          string  // stable identifier, e.g. "calgary"
	Name         string  // display label, e.g. "Calgary"
	Latitude     float64 // search center
	Longitude    float64
	RadiusMeters int // search radius
	StoreLimit   int // max stores per fetch
}
