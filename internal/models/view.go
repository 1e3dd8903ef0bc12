// internal/models/view.go
package models

import "time"

type StateCounts struct {
	Free     int `json:"free"`
	Reserved int `json:"reserved"`
	Occupied int `json:"occupied"`
	Total    int `json:"total"`
}

// FacilityView is the presentation projection of a facility and its live slots.
type FacilityView struct {
	FacilityID       string      `json:"facilityID"`
	Name             string      `json:"name"`
	Address          Address     `json:"address"`
	Rating           float64     `json:"rating"`
	ImageURL         string      `json:"imageURL,omitempty"`
	Counts           StateCounts `json:"counts"`
	OccupancyRate    float64     `json:"occupancyRate"`
	AvailabilityRate float64     `json:"availabilityRate"`
	Slots            []Slot      `json:"slots"`
	GeneratedAt      time.Time   `json:"generatedAt"`
}
