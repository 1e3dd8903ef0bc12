// internal/models/hold.go
package models

import "time"

// Hold is a time-bounded reservation of a free slot for one holder.
type Hold struct {
	ID         string    `json:"id"`
	FacilityID string    `json:"facilityID"`
	SlotNumber int       `json:"slotNumber"`
	HolderID   string    `json:"holderID"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Expired reports whether the hold has run out at now.
func (h Hold) Expired(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}

// HoldEndReason records why a hold stopped being active.
type HoldEndReason string

const (
	HoldReleased HoldEndReason = "released"
	HoldExpired  HoldEndReason = "expired"
	HoldArrived  HoldEndReason = "arrived"
)
