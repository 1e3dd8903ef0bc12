// internal/models/snapshot.go
package models

import "time"

// Snapshot is a point-in-time copy of every slot state in a facility.
type Snapshot struct {
	FacilityID string            `json:"facilityID"`
	TakenAt    time.Time         `json:"takenAt"`
	Slots      map[int]SlotState `json:"slots"`
	Sequences  map[int]uint64    `json:"sequences"`
}

// Stale reports whether ev is already reflected in the snapshot.
func (s Snapshot) Stale(ev ChangeEvent) bool {
	return ev.Sequence <= s.Sequences[ev.SlotNumber]
}
