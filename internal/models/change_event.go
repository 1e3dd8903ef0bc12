// internal/models/change_event.go
package models

import "time"

// ChangeCause names what triggered a slot transition.
type ChangeCause string

const (
	CauseOccupancy ChangeCause = "occupancy"
	CauseHold      ChangeCause = "hold"
	CauseRelease   ChangeCause = "release"
	CauseExpiry    ChangeCause = "expiry"
	CauseArrival   ChangeCause = "arrival"
)

// ChangeEvent is an immutable record of one slot transition. Sequence is strictly
// increasing per (FacilityID, SlotNumber), so consumers can detect gaps.
type ChangeEvent struct {
	FacilityID    string      `json:"facilityID"`
	SlotNumber    int         `json:"slotNumber"`
	PreviousState SlotState   `json:"previousState"`
	NewState      SlotState   `json:"newState"`
	Timestamp     time.Time   `json:"timestamp"`
	Sequence      uint64      `json:"sequence"`
	Cause         ChangeCause `json:"cause,omitempty"`
}

// Changed is false for the no-op result of a write that matched the current state.
func (e ChangeEvent) Changed() bool {
	return e.PreviousState != e.NewState
}
