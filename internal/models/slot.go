// internal/models/slot.go
package models

// SlotState is the occupancy state of a single parking slot.
type SlotState string

const (
	SlotFree     SlotState = "free"
	SlotReserved SlotState = "reserved"
	SlotOccupied SlotState = "occupied"
)

// Valid reports whether s is one of the known states.
func (s SlotState) Valid() bool {
	switch s {
	case SlotFree, SlotReserved, SlotOccupied:
		return true
	}
	return false
}

// Occupied reports whether a car is physically parked in the slot.
func (s SlotState) Occupied() bool {
	return s == SlotOccupied
}

// Slot is one physical parking space, identified by number within its facility.
type Slot struct {
	FacilityID string    `json:"facilityID"`
	Number     int       `json:"number"`
	State      SlotState `json:"state"`
	// Sequence is the sequence of the last ChangeEvent emitted for this slot, 0 if none.
	Sequence uint64 `json:"sequence"`
}
