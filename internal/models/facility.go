// internal/models/facility.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Facility struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	FacilityID  string             `bson:"facilityID" json:"facilityID"` // e.g. "maharagama"
	Name        string             `bson:"name" json:"name"`             // e.g. "Maharagama Car Park"
	Address     Address            `bson:"address" json:"address"`
	Rating      float64            `bson:"rating" json:"rating"`
	ImageURL    string             `bson:"imageURL,omitempty" json:"imageURL,omitempty"`
	SlotNumbers []int              `bson:"slotNumbers" json:"slotNumbers"`
	// Slots is live state, filled in from the registry and never persisted.
	Slots     []Slot    `bson:"-" json:"slots,omitempty"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
