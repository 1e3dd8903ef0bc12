// internal/models/common.go
package models

// Address is the structured location of a facility, shown by the map widget.
type Address struct {
	FullText  string  `bson:"fullText" json:"fullText"`
	Latitude  float64 `bson:"latitude" json:"latitude"`
	Longitude float64 `bson:"longitude" json:"longitude"`
}
