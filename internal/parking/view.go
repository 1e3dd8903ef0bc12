package parking

import (
	"time"

	"parknet-api-server/internal/models"
)

// ViewSource is the read side of the registry that views are built from.
type ViewSource interface {
	Facility(facilityID string) (models.Facility, error)
	Facilities() []models.Facility
}

// Render projects a facility's live slots into counts and rates.
func Render(src ViewSource, facilityID string) (models.FacilityView, error) {
	f, err := src.Facility(facilityID)
	if err != nil {
		return models.FacilityView{}, err
	}
	return project(f, time.Now().UTC()), nil
}

// RenderAll renders every facility ordered by id.
func RenderAll(src ViewSource) []models.FacilityView {
	now := time.Now().UTC()
	facilities := src.Facilities()
	out := make([]models.FacilityView, 0, len(facilities))
	for _, f := range facilities {
		out = append(out, project(f, now))
	}
	return out
}

func project(f models.Facility, now time.Time) models.FacilityView {
	v := models.FacilityView{
		FacilityID:  f.FacilityID,
		Name:        f.Name,
		Address:     f.Address,
		Rating:      f.Rating,
		ImageURL:    f.ImageURL,
		Slots:       f.Slots,
		GeneratedAt: now,
	}
	if v.Slots == nil {
		v.Slots = []models.Slot{}
	}
	for _, s := range f.Slots {
		switch s.State {
		case models.SlotFree:
			v.Counts.Free++
		case models.SlotReserved:
			v.Counts.Reserved++
		case models.SlotOccupied:
			v.Counts.Occupied++
		}
	}
	v.Counts.Total = v.Counts.Free + v.Counts.Reserved + v.Counts.Occupied
	if v.Counts.Total > 0 {
		v.OccupancyRate = float64(v.Counts.Occupied) / float64(v.Counts.Total)
		v.AvailabilityRate = float64(v.Counts.Free) / float64(v.Counts.Total)
	}
	return v
}
