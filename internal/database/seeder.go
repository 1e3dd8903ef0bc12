// internal/database/seeder.go
package database

import (
	"context"
	"fmt"

	"parknet-api-server/internal/models"

	"go.uber.org/zap"
)

// DefaultFacility is the car park every fresh install starts with.
func DefaultFacility() models.Facility {
	return models.Facility{
		FacilityID:  "maharagama",
		Name:        "Maharagama Car Park",
		Address:     models.Address{FullText: "High Level Road, Maharagama", Latitude: 6.8480, Longitude: 79.9265},
		Rating:      4.6,
		ImageURL:    "https://images.unsplash.com/photo-1651346863911-d2d8050eea02?w=900&auto=format&fit=crop&q=60",
		SlotNumbers: []int{1, 2, 3, 4, 5},
	}
}

type facilitySeedStore interface {
	Count(ctx context.Context) (int64, error)
	Save(ctx context.Context, f models.Facility) error
}

// SeedFacilities writes the default facility plus extra when the collection is
// empty. It returns the number of facilities seeded.
func SeedFacilities(ctx context.Context, store facilitySeedStore, extra []models.Facility, logger *zap.Logger) (int, error) {
	count, err := store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count facilities: %w", err)
	}
	if count > 0 {
		logger.Info("facilities already present, seeding skipped", zap.Int64("count", count))
		return 0, nil
	}

	seeds := append([]models.Facility{DefaultFacility()}, extra...)
	seen := make(map[string]struct{}, len(seeds))
	seeded := 0
	for _, f := range seeds {
		if _, dup := seen[f.FacilityID]; dup || f.FacilityID == "" {
			continue
		}
		seen[f.FacilityID] = struct{}{}
		if err := store.Save(ctx, f); err != nil {
			return seeded, err
		}
		seeded++
	}
	logger.Info("facilities seeded", zap.Int("count", seeded))
	return seeded, nil
}
