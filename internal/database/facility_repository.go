// internal/database/facility_repository.go
package database

import (
	"context"
	"fmt"
	"time"

	"parknet-api-server/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// FacilityRepository keeps facility metadata and slot layout. Live slot state
// is never written here.
type FacilityRepository struct {
	coll *mongo.Collection
}

func NewFacilityRepository(db *mongo.Database) *FacilityRepository {
	return &FacilityRepository{coll: db.Collection(FacilitiesCollection)}
}

// Save upserts f by facilityID.
func (r *FacilityRepository) Save(ctx context.Context, f models.Facility) error {
	now := time.Now().UTC()
	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"facilityID": f.FacilityID},
		bson.M{
			"$set": bson.M{
				"name":        f.Name,
				"address":     f.Address,
				"rating":      f.Rating,
				"imageURL":    f.ImageURL,
				"slotNumbers": f.SlotNumbers,
				"updatedAt":   now,
			},
			"$setOnInsert": bson.M{"createdAt": createdAt},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("save facility %q: %w", f.FacilityID, err)
	}
	return nil
}

// All returns every stored facility ordered by facilityID.
func (r *FacilityRepository) All(ctx context.Context) ([]models.Facility, error) {
	cursor, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "facilityID", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("query facilities: %w", err)
	}
	defer cursor.Close(ctx)

	var facilities []models.Facility
	if err := cursor.All(ctx, &facilities); err != nil {
		return nil, fmt.Errorf("decode facilities: %w", err)
	}
	return facilities, nil
}

func (r *FacilityRepository) Count(ctx context.Context) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{})
}
