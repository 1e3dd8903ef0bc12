// internal/database/feedback_repository.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"parknet-api-server/internal/models"
	"parknet-api-server/internal/parking"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type FeedbackRepository struct {
	coll *mongo.Collection
}

func NewFeedbackRepository(db *mongo.Database) *FeedbackRepository {
	return &FeedbackRepository{coll: db.Collection(FeedbacksCollection)}
}

func (r *FeedbackRepository) Create(ctx context.Context, f *models.Feedback) error {
	now := time.Now().UTC()
	f.CreatedAt = now
	f.UpdatedAt = now
	result, err := r.coll.InsertOne(ctx, f)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		f.ID = oid
	}
	return nil
}

// List returns all feedback, newest first.
func (r *FeedbackRepository) List(ctx context.Context) ([]models.Feedback, error) {
	cursor, err := r.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("query feedbacks: %w", err)
	}
	defer cursor.Close(ctx)

	var out []models.Feedback
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode feedbacks: %w", err)
	}
	return out, nil
}

func (r *FeedbackRepository) Get(ctx context.Context, id string) (models.Feedback, error) {
	oid, err := objectID(id)
	if err != nil {
		return models.Feedback{}, err
	}
	var fb models.Feedback
	if err := r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&fb); err != nil {
		return models.Feedback{}, notFound(id, err)
	}
	return fb, nil
}

// Update sets only the fields present in patch.
func (r *FeedbackRepository) Update(ctx context.Context, id string, patch models.FeedbackPatch) (models.Feedback, error) {
	oid, err := objectID(id)
	if err != nil {
		return models.Feedback{}, err
	}
	if patch.Empty() {
		return models.Feedback{}, fmt.Errorf("feedback %q: nothing to update: %w", id, parking.ErrInvalidArgument)
	}
	var updated models.Feedback
	err = r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": feedbackSet(patch, time.Now().UTC())},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err != nil {
		return models.Feedback{}, notFound(id, err)
	}
	return updated, nil
}

func feedbackSet(patch models.FeedbackPatch, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Email != nil {
		set["email"] = *patch.Email
	}
	if patch.Message != nil {
		set["message"] = *patch.Message
	}
	return set
}

func (r *FeedbackRepository) Delete(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("delete feedback: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("feedback %q: %w", id, parking.ErrNotFound)
	}
	return nil
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("feedback id %q: %w", id, parking.ErrInvalidArgument)
	}
	return oid, nil
}

func notFound(id string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("feedback %q: %w", id, parking.ErrNotFound)
	}
	return err
}
