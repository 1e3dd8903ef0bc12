// internal/models/feedback.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Feedback is a contact-form message.
type Feedback struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string             `bson:"name" json:"name"`
	Email     string             `bson:"email" json:"email"`
	Message   string             `bson:"message" json:"message"`
	CreatedAt time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// FeedbackPatch is a partial update. Nil fields keep their stored value.
type FeedbackPatch struct {
	Name    *string
	Email   *string
	Message *string
}

func (p FeedbackPatch) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Message == nil
}
