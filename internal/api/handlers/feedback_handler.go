// internal/api/handlers/feedback_handler.go
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"parknet-api-server/internal/models"
	"parknet-api-server/internal/parking"

	"github.com/gin-gonic/gin"
)

// FeedbackStore is the record store behind the contact form.
type FeedbackStore interface {
	Create(ctx context.Context, f *models.Feedback) error
	List(ctx context.Context) ([]models.Feedback, error)
	Get(ctx context.Context, id string) (models.Feedback, error)
	Update(ctx context.Context, id string, patch models.FeedbackPatch) (models.Feedback, error)
	Delete(ctx context.Context, id string) error
}

type FeedbackHandler struct {
	Store FeedbackStore
}

type FeedbackRequest struct {
	Name    string `json:"name" binding:"required,max=100"`
	Email   string `json:"email" binding:"required,email"`
	Message string `json:"message" binding:"required,max=1000"`
}

func (r FeedbackRequest) normalize() models.Feedback {
	return models.Feedback{
		Name:    strings.TrimSpace(r.Name),
		Email:   strings.ToLower(strings.TrimSpace(r.Email)),
		Message: strings.TrimSpace(r.Message),
	}
}

type FeedbackUpdateRequest struct {
	Name    *string `json:"name" binding:"omitempty,max=100"`
	Email   *string `json:"email" binding:"omitempty,email"`
	Message *string `json:"message" binding:"omitempty,max=1000"`
}

func (r FeedbackUpdateRequest) patch() (models.FeedbackPatch, error) {
	var p models.FeedbackPatch
	var err error
	if p.Name, err = trimmed("name", r.Name); err != nil {
		return p, err
	}
	if p.Email, err = trimmed("email", r.Email); err != nil {
		return p, err
	}
	if p.Email != nil {
		lower := strings.ToLower(*p.Email)
		p.Email = &lower
	}
	if p.Message, err = trimmed("message", r.Message); err != nil {
		return p, err
	}
	if p.Empty() {
		return p, fmt.Errorf("one of name, email or message is required: %w", parking.ErrInvalidArgument)
	}
	return p, nil
}

func trimmed(field string, v *string) (*string, error) {
	if v == nil {
		return nil, nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil, fmt.Errorf("%s must not be empty: %w", field, parking.ErrInvalidArgument)
	}
	return &s, nil
}

// CreateFeedback is the public contact form endpoint.
func (h *FeedbackHandler) CreateFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	fb := req.normalize()
	if err := h.Store.Create(c.Request.Context(), &fb); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Feedback submitted successfully", "data": fb})
}

// GetAllFeedbacks lists feedback newest first.
func (h *FeedbackHandler) GetAllFeedbacks(c *gin.Context) {
	list, err := h.Store.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if list == nil {
		list = []models.Feedback{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *FeedbackHandler) GetFeedbackByID(c *gin.Context) {
	fb, err := h.Store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, fb)
}

// UpdateFeedback changes only the fields present in the body.
func (h *FeedbackHandler) UpdateFeedback(c *gin.Context) {
	var req FeedbackUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		badRequest(c, err)
		return
	}
	fb, err := h.Store.Update(c.Request.Context(), c.Param("id"), patch)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, fb)
}

func (h *FeedbackHandler) DeleteFeedback(c *gin.Context) {
	if err := h.Store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Feedback deleted successfully"})
}
