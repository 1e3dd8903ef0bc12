// internal/api/handlers/facility_handler.go
package handlers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"parknet-api-server/internal/models"
	"parknet-api-server/internal/parking"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FacilityStore persists facility metadata and slot layout.
type FacilityStore interface {
	Save(ctx context.Context, f models.Facility) error
}

// ImageUploader stores an image and returns its public URL.
type ImageUploader interface {
	UploadFile(ctx context.Context, file io.Reader, objectKey, contentType string) (string, error)
}

type FacilityHandler struct {
	Registry *parking.Registry
	Store    FacilityStore
	Uploader ImageUploader
	Logger   *zap.Logger
}

type AddressRequest struct {
	FullText  string  `json:"fullText" binding:"required"`
	Latitude  float64 `json:"latitude" binding:"min=-90,max=90"`
	Longitude float64 `json:"longitude" binding:"min=-180,max=180"`
}

type CreateFacilityRequest struct {
	FacilityID  string         `json:"facilityID" binding:"required"`
	Name        string         `json:"name" binding:"required"`
	Address     AddressRequest `json:"address" binding:"required"`
	Rating      float64        `json:"rating" binding:"min=0,max=5"`
	SlotNumbers []int          `json:"slotNumbers"`
}

type UpdateFacilityRequest struct {
	Name    string         `json:"name" binding:"required"`
	Address AddressRequest `json:"address" binding:"required"`
	Rating  float64        `json:"rating" binding:"min=0,max=5"`
}

type AddSlotsRequest struct {
	Numbers []int `json:"numbers" binding:"required,min=1"`
}

type OccupancyRequest struct {
	Occupied *bool `json:"occupied" binding:"required"`
}

// GetAllFacilities returns the dashboard view of every facility.
func (h *FacilityHandler) GetAllFacilities(c *gin.Context) {
	c.JSON(http.StatusOK, parking.RenderAll(h.Registry))
}

// GetFacilityByID returns one facility's live view.
func (h *FacilityHandler) GetFacilityByID(c *gin.Context) {
	view, err := parking.Render(h.Registry, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *FacilityHandler) GetSnapshot(c *gin.Context) {
	snap, err := h.Registry.Snapshot(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// CreateFacility provisions a facility in the registry and persists it.
func (h *FacilityHandler) CreateFacility(c *gin.Context) {
	var req CreateFacilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	now := time.Now().UTC()
	facility := models.Facility{
		FacilityID:  strings.TrimSpace(req.FacilityID),
		Name:        req.Name,
		Address:     toAddress(req.Address),
		Rating:      req.Rating,
		SlotNumbers: req.SlotNumbers,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.Registry.Provision(facility); err != nil {
		writeError(c, err)
		return
	}
	created, err := h.Registry.Facility(facility.FacilityID)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.Store.Save(c.Request.Context(), created); err != nil {
		h.Logger.Error("facility provisioned but not persisted", zap.String("facility", created.FacilityID), zap.Error(err))
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// UpdateFacility replaces a facility's descriptive fields.
func (h *FacilityHandler) UpdateFacility(c *gin.Context) {
	var req UpdateFacilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	updated, err := h.Registry.UpdateMetadata(models.Facility{
		FacilityID: c.Param("id"),
		Name:       req.Name,
		Address:    toAddress(req.Address),
		Rating:     req.Rating,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.Store.Save(c.Request.Context(), updated); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// AddSlots extends a facility's layout with new free slots.
func (h *FacilityHandler) AddSlots(c *gin.Context) {
	var req AddSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	facilityID := c.Param("id")
	if err := h.Registry.AddSlots(facilityID, req.Numbers...); err != nil {
		writeError(c, err)
		return
	}
	updated, err := h.Registry.Facility(facilityID)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.Store.Save(c.Request.Context(), updated); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// SetOccupancy is the ingestion endpoint used by admins and sensor bridges.
func (h *FacilityHandler) SetOccupancy(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		badRequest(c, fmt.Errorf("slot number %q is not an integer", c.Param("number")))
		return
	}
	var req OccupancyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ev, err := h.Registry.SetOccupancy(c.Request.Context(), c.Param("id"), number, *req.Occupied)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": ev, "changed": ev.Changed()})
}

// UploadImage stores the multipart "image" field in S3 and points the facility at it.
func (h *FacilityHandler) UploadImage(c *gin.Context) {
	facilityID := c.Param("id")
	facility, err := h.Registry.Facility(facilityID)
	if err != nil {
		writeError(c, err)
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		badRequest(c, fmt.Errorf("image file is required"))
		return
	}
	contentType := fileHeader.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		badRequest(c, fmt.Errorf("unsupported content type %q", contentType))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer file.Close()

	objectKey := fmt.Sprintf("facilities/%s/%s%s", facilityID, uuid.NewString(), strings.ToLower(filepath.Ext(fileHeader.Filename)))
	url, err := h.Uploader.UploadFile(c.Request.Context(), file, objectKey, contentType)
	if err != nil {
		h.Logger.Error("image upload failed", zap.String("facility", facilityID), zap.Error(err))
		writeError(c, fmt.Errorf("%v: %w", err, parking.ErrTransientUnavailable))
		return
	}

	facility.ImageURL = url
	updated, err := h.Registry.UpdateMetadata(facility)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := h.Store.Save(c.Request.Context(), updated); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imageURL": url})
}

func toAddress(req AddressRequest) models.Address {
	return models.Address{
		FullText:  req.FullText,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	}
}
