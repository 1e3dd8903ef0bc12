// internal/api/handlers/hold_handler.go
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"parknet-api-server/internal/api/middleware"
	"parknet-api-server/internal/auth"
	"parknet-api-server/internal/models"
	"parknet-api-server/internal/parking"

	"github.com/gin-gonic/gin"
)

type HoldHandler struct {
	Holds *parking.HoldManager
}

type RequestHoldRequest struct {
	FacilityID string `json:"facilityID" binding:"required"`
	SlotNumber int    `json:"slotNumber" binding:"required"`
	TTLSeconds int    `json:"ttlSeconds"`
}

type ExtendHoldRequest struct {
	ExtraSeconds int `json:"extraSeconds" binding:"required"`
}

// RequestHold reserves a slot for the calling user.
func (h *HoldHandler) RequestHold(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required", "code": codeUnauthorized})
		return
	}
	var req RequestHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ttl := h.Holds.DefaultTTL()
	if req.TTLSeconds != 0 {
		d, err := h.seconds("ttlSeconds", req.TTLSeconds)
		if err != nil {
			badRequest(c, err)
			return
		}
		ttl = d
	}

	hold, err := h.Holds.RequestHold(c.Request.Context(), parking.RequestHoldInput{
		FacilityID: req.FacilityID,
		SlotNumber: req.SlotNumber,
		HolderID:   principal.UserID,
		TTL:        ttl,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, hold)
}

// GetMyHolds lists the caller's active holds ("My reservations").
func (h *HoldHandler) GetMyHolds(c *gin.Context) {
	principal, _ := middleware.PrincipalFrom(c)
	c.JSON(http.StatusOK, h.Holds.HoldsByHolder(principal.UserID))
}

func (h *HoldHandler) GetHold(c *gin.Context) {
	hold, ok := h.ownedHold(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, hold)
}

func (h *HoldHandler) ExtendHold(c *gin.Context) {
	var req ExtendHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	extra, err := h.seconds("extraSeconds", req.ExtraSeconds)
	if err != nil {
		badRequest(c, err)
		return
	}
	hold, ok := h.ownedHold(c)
	if !ok {
		return
	}
	extended, err := h.Holds.ExtendHold(c.Request.Context(), hold.ID, extra)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, extended)
}

// ConfirmArrival converts the hold into occupancy.
func (h *HoldHandler) ConfirmArrival(c *gin.Context) {
	hold, ok := h.ownedHold(c)
	if !ok {
		return
	}
	ev, err := h.Holds.ConfirmArrival(c.Request.Context(), hold.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, ev)
}

// ReleaseHold is idempotent: releasing a hold that is already gone returns 204.
func (h *HoldHandler) ReleaseHold(c *gin.Context) {
	hold, err := h.Holds.Hold(c.Param("id"))
	if errors.Is(err, parking.ErrNotFound) {
		// Unknown, ended or expired. An expired hold still on its slot ends here
		// with cause expiry; anything else is a no-op.
		if err := h.Holds.ReleaseHold(c.Request.Context(), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	if !canManage(c, hold) {
		forbidden(c)
		return
	}
	if err := h.Holds.ReleaseHold(c.Request.Context(), hold.ID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetActiveHolds is the admin overview of every live hold.
func (h *HoldHandler) GetActiveHolds(c *gin.Context) {
	c.JSON(http.StatusOK, h.Holds.ActiveHolds())
}

// seconds converts a client-supplied count of seconds, rejecting values outside
// (0, max TTL] before they can overflow a time.Duration.
func (h *HoldHandler) seconds(field string, n int) (time.Duration, error) {
	limit := int64(h.Holds.MaxTTL() / time.Second)
	if n <= 0 || int64(n) > limit {
		return 0, fmt.Errorf("%s must be between 1 and %d: %w", field, limit, parking.ErrInvalidArgument)
	}
	return time.Duration(n) * time.Second, nil
}

func (h *HoldHandler) ownedHold(c *gin.Context) (models.Hold, bool) {
	hold, err := h.Holds.Hold(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return models.Hold{}, false
	}
	if !canManage(c, hold) {
		forbidden(c)
		return models.Hold{}, false
	}
	return hold, true
}

func canManage(c *gin.Context, hold models.Hold) bool {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		return false
	}
	return principal.Role == auth.RoleAdmin || principal.UserID == hold.HolderID
}
