// internal/api/handlers/event_handler.go
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"parknet-api-server/internal/models"

	"github.com/gin-gonic/gin"
)

const maxHistoryLimit = 1000

// EventHistory reads journaled slot change events.
type EventHistory interface {
	History(ctx context.Context, facilityID string, slot, limit int) ([]models.ChangeEvent, error)
}

type EventHandler struct {
	History EventHistory
}

// GetFacilityEvents returns the most recent journaled events of a facility,
// optionally narrowed to ?slot= and capped by ?limit=.
func (h *EventHandler) GetFacilityEvents(c *gin.Context) {
	slot, err := queryInt(c, "slot", 0)
	if err != nil || slot < 0 {
		badRequest(c, fmt.Errorf("slot must be a non-negative integer"))
		return
	}
	limit, err := queryInt(c, "limit", 100)
	if err != nil || limit <= 0 {
		badRequest(c, fmt.Errorf("limit must be a positive integer"))
		return
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	events, err := h.History.History(c.Request.Context(), c.Param("id"), slot, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, events)
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
