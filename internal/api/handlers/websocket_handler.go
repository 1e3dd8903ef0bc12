// internal/api/handlers/websocket_handler.go
package handlers

import (
	"errors"
	"net/http"

	"parknet-api-server/internal/api/middleware"
	"parknet-api-server/internal/parking"
	"parknet-api-server/internal/socket"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type WebSocketHandler struct {
	Hub      *socket.Hub
	Registry *parking.Registry
	Upgrader websocket.Upgrader
	Logger   *zap.Logger
}

// NewUpgrader accepts browser origins from allowed; "*" or an empty list allows any.
func NewUpgrader(allowed []string) websocket.Upgrader {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	_, allowAll := set["*"]
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll || len(set) == 0 {
				return true
			}
			_, ok := set[origin]
			return ok
		},
	}
}

// ServeWs streams a facility's slot changes. Authentication happens in the
// middleware, which accepts ?token= for browsers.
func (h *WebSocketHandler) ServeWs(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token is required", "code": codeUnauthorized})
		return
	}
	facilityID := c.Param("id")
	if _, err := h.Registry.Facility(facilityID); err != nil {
		writeError(c, err)
		return
	}

	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Warn("failed to upgrade connection", zap.Error(err))
		return
	}
	if err := h.Hub.Serve(conn, facilityID, principal.UserID); err != nil && !errors.Is(err, socket.ErrHubClosed) {
		h.Logger.Warn("websocket session ended with error", zap.String("facility", facilityID), zap.Error(err))
	}
}
