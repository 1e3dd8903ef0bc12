// internal/api/handlers/errors.go
package handlers

import (
	"context"
	"errors"
	"net/http"

	"parknet-api-server/internal/parking"

	"github.com/gin-gonic/gin"
)

// Error codes returned in the "code" field of error bodies.
const (
	codeNotFound        = "not_found"
	codeSlotUnavailable = "slot_unavailable"
	codeAlreadyExists   = "already_exists"
	codeInvalidArgument = "invalid_argument"
	codeUnavailable     = "unavailable"
	codeForbidden       = "forbidden"
	codeUnauthorized    = "unauthorized"
	codeInternal        = "internal"
)

// writeError maps a domain error onto an HTTP status and the {error, code} body.
func writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		msg = "internal server error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg, "code": code})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, parking.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, parking.ErrSlotUnavailable):
		return http.StatusConflict, codeSlotUnavailable
	case errors.Is(err, parking.ErrAlreadyExists):
		return http.StatusConflict, codeAlreadyExists
	case errors.Is(err, parking.ErrInvalidArgument):
		return http.StatusBadRequest, codeInvalidArgument
	case errors.Is(err, parking.ErrTransientUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, codeUnavailable
	default:
		return http.StatusInternalServerError, codeInternal
	}
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": codeInvalidArgument})
}

func forbidden(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have permission to access this resource", "code": codeForbidden})
}
