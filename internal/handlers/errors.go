package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sjperalta/khata-api/internal/services"
	"github.com/sjperalta/khata-api/pkg/logger"
)

// statusFor maps service errors to HTTP status codes.
// Conflict is checked before Compensated so an exhausted invoice retry reads as 409.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, services.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, services.ErrCompensated):
		return http.StatusInternalServerError
	case errors.Is(err, services.ErrInvalidState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// respondError writes {"error": ..., "field": ...} with the mapped status
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var verr *services.ValidationError
	if errors.As(err, &verr) {
		body["field"] = verr.Field
	}
	var serr *services.InsufficientStockError
	if errors.As(err, &serr) {
		body["product_id"] = serr.ProductID
		body["available"] = serr.Available
		body["requested"] = serr.Requested
	}
	var cerr *services.CompensatedError
	if errors.As(err, &cerr) {
		body["saga_id"] = cerr.SagaID
		if cerr.Pending {
			body["rollback_pending"] = true
		}
	}

	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, body)
}

// bindError answers 400 for a body that could not be decoded
func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
}
