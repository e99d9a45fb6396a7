package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cat-engine/internal/models"
)

// writeError maps domain sentinel errors to HTTP statuses.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrSessionNotFound),
		errors.Is(err, models.ErrItemNotFound),
		errors.Is(err, models.ErrCalibrationRunNotFound),
		errors.Is(err, models.ErrCalibrationNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidItem),
		errors.Is(err, models.ErrUnknownCalibrationMethod):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrSessionNotActive),
		errors.Is(err, models.ErrSessionNotTerminal),
		errors.Is(err, models.ErrActiveSessionExists),
		errors.Is(err, models.ErrNoItemAvailable),
		errors.Is(err, models.ErrCalibrationDataInsufficient):
		status = http.StatusConflict
	case errors.Is(err, models.ErrDuplicateResponse),
		errors.Is(err, models.ErrConcurrencyConflict):
		status = http.StatusConflict
	case errors.Is(err, models.ErrUnknownAdministeredItem):
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
