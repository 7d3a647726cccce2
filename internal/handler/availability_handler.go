package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-api/internal/dto"
	"github.com/noah-isme/clinic-api/internal/middleware"
	appErrors "github.com/noah-isme/clinic-api/pkg/errors"
	"github.com/noah-isme/clinic-api/pkg/response"
)

const defaultSlotMinutes = 30

type availabilityService interface {
	Slots(ctx context.Context, doctorEmail, date string, minutes int) (*dto.AvailabilityResponse, error)
	Check(ctx context.Context, doctorEmail string, start time.Time, minutes int) (*dto.AvailabilityCheckResponse, error)
}

// AvailabilityHandler answers availability queries for doctors.
type AvailabilityHandler struct {
	service availabilityService
}

// NewAvailabilityHandler builds a new handler.
func NewAvailabilityHandler(service availabilityService) *AvailabilityHandler {
	return &AvailabilityHandler{service: service}
}

// Slots godoc
// @Summary List free slots for a doctor on a date
// @Tags Availability
// @Produce json
// @Param email path string true "Doctor email"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param duration query int false "Slot length in minutes" default(30)
// @Success 200 {object} response.Envelope
// @Router /doctors/{email}/availability [get]
func (h *AvailabilityHandler) Slots(c *gin.Context) {
	minutes, err := intQuery(c, "duration", defaultSlotMinutes)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.Slots(c.Request.Context(), c.Param("email"), c.Query("date"), minutes)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, result.Cached)
	response.WithMeta(c, result, middleware.ExtractMeta(c))
}

// Check godoc
// @Summary Check whether a doctor can take a specific window
// @Tags Availability
// @Produce json
// @Param email path string true "Doctor email"
// @Param start query string true "Start (RFC3339)"
// @Param duration query int false "Length in minutes" default(30)
// @Success 200 {object} response.Envelope
// @Router /doctors/{email}/availability/check [get]
func (h *AvailabilityHandler) Check(c *gin.Context) {
	start, err := timeQuery(c, "start")
	if err != nil {
		response.Error(c, err)
		return
	}
	if start == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "start is required"))
		return
	}
	minutes, err := intQuery(c, "duration", defaultSlotMinutes)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.service.Check(c.Request.Context(), c.Param("email"), *start, minutes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
