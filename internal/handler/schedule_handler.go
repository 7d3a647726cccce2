package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-api/internal/dto"
	"github.com/noah-isme/clinic-api/internal/models"
	"github.com/noah-isme/clinic-api/pkg/response"
)

type workScheduleService interface {
	List(ctx context.Context, employeeEmail string) ([]models.ScheduleSlot, error)
	Upsert(ctx context.Context, employeeEmail, dayName string, req dto.UpsertScheduleSlotRequest) (*models.ScheduleSlot, error)
	Delete(ctx context.Context, employeeEmail, dayName string) error
}

// ScheduleHandler manages weekly working hours.
type ScheduleHandler struct {
	service workScheduleService
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(svc workScheduleService) *ScheduleHandler {
	return &ScheduleHandler{service: svc}
}

// List godoc
// @Summary List an employee's weekly schedule
// @Tags Schedules
// @Produce json
// @Param email path string true "Employee email"
// @Success 200 {object} response.Envelope
// @Router /employees/{email}/schedule [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	slots, err := h.service.List(c.Request.Context(), c.Param("email"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Upsert godoc
// @Summary Set working hours for one weekday
// @Tags Schedules
// @Accept json
// @Produce json
// @Param email path string true "Employee email"
// @Param day path string true "Day of week, e.g. MONDAY"
// @Param payload body dto.UpsertScheduleSlotRequest true "Working hours (HH:MM)"
// @Success 200 {object} response.Envelope
// @Router /employees/{email}/schedule/{day} [put]
func (h *ScheduleHandler) Upsert(c *gin.Context) {
	var req dto.UpsertScheduleSlotRequest
	if !bindJSON(c, &req, "invalid schedule payload") {
		return
	}
	slot, err := h.service.Upsert(c.Request.Context(), c.Param("email"), c.Param("day"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slot, nil)
}

// Delete godoc
// @Summary Remove working hours for one weekday
// @Tags Schedules
// @Param email path string true "Employee email"
// @Param day path string true "Day of week"
// @Success 204
// @Router /employees/{email}/schedule/{day} [delete]
func (h *ScheduleHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("email"), c.Param("day")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
