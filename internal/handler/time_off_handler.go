package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-api/internal/dto"
	"github.com/noah-isme/clinic-api/internal/models"
	appErrors "github.com/noah-isme/clinic-api/pkg/errors"
	"github.com/noah-isme/clinic-api/pkg/response"
)

type timeOffService interface {
	Create(ctx context.Context, req dto.CreateTimeOffRequest) (*models.TimeOff, error)
	Update(ctx context.Context, id string, req dto.UpdateTimeOffRequest) (*models.TimeOff, error)
	UpdateStatus(ctx context.Context, id string, req dto.UpdateTimeOffStatusRequest, approverEmail string) (*models.TimeOff, error)
	Delete(ctx context.Context, id string) error
	ListByEmployee(ctx context.Context, employeeEmail string, query dto.TimeOffQuery) ([]models.TimeOff, error)
	ListByStatus(ctx context.Context, status models.TimeOffStatus) ([]models.TimeOff, error)
	ListPending(ctx context.Context) ([]models.TimeOff, error)
	ListActive(ctx context.Context) ([]models.TimeOff, error)
}

// TimeOffHandler exposes time-off request endpoints.
type TimeOffHandler struct {
	service timeOffService
}

// NewTimeOffHandler builds a new handler.
func NewTimeOffHandler(service timeOffService) *TimeOffHandler {
	return &TimeOffHandler{service: service}
}

// Create godoc
// @Summary Request time-off
// @Tags TimeOff
// @Accept json
// @Produce json
// @Param payload body dto.CreateTimeOffRequest true "Time-off payload"
// @Success 201 {object} response.Envelope
// @Router /time-offs [post]
func (h *TimeOffHandler) Create(c *gin.Context) {
	var req dto.CreateTimeOffRequest
	if !bindJSON(c, &req, "invalid time-off payload") {
		return
	}
	item, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Update godoc
// @Summary Edit a pending time-off request
// @Tags TimeOff
// @Accept json
// @Produce json
// @Param id path string true "Time-off ID"
// @Param payload body dto.UpdateTimeOffRequest true "Time-off payload"
// @Success 200 {object} response.Envelope
// @Router /time-offs/{id} [put]
func (h *TimeOffHandler) Update(c *gin.Context) {
	var req dto.UpdateTimeOffRequest
	if !bindJSON(c, &req, "invalid time-off payload") {
		return
	}
	item, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// UpdateStatus godoc
// @Summary Approve or decline a time-off request
// @Tags TimeOff
// @Accept json
// @Produce json
// @Param id path string true "Time-off ID"
// @Param payload body dto.UpdateTimeOffStatusRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Router /time-offs/{id}/status [patch]
func (h *TimeOffHandler) UpdateStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req dto.UpdateTimeOffStatusRequest
	if !bindJSON(c, &req, "invalid status payload") {
		return
	}
	req.Status = models.TimeOffStatus(strings.ToUpper(string(req.Status)))
	item, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req, claims.Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Delete godoc
// @Summary Withdraw a time-off request
// @Tags TimeOff
// @Param id path string true "Time-off ID"
// @Success 204
// @Router /time-offs/{id} [delete]
func (h *TimeOffHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// List godoc
// @Summary List time-off requests by status
// @Tags TimeOff
// @Produce json
// @Param status query string false "PENDING, APPROVED or DECLINED" default(PENDING)
// @Success 200 {object} response.Envelope
// @Router /time-offs [get]
func (h *TimeOffHandler) List(c *gin.Context) {
	status := models.TimeOffPending
	if raw := c.Query("status"); raw != "" {
		status = models.TimeOffStatus(strings.ToUpper(raw))
	}
	items, err := h.service.ListByStatus(c.Request.Context(), status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// ListPending godoc
// @Summary List time-off awaiting review
// @Tags TimeOff
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /time-offs/pending [get]
func (h *TimeOffHandler) ListPending(c *gin.Context) {
	items, err := h.service.ListPending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// ListActive godoc
// @Summary List approved time-off in effect now
// @Tags TimeOff
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /time-offs/active [get]
func (h *TimeOffHandler) ListActive(c *gin.Context) {
	items, err := h.service.ListActive(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// ListByEmployee godoc
// @Summary List an employee's time-off
// @Tags TimeOff
// @Produce json
// @Param email path string true "Employee email"
// @Param status query string false "Status filter"
// @Param from query string false "Range start (RFC3339)"
// @Param to query string false "Range end (RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /employees/{email}/time-offs [get]
func (h *TimeOffHandler) ListByEmployee(c *gin.Context) {
	var query dto.TimeOffQuery
	if raw := c.Query("status"); raw != "" {
		status := models.TimeOffStatus(strings.ToUpper(raw))
		query.Status = &status
	}
	var err error
	if query.From, err = timeQuery(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if query.To, err = timeQuery(c, "to"); err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.service.ListByEmployee(c.Request.Context(), c.Param("email"), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}
