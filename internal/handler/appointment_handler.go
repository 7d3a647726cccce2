package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clinic-api/internal/dto"
	"github.com/noah-isme/clinic-api/internal/models"
	"github.com/noah-isme/clinic-api/internal/service"
	"github.com/noah-isme/clinic-api/pkg/response"
)

type appointmentService interface {
	Schedule(ctx context.Context, req dto.ScheduleAppointmentRequest) (*models.Appointment, error)
	Get(ctx context.Context, id string) (*models.Appointment, error)
	Cancel(ctx context.Context, id string) error
	Complete(ctx context.Context, id string, req dto.CompleteAppointmentRequest) (*dto.CompleteAppointmentResponse, error)
	Treatments(ctx context.Context, id string) ([]models.Treatment, error)
	ListByDoctor(ctx context.Context, doctorEmail string, query dto.AppointmentRangeQuery) ([]models.Appointment, error)
	ListByPatient(ctx context.Context, patientEmail string) ([]models.Appointment, error)
}

type agendaExporter interface {
	Agenda(ctx context.Context, doctorEmail, date, format string) (*service.ExportResult, error)
}

// AppointmentHandler exposes appointment booking endpoints.
type AppointmentHandler struct {
	service  appointmentService
	exporter agendaExporter
}

// NewAppointmentHandler builds a new handler.
func NewAppointmentHandler(service appointmentService, exporter agendaExporter) *AppointmentHandler {
	return &AppointmentHandler{service: service, exporter: exporter}
}

// Schedule godoc
// @Summary Book an appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param payload body dto.ScheduleAppointmentRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments [post]
func (h *AppointmentHandler) Schedule(c *gin.Context) {
	var req dto.ScheduleAppointmentRequest
	if !bindJSON(c, &req, "invalid appointment payload") {
		return
	}
	appointment, err := h.service.Schedule(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, appointment)
}

// Get godoc
// @Summary Get an appointment
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id} [get]
func (h *AppointmentHandler) Get(c *gin.Context) {
	appointment, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appointment, nil)
}

// Cancel godoc
// @Summary Cancel an appointment
// @Tags Appointments
// @Param id path string true "Appointment ID"
// @Success 204
// @Router /appointments/{id} [delete]
func (h *AppointmentHandler) Cancel(c *gin.Context) {
	if err := h.service.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Complete godoc
// @Summary Complete an appointment with its treatments
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body dto.CompleteAppointmentRequest true "Completion payload"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/complete [post]
func (h *AppointmentHandler) Complete(c *gin.Context) {
	var req dto.CompleteAppointmentRequest
	if !bindJSON(c, &req, "invalid completion payload") {
		return
	}
	result, err := h.service.Complete(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Treatments godoc
// @Summary List treatments recorded for an appointment
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/treatments [get]
func (h *AppointmentHandler) Treatments(c *gin.Context) {
	items, err := h.service.Treatments(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// ListByDoctor godoc
// @Summary List a doctor's appointments
// @Tags Appointments
// @Produce json
// @Param email path string true "Doctor email"
// @Param from query string false "Range start (RFC3339)"
// @Param to query string false "Range end (RFC3339)"
// @Success 200 {object} response.Envelope
// @Router /doctors/{email}/appointments [get]
func (h *AppointmentHandler) ListByDoctor(c *gin.Context) {
	from, err := timeQuery(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := timeQuery(c, "to")
	if err != nil {
		response.Error(c, err)
		return
	}
	items, err := h.service.ListByDoctor(c.Request.Context(), c.Param("email"), dto.AppointmentRangeQuery{From: from, To: to})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// ListByPatient godoc
// @Summary List a patient's appointments
// @Tags Appointments
// @Produce json
// @Param email path string true "Patient email"
// @Success 200 {object} response.Envelope
// @Router /patients/{email}/appointments [get]
func (h *AppointmentHandler) ListByPatient(c *gin.Context) {
	items, err := h.service.ListByPatient(c.Request.Context(), c.Param("email"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Agenda godoc
// @Summary Download a doctor's agenda for one day
// @Tags Appointments
// @Produce text/csv
// @Produce application/pdf
// @Param email path string true "Doctor email"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /doctors/{email}/agenda [get]
func (h *AppointmentHandler) Agenda(c *gin.Context) {
	result, err := h.exporter.Agenda(c.Request.Context(), c.Param("email"), c.Query("date"), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, result.Filename, result.ContentType, result.Data)
}
