package dto

import (
	"time"

	"github.com/noah-isme/clinic-api/internal/models"
)

// ScheduleAppointmentRequest books a visit with a doctor.
type ScheduleAppointmentRequest struct {
	DoctorEmail     string     `json:"doctorEmail" validate:"required,email"`
	PatientEmail    string     `json:"patientEmail" validate:"required,email"`
	StartTime       *time.Time `json:"startTime" validate:"required"`
	DurationMinutes int        `json:"durationMinutes"`
}

// PrescriptionDetail is a prescription issued as part of a treatment.
type PrescriptionDetail struct {
	Medication   string `json:"medication" validate:"required"`
	Dosage       string `json:"dosage"`
	Instructions string `json:"instructions"`
}

// TreatmentDetail describes one treatment performed during the visit.
type TreatmentDetail struct {
	Description               string               `json:"description" validate:"required"`
	Cost                      float64              `json:"cost" validate:"gte=0"`
	AmountPaid                float64              `json:"amountPaid" validate:"gte=0"`
	InstallmentPeriodInMonths int                  `json:"installmentPeriodInMonths" validate:"gte=0,lte=120"`
	Prescriptions             []PrescriptionDetail `json:"prescriptions" validate:"omitempty,dive"`
}

// CompleteAppointmentRequest closes an appointment with its clinical record.
type CompleteAppointmentRequest struct {
	Treatments []TreatmentDetail `json:"treatments" validate:"dive"`
	FilePaths  []string          `json:"filePaths" validate:"omitempty,dive,required"`
	VisitNotes string            `json:"visitNotes" validate:"max=4000"`
}

// CompleteAppointmentResponse returns the completed appointment with its treatments.
type CompleteAppointmentResponse struct {
	Appointment *models.Appointment `json:"appointment"`
	Treatments  []models.Treatment  `json:"treatments"`
}

// AppointmentRangeQuery bounds a doctor's appointment listing.
type AppointmentRangeQuery struct {
	From *time.Time
	To   *time.Time
}

// AvailabilityCheckResponse answers whether a specific window can be booked.
type AvailabilityCheckResponse struct {
	DoctorEmail     string    `json:"doctorEmail"`
	StartTime       time.Time `json:"startTime"`
	DurationMinutes int       `json:"durationMinutes"`
	Working         bool      `json:"working"`
	Available       bool      `json:"available"`
}

// AvailabilityResponse lists free slots for a day.
type AvailabilityResponse struct {
	DoctorEmail     string        `json:"doctorEmail"`
	Date            string        `json:"date"`
	DurationMinutes int           `json:"durationMinutes"`
	Slots           []models.Slot `json:"slots"`
	Cached          bool          `json:"-"`
}
