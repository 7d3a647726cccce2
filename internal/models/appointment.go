package models

import (
	"time"

	"github.com/lib/pq"
)

// AppointmentStatus marks the lifecycle of an appointment. Cancelled appointments are deleted.
type AppointmentStatus string

const (
	AppointmentOpen AppointmentStatus = "OPEN"
	AppointmentDone AppointmentStatus = "DONE"
)

// Appointment is a booked visit of a patient with a doctor.
type Appointment struct {
	ID              string            `db:"id" json:"id"`
	DoctorID        string            `db:"doctor_id" json:"doctor_id"`
	PatientID       string            `db:"patient_id" json:"patient_id"`
	StartAt         time.Time         `db:"start_at" json:"start_at"`
	EndAt           time.Time         `db:"end_at" json:"end_at"`
	DurationMinutes int               `db:"duration_minutes" json:"duration_minutes"`
	Status          AppointmentStatus `db:"status" json:"status"`
	IsDone          bool              `db:"is_done" json:"is_done"`
	VisitNotes      string            `db:"visit_notes" json:"visit_notes,omitempty"`
	Attachments     pq.StringArray    `db:"attachments" json:"attachments,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time         `db:"updated_at" json:"updated_at"`
}

// Active reports whether the appointment still occupies the doctor and patient.
func (a Appointment) Active() bool {
	return !a.IsDone
}

// Overlaps uses half-open intervals so back-to-back appointments do not collide.
func (a Appointment) Overlaps(start, end time.Time) bool {
	return a.StartAt.Before(end) && a.EndAt.After(start)
}
