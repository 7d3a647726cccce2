package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/clinic-api/internal/models"
)

const appointmentColumns = `id, doctor_id, patient_id, start_at, end_at, duration_minutes, status, is_done, visit_notes, attachments, created_at, updated_at`

// AppointmentRepository persists booked visits.
type AppointmentRepository struct {
	db *sqlx.DB
}

// NewAppointmentRepository constructs the repository.
func NewAppointmentRepository(db *sqlx.DB) *AppointmentRepository {
	return &AppointmentRepository{db: db}
}

func (r *AppointmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts an open appointment. EndAt is derived from the duration.
func (r *AppointmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, appointment *models.Appointment) error {
	if appointment.ID == "" {
		appointment.ID = uuid.NewString()
	}
	if appointment.Status == "" {
		appointment.Status = models.AppointmentOpen
	}
	if appointment.Attachments == nil {
		appointment.Attachments = pq.StringArray{}
	}
	appointment.EndAt = appointment.StartAt.Add(time.Duration(appointment.DurationMinutes) * time.Minute)
	now := time.Now().UTC()
	appointment.CreatedAt = now
	appointment.UpdatedAt = now

	const query = `INSERT INTO appointments (` + appointmentColumns + `)
		VALUES (:id, :doctor_id, :patient_id, :start_at, :end_at, :duration_minutes, :status, :is_done, :visit_notes, :attachments, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, appointment); err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

// FindByID loads an appointment.
func (r *AppointmentRepository) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	const query = `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	var appointment models.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		return nil, err
	}
	return &appointment, nil
}

// LockByID loads an appointment and holds its row lock until the transaction ends.
func (r *AppointmentRepository) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Appointment, error) {
	const query = `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1 FOR UPDATE`
	var appointment models.Appointment
	if err := sqlx.GetContext(ctx, r.exec(exec), &appointment, query, id); err != nil {
		return nil, err
	}
	return &appointment, nil
}

// Delete removes an appointment.
func (r *AppointmentRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `DELETE FROM appointments WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("appointment rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkDone flags the appointment as completed and stores the visit record.
func (r *AppointmentRepository) MarkDone(ctx context.Context, exec sqlx.ExtContext, id, visitNotes string, attachments []string) error {
	if attachments == nil {
		attachments = []string{}
	}
	const query = `UPDATE appointments
		SET status = $2, is_done = TRUE, visit_notes = $3, attachments = $4, updated_at = $5
		WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id, models.AppointmentDone, visitNotes, pq.Array(attachments), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("complete appointment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("appointment rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// HasOpenForPatient reports whether the patient has an appointment that is not done.
func (r *AppointmentRepository) HasOpenForPatient(ctx context.Context, exec sqlx.ExtContext, patientID string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM appointments WHERE patient_id = $1 AND NOT is_done)`
	var exists bool
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, patientID); err != nil {
		return false, fmt.Errorf("check open appointment: %w", err)
	}
	return exists, nil
}

// ListByDoctorBetween returns the doctor's appointments intersecting [from, to) in start order.
func (r *AppointmentRepository) ListByDoctorBetween(ctx context.Context, exec sqlx.ExtContext, doctorID string, from, to time.Time) ([]models.Appointment, error) {
	const query = `SELECT ` + appointmentColumns + ` FROM appointments
		WHERE doctor_id = $1 AND start_at < $3 AND end_at > $2 ORDER BY start_at`
	var items []models.Appointment
	if err := sqlx.SelectContext(ctx, r.exec(exec), &items, query, doctorID, from, to); err != nil {
		return nil, fmt.Errorf("list doctor appointments: %w", err)
	}
	return items, nil
}

// ListByPatient returns every appointment of a patient, newest first.
func (r *AppointmentRepository) ListByPatient(ctx context.Context, patientID string) ([]models.Appointment, error) {
	const query = `SELECT ` + appointmentColumns + ` FROM appointments WHERE patient_id = $1 ORDER BY start_at DESC`
	var items []models.Appointment
	if err := r.db.SelectContext(ctx, &items, query, patientID); err != nil {
		return nil, fmt.Errorf("list patient appointments: %w", err)
	}
	return items, nil
}
