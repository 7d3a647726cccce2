package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/clinic-api/internal/models"
)

// TreatmentRepository persists treatments and their prescriptions.
type TreatmentRepository struct {
	db *sqlx.DB
}

// NewTreatmentRepository constructs the repository.
func NewTreatmentRepository(db *sqlx.DB) *TreatmentRepository {
	return &TreatmentRepository{db: db}
}

func (r *TreatmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a treatment followed by each of its prescriptions.
func (r *TreatmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, treatment *models.Treatment) error {
	target := r.exec(exec)
	if treatment.ID == "" {
		treatment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	treatment.CreatedAt = now

	const treatmentQuery = `INSERT INTO treatments (id, appointment_id, doctor_id, patient_id, description, cost, amount_paid, installment_period_in_months, remaining_balance, created_at)
		VALUES (:id, :appointment_id, :doctor_id, :patient_id, :description, :cost, :amount_paid, :installment_period_in_months, :remaining_balance, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, treatmentQuery, treatment); err != nil {
		return fmt.Errorf("insert treatment: %w", err)
	}

	const prescriptionQuery = `INSERT INTO prescriptions (id, treatment_id, medication, dosage, instructions, created_at)
		VALUES (:id, :treatment_id, :medication, :dosage, :instructions, :created_at)`
	for i := range treatment.Prescriptions {
		p := &treatment.Prescriptions[i]
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		p.TreatmentID = treatment.ID
		p.CreatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, target, prescriptionQuery, p); err != nil {
			return fmt.Errorf("insert prescription: %w", err)
		}
	}
	return nil
}

// ListByAppointment returns the treatments of an appointment with prescriptions attached.
func (r *TreatmentRepository) ListByAppointment(ctx context.Context, appointmentID string) ([]models.Treatment, error) {
	const query = `SELECT id, appointment_id, doctor_id, patient_id, description, cost, amount_paid, installment_period_in_months, remaining_balance, created_at
		FROM treatments WHERE appointment_id = $1 ORDER BY created_at, id`
	var treatments []models.Treatment
	if err := r.db.SelectContext(ctx, &treatments, query, appointmentID); err != nil {
		return nil, fmt.Errorf("list treatments: %w", err)
	}
	if len(treatments) == 0 {
		return treatments, nil
	}

	ids := make([]string, len(treatments))
	index := make(map[string]int, len(treatments))
	for i, t := range treatments {
		ids[i] = t.ID
		index[t.ID] = i
		treatments[i].Prescriptions = []models.Prescription{}
	}

	const prescriptionQuery = `SELECT id, treatment_id, medication, dosage, instructions, created_at
		FROM prescriptions WHERE treatment_id = ANY($1) ORDER BY created_at, id`
	var prescriptions []models.Prescription
	if err := r.db.SelectContext(ctx, &prescriptions, prescriptionQuery, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("list prescriptions: %w", err)
	}
	for _, p := range prescriptions {
		if i, ok := index[p.TreatmentID]; ok {
			treatments[i].Prescriptions = append(treatments[i].Prescriptions, p)
		}
	}
	return treatments, nil
}
