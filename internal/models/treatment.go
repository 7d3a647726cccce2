package models

import "time"

// Treatment is produced when an appointment is completed.
type Treatment struct {
	ID                        string         `db:"id" json:"id"`
	AppointmentID             string         `db:"appointment_id" json:"appointment_id"`
	DoctorID                  string         `db:"doctor_id" json:"doctor_id"`
	PatientID                 string         `db:"patient_id" json:"patient_id"`
	Description               string         `db:"description" json:"description"`
	Cost                      float64        `db:"cost" json:"cost"`
	AmountPaid                float64        `db:"amount_paid" json:"amount_paid"`
	InstallmentPeriodInMonths int            `db:"installment_period_in_months" json:"installment_period_in_months"`
	RemainingBalance          float64        `db:"remaining_balance" json:"remaining_balance"`
	CreatedAt                 time.Time      `db:"created_at" json:"created_at"`
	Prescriptions             []Prescription `db:"-" json:"prescriptions"`
}

// Prescription belongs to a treatment.
type Prescription struct {
	ID           string    `db:"id" json:"id"`
	TreatmentID  string    `db:"treatment_id" json:"treatment_id"`
	Medication   string    `db:"medication" json:"medication"`
	Dosage       string    `db:"dosage" json:"dosage"`
	Instructions string    `db:"instructions" json:"instructions"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
