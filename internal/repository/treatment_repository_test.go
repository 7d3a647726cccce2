package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-api/internal/models"
)

func TestTreatmentRepositoryCreateWithPrescriptions(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTreatmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO treatments")).
		WithArgs(sqlmock.AnyArg(), "appt-1", "doc-1", "pat-1", "filling", 200.0, 50.0, 3, 150.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO prescriptions")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "ibuprofen", "400mg", "after meals", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	treatment := &models.Treatment{
		AppointmentID:             "appt-1",
		DoctorID:                  "doc-1",
		PatientID:                 "pat-1",
		Description:               "filling",
		Cost:                      200,
		AmountPaid:                50,
		InstallmentPeriodInMonths: 3,
		RemainingBalance:          150,
		Prescriptions:             []models.Prescription{{Medication: "ibuprofen", Dosage: "400mg", Instructions: "after meals"}},
	}
	require.NoError(t, repo.Create(context.Background(), nil, treatment))
	assert.Equal(t, treatment.ID, treatment.Prescriptions[0].TreatmentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTreatmentRepositoryListByAppointment(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTreatmentRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM treatments WHERE appointment_id = $1")).
		WithArgs("appt-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "appointment_id", "doctor_id", "patient_id", "description", "cost", "amount_paid", "installment_period_in_months", "remaining_balance", "created_at"}).
			AddRow("tr-1", "appt-1", "doc-1", "pat-1", "filling", "200.00", "50.00", 3, "150.00", now).
			AddRow("tr-2", "appt-1", "doc-1", "pat-1", "cleaning", "80.00", "80.00", 0, "0.00", now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM prescriptions WHERE treatment_id = ANY($1)")).
		WithArgs(`{"tr-1","tr-2"}`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "treatment_id", "medication", "dosage", "instructions", "created_at"}).
			AddRow("rx-1", "tr-1", "ibuprofen", "400mg", "", now))

	items, err := repo.ListByAppointment(context.Background(), "appt-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 150.0, items[0].RemainingBalance)
	assert.Len(t, items[0].Prescriptions, 1)
	assert.Empty(t, items[1].Prescriptions)
	assert.NoError(t, mock.ExpectationsWereMet())
}
