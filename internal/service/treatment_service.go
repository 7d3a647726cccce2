package service

import (
	"context"
	"fmt"
	"math"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-api/internal/dto"
	"github.com/noah-isme/clinic-api/internal/models"
	appErrors "github.com/noah-isme/clinic-api/pkg/errors"
)

// TreatmentRecorder persists the clinical record produced when an appointment completes.
// It runs inside the caller's transaction.
type TreatmentRecorder interface {
	Record(ctx context.Context, exec sqlx.ExtContext, appointment *models.Appointment, details []dto.TreatmentDetail) ([]models.Treatment, error)
}

type treatmentRepository interface {
	Create(ctx context.Context, exec sqlx.ExtContext, treatment *models.Treatment) error
	ListByAppointment(ctx context.Context, appointmentID string) ([]models.Treatment, error)
}

// TreatmentService records and reads treatments.
type TreatmentService struct {
	repo   treatmentRepository
	logger *zap.Logger
}

// NewTreatmentService constructs the service.
func NewTreatmentService(repo treatmentRepository, logger *zap.Logger) *TreatmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TreatmentService{repo: repo, logger: logger}
}

// Record implements TreatmentRecorder.
func (s *TreatmentService) Record(ctx context.Context, exec sqlx.ExtContext, appointment *models.Appointment, details []dto.TreatmentDetail) ([]models.Treatment, error) {
	if err := ValidateTreatmentPayments(details); err != nil {
		return nil, err
	}

	treatments := make([]models.Treatment, 0, len(details))
	for _, detail := range details {
		treatment := models.Treatment{
			AppointmentID:             appointment.ID,
			DoctorID:                  appointment.DoctorID,
			PatientID:                 appointment.PatientID,
			Description:               detail.Description,
			Cost:                      detail.Cost,
			AmountPaid:                detail.AmountPaid,
			InstallmentPeriodInMonths: detail.InstallmentPeriodInMonths,
			RemainingBalance:          roundCents(detail.Cost - detail.AmountPaid),
			Prescriptions:             make([]models.Prescription, 0, len(detail.Prescriptions)),
		}
		for _, p := range detail.Prescriptions {
			treatment.Prescriptions = append(treatment.Prescriptions, models.Prescription{
				Medication:   p.Medication,
				Dosage:       p.Dosage,
				Instructions: p.Instructions,
			})
		}
		if err := s.repo.Create(ctx, exec, &treatment); err != nil {
			return nil, err
		}
		treatments = append(treatments, treatment)
	}

	s.logger.Debug("treatments recorded", zap.String("appointment_id", appointment.ID), zap.Int("count", len(treatments)))
	return treatments, nil
}

// ListByAppointment returns the treatments attached to an appointment.
func (s *TreatmentService) ListByAppointment(ctx context.Context, appointmentID string) ([]models.Treatment, error) {
	treatments, err := s.repo.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, internalError(err, "failed to load treatments")
	}
	return treatments, nil
}

// ValidateTreatmentPayments rejects empty lists and any treatment paid beyond its cost.
func ValidateTreatmentPayments(details []dto.TreatmentDetail) error {
	if len(details) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "at least one treatment is required")
	}
	for i, detail := range details {
		if detail.Cost < 0 || detail.AmountPaid < 0 {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("treatment %d: amounts must not be negative", i+1))
		}
		if detail.AmountPaid > detail.Cost {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("treatment %d: amount paid exceeds cost", i+1))
		}
	}
	return nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
