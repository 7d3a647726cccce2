package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-api/internal/dto"
	"github.com/noah-isme/clinic-api/internal/models"
	appErrors "github.com/noah-isme/clinic-api/pkg/errors"
)

type appointmentRepository interface {
	appointmentReader
	Create(ctx context.Context, exec sqlx.ExtContext, appointment *models.Appointment) error
	FindByID(ctx context.Context, id string) (*models.Appointment, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Appointment, error)
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	MarkDone(ctx context.Context, exec sqlx.ExtContext, id, visitNotes string, attachments []string) error
	HasOpenForPatient(ctx context.Context, exec sqlx.ExtContext, patientID string) (bool, error)
	ListByPatient(ctx context.Context, patientID string) ([]models.Appointment, error)
}

type userLocker interface {
	LockByIDs(ctx context.Context, exec sqlx.ExtContext, ids ...string) error
}

type treatmentStore interface {
	TreatmentRecorder
	ListByAppointment(ctx context.Context, appointmentID string) ([]models.Treatment, error)
}

type availabilityInvalidator interface {
	Invalidate(ctx context.Context, employeeID string)
}

type eventPublisher interface {
	Publish(event Event)
}

// AppointmentConfig holds the booking rules.
type AppointmentConfig struct {
	MinAdvance           time.Duration
	MaxAdvanceMonths     int
	MinDurationMinutes   int
	MaxDurationMinutes   int
	AllowCancelCompleted bool
}

// AppointmentService books, cancels and completes appointments.
type AppointmentService struct {
	appointments appointmentRepository
	users        userLocker
	directory    *DirectoryService
	loader       *SnapshotLoader
	resolver     *AvailabilityResolver
	treatments   treatmentStore
	tx           txProvider
	cfg          AppointmentConfig
	validator    *validator.Validate
	logger       *zap.Logger

	invalidator availabilityInvalidator
	publisher   eventPublisher
	metrics     *MetricsService
	now         func() time.Time
}

// NewAppointmentService constructs the scheduler.
func NewAppointmentService(
	appointments appointmentRepository,
	users userLocker,
	directory *DirectoryService,
	loader *SnapshotLoader,
	resolver *AvailabilityResolver,
	treatments treatmentStore,
	tx txProvider,
	cfg AppointmentConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *AppointmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinDurationMinutes <= 0 {
		cfg.MinDurationMinutes = 30
	}
	if cfg.MaxDurationMinutes <= 0 {
		cfg.MaxDurationMinutes = 180
	}
	if cfg.MaxAdvanceMonths <= 0 {
		cfg.MaxAdvanceMonths = 6
	}
	return &AppointmentService{
		appointments: appointments,
		users:        users,
		directory:    directory,
		loader:       loader,
		resolver:     resolver,
		treatments:   treatments,
		tx:           tx,
		cfg:          cfg,
		validator:    validate,
		logger:       logger,
		now:          time.Now,
	}
}

// WithHooks attaches the optional post-commit collaborators.
func (s *AppointmentService) WithHooks(invalidator availabilityInvalidator, publisher eventPublisher, metrics *MetricsService) *AppointmentService {
	s.invalidator = invalidator
	s.publisher = publisher
	s.metrics = metrics
	return s
}

// Schedule books an appointment after checking the booking window, the patient's open
// appointments, the doctor's shift and overlapping bookings. The checks and the insert run
// in one transaction holding row locks on both users.
func (s *AppointmentService) Schedule(ctx context.Context, req dto.ScheduleAppointmentRequest) (appointment *models.Appointment, err error) {
	defer func() {
		if err != nil {
			s.metrics.RecordBooking(OutcomeRejected, appErrors.FromError(err).Code)
			return
		}
		s.metrics.RecordBooking(OutcomeAccepted, "")
	}()

	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid appointment payload")
	}
	if err := s.validateWindow(*req.StartTime, req.DurationMinutes); err != nil {
		return nil, err
	}

	doctor, err := s.directory.ResolveDoctor(ctx, req.DoctorEmail)
	if err != nil {
		return nil, err
	}
	patient, err := s.directory.ResolvePatient(ctx, req.PatientEmail)
	if err != nil {
		return nil, err
	}

	start := req.StartTime.UTC()
	appointment = &models.Appointment{
		DoctorID:        doctor.ID,
		PatientID:       patient.ID,
		StartAt:         start,
		DurationMinutes: req.DurationMinutes,
		Status:          models.AppointmentOpen,
	}

	err = runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.users.LockByIDs(ctx, tx, doctor.ID, patient.ID); err != nil {
			return internalError(err, "failed to lock participants")
		}
		open, err := s.appointments.HasOpenForPatient(ctx, tx, patient.ID)
		if err != nil {
			return internalError(err, "failed to check open appointments")
		}
		if open {
			return appErrors.Clone(appErrors.ErrPatientHasOpen, "")
		}

		snapshot, err := s.loader.LoadDay(ctx, tx, doctor.ID, start)
		if err != nil {
			return internalError(err, "failed to load doctor availability")
		}
		if !s.resolver.IsWorking(snapshot, start) {
			return appErrors.Clone(appErrors.ErrDoctorNotWorking, "")
		}
		if !s.resolver.IsAvailable(snapshot, start, req.DurationMinutes) {
			return appErrors.Clone(appErrors.ErrDoctorUnavailable, "")
		}

		if err := s.appointments.Create(ctx, tx, appointment); err != nil {
			if mapped, ok := constraintError(err); ok {
				return mapped
			}
			return internalError(err, "failed to create appointment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("appointment booked",
		zap.String("appointment_id", appointment.ID),
		zap.String("doctor_id", doctor.ID),
		zap.String("patient_id", patient.ID),
		zap.Time("start", appointment.StartAt),
	)
	s.afterCommit(ctx, appointment, EventAppointmentBooked, nil)
	return appointment, nil
}

func (s *AppointmentService) validateWindow(start time.Time, minutes int) error {
	if minutes < s.cfg.MinDurationMinutes || minutes > s.cfg.MaxDurationMinutes {
		return appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("duration must be between %d and %d minutes", s.cfg.MinDurationMinutes, s.cfg.MaxDurationMinutes))
	}
	now := s.now()
	if earliest := now.Add(s.cfg.MinAdvance); !start.After(earliest) {
		return appErrors.Clone(appErrors.ErrInvalidBookingTime,
			fmt.Sprintf("appointments must start more than %s from now", s.cfg.MinAdvance))
	}
	if latest := now.AddDate(0, s.cfg.MaxAdvanceMonths, 0); start.After(latest) {
		return appErrors.Clone(appErrors.ErrInvalidBookingTime,
			fmt.Sprintf("appointments cannot be booked more than %d months ahead", s.cfg.MaxAdvanceMonths))
	}
	return nil
}

// Cancel deletes an appointment. Completed appointments are kept unless the policy allows it.
func (s *AppointmentService) Cancel(ctx context.Context, id string) error {
	var appointment *models.Appointment
	err := runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		var err error
		appointment, err = s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if appointment.IsDone && !s.cfg.AllowCancelCompleted {
			return appErrors.Clone(appErrors.ErrInvalidState, "completed appointments cannot be cancelled")
		}
		if err := s.appointments.Delete(ctx, tx, id); err != nil {
			return internalError(err, "failed to delete appointment")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.RecordAppointmentTransition("cancelled")
	s.logger.Info("appointment cancelled", zap.String("appointment_id", id))
	s.afterCommit(ctx, appointment, EventAppointmentCancelled, nil)
	return nil
}

// Complete closes an open appointment, recording its treatments, visit notes and attachments.
// Nothing is written unless every treatment is valid.
func (s *AppointmentService) Complete(ctx context.Context, id string, req dto.CompleteAppointmentRequest) (*dto.CompleteAppointmentResponse, error) {
	var (
		appointment *models.Appointment
		treatments  []models.Treatment
	)
	err := runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		var err error
		appointment, err = s.lock(ctx, tx, id)
		if err != nil {
			return err
		}
		if appointment.IsDone {
			return appErrors.Clone(appErrors.ErrInvalidState, "appointment already completed")
		}
		if len(req.Treatments) == 0 {
			return appErrors.Clone(appErrors.ErrValidation, "at least one treatment is required")
		}
		if err := s.validator.Struct(req); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid completion payload")
		}
		if err := ValidateTreatmentPayments(req.Treatments); err != nil {
			return err
		}

		treatments, err = s.treatments.Record(ctx, tx, appointment, req.Treatments)
		if err != nil {
			var appErr *appErrors.Error
			if errors.As(err, &appErr) {
				return appErr
			}
			return internalError(err, "failed to record treatments")
		}
		if err := s.appointments.MarkDone(ctx, tx, id, req.VisitNotes, req.FilePaths); err != nil {
			return internalError(err, "failed to complete appointment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	appointment.Status = models.AppointmentDone
	appointment.IsDone = true
	appointment.VisitNotes = req.VisitNotes
	appointment.Attachments = append(appointment.Attachments[:0], req.FilePaths...)

	s.metrics.RecordAppointmentTransition("completed")
	s.logger.Info("appointment completed", zap.String("appointment_id", id), zap.Int("treatments", len(treatments)))
	s.afterCommit(ctx, appointment, EventAppointmentCompleted, map[string]string{"treatments": fmt.Sprintf("%d", len(treatments))})
	return &dto.CompleteAppointmentResponse{Appointment: appointment, Treatments: treatments}, nil
}

// Get returns one appointment.
func (s *AppointmentService) Get(ctx context.Context, id string) (*models.Appointment, error) {
	appointment, err := s.appointments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, internalError(err, "failed to load appointment")
	}
	return appointment, nil
}

// ListByDoctor returns a doctor's appointments intersecting the range. The range defaults
// to the next 30 days from the start of today.
func (s *AppointmentService) ListByDoctor(ctx context.Context, doctorEmail string, query dto.AppointmentRangeQuery) ([]models.Appointment, error) {
	doctor, err := s.directory.ResolveDoctor(ctx, doctorEmail)
	if err != nil {
		return nil, err
	}
	from, _ := s.resolver.DayBounds(s.now())
	if query.From != nil {
		from = *query.From
	}
	to := from.AddDate(0, 0, 30)
	if query.To != nil {
		to = *query.To
	}
	if !to.After(from) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must be after from")
	}
	items, err := s.appointments.ListByDoctorBetween(ctx, nil, doctor.ID, from, to)
	if err != nil {
		return nil, internalError(err, "failed to list appointments")
	}
	return items, nil
}

// ListByPatient returns every appointment of a patient.
func (s *AppointmentService) ListByPatient(ctx context.Context, patientEmail string) ([]models.Appointment, error) {
	patient, err := s.directory.ResolvePatient(ctx, patientEmail)
	if err != nil {
		return nil, err
	}
	items, err := s.appointments.ListByPatient(ctx, patient.ID)
	if err != nil {
		return nil, internalError(err, "failed to list appointments")
	}
	return items, nil
}

// Treatments returns the treatments recorded for an appointment.
func (s *AppointmentService) Treatments(ctx context.Context, id string) ([]models.Treatment, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	treatments, err := s.treatments.ListByAppointment(ctx, id)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, internalError(err, "failed to load treatments")
	}
	return treatments, nil
}

func (s *AppointmentService) lock(ctx context.Context, tx *sqlx.Tx, id string) (*models.Appointment, error) {
	appointment, err := s.appointments.LockByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "appointment not found")
		}
		return nil, internalError(err, "failed to load appointment")
	}
	return appointment, nil
}

func (s *AppointmentService) afterCommit(ctx context.Context, appointment *models.Appointment, eventType string, data map[string]string) {
	if appointment == nil {
		return
	}
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, appointment.DoctorID)
	}
	if s.publisher != nil {
		if data == nil {
			data = map[string]string{}
		}
		data["start"] = appointment.StartAt.Format(time.RFC3339)
		s.publisher.Publish(Event{
			Type:       eventType,
			SubjectID:  appointment.ID,
			Recipients: []string{appointment.DoctorID, appointment.PatientID},
			Data:       data,
		})
	}
}
