package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-api/internal/dto"
	"github.com/noah-isme/clinic-api/internal/models"
	appErrors "github.com/noah-isme/clinic-api/pkg/errors"
)

type workScheduleRepository interface {
	scheduleReader
	Upsert(ctx context.Context, slot *models.ScheduleSlot) error
	Delete(ctx context.Context, employeeID string, day models.Weekday) error
}

var weekdayOrder = map[models.Weekday]int{
	models.Monday:    0,
	models.Tuesday:   1,
	models.Wednesday: 2,
	models.Thursday:  3,
	models.Friday:    4,
	models.Saturday:  5,
	models.Sunday:    6,
}

// WorkScheduleService maintains the weekly working hours of employees.
type WorkScheduleService struct {
	repo        workScheduleRepository
	directory   *DirectoryService
	invalidator availabilityInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewWorkScheduleService constructs the service. invalidator may be nil.
func NewWorkScheduleService(repo workScheduleRepository, directory *DirectoryService, invalidator availabilityInvalidator, validate *validator.Validate, logger *zap.Logger) *WorkScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkScheduleService{repo: repo, directory: directory, invalidator: invalidator, validator: validate, logger: logger}
}

// List returns the employee's week ordered Monday first.
func (s *WorkScheduleService) List(ctx context.Context, employeeEmail string) ([]models.ScheduleSlot, error) {
	employee, err := s.directory.ResolveEmployee(ctx, employeeEmail)
	if err != nil {
		return nil, err
	}
	slots, err := s.repo.ListByEmployee(ctx, nil, employee.ID)
	if err != nil {
		return nil, internalError(err, "failed to load work schedule")
	}
	sort.SliceStable(slots, func(i, j int) bool {
		return weekdayOrder[slots[i].DayOfWeek] < weekdayOrder[slots[j].DayOfWeek]
	})
	return nonNil(slots), nil
}

// Upsert sets the working hours for one day, replacing any existing slot.
func (s *WorkScheduleService) Upsert(ctx context.Context, employeeEmail, dayName string, req dto.UpsertScheduleSlotRequest) (*models.ScheduleSlot, error) {
	day, ok := models.ParseWeekday(dayName)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown day of week %q", dayName))
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "times must be formatted as HH:MM")
	}
	slot := &models.ScheduleSlot{DayOfWeek: day, StartTime: req.StartTime, EndTime: req.EndTime}
	start, end, err := slot.Bounds()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "times must be formatted as HH:MM")
	}
	if end <= start {
		return nil, appErrors.Clone(appErrors.ErrValidation, "end time must be after start time")
	}

	employee, err := s.directory.ResolveEmployee(ctx, employeeEmail)
	if err != nil {
		return nil, err
	}
	slot.EmployeeID = employee.ID
	if err := s.repo.Upsert(ctx, slot); err != nil {
		return nil, internalError(err, "failed to save work schedule")
	}

	s.logger.Info("work schedule saved",
		zap.String("employee_id", employee.ID),
		zap.String("day", string(day)),
		zap.String("start", slot.StartTime),
		zap.String("end", slot.EndTime),
	)
	s.invalidate(ctx, employee.ID)
	return slot, nil
}

// Delete removes the slot of one day.
func (s *WorkScheduleService) Delete(ctx context.Context, employeeEmail, dayName string) error {
	day, ok := models.ParseWeekday(dayName)
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown day of week %q", dayName))
	}
	employee, err := s.directory.ResolveEmployee(ctx, employeeEmail)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, employee.ID, day); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "no schedule for that day")
		}
		return internalError(err, "failed to delete work schedule")
	}
	s.logger.Info("work schedule removed", zap.String("employee_id", employee.ID), zap.String("day", string(day)))
	s.invalidate(ctx, employee.ID)
	return nil
}

func (s *WorkScheduleService) invalidate(ctx context.Context, employeeID string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, employeeID)
	}
}
