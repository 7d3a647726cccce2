package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-api/internal/dto"
	"github.com/noah-isme/clinic-api/internal/models"
	appErrors "github.com/noah-isme/clinic-api/pkg/errors"
)

const expiredTimeOffNotes = "expired before review"

type timeOffRepository interface {
	timeOffReader
	Create(ctx context.Context, exec sqlx.ExtContext, timeOff *models.TimeOff) error
	FindByID(ctx context.Context, id string) (*models.TimeOff, error)
	LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeOff, error)
	Update(ctx context.Context, exec sqlx.ExtContext, timeOff *models.TimeOff) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	List(ctx context.Context, filter models.TimeOffFilter) ([]models.TimeOff, error)
	ListActive(ctx context.Context, at time.Time) ([]models.TimeOff, error)
	LockExpiredPending(ctx context.Context, exec sqlx.ExtContext, cutoff time.Time) ([]models.TimeOff, error)
}

// TimeOffConfig holds the time-off validation rules.
type TimeOffConfig struct {
	MaxBackdate time.Duration
}

// TimeOffService manages employee absence requests and their review.
type TimeOffService struct {
	repo      timeOffRepository
	users     userLocker
	directory *DirectoryService
	tx        txProvider
	cfg       TimeOffConfig
	validator *validator.Validate
	logger    *zap.Logger

	invalidator availabilityInvalidator
	publisher   eventPublisher
	metrics     *MetricsService
	now         func() time.Time
}

// NewTimeOffService constructs the service.
func NewTimeOffService(repo timeOffRepository, users userLocker, directory *DirectoryService, tx txProvider, cfg TimeOffConfig, validate *validator.Validate, logger *zap.Logger) *TimeOffService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxBackdate <= 0 {
		cfg.MaxBackdate = 24 * time.Hour
	}
	return &TimeOffService{
		repo:      repo,
		users:     users,
		directory: directory,
		tx:        tx,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// WithHooks attaches the optional post-commit collaborators.
func (s *TimeOffService) WithHooks(invalidator availabilityInvalidator, publisher eventPublisher, metrics *MetricsService) *TimeOffService {
	s.invalidator = invalidator
	s.publisher = publisher
	s.metrics = metrics
	return s
}

// blockingTimeOff lists the statuses that keep a new request from overlapping.
var blockingTimeOff = []models.TimeOffStatus{models.TimeOffPending, models.TimeOffApproved}

// Create files a PENDING request for an employee.
func (s *TimeOffService) Create(ctx context.Context, req dto.CreateTimeOffRequest) (*models.TimeOff, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time-off payload")
	}
	if err := s.validateRange(*req.StartTime, *req.EndTime); err != nil {
		return nil, err
	}
	employee, err := s.directory.ResolveEmployee(ctx, req.EmployeeEmail)
	if err != nil {
		return nil, err
	}

	timeOff := &models.TimeOff{
		EmployeeID: employee.ID,
		StartAt:    req.StartTime.UTC(),
		EndAt:      req.EndTime.UTC(),
		Reason:     req.Reason,
		Status:     models.TimeOffPending,
	}
	err = runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.users.LockByIDs(ctx, tx, employee.ID); err != nil {
			return internalError(err, "failed to lock employee")
		}
		if err := s.ensureNoOverlap(ctx, tx, timeOff, ""); err != nil {
			return err
		}
		if err := s.repo.Create(ctx, tx, timeOff); err != nil {
			if mapped, ok := constraintError(err); ok {
				return mapped
			}
			return internalError(err, "failed to create time-off")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("time-off requested", zap.String("time_off_id", timeOff.ID), zap.String("employee_id", employee.ID))
	s.metrics.RecordTimeOffTransition(models.TimeOffPending)
	s.afterCommit(ctx, timeOff, EventTimeOffRequested)
	return timeOff, nil
}

// Update edits the window and reason of a PENDING request.
func (s *TimeOffService) Update(ctx context.Context, id string, req dto.UpdateTimeOffRequest) (*models.TimeOff, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid time-off payload")
	}
	if err := s.validateRange(*req.StartTime, *req.EndTime); err != nil {
		return nil, err
	}

	timeOff, err := s.mutate(ctx, id, func(tx *sqlx.Tx, current *models.TimeOff) error {
		if current.Status != models.TimeOffPending {
			return appErrors.Clone(appErrors.ErrInvalidState, "only pending time-off can be edited")
		}
		current.StartAt = req.StartTime.UTC()
		current.EndAt = req.EndTime.UTC()
		current.Reason = req.Reason
		if err := s.ensureNoOverlap(ctx, tx, current, current.ID); err != nil {
			return err
		}
		return s.update(ctx, tx, current)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("time-off updated", zap.String("time_off_id", id))
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, timeOff.EmployeeID)
	}
	return timeOff, nil
}

// UpdateStatus approves or declines a PENDING request on behalf of approverEmail.
func (s *TimeOffService) UpdateStatus(ctx context.Context, id string, req dto.UpdateTimeOffStatusRequest, approverEmail string) (*models.TimeOff, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "status must be APPROVED or DECLINED")
	}
	approver, err := s.directory.ResolveEmployee(ctx, approverEmail)
	if err != nil {
		return nil, err
	}

	timeOff, err := s.mutate(ctx, id, func(tx *sqlx.Tx, current *models.TimeOff) error {
		if current.Status != models.TimeOffPending {
			return appErrors.Clone(appErrors.ErrInvalidState, "time-off has already been reviewed")
		}
		current.Status = req.Status
		current.ApprovedBy = &approver.ID
		current.ApprovalNotes = optionalString(req.ApprovalNotes)
		return s.update(ctx, tx, current)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("time-off reviewed",
		zap.String("time_off_id", id),
		zap.String("status", string(timeOff.Status)),
		zap.String("approver_id", approver.ID),
	)
	s.metrics.RecordTimeOffTransition(timeOff.Status)
	s.afterCommit(ctx, timeOff, EventTimeOffDecided)
	return timeOff, nil
}

// Delete withdraws a request. Approved time-off cannot be deleted.
func (s *TimeOffService) Delete(ctx context.Context, id string) error {
	timeOff, err := s.mutate(ctx, id, func(tx *sqlx.Tx, current *models.TimeOff) error {
		if current.Status == models.TimeOffApproved {
			return appErrors.Clone(appErrors.ErrInvalidState, "approved time-off cannot be deleted")
		}
		if err := s.repo.Delete(ctx, tx, current.ID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "time-off not found")
			}
			return internalError(err, "failed to delete time-off")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("time-off deleted", zap.String("time_off_id", id))
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, timeOff.EmployeeID)
	}
	return nil
}

// DeclineExpiredPending declines PENDING requests that start before the backdate window,
// the same bound Create enforces, and returns how many were declined. Requests still
// inside the window stay reviewable. Rows held by concurrent reviews are skipped.
func (s *TimeOffService) DeclineExpiredPending(ctx context.Context) (int, error) {
	var expired []models.TimeOff
	err := runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		var err error
		expired, err = s.repo.LockExpiredPending(ctx, tx, s.expiryCutoff())
		if err != nil {
			return internalError(err, "failed to load expired time-off")
		}
		for i := range expired {
			expired[i].Status = models.TimeOffDeclined
			expired[i].ApprovedBy = nil
			expired[i].ApprovalNotes = optionalString(expiredTimeOffNotes)
			if err := s.update(ctx, tx, &expired[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for i := range expired {
		s.metrics.RecordTimeOffTransition(models.TimeOffDeclined)
		s.afterCommit(ctx, &expired[i], EventTimeOffDecided)
	}
	if len(expired) > 0 {
		s.logger.Info("expired time-off declined", zap.Int("count", len(expired)))
	}
	return len(expired), nil
}

// Get returns one request.
func (s *TimeOffService) Get(ctx context.Context, id string) (*models.TimeOff, error) {
	timeOff, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "time-off not found")
		}
		return nil, internalError(err, "failed to load time-off")
	}
	return timeOff, nil
}

// ListByEmployee returns an employee's requests, optionally filtered by status and range.
func (s *TimeOffService) ListByEmployee(ctx context.Context, employeeEmail string, query dto.TimeOffQuery) ([]models.TimeOff, error) {
	if query.Status != nil && !query.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown time-off status")
	}
	if query.From != nil && query.To != nil && !query.To.After(*query.From) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must be after from")
	}
	employee, err := s.directory.ResolveEmployee(ctx, employeeEmail)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, models.TimeOffFilter{EmployeeID: employee.ID, Status: query.Status, From: query.From, To: query.To})
}

// ListByStatus returns every request with the given status.
func (s *TimeOffService) ListByStatus(ctx context.Context, status models.TimeOffStatus) ([]models.TimeOff, error) {
	if !status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown time-off status")
	}
	return s.list(ctx, models.TimeOffFilter{Status: &status})
}

// ListPending returns requests awaiting review.
func (s *TimeOffService) ListPending(ctx context.Context) ([]models.TimeOff, error) {
	return s.ListByStatus(ctx, models.TimeOffPending)
}

// ListActive returns approved time-off covering the current instant.
func (s *TimeOffService) ListActive(ctx context.Context) ([]models.TimeOff, error) {
	items, err := s.repo.ListActive(ctx, s.now().UTC())
	if err != nil {
		return nil, internalError(err, "failed to list active time-off")
	}
	return nonNil(items), nil
}

func (s *TimeOffService) list(ctx context.Context, filter models.TimeOffFilter) ([]models.TimeOff, error) {
	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list time-off")
	}
	return nonNil(items), nil
}

// expiryCutoff is the earliest start a request may have and still be created or reviewed.
func (s *TimeOffService) expiryCutoff() time.Time {
	return s.now().UTC().Add(-s.cfg.MaxBackdate)
}

func (s *TimeOffService) validateRange(start, end time.Time) error {
	if !start.Before(end) {
		return appErrors.Clone(appErrors.ErrValidation, "start time must be before end time")
	}
	if start.Before(s.expiryCutoff()) {
		return appErrors.Clone(appErrors.ErrValidation, "start time is too far in the past")
	}
	return nil
}

func (s *TimeOffService) ensureNoOverlap(ctx context.Context, tx *sqlx.Tx, timeOff *models.TimeOff, excludeID string) error {
	existing, err := s.repo.ListOverlapping(ctx, tx, timeOff.EmployeeID, timeOff.StartAt, timeOff.EndAt, blockingTimeOff, excludeID)
	if err != nil {
		return internalError(err, "failed to check overlapping time-off")
	}
	if len(existing) > 0 {
		return appErrors.Clone(appErrors.ErrTimeOffOverlap, "")
	}
	return nil
}

func (s *TimeOffService) update(ctx context.Context, tx *sqlx.Tx, timeOff *models.TimeOff) error {
	if err := s.repo.Update(ctx, tx, timeOff); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "time-off not found")
		}
		return internalError(err, "failed to update time-off")
	}
	return nil
}

// mutate locks the owning employee, then the request, and runs fn on the locked row.
func (s *TimeOffService) mutate(ctx context.Context, id string, fn func(tx *sqlx.Tx, current *models.TimeOff) error) (*models.TimeOff, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var current *models.TimeOff
	err = runInTx(ctx, s.tx, func(tx *sqlx.Tx) error {
		if err := s.users.LockByIDs(ctx, tx, existing.EmployeeID); err != nil {
			return internalError(err, "failed to lock employee")
		}
		var err error
		current, err = s.repo.LockByID(ctx, tx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "time-off not found")
			}
			return internalError(err, "failed to load time-off")
		}
		return fn(tx, current)
	})
	if err != nil {
		return nil, err
	}
	return current, nil
}

func (s *TimeOffService) afterCommit(ctx context.Context, timeOff *models.TimeOff, eventType string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, timeOff.EmployeeID)
	}
	if s.publisher != nil {
		s.publisher.Publish(Event{
			Type:       eventType,
			SubjectID:  timeOff.ID,
			Recipients: []string{timeOff.EmployeeID},
			Data: map[string]string{
				"status": string(timeOff.Status),
				"start":  timeOff.StartAt.Format(time.RFC3339),
				"end":    timeOff.EndAt.Format(time.RFC3339),
			},
		})
	}
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
