package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-api/internal/dto"
	"github.com/noah-isme/clinic-api/internal/models"
	appErrors "github.com/noah-isme/clinic-api/pkg/errors"
)

type scheduleReader interface {
	ListByEmployee(ctx context.Context, exec sqlx.ExtContext, employeeID string) ([]models.ScheduleSlot, error)
}

type timeOffReader interface {
	ListOverlapping(ctx context.Context, exec sqlx.ExtContext, employeeID string, from, to time.Time, statuses []models.TimeOffStatus, excludeID string) ([]models.TimeOff, error)
}

type appointmentReader interface {
	ListByDoctorBetween(ctx context.Context, exec sqlx.ExtContext, doctorID string, from, to time.Time) ([]models.Appointment, error)
}

// SnapshotLoader gathers the rows the resolver needs for one employee and day.
// Passing a transaction makes the reads see the same locked state the write will.
type SnapshotLoader struct {
	schedules    scheduleReader
	timeOffs     timeOffReader
	appointments appointmentReader
	resolver     *AvailabilityResolver
}

// NewSnapshotLoader constructs a loader.
func NewSnapshotLoader(schedules scheduleReader, timeOffs timeOffReader, appointments appointmentReader, resolver *AvailabilityResolver) *SnapshotLoader {
	return &SnapshotLoader{schedules: schedules, timeOffs: timeOffs, appointments: appointments, resolver: resolver}
}

// LoadDay returns the snapshot covering the clinic-local day that contains at.
func (l *SnapshotLoader) LoadDay(ctx context.Context, exec sqlx.ExtContext, employeeID string, at time.Time) (models.AvailabilitySnapshot, error) {
	from, to := l.resolver.DayBounds(at)

	schedule, err := l.schedules.ListByEmployee(ctx, exec, employeeID)
	if err != nil {
		return models.AvailabilitySnapshot{}, err
	}
	timeOffs, err := l.timeOffs.ListOverlapping(ctx, exec, employeeID, from, to, l.resolver.BlockingStatuses(), "")
	if err != nil {
		return models.AvailabilitySnapshot{}, err
	}
	appointments, err := l.appointments.ListByDoctorBetween(ctx, exec, employeeID, from, to)
	if err != nil {
		return models.AvailabilitySnapshot{}, err
	}
	return models.AvailabilitySnapshot{Schedule: schedule, TimeOffs: timeOffs, Appointments: appointments}, nil
}

// AvailabilityService serves slot listings and point checks, caching slot lists per day.
type AvailabilityService struct {
	directory *DirectoryService
	loader    *SnapshotLoader
	resolver  *AvailabilityResolver
	cache     *CacheService
	cacheTTL  time.Duration
	metrics   *MetricsService
	logger    *zap.Logger

	// generations counts invalidations per employee so a slot list computed
	// before a write is never cached after it.
	genMu       sync.Mutex
	generations map[string]uint64
}

// NewAvailabilityService constructs the service. cache and metrics may be nil.
func NewAvailabilityService(directory *DirectoryService, loader *SnapshotLoader, resolver *AvailabilityResolver, cache *CacheService, cacheTTL time.Duration, metrics *MetricsService, logger *zap.Logger) *AvailabilityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		directory:   directory,
		loader:      loader,
		resolver:    resolver,
		cache:       cache,
		cacheTTL:    cacheTTL,
		metrics:     metrics,
		logger:      logger,
		generations: map[string]uint64{},
	}
}

func (s *AvailabilityService) generation(employeeID string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[employeeID]
}

func availabilityKey(doctorID, date string, minutes int) string {
	return fmt.Sprintf("availability:%s:%s:%d", doctorID, date, minutes)
}

// Slots lists free windows for a doctor on a clinic-local date (YYYY-MM-DD).
func (s *AvailabilityService) Slots(ctx context.Context, doctorEmail, date string, minutes int) (*dto.AvailabilityResponse, error) {
	day, err := time.ParseInLocation("2006-01-02", date, s.resolver.Location())
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date must be formatted as YYYY-MM-DD")
	}
	if minutes <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "duration must be positive")
	}
	doctor, err := s.directory.ResolveDoctor(ctx, doctorEmail)
	if err != nil {
		return nil, err
	}

	resp := &dto.AvailabilityResponse{DoctorEmail: doctor.Email, Date: date, DurationMinutes: minutes}
	key := availabilityKey(doctor.ID, date, minutes)
	if hit, _ := s.cache.Get(ctx, key, &resp.Slots); hit {
		resp.Cached = true
		return resp, nil
	}

	gen := s.generation(doctor.ID)
	snapshot, err := s.loader.LoadDay(ctx, nil, doctor.ID, day)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	resp.Slots = s.resolver.AvailableSlots(snapshot, day, minutes)
	s.metrics.ObserveSlots(len(resp.Slots))
	s.storeSlots(ctx, doctor.ID, key, gen, resp.Slots)
	return resp, nil
}

// storeSlots caches slots unless the employee was invalidated after gen was read.
// An invalidation racing the write itself is caught by the second check.
func (s *AvailabilityService) storeSlots(ctx context.Context, employeeID, key string, gen uint64, slots []models.Slot) {
	if s.generation(employeeID) != gen {
		return
	}
	if err := s.cache.Set(ctx, key, slots, s.cacheTTL); err != nil {
		return
	}
	if s.generation(employeeID) != gen {
		_ = s.cache.Invalidate(ctx, key)
	}
}

// Check reports whether the doctor is working at start and whether the window is free.
func (s *AvailabilityService) Check(ctx context.Context, doctorEmail string, start time.Time, minutes int) (*dto.AvailabilityCheckResponse, error) {
	if minutes <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "duration must be positive")
	}
	doctor, err := s.directory.ResolveDoctor(ctx, doctorEmail)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.loader.LoadDay(ctx, nil, doctor.ID, start)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load availability")
	}
	return &dto.AvailabilityCheckResponse{
		DoctorEmail:     doctor.Email,
		StartTime:       start,
		DurationMinutes: minutes,
		Working:         s.resolver.IsWorking(snapshot, start),
		Available:       s.resolver.IsAvailable(snapshot, start, minutes),
	}, nil
}

// Invalidate drops every cached slot list of the employee.
func (s *AvailabilityService) Invalidate(ctx context.Context, employeeID string) {
	if s == nil {
		return
	}
	s.genMu.Lock()
	s.generations[employeeID]++
	s.genMu.Unlock()
	if err := s.cache.Invalidate(ctx, fmt.Sprintf("availability:%s:*", employeeID)); err != nil {
		s.logger.Warn("availability cache invalidation failed", zap.String("employee_id", employeeID), zap.Error(err))
	}
}
