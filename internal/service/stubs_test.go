package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-api/internal/models"
)

type txProviderMock struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return &txProviderMock{db: sqlxdb, mock: mock}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type userLockStub struct {
	calls [][]string
	err   error
}

func (s *userLockStub) LockByIDs(ctx context.Context, exec sqlx.ExtContext, ids ...string) error {
	s.calls = append(s.calls, ids)
	return s.err
}

type scheduleRepoStub struct {
	slots map[string][]models.ScheduleSlot
}

func newScheduleRepoStub() *scheduleRepoStub {
	return &scheduleRepoStub{slots: map[string][]models.ScheduleSlot{}}
}

func (s *scheduleRepoStub) ListByEmployee(ctx context.Context, exec sqlx.ExtContext, employeeID string) ([]models.ScheduleSlot, error) {
	return append([]models.ScheduleSlot(nil), s.slots[employeeID]...), nil
}

func (s *scheduleRepoStub) FindByDay(ctx context.Context, employeeID string, day models.Weekday) (*models.ScheduleSlot, error) {
	for _, slot := range s.slots[employeeID] {
		if slot.DayOfWeek == day {
			copied := slot
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *scheduleRepoStub) Upsert(ctx context.Context, slot *models.ScheduleSlot) error {
	list := s.slots[slot.EmployeeID]
	for i := range list {
		if list[i].DayOfWeek == slot.DayOfWeek {
			slot.ID = list[i].ID
			list[i] = *slot
			return nil
		}
	}
	if slot.ID == "" {
		slot.ID = fmt.Sprintf("slot-%s-%s", slot.EmployeeID, slot.DayOfWeek)
	}
	s.slots[slot.EmployeeID] = append(list, *slot)
	return nil
}

func (s *scheduleRepoStub) Delete(ctx context.Context, employeeID string, day models.Weekday) error {
	list := s.slots[employeeID]
	for i := range list {
		if list[i].DayOfWeek == day {
			s.slots[employeeID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

type timeOffRepoStub struct {
	items   []models.TimeOff
	nextID  int
	updates int
}

func (s *timeOffRepoStub) Create(ctx context.Context, exec sqlx.ExtContext, timeOff *models.TimeOff) error {
	s.nextID++
	timeOff.ID = fmt.Sprintf("to-%d", s.nextID)
	if timeOff.Status == "" {
		timeOff.Status = models.TimeOffPending
	}
	s.items = append(s.items, *timeOff)
	return nil
}

func (s *timeOffRepoStub) FindByID(ctx context.Context, id string) (*models.TimeOff, error) {
	for _, item := range s.items {
		if item.ID == id {
			copied := item
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *timeOffRepoStub) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.TimeOff, error) {
	return s.FindByID(ctx, id)
}

func (s *timeOffRepoStub) Update(ctx context.Context, exec sqlx.ExtContext, timeOff *models.TimeOff) error {
	for i := range s.items {
		if s.items[i].ID == timeOff.ID {
			s.items[i] = *timeOff
			s.updates++
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *timeOffRepoStub) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	for i := range s.items {
		if s.items[i].ID == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *timeOffRepoStub) ListOverlapping(ctx context.Context, exec sqlx.ExtContext, employeeID string, from, to time.Time, statuses []models.TimeOffStatus, excludeID string) ([]models.TimeOff, error) {
	allowed := map[models.TimeOffStatus]bool{}
	for _, st := range statuses {
		allowed[st] = true
	}
	var out []models.TimeOff
	for _, item := range s.items {
		if item.EmployeeID != employeeID || item.ID == excludeID || !allowed[item.Status] {
			continue
		}
		if item.Overlaps(from, to) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *timeOffRepoStub) List(ctx context.Context, filter models.TimeOffFilter) ([]models.TimeOff, error) {
	var out []models.TimeOff
	for _, item := range s.items {
		if filter.EmployeeID != "" && item.EmployeeID != filter.EmployeeID {
			continue
		}
		if filter.Status != nil && item.Status != *filter.Status {
			continue
		}
		if filter.From != nil && item.EndAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && item.StartAt.After(*filter.To) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *timeOffRepoStub) ListActive(ctx context.Context, at time.Time) ([]models.TimeOff, error) {
	var out []models.TimeOff
	for _, item := range s.items {
		if item.Status == models.TimeOffApproved && !item.StartAt.After(at) && !item.EndAt.Before(at) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *timeOffRepoStub) LockExpiredPending(ctx context.Context, exec sqlx.ExtContext, cutoff time.Time) ([]models.TimeOff, error) {
	var out []models.TimeOff
	for _, item := range s.items {
		if item.Status == models.TimeOffPending && item.StartAt.Before(cutoff) {
			out = append(out, item)
		}
	}
	return out, nil
}

type appointmentRepoStub struct {
	mu        sync.Mutex
	items     []models.Appointment
	nextID    int
	createErr error
}

func (s *appointmentRepoStub) Create(ctx context.Context, exec sqlx.ExtContext, appointment *models.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	appointment.ID = fmt.Sprintf("appt-%d", s.nextID)
	appointment.EndAt = appointment.StartAt.Add(time.Duration(appointment.DurationMinutes) * time.Minute)
	s.items = append(s.items, *appointment)
	return nil
}

func (s *appointmentRepoStub) find(id string) (int, bool) {
	for i := range s.items {
		if s.items[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

func (s *appointmentRepoStub) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.find(id); ok {
		copied := s.items[i]
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *appointmentRepoStub) LockByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Appointment, error) {
	return s.FindByID(ctx, id)
}

func (s *appointmentRepoStub) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.find(id); ok {
		s.items = append(s.items[:i], s.items[i+1:]...)
		return nil
	}
	return sql.ErrNoRows
}

func (s *appointmentRepoStub) MarkDone(ctx context.Context, exec sqlx.ExtContext, id, visitNotes string, attachments []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.find(id); ok {
		s.items[i].IsDone = true
		s.items[i].Status = models.AppointmentDone
		s.items[i].VisitNotes = visitNotes
		s.items[i].Attachments = attachments
		return nil
	}
	return sql.ErrNoRows
}

func (s *appointmentRepoStub) HasOpenForPatient(ctx context.Context, exec sqlx.ExtContext, patientID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.PatientID == patientID && !item.IsDone {
			return true, nil
		}
	}
	return false, nil
}

func (s *appointmentRepoStub) ListByDoctorBetween(ctx context.Context, exec sqlx.ExtContext, doctorID string, from, to time.Time) ([]models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Appointment
	for _, item := range s.items {
		if item.DoctorID == doctorID && item.Overlaps(from, to) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out, nil
}

func (s *appointmentRepoStub) ListByPatient(ctx context.Context, patientID string) ([]models.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Appointment
	for _, item := range s.items {
		if item.PatientID == patientID {
			out = append(out, item)
		}
	}
	return out, nil
}

type invalidatorStub struct {
	employees []string
}

func (s *invalidatorStub) Invalidate(ctx context.Context, employeeID string) {
	s.employees = append(s.employees, employeeID)
}

type publisherStub struct {
	events []Event
}

func (s *publisherStub) Publish(event Event) {
	s.events = append(s.events, event)
}
