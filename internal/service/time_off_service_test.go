package service

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-api/internal/dto"
	"github.com/noah-isme/clinic-api/internal/models"
	appErrors "github.com/noah-isme/clinic-api/pkg/errors"
)

type timeOffFixture struct {
	svc         *TimeOffService
	mock        sqlmock.Sqlmock
	repo        *timeOffRepoStub
	locks       *userLockStub
	invalidator *invalidatorStub
	publisher   *publisherStub
}

func newTimeOffFixture(t *testing.T) *timeOffFixture {
	t.Helper()
	tx, mock := newTxProviderMock(t)
	f := &timeOffFixture{
		mock:        mock,
		repo:        &timeOffRepoStub{},
		locks:       &userLockStub{},
		invalidator: &invalidatorStub{},
		publisher:   &publisherStub{},
	}
	directory := NewDirectoryService(newUserRepoStub(doctorUser(), patientUser(), staffUser()), nil)
	f.svc = NewTimeOffService(f.repo, f.locks, directory, tx, TimeOffConfig{}, nil, nil).
		WithHooks(f.invalidator, f.publisher, nil)
	f.svc.now = func() time.Time { return bookingNow }
	return f
}

func (f *timeOffFixture) expectCommit() {
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
}

func (f *timeOffFixture) expectRollback() {
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
}

func timeOffRequest(email string, start, end time.Time) dto.CreateTimeOffRequest {
	return dto.CreateTimeOffRequest{EmployeeEmail: email, StartTime: &start, EndTime: &end, Reason: "conference"}
}

func TestCreateTimeOffPersistsPending(t *testing.T) {
	f := newTimeOffFixture(t)

	f.expectCommit()
	created, err := f.svc.Create(context.Background(), timeOffRequest("doc@clinic.test", at(monday, 9, 0), at(monday, 12, 0)))
	require.NoError(t, err)
	assert.Equal(t, models.TimeOffPending, created.Status)
	assert.Equal(t, "doc-1", created.EmployeeID)
	assert.Equal(t, [][]string{{"doc-1"}}, f.locks.calls)
	assert.Equal(t, []string{"doc-1"}, f.invalidator.employees)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, EventTimeOffRequested, f.publisher.events[0].Type)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateTimeOffAdjacentAcceptedOverlapRejected(t *testing.T) {
	f := newTimeOffFixture(t)

	f.expectCommit()
	_, err := f.svc.Create(context.Background(), timeOffRequest("doc@clinic.test", at(monday, 9, 0), at(monday, 12, 0)))
	require.NoError(t, err)

	f.expectCommit()
	_, err = f.svc.Create(context.Background(), timeOffRequest("doc@clinic.test", at(monday, 12, 0), at(monday, 15, 0)))
	require.NoError(t, err)

	f.expectRollback()
	_, err = f.svc.Create(context.Background(), timeOffRequest("doc@clinic.test", at(monday, 11, 0), at(monday, 13, 0)))
	assert.Equal(t, appErrors.ErrTimeOffOverlap.Code, errorCode(t, err))

	// Declined requests do not block.
	f.repo.items[0].Status = models.TimeOffDeclined
	f.expectCommit()
	_, err = f.svc.Create(context.Background(), timeOffRequest("doc@clinic.test", at(monday, 10, 0), at(monday, 11, 0)))
	require.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateTimeOffValidation(t *testing.T) {
	f := newTimeOffFixture(t)

	_, err := f.svc.Create(context.Background(), timeOffRequest("doc@clinic.test", at(monday, 12, 0), at(monday, 12, 0)))
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	_, err = f.svc.Create(context.Background(), timeOffRequest("doc@clinic.test", bookingNow.Add(-25*time.Hour), bookingNow))
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	_, err = f.svc.Create(context.Background(), timeOffRequest("pat@clinic.test", at(monday, 9, 0), at(monday, 12, 0)))
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	_, err = f.svc.Create(context.Background(), timeOffRequest("nobody@clinic.test", at(monday, 9, 0), at(monday, 12, 0)))
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))

	f.expectCommit()
	_, err = f.svc.Create(context.Background(), timeOffRequest("staff@clinic.test", bookingNow.Add(-23*time.Hour), bookingNow))
	require.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpdateTimeOffExcludesItself(t *testing.T) {
	f := newTimeOffFixture(t)

	f.expectCommit()
	created, err := f.svc.Create(context.Background(), timeOffRequest("doc@clinic.test", at(monday, 9, 0), at(monday, 12, 0)))
	require.NoError(t, err)

	start, end := at(monday, 10, 0), at(monday, 13, 0)
	f.expectCommit()
	updated, err := f.svc.Update(context.Background(), created.ID, dto.UpdateTimeOffRequest{StartTime: &start, EndTime: &end, Reason: "moved"})
	require.NoError(t, err)
	assert.Equal(t, end, updated.EndAt)
	assert.Equal(t, "moved", updated.Reason)

	f.repo.items[0].Status = models.TimeOffApproved
	f.expectRollback()
	_, err = f.svc.Update(context.Background(), created.ID, dto.UpdateTimeOffRequest{StartTime: &start, EndTime: &end})
	assert.Equal(t, appErrors.ErrInvalidState.Code, errorCode(t, err))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpdateTimeOffStatus(t *testing.T) {
	f := newTimeOffFixture(t)

	f.expectCommit()
	created, err := f.svc.Create(context.Background(), timeOffRequest("doc@clinic.test", at(monday, 9, 0), at(monday, 12, 0)))
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(context.Background(), created.ID, dto.UpdateTimeOffStatusRequest{Status: models.TimeOffPending}, "staff@clinic.test")
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	_, err = f.svc.UpdateStatus(context.Background(), created.ID, dto.UpdateTimeOffStatusRequest{Status: models.TimeOffApproved}, "pat@clinic.test")
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	f.expectCommit()
	approved, err := f.svc.UpdateStatus(context.Background(), created.ID, dto.UpdateTimeOffStatusRequest{Status: models.TimeOffApproved, ApprovalNotes: "enjoy"}, "staff@clinic.test")
	require.NoError(t, err)
	assert.Equal(t, models.TimeOffApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, "staff-1", *approved.ApprovedBy)
	require.NotNil(t, approved.ApprovalNotes)
	assert.Equal(t, "enjoy", *approved.ApprovalNotes)
	assert.Equal(t, EventTimeOffDecided, f.publisher.events[len(f.publisher.events)-1].Type)

	f.expectRollback()
	_, err = f.svc.UpdateStatus(context.Background(), created.ID, dto.UpdateTimeOffStatusRequest{Status: models.TimeOffDeclined}, "staff@clinic.test")
	assert.Equal(t, appErrors.ErrInvalidState.Code, errorCode(t, err))

	_, err = f.svc.UpdateStatus(context.Background(), "missing", dto.UpdateTimeOffStatusRequest{Status: models.TimeOffDeclined}, "staff@clinic.test")
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDeleteTimeOff(t *testing.T) {
	f := newTimeOffFixture(t)
	f.repo.items = []models.TimeOff{
		{ID: "to-a", EmployeeID: "doc-1", StartAt: at(monday, 9, 0), EndAt: at(monday, 10, 0), Status: models.TimeOffApproved},
		{ID: "to-b", EmployeeID: "doc-1", StartAt: at(monday, 11, 0), EndAt: at(monday, 12, 0), Status: models.TimeOffDeclined},
	}

	f.expectRollback()
	err := f.svc.Delete(context.Background(), "to-a")
	assert.Equal(t, appErrors.ErrInvalidState.Code, errorCode(t, err))

	f.expectCommit()
	require.NoError(t, f.svc.Delete(context.Background(), "to-b"))
	assert.Len(t, f.repo.items, 1)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDeclineExpiredPending(t *testing.T) {
	f := newTimeOffFixture(t)
	f.repo.items = []models.TimeOff{
		{ID: "to-old", EmployeeID: "doc-1", StartAt: bookingNow.Add(-25 * time.Hour), EndAt: bookingNow.Add(time.Hour), Status: models.TimeOffPending},
		{ID: "to-new", EmployeeID: "doc-1", StartAt: bookingNow.Add(2 * time.Hour), EndAt: bookingNow.Add(3 * time.Hour), Status: models.TimeOffPending},
		{ID: "to-ok", EmployeeID: "staff-1", StartAt: bookingNow.Add(-30 * time.Hour), EndAt: bookingNow.Add(time.Hour), Status: models.TimeOffApproved},
	}

	f.expectCommit()
	count, err := f.svc.DeclineExpiredPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	old, err := f.svc.Get(context.Background(), "to-old")
	require.NoError(t, err)
	assert.Equal(t, models.TimeOffDeclined, old.Status)
	assert.Nil(t, old.ApprovedBy)
	require.NotNil(t, old.ApprovalNotes)
	assert.Equal(t, "expired before review", *old.ApprovalNotes)

	fresh, _ := f.svc.Get(context.Background(), "to-new")
	assert.Equal(t, models.TimeOffPending, fresh.Status)

	f.expectCommit()
	count, err = f.svc.DeclineExpiredPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestBackdatedTimeOffSurvivesSweepAndCanBeApproved(t *testing.T) {
	f := newTimeOffFixture(t)

	f.expectCommit()
	sickLeave, err := f.svc.Create(context.Background(), timeOffRequest("doc@clinic.test", bookingNow.Add(-2*time.Hour), bookingNow.Add(6*time.Hour)))
	require.NoError(t, err)
	require.Equal(t, models.TimeOffPending, sickLeave.Status)

	f.expectCommit()
	count, err := f.svc.DeclineExpiredPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)

	f.expectCommit()
	approved, err := f.svc.UpdateStatus(context.Background(), sickLeave.ID, dto.UpdateTimeOffStatusRequest{Status: models.TimeOffApproved}, "staff@clinic.test")
	require.NoError(t, err)
	assert.Equal(t, models.TimeOffApproved, approved.Status)

	// once the start falls outside the backdate window an unreviewed request expires
	f.svc.now = func() time.Time { return bookingNow.Add(23 * time.Hour) }
	f.expectCommit()
	late, err := f.svc.Create(context.Background(), timeOffRequest("doc@clinic.test", bookingNow.Add(22*time.Hour), bookingNow.Add(30*time.Hour)))
	require.NoError(t, err)

	f.svc.now = func() time.Time { return bookingNow.Add(47 * time.Hour) }
	f.expectCommit()
	count, err = f.svc.DeclineExpiredPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	expired, err := f.svc.Get(context.Background(), late.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TimeOffDeclined, expired.Status)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestTimeOffQueries(t *testing.T) {
	f := newTimeOffFixture(t)
	f.repo.items = []models.TimeOff{
		{ID: "to-1", EmployeeID: "doc-1", StartAt: bookingNow.Add(-time.Hour), EndAt: bookingNow.Add(time.Hour), Status: models.TimeOffApproved},
		{ID: "to-2", EmployeeID: "doc-1", StartAt: at(monday, 9, 0), EndAt: at(monday, 10, 0), Status: models.TimeOffPending},
		{ID: "to-3", EmployeeID: "staff-1", StartAt: at(monday, 9, 0), EndAt: at(monday, 10, 0), Status: models.TimeOffPending},
	}
	ctx := context.Background()

	active, err := f.svc.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "to-1", active[0].ID)

	pending, err := f.svc.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	_, err = f.svc.ListByStatus(ctx, models.TimeOffStatus("LOST"))
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	status := models.TimeOffPending
	mine, err := f.svc.ListByEmployee(ctx, "doc@clinic.test", dto.TimeOffQuery{Status: &status})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "to-2", mine[0].ID)

	from, to := at(monday, 0, 0), at(monday, 23, 0)
	ranged, err := f.svc.ListByEmployee(ctx, "doc@clinic.test", dto.TimeOffQuery{From: &from, To: &to})
	require.NoError(t, err)
	assert.Len(t, ranged, 1)

	_, err = f.svc.ListByEmployee(ctx, "doc@clinic.test", dto.TimeOffQuery{From: &to, To: &from})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	none, err := f.svc.ListByEmployee(ctx, "staff@clinic.test", dto.TimeOffQuery{Status: statusPtr(models.TimeOffApproved)})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func statusPtr(s models.TimeOffStatus) *models.TimeOffStatus {
	return &s
}
