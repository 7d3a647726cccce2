package service

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-api/internal/dto"
	"github.com/noah-isme/clinic-api/internal/models"
	appErrors "github.com/noah-isme/clinic-api/pkg/errors"
)

// Sunday 10:00 UTC, so the earliest bookable instant is Monday 2024-06-03 10:00 exclusive.
var bookingNow = time.Date(2024, 6, 2, 10, 0, 0, 0, time.UTC)

type appointmentFixture struct {
	svc          *AppointmentService
	mock         sqlmock.Sqlmock
	appointments *appointmentRepoStub
	schedules    *scheduleRepoStub
	timeOffs     *timeOffRepoStub
	treatments   *treatmentRepoStub
	locks        *userLockStub
	invalidator  *invalidatorStub
	publisher    *publisherStub
	metrics      *MetricsService
}

func secondPatient() *models.User {
	return &models.User{ID: "pat-2", Email: "pat2@clinic.test", Kind: models.KindPatient, Active: true, Patient: &models.PatientProfile{}}
}

func newAppointmentFixture(t *testing.T, cfg AppointmentConfig) *appointmentFixture {
	t.Helper()
	tx, mock := newTxProviderMock(t)
	f := &appointmentFixture{
		mock:         mock,
		appointments: &appointmentRepoStub{},
		schedules:    newScheduleRepoStub(),
		timeOffs:     &timeOffRepoStub{},
		treatments:   &treatmentRepoStub{},
		locks:        &userLockStub{},
		invalidator:  &invalidatorStub{},
		publisher:    &publisherStub{},
		metrics:      NewMetricsService(),
	}
	f.schedules.slots["doc-1"] = mondayShift()

	resolver := NewAvailabilityResolver(AvailabilityPolicy{})
	directory := NewDirectoryService(newUserRepoStub(doctorUser(), patientUser(), secondPatient(), staffUser()), nil)
	loader := NewSnapshotLoader(f.schedules, f.timeOffs, f.appointments, resolver)
	if cfg.MinAdvance == 0 {
		cfg.MinAdvance = 24 * time.Hour
	}
	f.svc = NewAppointmentService(f.appointments, f.locks, directory, loader, resolver,
		NewTreatmentService(f.treatments, nil), tx, cfg, nil, nil).
		WithHooks(f.invalidator, f.publisher, f.metrics)
	f.svc.now = func() time.Time { return bookingNow }
	return f
}

func bookingRequest(patientEmail string, start time.Time, minutes int) dto.ScheduleAppointmentRequest {
	return dto.ScheduleAppointmentRequest{
		DoctorEmail:     "doc@clinic.test",
		PatientEmail:    patientEmail,
		StartTime:       &start,
		DurationMinutes: minutes,
	}
}

func (f *appointmentFixture) expectCommit() {
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
}

func (f *appointmentFixture) expectRollback() {
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()
}

func TestScheduleAppointmentBooksAndBlocksInterval(t *testing.T) {
	f := newAppointmentFixture(t, AppointmentConfig{})
	start := at(monday, 11, 0)

	f.expectCommit()
	appt, err := f.svc.Schedule(context.Background(), bookingRequest("pat@clinic.test", start, 30))
	require.NoError(t, err)
	assert.Equal(t, models.AppointmentOpen, appt.Status)
	assert.False(t, appt.IsDone)
	assert.Equal(t, start.Add(30*time.Minute), appt.EndAt)
	assert.Equal(t, [][]string{{"doc-1", "pat-1"}}, f.locks.calls)

	// The identical interval is no longer available.
	snapshot, err := f.svc.loader.LoadDay(context.Background(), nil, "doc-1", start)
	require.NoError(t, err)
	assert.False(t, f.svc.resolver.IsAvailable(snapshot, start, 30))

	f.expectRollback()
	_, err = f.svc.Schedule(context.Background(), bookingRequest("pat2@clinic.test", start, 30))
	assert.Equal(t, appErrors.ErrDoctorUnavailable.Code, errorCode(t, err))

	assert.Equal(t, []string{"doc-1"}, f.invalidator.employees)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, EventAppointmentBooked, f.publisher.events[0].Type)
	assert.ElementsMatch(t, []string{"doc-1", "pat-1"}, f.publisher.events[0].Recipients)

	snap := f.metrics.Snapshot()
	assert.Equal(t, uint64(1), snap.BookingsAccepted)
	assert.Equal(t, uint64(1), snap.BookingsRejected)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestScheduleAppointmentBackToBack(t *testing.T) {
	f := newAppointmentFixture(t, AppointmentConfig{})

	f.expectCommit()
	_, err := f.svc.Schedule(context.Background(), bookingRequest("pat@clinic.test", at(monday, 11, 0), 30))
	require.NoError(t, err)

	f.expectCommit()
	_, err = f.svc.Schedule(context.Background(), bookingRequest("pat2@clinic.test", at(monday, 11, 30), 30))
	require.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestScheduleAppointmentDurationBounds(t *testing.T) {
	f := newAppointmentFixture(t, AppointmentConfig{})

	for _, minutes := range []int{29, 181, 0} {
		_, err := f.svc.Schedule(context.Background(), bookingRequest("pat@clinic.test", at(monday, 11, 0), minutes))
		assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err), "duration %d", minutes)
	}

	f.expectCommit()
	_, err := f.svc.Schedule(context.Background(), bookingRequest("pat@clinic.test", at(monday, 11, 0), 30))
	require.NoError(t, err)

	f.expectCommit()
	_, err = f.svc.Schedule(context.Background(), bookingRequest("pat2@clinic.test", at(monday, 13, 0), 180))
	require.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestScheduleAppointmentMinAdvanceIsStrict(t *testing.T) {
	f := newAppointmentFixture(t, AppointmentConfig{})
	cutoff := bookingNow.Add(24 * time.Hour)

	_, err := f.svc.Schedule(context.Background(), bookingRequest("pat@clinic.test", cutoff, 30))
	assert.Equal(t, appErrors.ErrInvalidBookingTime.Code, errorCode(t, err))

	_, err = f.svc.Schedule(context.Background(), bookingRequest("pat@clinic.test", cutoff.Add(-time.Minute), 30))
	assert.Equal(t, appErrors.ErrInvalidBookingTime.Code, errorCode(t, err))

	f.expectCommit()
	_, err = f.svc.Schedule(context.Background(), bookingRequest("pat@clinic.test", cutoff.Add(time.Minute), 30))
	require.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestScheduleAppointmentMaxAdvance(t *testing.T) {
	f := newAppointmentFixture(t, AppointmentConfig{MaxAdvanceMonths: 6})
	latest := bookingNow.AddDate(0, 6, 0)
	require.Equal(t, time.Monday, latest.Weekday())

	_, err := f.svc.Schedule(context.Background(), bookingRequest("pat@clinic.test", latest.Add(time.Minute), 30))
	assert.Equal(t, appErrors.ErrInvalidBookingTime.Code, errorCode(t, err))

	f.expectCommit()
	_, err = f.svc.Schedule(context.Background(), bookingRequest("pat@clinic.test", latest, 30))
	require.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestScheduleAppointmentOneOpenPerPatient(t *testing.T) {
	f := newAppointmentFixture(t, AppointmentConfig{})

	f.expectCommit()
	first, err := f.svc.Schedule(context.Background(), bookingRequest("pat@clinic.test", at(monday, 11, 0), 30))
	require.NoError(t, err)

	f.expectRollback()
	_, err = f.svc.Schedule(context.Background(), bookingRequest("pat@clinic.test", at(monday, 14, 0), 30))
	assert.Equal(t, appErrors.ErrPatientHasOpen.Code, errorCode(t, err))

	f.expectCommit()
	require.NoError(t, f.svc.Cancel(context.Background(), first.ID))

	f.expectCommit()
	_, err = f.svc.Schedule(context.Background(), bookingRequest("pat@clinic.test", at(monday, 14, 0), 30))
	require.NoError(t, err)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestScheduleAppointmentDoctorNotWorking(t *testing.T) {
	f := newAppointmentFixture(t, AppointmentConfig{})
	tuesday := monday.AddDate(0, 0, 1)

	f.expectRollback()
	_, err := f.svc.Schedule(context.Background(), bookingRequest("pat@clinic.test", at(tuesday, 10, 0), 30))
	assert.Equal(t, appErrors.ErrDoctorNotWorking.Code, errorCode(t, err))

	f.timeOffs.items = []models.TimeOff{{ID: "to-1", EmployeeID: "doc-1", StartAt: at(monday, 0, 0), EndAt: at(monday, 12, 0), Status: models.TimeOffApproved}}
	f.expectRollback()
	_, err = f.svc.Schedule(context.Background(), bookingRequest("pat@clinic.test", at(monday, 15, 0), 30))
	assert.Equal(t, appErrors.ErrDoctorNotWorking.Code, errorCode(t, err))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestScheduleAppointmentPastShiftEnd(t *testing.T) {
	f := newAppointmentFixture(t, AppointmentConfig{})

	f.expectRollback()
	_, err := f.svc.Schedule(context.Background(), bookingRequest("pat@clinic.test", at(monday, 16, 30), 60))
	assert.Equal(t, appErrors.ErrDoctorUnavailable.Code, errorCode(t, err))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestScheduleAppointmentResolvesParticipants(t *testing.T) {
	f := newAppointmentFixture(t, AppointmentConfig{})

	req := bookingRequest("pat@clinic.test", at(monday, 11, 0), 30)
	req.DoctorEmail = "ghost@clinic.test"
	_, err := f.svc.Schedule(context.Background(), req)
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))

	req = bookingRequest("staff@clinic.test", at(monday, 11, 0), 30)
	_, err = f.svc.Schedule(context.Background(), req)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	req = bookingRequest("pat@clinic.test", at(monday, 11, 0), 30)
	req.StartTime = nil
	_, err = f.svc.Schedule(context.Background(), req)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}

func TestScheduleAppointmentMapsConstraintViolations(t *testing.T) {
	f := newAppointmentFixture(t, AppointmentConfig{})
	f.appointments.createErr = &pq.Error{Code: "23P01", Constraint: "appointments_doctor_no_overlap"}

	f.expectRollback()
	_, err := f.svc.Schedule(context.Background(), bookingRequest("pat@clinic.test", at(monday, 11, 0), 30))
	assert.Equal(t, appErrors.ErrDoctorUnavailable.Code, errorCode(t, err))

	f.appointments.createErr = &pq.Error{Code: "23505", Constraint: "appointments_patient_open_key"}
	f.expectRollback()
	_, err = f.svc.Schedule(context.Background(), bookingRequest("pat@clinic.test", at(monday, 11, 0), 30))
	assert.Equal(t, appErrors.ErrPatientHasOpen.Code, errorCode(t, err))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func seedAppointment(f *appointmentFixture, done bool) string {
	appt := models.Appointment{
		DoctorID:        "doc-1",
		PatientID:       "pat-1",
		StartAt:         at(monday, 9, 0),
		DurationMinutes: 30,
		Status:          models.AppointmentOpen,
	}
	_ = f.appointments.Create(context.Background(), nil, &appt)
	if done {
		_ = f.appointments.MarkDone(context.Background(), nil, appt.ID, "", nil)
	}
	return appt.ID
}

func TestCancelAppointment(t *testing.T) {
	f := newAppointmentFixture(t, AppointmentConfig{})

	f.expectRollback()
	err := f.svc.Cancel(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))

	doneID := seedAppointment(f, true)
	f.expectRollback()
	err = f.svc.Cancel(context.Background(), doneID)
	assert.Equal(t, appErrors.ErrInvalidState.Code, errorCode(t, err))

	f.appointments.items = nil
	openID := seedAppointment(f, false)
	f.expectCommit()
	require.NoError(t, f.svc.Cancel(context.Background(), openID))
	assert.Empty(t, f.appointments.items)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, EventAppointmentCancelled, f.publisher.events[0].Type)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCancelCompletedAllowedByPolicy(t *testing.T) {
	f := newAppointmentFixture(t, AppointmentConfig{AllowCancelCompleted: true})
	doneID := seedAppointment(f, true)

	f.expectCommit()
	require.NoError(t, f.svc.Cancel(context.Background(), doneID))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCompleteAppointment(t *testing.T) {
	f := newAppointmentFixture(t, AppointmentConfig{})
	id := seedAppointment(f, false)

	f.expectCommit()
	resp, err := f.svc.Complete(context.Background(), id, dto.CompleteAppointmentRequest{
		Treatments: []dto.TreatmentDetail{{
			Description:   "root canal",
			Cost:          300,
			AmountPaid:    100,
			Prescriptions: []dto.PrescriptionDetail{{Medication: "ibuprofen"}},
		}},
		FilePaths:  []string{"xray.png"},
		VisitNotes: "follow-up in two weeks",
	})
	require.NoError(t, err)
	assert.True(t, resp.Appointment.IsDone)
	assert.Equal(t, models.AppointmentDone, resp.Appointment.Status)
	require.Len(t, resp.Treatments, 1)
	assert.Equal(t, 200.0, resp.Treatments[0].RemainingBalance)

	stored, err := f.appointments.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, stored.IsDone)
	assert.Equal(t, []string{"xray.png"}, []string(stored.Attachments))

	f.expectRollback()
	_, err = f.svc.Complete(context.Background(), id, dto.CompleteAppointmentRequest{Treatments: []dto.TreatmentDetail{{Description: "again", Cost: 1}}})
	assert.Equal(t, appErrors.ErrInvalidState.Code, errorCode(t, err))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCompleteAppointmentRejectsWithoutWrites(t *testing.T) {
	f := newAppointmentFixture(t, AppointmentConfig{})
	id := seedAppointment(f, false)

	f.expectRollback()
	_, err := f.svc.Complete(context.Background(), id, dto.CompleteAppointmentRequest{})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	f.expectRollback()
	_, err = f.svc.Complete(context.Background(), id, dto.CompleteAppointmentRequest{
		Treatments: []dto.TreatmentDetail{
			{Description: "cleaning", Cost: 50, AmountPaid: 50},
			{Description: "whitening", Cost: 100, AmountPaid: 150},
		},
	})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	f.expectRollback()
	_, err = f.svc.Complete(context.Background(), "missing", dto.CompleteAppointmentRequest{})
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))

	assert.Empty(t, f.treatments.created)
	stored, _ := f.appointments.FindByID(context.Background(), id)
	assert.False(t, stored.IsDone)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestAppointmentReads(t *testing.T) {
	f := newAppointmentFixture(t, AppointmentConfig{})
	id := seedAppointment(f, false)
	f.treatments.stored = map[string][]models.Treatment{id: {{ID: "tr-1", AppointmentID: id}}}

	appt, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", appt.DoctorID)

	_, err = f.svc.Get(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, errorCode(t, err))

	from := monday
	list, err := f.svc.ListByDoctor(context.Background(), "doc@clinic.test", dto.AppointmentRangeQuery{From: &from})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	to := from.Add(-time.Hour)
	_, err = f.svc.ListByDoctor(context.Background(), "doc@clinic.test", dto.AppointmentRangeQuery{From: &from, To: &to})
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	mine, err := f.svc.ListByPatient(context.Background(), "pat@clinic.test")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	treatments, err := f.svc.Treatments(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, treatments, 1)
}
