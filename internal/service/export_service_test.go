package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clinic-api/internal/models"
	appErrors "github.com/noah-isme/clinic-api/pkg/errors"
	"github.com/noah-isme/clinic-api/pkg/export"
)

type pdfRendererStub struct {
	last export.Dataset
	err  error
}

func (s *pdfRendererStub) Render(data export.Dataset) ([]byte, error) {
	s.last = data
	return []byte("%PDF-stub"), s.err
}

func newExportFixture() (*ExportService, *appointmentRepoStub, *pdfRendererStub) {
	repo := &appointmentRepoStub{}
	pdf := &pdfRendererStub{}
	directory := NewDirectoryService(newUserRepoStub(doctorUser(), patientUser()), nil)
	resolver := NewAvailabilityResolver(AvailabilityPolicy{})
	return NewExportService(directory, repo, resolver, nil, nil, pdf), repo, pdf
}

func TestExportAgendaCSV(t *testing.T) {
	svc, repo, _ := newExportFixture()
	for _, start := range []int{14, 9} {
		appt := models.Appointment{DoctorID: "doc-1", PatientID: "pat-1", StartAt: at(monday, start, 0), DurationMinutes: 30, Status: models.AppointmentOpen}
		require.NoError(t, repo.Create(context.Background(), nil, &appt))
	}
	other := models.Appointment{DoctorID: "doc-1", PatientID: "pat-1", StartAt: at(monday.AddDate(0, 0, 1), 9, 0), DurationMinutes: 30}
	require.NoError(t, repo.Create(context.Background(), nil, &other))

	result, err := svc.Agenda(context.Background(), "doc@clinic.test", "2024-06-03", "csv")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Rows)
	assert.Equal(t, "agenda_doc_at_clinic.test_2024-06-03.csv", result.Filename)
	assert.Equal(t, "text/csv; charset=utf-8", result.ContentType)

	lines := strings.Split(strings.TrimSpace(string(result.Data)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "09:00,09:30,30,Pat Doe,pat@clinic.test,OPEN"))
	assert.True(t, strings.HasPrefix(lines[2], "14:00,14:30"))
}

func TestExportAgendaPDF(t *testing.T) {
	svc, _, pdf := newExportFixture()

	result, err := svc.Agenda(context.Background(), "doc@clinic.test", "2024-06-03", "PDF")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.Equal(t, 0, result.Rows)
	assert.Equal(t, "Agenda 2024-06-03 - Dr. Grey", pdf.last.Title)

	pdf.err = errors.New("font missing")
	_, err = svc.Agenda(context.Background(), "doc@clinic.test", "2024-06-03", "pdf")
	assert.Equal(t, appErrors.ErrInternal.Code, errorCode(t, err))
}

func TestExportAgendaValidation(t *testing.T) {
	svc, _, _ := newExportFixture()

	_, err := svc.Agenda(context.Background(), "doc@clinic.test", "2024-06-03", "xlsx")
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	_, err = svc.Agenda(context.Background(), "doc@clinic.test", "03/06/2024", "csv")
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))

	_, err = svc.Agenda(context.Background(), "pat@clinic.test", "2024-06-03", "csv")
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(t, err))
}
