package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clinic-api/internal/models"
	appErrors "github.com/noah-isme/clinic-api/pkg/errors"
	"github.com/noah-isme/clinic-api/pkg/export"
)

var agendaHeaders = []string{"Start", "End", "Minutes", "Patient", "Patient Email", "Status", "Visit Notes"}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportResult is a rendered document ready to be served.
type ExportResult struct {
	Filename    string
	ContentType string
	Data        []byte
	Rows        int
}

// ExportService renders a doctor's daily agenda as CSV or PDF.
type ExportService struct {
	directory    *DirectoryService
	appointments appointmentReader
	resolver     *AvailabilityResolver
	csv          csvRenderer
	pdf          pdfRenderer
	logger       *zap.Logger
}

// NewExportService constructs an ExportService. Nil renderers use the defaults.
func NewExportService(directory *DirectoryService, appointments appointmentReader, resolver *AvailabilityResolver, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter(2, 2, 1, 4, 5, 2, 8)
	}
	return &ExportService{
		directory:    directory,
		appointments: appointments,
		resolver:     resolver,
		csv:          csv,
		pdf:          pdf,
		logger:       logger,
	}
}

// Agenda renders the doctor's appointments on a clinic-local date (YYYY-MM-DD).
func (s *ExportService) Agenda(ctx context.Context, doctorEmail, date, format string) (*ExportResult, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format must be csv or pdf")
	}
	loc := s.resolver.Location()
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "date must be formatted as YYYY-MM-DD")
	}
	doctor, err := s.directory.ResolveDoctor(ctx, doctorEmail)
	if err != nil {
		return nil, err
	}

	from, to := s.resolver.DayBounds(day)
	items, err := s.appointments.ListByDoctorBetween(ctx, nil, doctor.ID, from, to)
	if err != nil {
		return nil, internalError(err, "failed to load agenda")
	}

	dataset := export.Dataset{
		Title:   fmt.Sprintf("Agenda %s - %s", date, displayName(doctor)),
		Headers: agendaHeaders,
		Rows:    make([]map[string]string, 0, len(items)),
	}
	patients := map[string]*models.User{}
	for _, appt := range items {
		patient, ok := patients[appt.PatientID]
		if !ok {
			patient, err = s.directory.ResolveByID(ctx, appt.PatientID)
			if err != nil {
				s.logger.Warn("agenda patient lookup failed", zap.String("patient_id", appt.PatientID), zap.Error(err))
				patient = &models.User{ID: appt.PatientID}
			}
			patients[appt.PatientID] = patient
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Start":         appt.StartAt.In(loc).Format("15:04"),
			"End":           appt.EndAt.In(loc).Format("15:04"),
			"Minutes":       strconv.Itoa(appt.DurationMinutes),
			"Patient":       displayName(patient),
			"Patient Email": patient.Email,
			"Status":        string(appt.Status),
			"Visit Notes":   strings.ReplaceAll(appt.VisitNotes, "\n", " "),
		})
	}

	var payload []byte
	switch f {
	case export.FormatPDF:
		payload, err = s.pdf.Render(dataset)
	default:
		payload, err = s.csv.Render(dataset)
	}
	if err != nil {
		return nil, internalError(err, "failed to render agenda")
	}

	s.logger.Info("agenda exported",
		zap.String("doctor_id", doctor.ID),
		zap.String("date", date),
		zap.String("format", string(f)),
		zap.Int("rows", len(dataset.Rows)),
	)
	return &ExportResult{
		Filename:    fmt.Sprintf("agenda_%s_%s.%s", sanitizeFilename(doctor.Email), date, f),
		ContentType: f.ContentType(),
		Data:        payload,
		Rows:        len(dataset.Rows),
	}, nil
}

func displayName(u *models.User) string {
	if u == nil {
		return ""
	}
	if u.FullName != "" {
		return u.FullName
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "@", "_at_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
