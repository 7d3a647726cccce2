package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/clinic-api/pkg/jobs"
)

// Event types published after a committed change.
const (
	EventAppointmentBooked    = "appointment.booked"
	EventAppointmentCancelled = "appointment.cancelled"
	EventAppointmentCompleted = "appointment.completed"
	EventTimeOffRequested     = "timeoff.requested"
	EventTimeOffDecided       = "timeoff.decided"
)

// Event describes something recipients may want to hear about.
type Event struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	SubjectID  string            `json:"subject_id"`
	Recipients []string          `json:"recipients"`
	Data       map[string]string `json:"data,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// Notifier delivers an event. Email and push delivery live outside this service.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// LogNotifier writes events to the log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	n.logger.Info("notification",
		zap.String("event_id", event.ID),
		zap.String("type", event.Type),
		zap.String("subject_id", event.SubjectID),
		zap.Strings("recipients", event.Recipients),
		zap.Any("data", event.Data),
	)
	return nil
}

// NotificationService hands events to a background queue so request paths never wait on delivery.
type NotificationService struct {
	queue    *jobs.Queue
	notifier Notifier
	logger   *zap.Logger
}

// NewNotificationService wires a queue around notifier. A nil queue disables publishing.
func NewNotificationService(notifier Notifier, cfg jobs.QueueConfig, enabled bool, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{notifier: notifier, logger: logger}
	if enabled && notifier != nil {
		cfg.Logger = logger
		svc.queue = jobs.NewQueue("notifications", svc.handle, cfg)
	}
	return svc
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	if s == nil || s.queue == nil {
		return
	}
	s.queue.Start(ctx)
}

// Stop waits for the workers to exit.
func (s *NotificationService) Stop() {
	if s == nil || s.queue == nil {
		return
	}
	s.queue.Stop()
}

// Publish enqueues an event. A full queue drops the event with a warning.
func (s *NotificationService) Publish(event Event) {
	if s == nil || s.queue == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: event.ID, Type: event.Type, Payload: event}); err != nil {
		s.logger.Warn("notification dropped", zap.String("type", event.Type), zap.String("subject_id", event.SubjectID), zap.Error(err))
	}
}

func (s *NotificationService) handle(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(Event)
	if !ok {
		return fmt.Errorf("unexpected payload %T", job.Payload)
	}
	return s.notifier.Notify(ctx, event)
}
