package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/incident-portal-api/internal/models"
	"github.com/noah-isme/incident-portal-api/pkg/jobs"
	"github.com/noah-isme/incident-portal-api/pkg/notify"
)

// Notification job types.
const (
	NotificationRegistration = "registration"
	NotificationIncident     = "incident_message"
)

type notificationDispatcher interface {
	Enqueue(ctx context.Context, job jobs.Job) error
}

type adminDirectory interface {
	ListNotifiableAdmins(ctx context.Context) ([]models.User, error)
}

// NotificationService turns domain events into queued outbound messages.
type NotificationService struct {
	queue  notificationDispatcher
	admins adminDirectory
	logger *zap.Logger
}

// NewNotificationService constructs the service. The queue must run NotificationWorker.Handle.
func NewNotificationService(queue notificationDispatcher, admins adminDirectory, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{queue: queue, admins: admins, logger: logger}
}

// NotifyRegistration tells every active administrator with an email about a new account request.
func (s *NotificationService) NotifyRegistration(ctx context.Context, user *models.User) error {
	admins, err := s.admins.ListNotifiableAdmins(ctx)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}
	to := make([]string, 0, len(admins))
	for _, admin := range admins {
		if email := strings.TrimSpace(admin.Email); email != "" {
			to = append(to, email)
		}
	}
	if len(to) == 0 {
		s.logger.Info("no administrators to notify about registration", zap.String("username", user.Username))
		return nil
	}

	body := fmt.Sprintf("Se ha registrado un nuevo usuario pendiente de aprobación.\n\nUsuario: %s\nCorreo: %s\n", user.Username, orDash(user.Email))
	return s.enqueue(ctx, NotificationRegistration, notify.Message{
		To:      to,
		Subject: "Nueva solicitud de cuenta: " + user.Username,
		Body:    body,
	})
}

// NotifyIncidentCreators queues one message per recipient and returns how many were queued.
func (s *NotificationService) NotifyIncidentCreators(ctx context.Context, recipients []models.IncidentRecipient, subject, body string) (int, error) {
	queued := 0
	var errs []error
	for _, r := range recipients {
		if strings.TrimSpace(r.Email) == "" {
			continue
		}
		greeting := r.FullName
		if greeting == "" {
			greeting = r.Username
		}
		msg := notify.Message{
			To:      []string{r.Email},
			Subject: subject,
			Body:    fmt.Sprintf("Hola %s,\n\n%s\n", greeting, body),
		}
		if err := s.enqueue(ctx, NotificationIncident, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Email, err))
			continue
		}
		queued++
	}
	return queued, errors.Join(errs...)
}

func (s *NotificationService) enqueue(ctx context.Context, kind string, msg notify.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	return s.queue.Enqueue(ctx, jobs.Job{ID: uuid.NewString(), Type: kind, Payload: msg})
}

// NotificationWorker delivers queued messages through a sender.
type NotificationWorker struct {
	sender  notify.Sender
	metrics *MetricsService
	logger  *zap.Logger
}

// NewNotificationWorker constructs a worker.
func NewNotificationWorker(sender notify.Sender, metrics *MetricsService, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{sender: sender, metrics: metrics, logger: logger}
}

// Handle processes a queue job.
func (w *NotificationWorker) Handle(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(notify.Message)
	if !ok {
		w.logger.Error("unexpected notification payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	return w.sender.Send(ctx, msg)
}

// OnResult records the final delivery outcome.
func (w *NotificationWorker) OnResult(job jobs.Job, err error) {
	w.metrics.RecordNotification(job.Type, err)
}

func orDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "-"
	}
	return v
}
