package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/incident-portal-api/internal/models"
	"github.com/noah-isme/incident-portal-api/pkg/jobs"
	"github.com/noah-isme/incident-portal-api/pkg/notify"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (d *recordingDispatcher) Enqueue(ctx context.Context, job jobs.Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.jobs = append(d.jobs, job)
	return nil
}

func (d *recordingDispatcher) messages() []notify.Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]notify.Message, 0, len(d.jobs))
	for _, j := range d.jobs {
		out = append(out, j.Payload.(notify.Message))
	}
	return out
}

type recordingSender struct {
	mu   sync.Mutex
	sent []notify.Message
	err  error
}

func (s *recordingSender) Send(ctx context.Context, msg notify.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestNotificationServiceNotifyRegistration(t *testing.T) {
	users := newMemoryUserRepo()
	users.seed(t, models.User{Username: "root", Email: "root@example.com", Role: models.RoleAdmin, Status: models.UserStatusActive}, "")
	users.seed(t, models.User{Username: "nomail", Role: models.RoleAdmin, Status: models.UserStatusActive}, "")
	users.seed(t, models.User{Username: "vecino", Email: "vecino@example.com", Role: models.RoleUser, Status: models.UserStatusActive}, "")

	dispatcher := &recordingDispatcher{}
	svc := NewNotificationService(dispatcher, users, nil)

	require.NoError(t, svc.NotifyRegistration(context.Background(), &models.User{Username: "ana", Email: "ana@x.com"}))

	msgs := dispatcher.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"root@example.com"}, msgs[0].To)
	assert.Contains(t, msgs[0].Subject, "ana")
	assert.Contains(t, msgs[0].Body, "ana@x.com")
	assert.Equal(t, NotificationRegistration, dispatcher.jobs[0].Type)
}

func TestNotificationServiceNotifyRegistrationWithoutAdmins(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	svc := NewNotificationService(dispatcher, newMemoryUserRepo(), nil)
	require.NoError(t, svc.NotifyRegistration(context.Background(), &models.User{Username: "ana"}))
	assert.Empty(t, dispatcher.messages())
}

func TestNotificationServiceNotifyIncidentCreators(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	svc := NewNotificationService(dispatcher, newMemoryUserRepo(), nil)

	queued, err := svc.NotifyIncidentCreators(context.Background(), []models.IncidentRecipient{
		{Username: "lucia", FullName: "Lucía", Email: "lucia@example.com"},
		{Username: "pedro", Email: "pedro@example.com"},
		{Username: "sin-correo"},
	}, "Aviso", "Corte de agua")
	require.NoError(t, err)
	assert.Equal(t, 2, queued)

	msgs := dispatcher.messages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Body, "Hola Lucía")
	assert.Contains(t, msgs[1].Body, "Hola pedro")
	assert.Equal(t, "Aviso", msgs[1].Subject)
}

func TestNotificationServiceReportsEnqueueFailures(t *testing.T) {
	dispatcher := &recordingDispatcher{err: jobs.ErrQueueClosed}
	svc := NewNotificationService(dispatcher, newMemoryUserRepo(), nil)

	queued, err := svc.NotifyIncidentCreators(context.Background(), []models.IncidentRecipient{{Email: "a@example.com"}}, "s", "b")
	assert.Zero(t, queued)
	assert.ErrorIs(t, err, jobs.ErrQueueClosed)
}

func TestNotificationWorkerDeliversThroughQueue(t *testing.T) {
	sender := &recordingSender{}
	metrics := NewMetricsService()
	worker := NewNotificationWorker(sender, metrics, nil)

	queue := jobs.NewQueue("notifications", worker.Handle, jobs.QueueConfig{Workers: 1, OnResult: worker.OnResult})
	queue.Start(context.Background())
	defer queue.Stop()

	svc := NewNotificationService(queue, newMemoryUserRepo(), nil)
	queued, err := svc.NotifyIncidentCreators(context.Background(), []models.IncidentRecipient{{Username: "lucia", Email: "lucia@example.com"}}, "Aviso", "Hola")
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return metrics.Snapshot().NotificationsSent == 1 }, time.Second, 10*time.Millisecond)
}

func TestNotificationWorkerRecordsFailures(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp down")}
	metrics := NewMetricsService()
	worker := NewNotificationWorker(sender, metrics, nil)

	err := worker.Handle(context.Background(), jobs.Job{Type: NotificationIncident, Payload: notify.Message{To: []string{"a@example.com"}}})
	require.Error(t, err)
	worker.OnResult(jobs.Job{Type: NotificationIncident}, err)
	assert.Equal(t, uint64(1), metrics.Snapshot().NotificationsFailed)

	// Payloads of the wrong shape are dropped instead of retried.
	assert.NoError(t, worker.Handle(context.Background(), jobs.Job{Payload: "oops"}))
}
