package worker

import (
	"context"
	"sync"
	"time"

	"registration-service/internal/models"
	"registration-service/internal/notification"
	"registration-service/internal/util"

	"go.uber.org/zap"
)

// NotificationJob carries one registration's confirmation dispatch
type NotificationJob struct {
	Registration *models.Registration
	Password     string
}

// Dispatcher sends the notifications for one registration
type Dispatcher interface {
	Dispatch(ctx context.Context, reg *models.Registration, password string) notification.Result
}

// FlagStore persists the notification flags after a dispatch completes
type FlagStore interface {
	SetNotificationFlags(ctx context.Context, id string, emailSent, messagingSent bool) error
}

// NotificationPool runs confirmation dispatches off the webhook response
// path. Jobs are best-effort: a full queue drops the job with a log line,
// and a finished job updates only the notification flags.
type NotificationPool struct {
	jobs       chan NotificationJob
	dispatcher Dispatcher
	store      FlagStore
	timeout    time.Duration
	workers    int
	wg         sync.WaitGroup
	pending    sync.WaitGroup
	logger     *zap.Logger
}

// NewNotificationPool creates a new notification worker pool
func NewNotificationPool(dispatcher Dispatcher, store FlagStore, workers int, timeout time.Duration) *NotificationPool {
	if workers <= 0 {
		workers = 1
	}
	return &NotificationPool{
		jobs:       make(chan NotificationJob, 256),
		dispatcher: dispatcher,
		store:      store,
		timeout:    timeout,
		workers:    workers,
		logger:     util.GetLogger(),
	}
}

// Start launches the worker goroutines
func (p *NotificationPool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
}

// Enqueue schedules a dispatch without blocking the caller. Returns false
// when the queue is full and the job was dropped.
func (p *NotificationPool) Enqueue(job NotificationJob) bool {
	p.pending.Add(1)
	select {
	case p.jobs <- job:
		return true
	default:
		p.pending.Done()
		p.logger.Warn("Notification queue full, dropping job",
			zap.String("registration_id", job.Registration.ID))
		return false
	}
}

// Flush blocks until all enqueued jobs have finished
func (p *NotificationPool) Flush() {
	p.pending.Wait()
}

// Stop drains the queue and stops the workers
func (p *NotificationPool) Stop() {
	p.pending.Wait()
	close(p.jobs)
	p.wg.Wait()
}

func (p *NotificationPool) run() {
	defer p.wg.Done()

	for job := range p.jobs {
		p.process(job)
		p.pending.Done()
	}
}

func (p *NotificationPool) process(job NotificationJob) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	result := p.dispatcher.Dispatch(ctx, job.Registration, job.Password)

	if err := p.store.SetNotificationFlags(ctx, job.Registration.ID, result.MailSent, result.WaSent); err != nil {
		p.logger.Error("Failed to update notification flags",
			zap.String("registration_id", job.Registration.ID),
			zap.Error(err))
	}
}
