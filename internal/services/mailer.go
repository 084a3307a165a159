package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"progress-tracker-backend/internal/notify"
)

const (
	mailQueueSize = 256
	mailTimeout   = 45 * time.Second
)

type mailJob struct {
	ctx context.Context
	msg notify.Message
}

// mailer delivers notifications in order on a background goroutine, so a
// slow or failing email function never holds up the request that already
// committed its change. Each message gets its own deadline, detached from
// the request context.
type mailer struct {
	notifier Notifier
	logger   *zap.Logger
	timeout  time.Duration
	jobs     chan mailJob
	pending  sync.WaitGroup
}

func newMailer(notifier Notifier, logger *zap.Logger) *mailer {
	m := &mailer{
		notifier: notifier,
		logger:   logger,
		timeout:  mailTimeout,
		jobs:     make(chan mailJob, mailQueueSize),
	}
	if notifier != nil {
		go m.run()
	}
	return m
}

func (m *mailer) run() {
	for job := range m.jobs {
		m.deliver(job)
		m.pending.Done()
	}
}

func (m *mailer) deliver(job mailJob) {
	ctx, cancel := context.WithTimeout(job.ctx, m.timeout)
	defer cancel()

	if err := m.notifier.Send(ctx, job.msg); err != nil {
		m.logger.Warn("failed to send notification",
			zap.String("type", string(job.msg.Type)),
			zap.String("to", job.msg.To),
			zap.Error(err),
		)
	}
}

// enqueue never blocks; a full queue drops the message with a warning.
func (m *mailer) enqueue(ctx context.Context, msg notify.Message) {
	if m.notifier == nil {
		return
	}
	m.pending.Add(1)
	select {
	case m.jobs <- mailJob{ctx: context.WithoutCancel(ctx), msg: msg}:
	default:
		m.pending.Done()
		m.logger.Warn("notification queue full, dropping message",
			zap.String("type", string(msg.Type)), zap.String("to", msg.To))
	}
}

func (m *mailer) wait() {
	m.pending.Wait()
}
