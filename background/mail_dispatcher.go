// Package background runs work that must not hold up an HTTP response.
// The Dispatcher is a small worker pool that delivers queued email.
package background

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/storefront-go/auth"
	"github.com/user/storefront-go/mail"
)

const (
	defaultQueueSize = 64
	sendTimeout      = 30 * time.Second
)

// deliveryResult is what a worker reports after one send attempt.
type deliveryResult struct {
	workerID int
	to       string
	subject  string
	err      error
}

// Dispatcher delivers mail on a fixed number of worker goroutines.
//
// Workers take messages from the queue and send them; a single reporter
// goroutine logs every result. Stop closes the queue, lets the workers drain
// it, and then closes the result channel so the reporter finishes last.
type Dispatcher struct {
	sender  mail.Sender
	workers int
	logger  *slog.Logger

	queue   chan mail.Message
	results chan deliveryResult

	mu      sync.RWMutex
	started bool
	stopped bool

	workersWg  sync.WaitGroup
	reporterWg sync.WaitGroup

	sent   atomic.Int64
	failed atomic.Int64
}

// NewDispatcher creates a dispatcher. Call Start before Enqueue.
func NewDispatcher(sender mail.Sender, workers, queueSize int, logger *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sender:  sender,
		workers: workers,
		logger:  logger,
		queue:   make(chan mail.Message, queueSize),
		results: make(chan deliveryResult, queueSize),
	}
}

// Start launches the workers and the reporter. Calling it twice is a no-op.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true

	for i := 0; i < d.workers; i++ {
		d.workersWg.Add(1)
		go d.work(i)
	}

	d.reporterWg.Add(1)
	go d.report()

	// Close results only once every worker is done writing to it.
	go func() {
		d.workersWg.Wait()
		close(d.results)
	}()

	d.logger.Info("mail dispatcher started", slog.Int("workers", d.workers))
}

// Enqueue queues msg for delivery without blocking. It returns false when
// the dispatcher is stopped or the queue is full; the message is then dropped.
func (d *Dispatcher) Enqueue(msg mail.Message) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.started || d.stopped {
		d.logger.Warn("mail dispatcher not running, dropping message", slog.String("to", msg.To))
		return false
	}

	select {
	case d.queue <- msg:
		return true
	default:
		d.logger.Warn("mail queue full, dropping message", slog.String("to", msg.To))
		return false
	}
}

// Stop stops accepting messages and waits for queued ones to be sent.
// It returns ctx.Err() if ctx ends first; workers keep draining in that case.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	started := d.started
	close(d.queue)
	d.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.reporterWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("mail dispatcher stopped",
			slog.Int64("sent", d.sent.Load()),
			slog.Int64("failed", d.failed.Load()),
		)
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("mail dispatcher did not drain in time"), ctx.Err())
	}
}

// Sent returns the number of messages delivered so far.
func (d *Dispatcher) Sent() int64 { return d.sent.Load() }

// Failed returns the number of messages that could not be delivered.
func (d *Dispatcher) Failed() int64 { return d.failed.Load() }

// WelcomeHook returns an auth.SignupHook that queues the welcome email.
func (d *Dispatcher) WelcomeHook() auth.SignupHook {
	return func(ctx context.Context, user auth.PublicUser) {
		msg, err := mail.WelcomeMessage(mail.WelcomeData{Name: user.Name, Email: user.Email})
		if err != nil {
			d.logger.ErrorContext(ctx, "failed to render welcome email", slog.String("user_id", user.ID), slog.Any("error", err))
			return
		}
		d.Enqueue(msg)
	}
}

func (d *Dispatcher) work(workerID int) {
	defer d.workersWg.Done()
	for msg := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		err := d.sender.Send(ctx, msg)
		cancel()
		d.results <- deliveryResult{workerID: workerID, to: msg.To, subject: msg.Subject, err: err}
	}
}

func (d *Dispatcher) report() {
	defer d.reporterWg.Done()
	for result := range d.results {
		if result.err != nil {
			d.failed.Add(1)
			d.logger.Error("mail delivery failed",
				slog.Int("worker", result.workerID),
				slog.String("to", result.to),
				slog.String("subject", result.subject),
				slog.Any("error", result.err),
			)
			continue
		}
		d.sent.Add(1)
		d.logger.Debug("mail delivered", slog.Int("worker", result.workerID), slog.String("to", result.to))
	}
}
