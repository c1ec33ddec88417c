package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sprocket/internal/claims"
	"sprocket/internal/config"
	"sprocket/internal/jobs"
	"sprocket/internal/launcher"
	"sprocket/internal/logging"
	"sprocket/internal/notifications"
	"sprocket/internal/queue"
	"sprocket/internal/services"
)

// Dispatcher drains the enqueue notification queue and starts exactly one
// worker per job.
//
// The dispatch sequence is ordered so every crash point resolves safely under
// at-least-once delivery: acquire the idempotency claim, put the job record
// into processing, launch and confirm the worker, then delete the message. A
// crash before deletion means redelivery, and the live claim absorbs the
// duplicate.
type Dispatcher struct {
	queue    *queue.Queue
	gate     *claims.Gate
	store    *jobs.Store
	launcher launcher.Launcher
	notifier notifications.Service
	logger   *slog.Logger

	pollInterval       time.Duration
	errorRetryInterval time.Duration
	launchRetries      int
	launchRetryBackoff time.Duration
	sleeper            func(context.Context, time.Duration) error
}

// Option customizes a dispatcher.
type Option func(*Dispatcher)

// WithSleeper overrides how retry and poll sleeps are performed (useful for
// tests).
func WithSleeper(sleeper func(context.Context, time.Duration) error) Option {
	return func(d *Dispatcher) {
		if sleeper != nil {
			d.sleeper = sleeper
		}
	}
}

// New constructs a dispatcher over the shared queue, claim gate, and job
// store.
func New(
	cfg config.Config,
	q *queue.Queue,
	gate *claims.Gate,
	store *jobs.Store,
	l launcher.Launcher,
	notifier notifications.Service,
	logger *slog.Logger,
	opts ...Option,
) (*Dispatcher, error) {
	if q == nil {
		return nil, errors.New("queue required")
	}
	if gate == nil {
		return nil, errors.New("claim gate required")
	}
	if store == nil {
		return nil, errors.New("job store required")
	}
	if l == nil {
		return nil, errors.New("launcher required")
	}
	if notifier == nil {
		notifier = notifications.NewService(config.Notifications{})
	}

	pollInterval := 2 * time.Second
	if cfg.Queue.PollInterval > 0 {
		pollInterval = time.Duration(cfg.Queue.PollInterval) * time.Second
	}
	errorRetryInterval := 5 * time.Second
	if cfg.Queue.ErrorRetryInterval > 0 {
		errorRetryInterval = time.Duration(cfg.Queue.ErrorRetryInterval) * time.Second
	}
	launchRetries := 3
	if cfg.Dispatch.LaunchRetries > 0 {
		launchRetries = cfg.Dispatch.LaunchRetries
	}
	launchRetryBackoff := 2 * time.Second
	if cfg.Dispatch.LaunchRetryBackoff > 0 {
		launchRetryBackoff = time.Duration(cfg.Dispatch.LaunchRetryBackoff) * time.Second
	}

	d := &Dispatcher{
		queue:              q,
		gate:               gate,
		store:              store,
		launcher:           l,
		notifier:           notifier,
		logger:             logging.NewComponentLogger(logger, "dispatcher"),
		pollInterval:       pollInterval,
		errorRetryInterval: errorRetryInterval,
		launchRetries:      launchRetries,
		launchRetryBackoff: launchRetryBackoff,
		sleeper:            sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Run polls the queue until the context is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("dispatcher started",
		logging.Duration("poll_interval", d.pollInterval))
	for {
		if err := ctx.Err(); err != nil {
			d.logger.Info("dispatcher stopped")
			return err
		}

		msg, err := d.queue.Receive(ctx)
		if err != nil {
			d.logger.Error("queue receive failed", logging.Error(err))
			if err := d.sleeper(ctx, d.errorRetryInterval); err != nil {
				return err
			}
			continue
		}
		if msg == nil {
			if err := d.sleeper(ctx, d.pollInterval); err != nil {
				return err
			}
			continue
		}

		d.Dispatch(ctx, msg)
	}
}

// Dispatch handles one leased message end to end. Errors are handled
// internally; the message's fate (deleted or left for redelivery) is the only
// outcome that matters to the queue.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *queue.Message) {
	notification, err := queue.DecodeNotification(msg.Body)
	if err != nil {
		// Malformed payloads stay in the queue until redelivery exhausts
		// them into the dead letter table, where an operator can inspect
		// the raw body.
		wrapped := services.Wrap(services.ErrMalformedMessage, "", "dispatch", "", err)
		d.logger.Warn("malformed enqueue notification, leaving for redelivery",
			logging.Int64("message_id", msg.ID),
			logging.Int("receive_count", msg.ReceiveCount),
			logging.String(logging.FieldErrorKind, string(services.KindOf(wrapped))),
			logging.Error(err),
		)
		return
	}

	ctx = services.WithJobID(ctx, notification.JobID)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, d.logger)

	acquired, err := d.gate.Acquire(ctx, notification.JobID)
	if err != nil {
		logger.Error("claim acquire failed, leaving message for redelivery", logging.Error(err))
		return
	}
	if !acquired {
		// Duplicate delivery. The work is already owned; consume the
		// message so it stops redelivering.
		logger.Debug("duplicate notification suppressed",
			logging.String(logging.FieldErrorKind, string(services.KindDuplicateJob)),
			logging.Int64("message_id", msg.ID),
		)
		if err := d.queue.Delete(ctx, msg.ID); err != nil {
			logger.Error("failed to delete duplicate message", logging.Error(err))
		}
		return
	}

	if _, err := d.store.EnsureProcessing(ctx, notification.JobID, notification.SourceKey); err != nil {
		logger.Error("failed to move job to processing", logging.Error(err))
		d.releaseClaim(ctx, logger, notification.JobID)
		return
	}

	handle, err := d.launchWithRetry(ctx, logger, notification)
	if err != nil {
		logger.Error("worker launch exhausted, releasing claim for redelivery",
			logging.Args(
				logging.Alert("launch_failure"),
				logging.String(logging.FieldErrorKind, string(services.KindOf(err))),
				logging.Int("attempts", d.launchRetries),
				logging.Error(err),
			)...,
		)
		d.releaseClaim(ctx, logger, notification.JobID)
		if notifyErr := d.notifier.NotifyError(ctx, err, "worker launch"); notifyErr != nil {
			logger.Warn("launch failure notification failed", logging.Error(notifyErr))
		}
		return
	}

	if err := d.gate.ConfirmWorker(ctx, notification.JobID, handle.String()); err != nil {
		logger.Warn("failed to record worker handle on claim", logging.Error(err))
	}

	// Confirmed start. Only now is the message consumed; a crash anywhere
	// above redelivers into a live claim.
	if err := d.queue.Delete(ctx, msg.ID); err != nil {
		logger.Error("failed to delete message after confirmed start", logging.Error(err))
	}

	logger.Info("job dispatched",
		logging.String(logging.FieldEventType, "job_dispatched"),
		logging.String("worker", handle.String()),
		logging.Int64("message_id", msg.ID),
	)
	if err := d.notifier.NotifyJobStarted(ctx, notification.JobID, notification.SourceKey); err != nil {
		logger.Warn("job started notification failed", logging.Error(err))
	}
}

func (d *Dispatcher) launchWithRetry(ctx context.Context, logger *slog.Logger, n queue.Notification) (launcher.Handle, error) {
	var lastErr error
	for attempt := 1; attempt <= d.launchRetries; attempt++ {
		handle, err := d.launcher.Launch(ctx, n.JobID, n.SourceKey)
		if err == nil {
			return handle, nil
		}
		lastErr = err
		logger.Warn("worker launch attempt failed",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", d.launchRetries),
			logging.Error(err),
		)
		if attempt == d.launchRetries {
			break
		}
		if sleepErr := d.sleeper(ctx, d.launchRetryBackoff*time.Duration(attempt)); sleepErr != nil {
			return launcher.Handle{}, services.Wrap(services.ErrLaunchFailure, "", "launch", "", sleepErr)
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown launch failure")
	}
	if !errors.Is(lastErr, services.ErrLaunchFailure) {
		lastErr = services.Wrap(services.ErrLaunchFailure, "", "launch",
			fmt.Sprintf("failed after %d attempts", d.launchRetries), lastErr)
	}
	return launcher.Handle{}, lastErr
}

func (d *Dispatcher) releaseClaim(ctx context.Context, logger *slog.Logger, jobID string) {
	if err := d.gate.Release(ctx, jobID); err != nil {
		// The claim will still expire on its own ttl; redelivery is
		// delayed, not lost.
		logger.Error("failed to release claim", logging.Error(err))
	}
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
