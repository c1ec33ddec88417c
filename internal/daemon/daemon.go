package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"sprocket/internal/claims"
	"sprocket/internal/config"
	"sprocket/internal/dispatcher"
	"sprocket/internal/jobs"
	"sprocket/internal/logging"
	"sprocket/internal/notifications"
	"sprocket/internal/queue"
	"sprocket/internal/stage"
	"sprocket/internal/storage"
)

const claimSweepInterval = 5 * time.Minute

// Daemon coordinates the dispatcher, the HTTP API, and claim housekeeping,
// and enforces single-instance execution through a lock file.
type Daemon struct {
	cfg        config.Config
	db         *storage.DB
	queue      *queue.Queue
	gate       *claims.Gate
	store      *jobs.Store
	dispatcher *dispatcher.Dispatcher
	stages     []stage.Stage
	notifier   notifications.Service
	logger     *slog.Logger

	lockPath string
	lock     *flock.Flock

	api *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	DatabasePath string
	LockFilePath string
	QueueDepth   int
	JobStats     map[jobs.Status]int
}

// New constructs a daemon with initialized dependencies.
func New(
	cfg config.Config,
	db *storage.DB,
	q *queue.Queue,
	gate *claims.Gate,
	store *jobs.Store,
	disp *dispatcher.Dispatcher,
	stages []stage.Stage,
	notifier notifications.Service,
	logger *slog.Logger,
) (*Daemon, error) {
	if db == nil || q == nil || gate == nil || store == nil || disp == nil {
		return nil, errors.New("daemon requires database, queue, claim gate, job store, and dispatcher")
	}
	if notifier == nil {
		notifier = notifications.NewService(config.Notifications{})
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := cfg.LockFilePath()
	d := &Daemon{
		cfg:        cfg,
		db:         db,
		queue:      q,
		gate:       gate,
		store:      store,
		dispatcher: disp,
		stages:     stages,
		notifier:   notifier,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
	}

	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	return d, nil
}

// Start acquires the daemon lock and launches the dispatcher, the claim
// sweeper, and the API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another sprocket daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			cancel()
			_ = d.lock.Unlock()
			d.cancel = nil
			return err
		}
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_ = d.dispatcher.Run(runCtx)
	}()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.sweepClaims(runCtx)
	}()

	d.running.Store(true)
	d.logger.Info("sprocket daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("pid", os.Getpid()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if d.api != nil {
		d.api.stop()
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("sprocket daemon stopped")
}

// APIAddr returns the address the API server is bound to, or empty when the
// API is disabled or the daemon has not started.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// sweepClaims periodically removes expired idempotency claims. Housekeeping
// only; acquisition correctness never depends on it.
func (d *Daemon) sweepClaims(ctx context.Context) {
	ticker := time.NewTicker(claimSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := d.gate.Sweep(ctx)
			if err != nil {
				if ctx.Err() == nil {
					d.logger.Warn("claim sweep failed", logging.Error(err))
				}
				continue
			}
			if removed > 0 {
				d.logger.Debug("swept expired claims", logging.Int64("removed", removed))
			}
		}
	}
}

// Enqueue submits a job notification. A blank job id is filled with a fresh
// identifier; a caller-provided id flows through unchanged so external
// systems can drive the deduplication space.
func (d *Daemon) Enqueue(ctx context.Context, jobID, sourceKey string, metadata map[string]string) (string, int64, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		jobID = uuid.NewString()
	}
	sourceKey = strings.TrimSpace(sourceKey)
	if sourceKey == "" {
		return "", 0, errors.New("source key is required")
	}

	body, err := queue.EncodeNotification(queue.Notification{
		JobID:     jobID,
		SourceKey: sourceKey,
		Metadata:  metadata,
	})
	if err != nil {
		return "", 0, fmt.Errorf("encode notification: %w", err)
	}
	msg, err := d.queue.Enqueue(ctx, body)
	if err != nil {
		return "", 0, err
	}
	d.logger.Info("job enqueued",
		logging.String(logging.FieldJobID, jobID),
		logging.Int64("message_id", msg.ID),
	)
	return jobID, msg.ID, nil
}

// ListJobs returns job records filtered by optional statuses.
func (d *Daemon) ListJobs(ctx context.Context, statuses ...jobs.Status) ([]*jobs.Job, error) {
	return d.store.List(ctx, statuses...)
}

// GetJob returns one job record, or nil when unknown.
func (d *Daemon) GetJob(ctx context.Context, jobID string) (*jobs.Job, error) {
	return d.store.Get(ctx, jobID)
}

// DeadLetters returns the dead letter table.
func (d *Daemon) DeadLetters(ctx context.Context) ([]*queue.DeadLetter, error) {
	return d.queue.DeadLetters(ctx)
}

// ReplayDeadLetter re-enqueues one dead-lettered message.
func (d *Daemon) ReplayDeadLetter(ctx context.Context, id int64) (*queue.Message, error) {
	return d.queue.Replay(ctx, id)
}

// StageHealth probes every configured stage service.
func (d *Daemon) StageHealth(ctx context.Context) []stage.Health {
	health := make([]stage.Health, 0, len(d.stages))
	for _, st := range d.stages {
		health = append(health, st.HealthCheck(ctx))
	}
	return health
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.db.Path(),
		LockFilePath: d.lockPath,
	}
	if depth, err := d.queue.Depth(ctx); err == nil {
		status.QueueDepth = depth
	}
	if stats, err := d.store.Stats(ctx); err == nil {
		status.JobStats = stats
	}
	return status
}
