package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"sprocket/internal/config"
	"sprocket/internal/jobs"
	"sprocket/internal/launcher"
	"sprocket/internal/logging"
	"sprocket/internal/notifications"
	"sprocket/internal/pipeline"
	"sprocket/internal/services"
	"sprocket/internal/sink"
	"sprocket/internal/stage"
	"sprocket/internal/stages"
	"sprocket/internal/storage"
)

// Worker runs the pipeline for exactly one job and exits. One worker process
// per job is the isolation boundary: a crash here takes down only its own
// job.
type Worker struct {
	cfg      config.Config
	jobID    string
	logger   *slog.Logger
	notifier notifications.Service
	stages   []stage.Stage
	ready    io.Writer
}

// Option customizes a worker.
type Option func(*Worker)

// WithStages overrides the stage list built from config (useful for tests).
func WithStages(stageList []stage.Stage) Option {
	return func(w *Worker) {
		if len(stageList) > 0 {
			w.stages = stageList
		}
	}
}

// WithReadyWriter overrides where the readiness handshake is written.
func WithReadyWriter(out io.Writer) Option {
	return func(w *Worker) {
		if out != nil {
			w.ready = out
		}
	}
}

// New constructs a worker for one job.
func New(cfg config.Config, jobID string, logger *slog.Logger, opts ...Option) (*Worker, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, errors.New("job id required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	w := &Worker{
		cfg:      cfg,
		jobID:    jobID,
		logger:   logging.NewComponentLogger(logger, "worker"),
		notifier: notifications.NewService(cfg.Notifications),
		stages:   stages.FromConfig(cfg.Stages),
		ready:    os.Stdout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run loads the job, emits the readiness handshake, and drives the pipeline
// to a terminal state. The returned error reflects the pipeline outcome; the
// job record is already finalized either way.
func (w *Worker) Run(ctx context.Context) error {
	db, err := storage.Open(&w.cfg)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	store, err := jobs.NewStore(ctx, db)
	if err != nil {
		return err
	}

	job, err := store.Get(ctx, w.jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("job %s not found", w.jobID)
	}
	if job.Status != jobs.StatusProcessing {
		return fmt.Errorf("job %s is %s, expected %s", w.jobID, job.Status, jobs.StatusProcessing)
	}

	resultSink, err := sink.New(w.cfg.Paths.ResultsDir, w.cfg.Publish, w.logger)
	if err != nil {
		return err
	}
	executor, err := pipeline.NewExecutor(store, w.stages, resultSink, w.logger)
	if err != nil {
		return err
	}

	// Handshake: the dispatcher deletes the queue message only after
	// reading this line.
	if _, err := fmt.Fprintln(w.ready, launcher.ReadyLine(w.jobID)); err != nil {
		return fmt.Errorf("write readiness handshake: %w", err)
	}

	w.logger.Info("worker running",
		logging.String(logging.FieldJobID, w.jobID),
		logging.String("source_key", job.SourceKey),
	)

	start := time.Now()
	pc, runErr := executor.Run(ctx, w.jobID, job.SourceKey)
	if runErr != nil {
		details := services.Details(runErr)
		stageName := w.failedStage(ctx, store)
		if err := w.notifier.NotifyJobFailed(ctx, w.jobID, stageName, details.Message); err != nil {
			w.logger.Warn("job failed notification failed", logging.Error(err))
		}
		return runErr
	}

	if err := w.notifier.NotifyJobCompleted(ctx, w.jobID, len(pc.Boundaries), time.Since(start)); err != nil {
		w.logger.Warn("job completed notification failed", logging.Error(err))
	}
	return nil
}

func (w *Worker) failedStage(ctx context.Context, store *jobs.Store) string {
	job, err := store.Get(ctx, w.jobID)
	if err != nil || job == nil {
		return ""
	}
	return job.CurrentStage
}
