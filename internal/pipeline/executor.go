package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"sprocket/internal/jobs"
	"sprocket/internal/logging"
	"sprocket/internal/services"
	"sprocket/internal/stage"
)

// Sink receives the final pipeline output after the job record has reached
// completed. Sink failure is reported, never retried here, and never reverts
// the job.
type Sink interface {
	Publish(ctx context.Context, pc *stage.Context) error
}

// Executor walks the fixed stage order for one job, updating the job record
// on every transition and aborting on the first stage error.
type Executor struct {
	store  *jobs.Store
	stages []stage.Stage
	sink   Sink
	logger *slog.Logger
}

// NewExecutor validates the stage list against the canonical order and
// constructs an executor.
func NewExecutor(store *jobs.Store, stages []stage.Stage, sink Sink, logger *slog.Logger) (*Executor, error) {
	if store == nil {
		return nil, errors.New("job store required")
	}
	if sink == nil {
		return nil, errors.New("sink required")
	}
	if len(stages) == 0 {
		return nil, errors.New("stages required")
	}
	if len(stages) != len(StageOrder) {
		return nil, fmt.Errorf("expected %d stages, got %d", len(StageOrder), len(stages))
	}
	for i, st := range stages {
		if st == nil {
			return nil, fmt.Errorf("stage %d is nil", i)
		}
		if st.Name() != StageOrder[i] {
			return nil, fmt.Errorf("stage %d: expected %q, got %q", i, StageOrder[i], st.Name())
		}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		store:  store,
		stages: stages,
		sink:   sink,
		logger: logging.NewComponentLogger(logger, "pipeline"),
	}, nil
}

// Run executes every stage in order for the given job and returns the final
// pipeline context. The job record must already be in the processing state
// (the dispatcher put it there before the worker was launched). The returned
// error is tagged with the services taxonomy; a publication failure after
// completion is not an error.
func (e *Executor) Run(ctx context.Context, jobID, sourceKey string) (*stage.Context, error) {
	ctx = services.WithJobID(ctx, jobID)
	pc := stage.NewContext(jobID, sourceKey)
	total := len(e.stages)

	for i, st := range e.stages {
		progress := float64(i) / float64(total)
		if err := e.store.SetStageStarting(ctx, jobID, st.Name(), progress); err != nil {
			return nil, fmt.Errorf("persist stage transition: %w", err)
		}

		stageCtx := services.WithStage(ctx, st.Name())
		stageLogger := logging.WithContext(stageCtx, e.logger)
		stageStart := time.Now()
		stageLogger.Info(
			"stage started",
			logging.String(logging.FieldEventType, "stage_start"),
			logging.Float64("progress", progress),
		)

		if err := st.Execute(stageCtx, pc); err != nil {
			return nil, e.failStage(stageCtx, stageLogger, jobID, st.Name(), err)
		}

		if st.Name() == StageSegmentation {
			e.substituteEmptySegmentation(stageLogger, pc)
		}

		stageLogger.Info(
			"stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("stage_duration", time.Since(stageStart)),
		)
	}

	if err := e.store.MarkCompleted(ctx, jobID); err != nil {
		return nil, fmt.Errorf("persist completion: %w", err)
	}
	logging.WithContext(ctx, e.logger).Info(
		"pipeline completed",
		logging.String(logging.FieldEventType, "pipeline_complete"),
		logging.Int("boundaries", len(pc.Boundaries)),
	)

	e.publish(ctx, pc)
	return pc, nil
}

func (e *Executor) failStage(ctx context.Context, logger *slog.Logger, jobID, stageName string, stageErr error) error {
	wrapped := stageErr
	if !errors.Is(stageErr, services.ErrStageFailure) {
		wrapped = services.Wrap(services.ErrStageFailure, stageName, "", "", stageErr)
	}
	details := services.Details(wrapped)

	logger.Error(
		"stage failed",
		logging.Args(
			logging.Alert("stage_failure"),
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String(logging.FieldErrorKind, string(details.Kind)),
			logging.Error(stageErr),
		)...,
	)

	if err := e.store.MarkFailed(ctx, jobID, stageName, details.Message); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("shutdown before failure could be persisted")
		} else {
			logger.Error("failed to persist stage failure", logging.Error(err))
		}
	}
	return wrapped
}

// substituteEmptySegmentation handles the one permitted automatic
// substitution: zero content boundaries collapse to a single boundary
// spanning the whole input so downstream per-boundary stages still receive
// one unit. This is structural empty-set handling, not a quality fallback.
func (e *Executor) substituteEmptySegmentation(logger *slog.Logger, pc *stage.Context) {
	if len(pc.Boundaries) > 0 {
		return
	}
	pc.Boundaries = []stage.Boundary{{
		Index: 0,
		Start: 0,
		End:   pc.Duration,
		Label: "full input",
	}}
	logger.Info(
		"segmentation produced no boundaries, substituting full-input boundary",
		logging.String(logging.FieldEventType, "segmentation_empty"),
	)
}

func (e *Executor) publish(ctx context.Context, pc *stage.Context) {
	if err := e.sink.Publish(ctx, pc); err != nil {
		wrapped := err
		if !errors.Is(err, services.ErrPublication) {
			wrapped = services.Wrap(services.ErrPublication, "", "publish", "", err)
		}
		details := services.Details(wrapped)
		// The processing work is done; only the secondary publication step
		// failed. Alert, but leave the job completed.
		logging.WithContext(ctx, e.logger).Error(
			"publication failed after completion",
			logging.Args(
				logging.Alert("publication_failure"),
				logging.String(logging.FieldEventType, "publication_failure"),
				logging.String(logging.FieldErrorKind, string(details.Kind)),
				logging.String(logging.FieldErrorHint, "job output retained; re-publish manually"),
				logging.Error(err),
			)...,
		)
	}
}
