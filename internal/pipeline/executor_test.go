package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"sprocket/internal/jobs"
	"sprocket/internal/logging"
	"sprocket/internal/pipeline"
	"sprocket/internal/services"
	"sprocket/internal/stage"
	"sprocket/internal/testsupport"
)

type stubStage struct {
	name    string
	execute func(ctx context.Context, pc *stage.Context) error
}

func (s *stubStage) Name() string { return s.name }

func (s *stubStage) Execute(ctx context.Context, pc *stage.Context) error {
	if s.execute == nil {
		return nil
	}
	return s.execute(ctx, pc)
}

func (s *stubStage) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(s.name)
}

type stubSink struct {
	published []*stage.Context
	err       error
}

func (s *stubSink) Publish(ctx context.Context, pc *stage.Context) error {
	s.published = append(s.published, pc)
	return s.err
}

func passthroughStages(overrides map[string]func(ctx context.Context, pc *stage.Context) error) []stage.Stage {
	result := make([]stage.Stage, 0, len(pipeline.StageOrder))
	for _, name := range pipeline.StageOrder {
		result = append(result, &stubStage{name: name, execute: overrides[name]})
	}
	return result
}

func newProcessingJob(t *testing.T) (*jobs.Store, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := testsupport.NewJobStore(t, db)
	if _, err := store.EnsureProcessing(context.Background(), "job-1", "videos/input.mp4"); err != nil {
		t.Fatalf("EnsureProcessing failed: %v", err)
	}
	return store, "job-1"
}

func TestRunExecutesStagesInOrder(t *testing.T) {
	store, jobID := newProcessingJob(t)
	ctx := context.Background()

	var executed []string
	var progressSeen []float64
	overrides := make(map[string]func(context.Context, *stage.Context) error, len(pipeline.StageOrder))
	for _, name := range pipeline.StageOrder {
		name := name
		overrides[name] = func(ctx context.Context, pc *stage.Context) error {
			executed = append(executed, name)
			job, err := store.Get(ctx, jobID)
			if err != nil {
				return err
			}
			if job.CurrentStage != name {
				t.Errorf("expected current stage %q during execution, got %q", name, job.CurrentStage)
			}
			progressSeen = append(progressSeen, job.Progress)
			if name == pipeline.StageDiarization {
				pc.Duration = 90
			}
			if name == pipeline.StageSegmentation {
				pc.Boundaries = []stage.Boundary{{Index: 0, Start: 0, End: 90}}
			}
			return nil
		}
	}

	sink := &stubSink{}
	exec, err := pipeline.NewExecutor(store, passthroughStages(overrides), sink, logging.NewNop())
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	pc, err := exec.Run(ctx, jobID, "videos/input.mp4")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if pc == nil {
		t.Fatal("expected pipeline context")
	}

	if len(executed) != len(pipeline.StageOrder) {
		t.Fatalf("expected %d stages, got %v", len(pipeline.StageOrder), executed)
	}
	for i, name := range pipeline.StageOrder {
		if executed[i] != name {
			t.Fatalf("stage order mismatch at %d: got %v", i, executed)
		}
	}

	// Progress only moves forward, in fixed fractions of the stage count.
	for i := 1; i < len(progressSeen); i++ {
		if progressSeen[i] <= progressSeen[i-1] {
			t.Fatalf("progress not monotonic: %v", progressSeen)
		}
	}

	job, err := store.Get(ctx, jobID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if job.Status != jobs.StatusCompleted || job.Progress != 1.0 {
		t.Fatalf("unexpected final job state: %#v", job)
	}
	if len(sink.published) != 1 {
		t.Fatalf("expected one publication, got %d", len(sink.published))
	}
}

func TestRunFailsFastOnStageError(t *testing.T) {
	store, jobID := newProcessingJob(t)
	ctx := context.Background()

	var executed []string
	overrides := map[string]func(context.Context, *stage.Context) error{
		pipeline.StageDiarization: func(ctx context.Context, pc *stage.Context) error {
			executed = append(executed, pipeline.StageDiarization)
			return nil
		},
		pipeline.StageTranscription: func(ctx context.Context, pc *stage.Context) error {
			executed = append(executed, pipeline.StageTranscription)
			return errors.New("service unavailable")
		},
		pipeline.StageSegmentation: func(ctx context.Context, pc *stage.Context) error {
			executed = append(executed, pipeline.StageSegmentation)
			return nil
		},
	}

	sink := &stubSink{}
	exec, err := pipeline.NewExecutor(store, passthroughStages(overrides), sink, logging.NewNop())
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	_, err = exec.Run(ctx, jobID, "videos/input.mp4")
	if err == nil {
		t.Fatal("expected stage failure to propagate")
	}
	if !errors.Is(err, services.ErrStageFailure) {
		t.Fatalf("expected stage failure tag, got %v", err)
	}

	// Later stages never ran.
	want := []string{pipeline.StageDiarization, pipeline.StageTranscription}
	if len(executed) != len(want) {
		t.Fatalf("expected execution to stop after failure, got %v", executed)
	}

	job, err := store.Get(ctx, jobID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if job.Status != jobs.StatusFailed {
		t.Fatalf("expected failed job, got %s", job.Status)
	}
	if job.CurrentStage != pipeline.StageTranscription {
		t.Fatalf("expected failing stage preserved, got %q", job.CurrentStage)
	}
	if job.Error == nil || job.Error.Kind != pipeline.StageTranscription {
		t.Fatalf("unexpected error info: %#v", job.Error)
	}
	if len(sink.published) != 0 {
		t.Fatal("expected no publication for failed job")
	}
}

func TestRunSubstitutesEmptySegmentation(t *testing.T) {
	store, jobID := newProcessingJob(t)
	ctx := context.Background()

	var keyframesSaw []stage.Boundary
	overrides := map[string]func(context.Context, *stage.Context) error{
		pipeline.StageDiarization: func(ctx context.Context, pc *stage.Context) error {
			pc.Duration = 120.5
			return nil
		},
		// Segmentation returns no boundaries at all.
		pipeline.StageKeyframes: func(ctx context.Context, pc *stage.Context) error {
			keyframesSaw = append([]stage.Boundary(nil), pc.Boundaries...)
			return nil
		},
	}

	exec, err := pipeline.NewExecutor(store, passthroughStages(overrides), &stubSink{}, logging.NewNop())
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	pc, err := exec.Run(ctx, jobID, "videos/input.mp4")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(pc.Boundaries) != 1 {
		t.Fatalf("expected single substituted boundary, got %#v", pc.Boundaries)
	}
	b := pc.Boundaries[0]
	if b.Index != 0 || b.Start != 0 || b.End != 120.5 {
		t.Fatalf("expected full-span boundary, got %#v", b)
	}
	if len(keyframesSaw) != 1 {
		t.Fatalf("expected keyframes stage to see the substituted boundary, got %#v", keyframesSaw)
	}
}

func TestRunLeavesJobCompletedWhenPublicationFails(t *testing.T) {
	store, jobID := newProcessingJob(t)
	ctx := context.Background()

	sink := &stubSink{err: errors.New("index unavailable")}
	exec, err := pipeline.NewExecutor(store, passthroughStages(map[string]func(context.Context, *stage.Context) error{
		pipeline.StageDiarization: func(ctx context.Context, pc *stage.Context) error {
			pc.Duration = 60
			return nil
		},
	}), sink, logging.NewNop())
	if err != nil {
		t.Fatalf("NewExecutor failed: %v", err)
	}

	if _, err := exec.Run(ctx, jobID, "videos/input.mp4"); err != nil {
		t.Fatalf("publication failure must not fail the run: %v", err)
	}

	job, err := store.Get(ctx, jobID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if job.Status != jobs.StatusCompleted {
		t.Fatalf("expected job to stay completed, got %s", job.Status)
	}
}

func TestNewExecutorRejectsWrongStageOrder(t *testing.T) {
	store, _ := newProcessingJob(t)

	shuffled := passthroughStages(nil)
	shuffled[0], shuffled[1] = shuffled[1], shuffled[0]
	if _, err := pipeline.NewExecutor(store, shuffled, &stubSink{}, logging.NewNop()); err == nil {
		t.Fatal("expected out-of-order stage list to be rejected")
	}

	if _, err := pipeline.NewExecutor(store, shuffled[:3], &stubSink{}, logging.NewNop()); err == nil {
		t.Fatal("expected short stage list to be rejected")
	}
}
