package worker_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"sprocket/internal/jobs"
	"sprocket/internal/launcher"
	"sprocket/internal/logging"
	"sprocket/internal/pipeline"
	"sprocket/internal/stage"
	"sprocket/internal/testsupport"
	"sprocket/internal/worker"
)

type stubStage struct {
	name string
	err  error
}

func (s *stubStage) Name() string { return s.name }

func (s *stubStage) Execute(ctx context.Context, pc *stage.Context) error {
	if s.name == pipeline.StageDiarization {
		pc.Duration = 30
	}
	return s.err
}

func (s *stubStage) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy(s.name)
}

func stubStages(failing string, err error) []stage.Stage {
	result := make([]stage.Stage, 0, len(pipeline.StageOrder))
	for _, name := range pipeline.StageOrder {
		st := &stubStage{name: name}
		if name == failing {
			st.err = err
		}
		result = append(result, st)
	}
	return result
}

func TestRunEmitsHandshakeAndCompletesJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := testsupport.NewJobStore(t, db)

	ctx := context.Background()
	if _, err := store.EnsureProcessing(ctx, "job-1", "videos/input.mp4"); err != nil {
		t.Fatalf("EnsureProcessing failed: %v", err)
	}
	// The worker opens its own database handle.
	if err := db.Close(); err != nil {
		t.Fatalf("close setup db: %v", err)
	}

	var ready bytes.Buffer
	w, err := worker.New(*cfg, "job-1", logging.NewNop(),
		worker.WithStages(stubStages("", nil)),
		worker.WithReadyWriter(&ready),
	)
	if err != nil {
		t.Fatalf("worker.New failed: %v", err)
	}

	if err := w.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	line := strings.TrimSpace(ready.String())
	if !launcher.IsReadyLine(line, "job-1") {
		t.Fatalf("expected readiness handshake, got %q", line)
	}

	verifyDB := testsupport.MustOpenDB(t, cfg)
	verifyStore := testsupport.NewJobStore(t, verifyDB)
	job, err := verifyStore.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if job == nil || job.Status != jobs.StatusCompleted {
		t.Fatalf("expected completed job, got %#v", job)
	}
}

func TestRunPropagatesStageFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := testsupport.NewJobStore(t, db)

	ctx := context.Background()
	if _, err := store.EnsureProcessing(ctx, "job-1", "videos/input.mp4"); err != nil {
		t.Fatalf("EnsureProcessing failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close setup db: %v", err)
	}

	var ready bytes.Buffer
	w, err := worker.New(*cfg, "job-1", logging.NewNop(),
		worker.WithStages(stubStages(pipeline.StageKeyframes, errors.New("frame extraction failed"))),
		worker.WithReadyWriter(&ready),
	)
	if err != nil {
		t.Fatalf("worker.New failed: %v", err)
	}

	if err := w.Run(ctx); err == nil {
		t.Fatal("expected stage failure to propagate")
	}

	verifyDB := testsupport.MustOpenDB(t, cfg)
	verifyStore := testsupport.NewJobStore(t, verifyDB)
	job, err := verifyStore.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if job == nil || job.Status != jobs.StatusFailed {
		t.Fatalf("expected failed job, got %#v", job)
	}
	if job.CurrentStage != pipeline.StageKeyframes {
		t.Fatalf("expected failing stage preserved, got %q", job.CurrentStage)
	}
}

func TestRunRefusesJobNotInProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	store := testsupport.NewJobStore(t, db)

	ctx := context.Background()
	if _, err := store.Create(ctx, "queued-job", "videos/input.mp4"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close setup db: %v", err)
	}

	var ready bytes.Buffer
	w, err := worker.New(*cfg, "queued-job", logging.NewNop(),
		worker.WithStages(stubStages("", nil)),
		worker.WithReadyWriter(&ready),
	)
	if err != nil {
		t.Fatalf("worker.New failed: %v", err)
	}

	if err := w.Run(ctx); err == nil {
		t.Fatal("expected error for job not in processing")
	}
	// No handshake is written when the job load fails.
	if ready.Len() != 0 {
		t.Fatalf("expected no handshake, got %q", ready.String())
	}
}

func TestRunFailsForUnknownJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	w, err := worker.New(*cfg, "no-such-job", logging.NewNop(), worker.WithStages(stubStages("", nil)))
	if err != nil {
		t.Fatalf("worker.New failed: %v", err)
	}
	if err := w.Run(context.Background()); err == nil {
		t.Fatal("expected error for unknown job")
	}
}
