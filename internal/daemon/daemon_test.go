package daemon_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"sprocket/internal/api"
	"sprocket/internal/config"
	"sprocket/internal/daemon"
	"sprocket/internal/dispatcher"
	"sprocket/internal/jobs"
	"sprocket/internal/launcher"
	"sprocket/internal/logging"
	"sprocket/internal/stage"
	"sprocket/internal/testsupport"
)

type stubLauncher struct{}

func (stubLauncher) Launch(ctx context.Context, jobID, sourceKey string) (launcher.Handle, error) {
	return launcher.Handle{PID: 4242}, nil
}

type stubStage struct {
	name  string
	ready bool
}

func (s *stubStage) Name() string { return s.name }

func (s *stubStage) Execute(ctx context.Context, pc *stage.Context) error { return nil }

func (s *stubStage) HealthCheck(ctx context.Context) stage.Health {
	if s.ready {
		return stage.Healthy(s.name)
	}
	return stage.Unhealthy(s.name, "connection refused")
}

func newDaemon(t *testing.T, cfg *config.Config, stages []stage.Stage) *daemon.Daemon {
	t.Helper()

	db := testsupport.MustOpenDB(t, cfg)
	q := testsupport.NewQueue(t, db, cfg)
	gate := testsupport.NewGate(t, db, cfg.ClaimTTL())
	store := testsupport.NewJobStore(t, db)

	disp, err := dispatcher.New(*cfg, q, gate, store, stubLauncher{}, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("dispatcher.New failed: %v", err)
	}
	d, err := daemon.New(*cfg, db, q, gate, store, disp, stages, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New failed: %v", err)
	}
	return d
}

func TestDaemonServesAPI(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	stages := []stage.Stage{
		&stubStage{name: "diarization", ready: true},
		&stubStage{name: "transcription", ready: false},
	}
	d := newDaemon(t, cfg, stages)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	addr := d.APIAddr()
	if addr == "" {
		t.Fatal("expected api server address")
	}
	client, err := api.NewClient(addr)
	if err != nil {
		t.Fatalf("api.NewClient failed: %v", err)
	}

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !status.Running {
		t.Fatal("expected running daemon")
	}
	if status.DatabasePath != cfg.DatabasePath() {
		t.Fatalf("unexpected database path: %q", status.DatabasePath)
	}

	// One stage is down, so health reports not ready with http 503.
	if _, err := client.Health(ctx); err == nil {
		t.Fatal("expected health error while a stage is down")
	}

	resp, err := client.Enqueue(ctx, api.EnqueueRequest{SourceKey: "videos/input.mp4"})
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if resp.JobID == "" || resp.MessageID == 0 {
		t.Fatalf("unexpected enqueue response: %#v", resp)
	}

	if _, err := client.GetJob(ctx, "no-such-job"); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	entries, err := client.DeadLetters(ctx)
	if err != nil {
		t.Fatalf("DeadLetters failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty dead letter table, got %#v", entries)
	}

	// Replaying a nonexistent dead letter is a conflict, not a crash.
	if _, err := client.Replay(ctx, 999); err == nil {
		t.Fatal("expected replay of unknown dead letter to fail")
	}
}

func TestDaemonDispatchesEnqueuedJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Queue.PollInterval = 1
	d := newDaemon(t, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer d.Stop()

	jobID, _, err := d.Enqueue(ctx, "job-1", "videos/input.mp4", nil)
	if err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if jobID != "job-1" {
		t.Fatalf("expected caller-provided job id to flow through, got %q", jobID)
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		job, err := d.GetJob(ctx, "job-1")
		if err != nil {
			t.Fatalf("GetJob failed: %v", err)
		}
		if job != nil && job.Status == jobs.StatusProcessing {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never dispatched: %#v", job)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func TestDaemonSingleInstance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	first := newDaemon(t, cfg, nil)
	second := newDaemon(t, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := first.Start(ctx); err != nil {
		t.Fatalf("first Start failed: %v", err)
	}
	defer first.Stop()

	if err := second.Start(ctx); err == nil {
		second.Stop()
		t.Fatal("expected second daemon start to fail while lock is held")
	}
}
