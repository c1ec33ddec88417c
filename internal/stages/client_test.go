package stages_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"sprocket/internal/config"
	"sprocket/internal/pipeline"
	"sprocket/internal/stage"
	"sprocket/internal/stages"
)

func noSleep(time.Duration) {}

func serviceConfig(url string) config.StageService {
	return config.StageService{BaseURL: url, APIKey: "test-key", TimeoutSeconds: 5}
}

func TestDiarizationExecute(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/diarize" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		var req struct {
			JobID     string `json:"job_id"`
			SourceKey string `json:"source_key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.JobID != "job-1" || req.SourceKey != "videos/input.mp4" {
			t.Errorf("unexpected request: %#v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"duration": 90.5,
			"turns": []map[string]any{
				{"speaker": "spk_0", "start": 0.0, "end": 40.0},
				{"speaker": "spk_1", "start": 40.0, "end": 90.5},
			},
		})
	}))
	defer server.Close()

	d := stages.NewDiarization(serviceConfig(server.URL), stages.WithSleeper(noSleep))
	pc := stage.NewContext("job-1", "videos/input.mp4")
	if err := d.Execute(context.Background(), pc); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Fatalf("expected bearer auth, got %q", gotAuth)
	}
	if pc.Duration != 90.5 {
		t.Fatalf("unexpected duration: %v", pc.Duration)
	}
	if len(pc.SpeakerTurns) != 2 || pc.SpeakerTurns[1].Speaker != "spk_1" {
		t.Fatalf("unexpected turns: %#v", pc.SpeakerTurns)
	}
}

func TestDiarizationRejectsInvalidResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"duration": 0})
	}))
	defer server.Close()

	d := stages.NewDiarization(serviceConfig(server.URL), stages.WithSleeper(noSleep))
	err := d.Execute(context.Background(), stage.NewContext("job-1", "videos/input.mp4"))
	if err == nil || !strings.Contains(err.Error(), "duration") {
		t.Fatalf("expected duration validation error, got %v", err)
	}
}

func TestClientRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"duration": 10.0, "turns": []any{}})
	}))
	defer server.Close()

	d := stages.NewDiarization(serviceConfig(server.URL),
		stages.WithSleeper(noSleep),
		stages.WithRetryMaxAttempts(3),
	)
	if err := d.Execute(context.Background(), stage.NewContext("job-1", "videos/input.mp4")); err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestClientDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	d := stages.NewDiarization(serviceConfig(server.URL), stages.WithSleeper(noSleep))
	if err := d.Execute(context.Background(), stage.NewContext("job-1", "videos/input.mp4")); err == nil {
		t.Fatal("expected error for http 400")
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single attempt for http 400, got %d", calls.Load())
	}
}

func TestClientGivesUpAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	d := stages.NewDiarization(serviceConfig(server.URL),
		stages.WithSleeper(noSleep),
		stages.WithRetryMaxAttempts(2),
	)
	err := d.Execute(context.Background(), stage.NewContext("job-1", "videos/input.mp4"))
	if err == nil || !strings.Contains(err.Error(), "failed after 2 attempts") {
		t.Fatalf("expected exhaustion error, got %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls.Load())
	}
}

func TestSegmentationSortsAndReindexesBoundaries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"boundaries": []map[string]any{
				{"index": 7, "start": 60.0, "end": 90.0, "label": "closing"},
				{"index": 2, "start": 0.0, "end": 30.0, "label": "intro"},
				{"index": 5, "start": 30.0, "end": 60.0, "label": "body"},
			},
		})
	}))
	defer server.Close()

	s := stages.NewSegmentation(serviceConfig(server.URL), stages.WithSleeper(noSleep))
	pc := stage.NewContext("job-1", "videos/input.mp4")
	pc.Duration = 90
	if err := s.Execute(context.Background(), pc); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(pc.Boundaries) != 3 {
		t.Fatalf("expected 3 boundaries, got %#v", pc.Boundaries)
	}
	for i, b := range pc.Boundaries {
		if b.Index != i {
			t.Fatalf("expected reindexed boundaries, got %#v", pc.Boundaries)
		}
	}
	if pc.Boundaries[0].Label != "intro" || pc.Boundaries[2].Label != "closing" {
		t.Fatalf("expected sort by start time, got %#v", pc.Boundaries)
	}
}

func TestSegmentationRejectsOverlap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"boundaries": []map[string]any{
				{"start": 0.0, "end": 50.0},
				{"start": 40.0, "end": 90.0},
			},
		})
	}))
	defer server.Close()

	s := stages.NewSegmentation(serviceConfig(server.URL), stages.WithSleeper(noSleep))
	err := s.Execute(context.Background(), stage.NewContext("job-1", "videos/input.mp4"))
	if err == nil || !strings.Contains(err.Error(), "overlaps") {
		t.Fatalf("expected overlap error, got %v", err)
	}
}

func TestSegmentationPassesThroughEmptyBoundaries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"boundaries": []any{}})
	}))
	defer server.Close()

	s := stages.NewSegmentation(serviceConfig(server.URL), stages.WithSleeper(noSleep))
	pc := stage.NewContext("job-1", "videos/input.mp4")
	if err := s.Execute(context.Background(), pc); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if len(pc.Boundaries) != 0 {
		t.Fatalf("expected empty boundaries passed through, got %#v", pc.Boundaries)
	}
}

func TestSummaryRequiresOnePerBoundary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"summaries": []map[string]any{
				{"boundary_index": 0, "title": "Intro", "text": "Opening remarks."},
			},
		})
	}))
	defer server.Close()

	s := stages.NewSummary(serviceConfig(server.URL), stages.WithSleeper(noSleep))
	pc := stage.NewContext("job-1", "videos/input.mp4")
	pc.Boundaries = []stage.Boundary{
		{Index: 0, Start: 0, End: 30},
		{Index: 1, Start: 30, End: 60},
	}
	err := s.Execute(context.Background(), pc)
	if err == nil || !strings.Contains(err.Error(), "expected 2 summaries") {
		t.Fatalf("expected count mismatch error, got %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthz" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := stages.NewDiarization(serviceConfig(server.URL))
	health := d.HealthCheck(context.Background())
	if !health.Ready {
		t.Fatalf("expected healthy stage, got %#v", health)
	}

	server.Close()
	health = d.HealthCheck(context.Background())
	if health.Ready {
		t.Fatal("expected unhealthy stage after server shutdown")
	}
	if health.Name != pipeline.StageDiarization {
		t.Fatalf("unexpected health name: %q", health.Name)
	}
}

func TestFromConfigBuildsCanonicalOrder(t *testing.T) {
	list := stages.FromConfig(config.Stages{})
	if len(list) != len(pipeline.StageOrder) {
		t.Fatalf("expected %d stages, got %d", len(pipeline.StageOrder), len(list))
	}
	for i, st := range list {
		if st.Name() != pipeline.StageOrder[i] {
			t.Fatalf("stage %d: expected %q, got %q", i, pipeline.StageOrder[i], st.Name())
		}
	}
}
