package services_test

import (
	"context"
	"testing"

	"sprocket/internal/services"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()

	if _, ok := services.JobIDFromContext(ctx); ok {
		t.Fatal("expected no job id on empty context")
	}

	ctx = services.WithJobID(ctx, "job-1")
	ctx = services.WithStage(ctx, "segmentation")
	ctx = services.WithRequestID(ctx, "req-7")

	if id, ok := services.JobIDFromContext(ctx); !ok || id != "job-1" {
		t.Fatalf("unexpected job id: %q ok=%v", id, ok)
	}
	if stage, ok := services.StageFromContext(ctx); !ok || stage != "segmentation" {
		t.Fatalf("unexpected stage: %q ok=%v", stage, ok)
	}
	if rid, ok := services.RequestIDFromContext(ctx); !ok || rid != "req-7" {
		t.Fatalf("unexpected request id: %q ok=%v", rid, ok)
	}
}

func TestEmptyValuesAreNotStored(t *testing.T) {
	ctx := services.WithJobID(context.Background(), "")
	if _, ok := services.JobIDFromContext(ctx); ok {
		t.Fatal("expected empty job id to be skipped")
	}
	ctx = services.WithStage(context.Background(), "")
	if _, ok := services.StageFromContext(ctx); ok {
		t.Fatal("expected empty stage to be skipped")
	}
}
