package claims_test

import (
	"context"
	"testing"
	"time"

	"sprocket/internal/testsupport"
)

func TestAcquireIsExclusive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	gate := testsupport.NewGate(t, db, time.Minute)

	ctx := context.Background()
	acquired, err := gate.Acquire(ctx, "job-1")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if !acquired {
		t.Fatal("expected first acquire to succeed")
	}

	acquired, err = gate.Acquire(ctx, "job-1")
	if err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if acquired {
		t.Fatal("expected duplicate acquire to be rejected while claim is live")
	}

	// A different job is unaffected.
	acquired, err = gate.Acquire(ctx, "job-2")
	if err != nil {
		t.Fatalf("Acquire for second job failed: %v", err)
	}
	if !acquired {
		t.Fatal("expected acquire for distinct job to succeed")
	}
}

func TestAcquireTakesOverExpiredClaim(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	gate := testsupport.NewGate(t, db, 10*time.Millisecond)

	ctx := context.Background()
	if acquired, err := gate.Acquire(ctx, "job-1"); err != nil || !acquired {
		t.Fatalf("initial acquire: acquired=%v err=%v", acquired, err)
	}
	if err := gate.ConfirmWorker(ctx, "job-1", "pid:1234"); err != nil {
		t.Fatalf("ConfirmWorker failed: %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	acquired, err := gate.Acquire(ctx, "job-1")
	if err != nil {
		t.Fatalf("Acquire after expiry failed: %v", err)
	}
	if !acquired {
		t.Fatal("expected acquire to take over expired claim")
	}

	// Takeover resets the worker handle from the dead dispatch attempt.
	claim, err := gate.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if claim == nil {
		t.Fatal("expected claim to exist")
	}
	if claim.WorkerHandle != "" {
		t.Fatalf("expected worker handle cleared on takeover, got %q", claim.WorkerHandle)
	}
	if !claim.Live(time.Now()) {
		t.Fatal("expected refreshed claim to be live")
	}
}

func TestReleaseAllowsImmediateReacquire(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	gate := testsupport.NewGate(t, db, time.Minute)

	ctx := context.Background()
	if acquired, err := gate.Acquire(ctx, "job-1"); err != nil || !acquired {
		t.Fatalf("initial acquire: acquired=%v err=%v", acquired, err)
	}
	if err := gate.Release(ctx, "job-1"); err != nil {
		t.Fatalf("Release failed: %v", err)
	}

	acquired, err := gate.Acquire(ctx, "job-1")
	if err != nil {
		t.Fatalf("Acquire after release failed: %v", err)
	}
	if !acquired {
		t.Fatal("expected acquire to succeed after release")
	}
}

func TestConfirmWorkerRecordsHandle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	gate := testsupport.NewGate(t, db, time.Minute)

	ctx := context.Background()
	if acquired, err := gate.Acquire(ctx, "job-1"); err != nil || !acquired {
		t.Fatalf("acquire: acquired=%v err=%v", acquired, err)
	}
	if err := gate.ConfirmWorker(ctx, "job-1", "pid:4242"); err != nil {
		t.Fatalf("ConfirmWorker failed: %v", err)
	}

	claim, err := gate.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if claim == nil || claim.WorkerHandle != "pid:4242" {
		t.Fatalf("unexpected claim: %#v", claim)
	}
}

func TestGetReturnsNilForUnknownJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	gate := testsupport.NewGate(t, db, time.Minute)

	claim, err := gate.Get(context.Background(), "never-claimed")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if claim != nil {
		t.Fatalf("expected nil claim, got %#v", claim)
	}
}

func TestSweepRemovesOnlyExpiredClaims(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	shortGate := testsupport.NewGate(t, db, 10*time.Millisecond)
	longGate := testsupport.NewGate(t, db, time.Minute)

	ctx := context.Background()
	if acquired, err := shortGate.Acquire(ctx, "expired-job"); err != nil || !acquired {
		t.Fatalf("acquire expired-job: acquired=%v err=%v", acquired, err)
	}
	if acquired, err := longGate.Acquire(ctx, "live-job"); err != nil || !acquired {
		t.Fatalf("acquire live-job: acquired=%v err=%v", acquired, err)
	}

	time.Sleep(20 * time.Millisecond)

	removed, err := longGate.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 swept claim, got %d", removed)
	}

	live, err := longGate.Get(ctx, "live-job")
	if err != nil {
		t.Fatalf("Get live-job failed: %v", err)
	}
	if live == nil {
		t.Fatal("expected live claim to survive sweep")
	}
}
