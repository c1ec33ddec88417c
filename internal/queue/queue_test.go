package queue_test

import (
	"context"
	"testing"
	"time"

	"sprocket/internal/queue"
	"sprocket/internal/testsupport"
)

func TestEnqueueReceiveDelete(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	q := testsupport.NewQueue(t, db, cfg)

	ctx := context.Background()
	sent := testsupport.EnqueueNotification(t, q, "job-1", "videos/input.mp4")

	msg, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if msg == nil {
		t.Fatal("expected a message")
	}
	if msg.ID != sent.ID {
		t.Fatalf("expected message %d, got %d", sent.ID, msg.ID)
	}
	if msg.ReceiveCount != 1 {
		t.Fatalf("expected receive count 1, got %d", msg.ReceiveCount)
	}

	// The lease hides the message from further receives.
	leased, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("second Receive failed: %v", err)
	}
	if leased != nil {
		t.Fatalf("expected no visible message while leased, got %#v", leased)
	}

	if err := q.Delete(ctx, msg.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	// Deleting again is a no-op.
	if err := q.Delete(ctx, msg.ID); err != nil {
		t.Fatalf("second Delete failed: %v", err)
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth failed: %v", err)
	}
	if depth != 0 {
		t.Fatalf("expected empty queue, got depth %d", depth)
	}
}

func TestReceiveReturnsNilWhenEmpty(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)
	q := testsupport.NewQueue(t, db, cfg)

	msg, err := q.Receive(context.Background())
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected nil message, got %#v", msg)
	}
}

func TestVisibilityTimeoutRedelivers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)

	q, err := queue.New(context.Background(), db, 20*time.Millisecond, 5)
	if err != nil {
		t.Fatalf("queue.New failed: %v", err)
	}

	ctx := context.Background()
	testsupport.EnqueueNotification(t, q, "job-1", "videos/input.mp4")

	first, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if first == nil {
		t.Fatal("expected a message")
	}

	time.Sleep(40 * time.Millisecond)

	second, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("redelivery Receive failed: %v", err)
	}
	if second == nil {
		t.Fatal("expected redelivered message after visibility timeout")
	}
	if second.ID != first.ID {
		t.Fatalf("expected same message id %d, got %d", first.ID, second.ID)
	}
	if second.ReceiveCount != 2 {
		t.Fatalf("expected receive count 2, got %d", second.ReceiveCount)
	}
}

func TestExhaustedMessageDeadLetters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)

	q, err := queue.New(context.Background(), db, time.Millisecond, 2)
	if err != nil {
		t.Fatalf("queue.New failed: %v", err)
	}

	ctx := context.Background()
	sent := testsupport.EnqueueNotification(t, q, "job-1", "videos/input.mp4")

	for i := 0; i < 2; i++ {
		msg, err := q.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive %d failed: %v", i+1, err)
		}
		if msg == nil {
			t.Fatalf("expected message on receive %d", i+1)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The next receive redrives the exhausted message instead of leasing it.
	msg, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("post-exhaustion Receive failed: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected exhausted message to dead-letter, got %#v", msg)
	}

	entries, err := q.DeadLetters(ctx)
	if err != nil {
		t.Fatalf("DeadLetters failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 dead letter, got %d", len(entries))
	}
	entry := entries[0]
	if entry.MessageID != sent.ID {
		t.Fatalf("expected dead letter for message %d, got %d", sent.ID, entry.MessageID)
	}
	if entry.ReceiveCount != 2 {
		t.Fatalf("expected receive count 2, got %d", entry.ReceiveCount)
	}
	if entry.ReplayedAt != nil {
		t.Fatal("expected dead letter not yet replayed")
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("Depth failed: %v", err)
	}
	if depth != 0 {
		t.Fatalf("expected dead-lettered message removed from queue, got depth %d", depth)
	}
}

func TestReplayReenqueuesOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	db := testsupport.MustOpenDB(t, cfg)

	q, err := queue.New(context.Background(), db, time.Millisecond, 1)
	if err != nil {
		t.Fatalf("queue.New failed: %v", err)
	}

	ctx := context.Background()
	testsupport.EnqueueNotification(t, q, "job-1", "videos/input.mp4")

	if msg, err := q.Receive(ctx); err != nil || msg == nil {
		t.Fatalf("Receive: msg=%v err=%v", msg, err)
	}
	time.Sleep(5 * time.Millisecond)
	if msg, err := q.Receive(ctx); err != nil || msg != nil {
		t.Fatalf("expected dead-lettering receive, got msg=%v err=%v", msg, err)
	}

	entries, err := q.DeadLetters(ctx)
	if err != nil || len(entries) != 1 {
		t.Fatalf("DeadLetters: entries=%v err=%v", entries, err)
	}

	replayed, err := q.Replay(ctx, entries[0].ID)
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	decoded, err := queue.DecodeNotification(replayed.Body)
	if err != nil {
		t.Fatalf("DecodeNotification failed: %v", err)
	}
	if decoded.JobID != "job-1" {
		t.Fatalf("expected replayed body for job-1, got %q", decoded.JobID)
	}

	// A second replay of the same entry is refused.
	if _, err := q.Replay(ctx, entries[0].ID); err == nil {
		t.Fatal("expected second replay to fail")
	}
}

func TestDecodeNotification(t *testing.T) {
	body, err := queue.EncodeNotification(queue.Notification{
		JobID:     "job-1",
		SourceKey: "videos/input.mp4",
		Metadata:  map[string]string{"origin": "upload"},
	})
	if err != nil {
		t.Fatalf("EncodeNotification failed: %v", err)
	}

	decoded, err := queue.DecodeNotification(body)
	if err != nil {
		t.Fatalf("DecodeNotification failed: %v", err)
	}
	if decoded.JobID != "job-1" || decoded.SourceKey != "videos/input.mp4" {
		t.Fatalf("unexpected notification: %#v", decoded)
	}
	if decoded.Metadata["origin"] != "upload" {
		t.Fatalf("unexpected metadata: %#v", decoded.Metadata)
	}

	if _, err := queue.DecodeNotification([]byte("{not json")); err == nil {
		t.Fatal("expected decode error for invalid JSON")
	}
	if _, err := queue.DecodeNotification([]byte(`{"source_key":"videos/a.mp4"}`)); err == nil {
		t.Fatal("expected decode error for missing job_id")
	}
	if _, err := queue.DecodeNotification([]byte(`{"job_id":"job-1"}`)); err == nil {
		t.Fatal("expected decode error for missing source_key")
	}
}
