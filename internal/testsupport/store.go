package testsupport

import (
	"context"
	"testing"
	"time"

	"sprocket/internal/claims"
	"sprocket/internal/config"
	"sprocket/internal/jobs"
	"sprocket/internal/queue"
	"sprocket/internal/storage"
)

// MustOpenDB opens the SQLite database for tests and registers cleanup.
func MustOpenDB(t testing.TB, cfg *config.Config) *storage.DB {
	t.Helper()

	db, err := storage.Open(cfg)
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

// NewJobStore creates a job store against the provided database.
func NewJobStore(t testing.TB, db *storage.DB) *jobs.Store {
	t.Helper()

	store, err := jobs.NewStore(context.Background(), db)
	if err != nil {
		t.Fatalf("jobs.NewStore: %v", err)
	}
	return store
}

// NewQueue creates a message queue using the config's delivery settings.
func NewQueue(t testing.TB, db *storage.DB, cfg *config.Config) *queue.Queue {
	t.Helper()

	q, err := queue.New(context.Background(), db, cfg.QueueVisibilityTimeout(), cfg.Queue.MaxReceives)
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	return q
}

// NewGate creates an idempotency claim gate with the given TTL.
func NewGate(t testing.TB, db *storage.DB, ttl time.Duration) *claims.Gate {
	t.Helper()

	gate, err := claims.NewGate(context.Background(), db, ttl)
	if err != nil {
		t.Fatalf("claims.NewGate: %v", err)
	}
	return gate
}

// EnqueueNotification encodes and enqueues a job notification for tests.
func EnqueueNotification(t testing.TB, q *queue.Queue, jobID, sourceKey string) *queue.Message {
	t.Helper()

	body, err := queue.EncodeNotification(queue.Notification{JobID: jobID, SourceKey: sourceKey})
	if err != nil {
		t.Fatalf("queue.EncodeNotification: %v", err)
	}
	msg, err := q.Enqueue(context.Background(), body)
	if err != nil {
		t.Fatalf("queue.Enqueue: %v", err)
	}
	return msg
}
