package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"sprocket/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

const deadLetterReasonMaxReceives = "max receives exceeded"

// Queue is a durable at-least-once message queue backed by SQLite.
//
// Receive leases the oldest visible message by pushing its availability
// forward one visibility timeout in a single statement; the message reappears
// automatically if the consumer never deletes it. Messages that reach the
// receive limit are moved to the dead_letters table instead of being leased.
type Queue struct {
	db                *storage.DB
	visibilityTimeout time.Duration
	maxReceives       int
}

// New initializes the queue tables against the shared database.
func New(ctx context.Context, db *storage.DB, visibilityTimeout time.Duration, maxReceives int) (*Queue, error) {
	if db == nil {
		return nil, errors.New("database handle is nil")
	}
	if visibilityTimeout <= 0 {
		return nil, errors.New("visibility timeout must be positive")
	}
	if maxReceives < 1 {
		return nil, errors.New("max receives must be at least 1")
	}
	if err := db.InitSchema(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("init queue schema: %w", err)
	}
	return &Queue{db: db, visibilityTimeout: visibilityTimeout, maxReceives: maxReceives}, nil
}

// VisibilityTimeout returns the configured lease duration.
func (q *Queue) VisibilityTimeout() time.Duration {
	return q.visibilityTimeout
}

// Enqueue appends a raw message body. Both upstream triggers call this with
// an encoded Notification; the queue itself never inspects the body.
func (q *Queue) Enqueue(ctx context.Context, body []byte) (*Message, error) {
	if len(body) == 0 {
		return nil, errors.New("message body required")
	}
	now := time.Now().UTC()
	timestamp := storage.FormatTime(now)
	res, err := q.db.Exec(
		ctx,
		`INSERT INTO queue_messages (body, receive_count, enqueued_at, available_at)
         VALUES (?, 0, ?, ?)`,
		body,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &Message{ID: id, Body: body, EnqueuedAt: now, AvailableAt: now}, nil
}

// Receive leases the next visible message. Returns nil when the queue has no
// visible message. Exhausted messages are dead-lettered before leasing.
func (q *Queue) Receive(ctx context.Context) (*Message, error) {
	if err := q.redriveExhausted(ctx); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	row := q.db.QueryRow(
		ctx,
		`UPDATE queue_messages
         SET available_at = ?, receive_count = receive_count + 1
         WHERE id = (
             SELECT id FROM queue_messages WHERE available_at <= ? ORDER BY id LIMIT 1
         )
         RETURNING id, body, receive_count, enqueued_at, available_at`,
		storage.FormatTime(now.Add(q.visibilityTimeout)),
		storage.FormatTime(now),
	)

	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("receive message: %w", err)
	}
	return msg, nil
}

// Delete removes a message after its work has been handed off. Deleting an
// already-deleted message is a no-op so duplicate handling stays idempotent.
func (q *Queue) Delete(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, `DELETE FROM queue_messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// redriveExhausted moves messages past the receive limit into dead_letters.
// Only currently-visible messages move: an in-flight lease on its final
// receive still gets its chance to be deleted by the consumer.
func (q *Queue) redriveExhausted(ctx context.Context) error {
	now := storage.FormatTime(time.Now())

	tx, err := q.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin redrive tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO dead_letters (message_id, body, receive_count, reason, dead_at)
         SELECT id, body, receive_count, ?, ?
         FROM queue_messages
         WHERE receive_count >= ? AND available_at <= ?`,
		deadLetterReasonMaxReceives,
		now,
		q.maxReceives,
		now,
	); err != nil {
		return fmt.Errorf("copy to dead letters: %w", err)
	}

	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM queue_messages WHERE receive_count >= ? AND available_at <= ?`,
		q.maxReceives,
		now,
	); err != nil {
		return fmt.Errorf("remove dead-lettered messages: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit redrive: %w", err)
	}
	return nil
}

// DeadLetters returns dead-lettered messages, oldest first.
func (q *Queue) DeadLetters(ctx context.Context) ([]*DeadLetter, error) {
	rows, err := q.db.Query(
		ctx,
		`SELECT id, message_id, body, receive_count, reason, dead_at, replayed_at
         FROM dead_letters ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var entries []*DeadLetter
	for rows.Next() {
		entry, err := scanDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Replay re-enqueues a dead-lettered body as a fresh message and records the
// replay time. The replayed message passes through the idempotency gate like
// any other enqueue.
func (q *Queue) Replay(ctx context.Context, deadLetterID int64) (*Message, error) {
	row := q.db.QueryRow(
		ctx,
		`SELECT id, message_id, body, receive_count, reason, dead_at, replayed_at
         FROM dead_letters WHERE id = ?`,
		deadLetterID,
	)
	entry, err := scanDeadLetter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dead letter %d not found", deadLetterID)
	}
	if err != nil {
		return nil, fmt.Errorf("get dead letter: %w", err)
	}
	if entry.ReplayedAt != nil {
		return nil, fmt.Errorf("dead letter %d already replayed at %s", deadLetterID, entry.ReplayedAt.Format(time.RFC3339))
	}

	msg, err := q.Enqueue(ctx, entry.Body)
	if err != nil {
		return nil, err
	}

	if _, err := q.db.Exec(
		ctx,
		`UPDATE dead_letters SET replayed_at = ? WHERE id = ?`,
		storage.FormatTime(time.Now()),
		deadLetterID,
	); err != nil {
		return nil, fmt.Errorf("mark replayed: %w", err)
	}
	return msg, nil
}

// Depth returns the number of messages currently in the queue, leased or not.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	var count int
	if err := q.db.QueryRow(ctx, `SELECT COUNT(1) FROM queue_messages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return count, nil
}

func scanMessage(scanner interface{ Scan(dest ...any) error }) (*Message, error) {
	var (
		id           int64
		body         []byte
		receiveCount int
		enqueuedRaw  string
		availableRaw string
	)
	if err := scanner.Scan(&id, &body, &receiveCount, &enqueuedRaw, &availableRaw); err != nil {
		return nil, err
	}
	msg := &Message{ID: id, Body: body, ReceiveCount: receiveCount}
	if enqueued, err := storage.ParseTime(enqueuedRaw); err == nil {
		msg.EnqueuedAt = enqueued
	}
	if available, err := storage.ParseTime(availableRaw); err == nil {
		msg.AvailableAt = available
	}
	return msg, nil
}

func scanDeadLetter(scanner interface{ Scan(dest ...any) error }) (*DeadLetter, error) {
	var (
		id           int64
		messageID    int64
		body         []byte
		receiveCount int
		reason       string
		deadRaw      string
		replayedRaw  sql.NullString
	)
	if err := scanner.Scan(&id, &messageID, &body, &receiveCount, &reason, &deadRaw, &replayedRaw); err != nil {
		return nil, err
	}
	entry := &DeadLetter{
		ID:           id,
		MessageID:    messageID,
		Body:         body,
		ReceiveCount: receiveCount,
		Reason:       reason,
	}
	if dead, err := storage.ParseTime(deadRaw); err == nil {
		entry.DeadAt = dead
	}
	if replayedRaw.Valid {
		if replayed, err := storage.ParseTime(replayedRaw.String); err == nil {
			entry.ReplayedAt = &replayed
		}
	}
	return entry, nil
}
