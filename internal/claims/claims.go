package claims

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"sprocket/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

// Claim is a short-lived exclusive ownership record for one job dispatch.
type Claim struct {
	JobID        string
	ClaimedAt    time.Time
	ExpiresAt    time.Time
	WorkerHandle string
}

// Live reports whether the claim is unexpired at the given instant.
func (c *Claim) Live(now time.Time) bool {
	return c != nil && now.Before(c.ExpiresAt)
}

// Gate enforces at-most-one-start semantics over at-least-once delivery.
//
// Acquire is a single atomic conditional write: insert if absent, take over
// only an expired row. There is deliberately no read-then-write path, which
// would open a race where two dispatch attempts both observe no claim. A
// successful dispatch never deletes its claim; ttl expiry is the only removal
// path, so a redelivered message shortly after completion still deduplicates.
type Gate struct {
	db  *storage.DB
	ttl time.Duration
}

// NewGate initializes the claims table against the shared database.
func NewGate(ctx context.Context, db *storage.DB, ttl time.Duration) (*Gate, error) {
	if db == nil {
		return nil, errors.New("database handle is nil")
	}
	if ttl <= 0 {
		return nil, errors.New("claim ttl must be positive")
	}
	if err := db.InitSchema(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("init claims schema: %w", err)
	}
	return &Gate{db: db, ttl: ttl}, nil
}

// TTL returns the configured claim lifetime.
func (g *Gate) TTL() time.Duration {
	return g.ttl
}

// Acquire attempts to claim the job. It returns true when this caller now
// owns the job, false when a live claim already exists.
func (g *Gate) Acquire(ctx context.Context, jobID string) (bool, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return false, errors.New("job id required")
	}
	now := time.Now().UTC()
	res, err := g.db.Exec(
		ctx,
		`INSERT INTO idempotency_claims (job_id, claimed_at, expires_at)
         VALUES (?, ?, ?)
         ON CONFLICT(job_id) DO UPDATE SET
             claimed_at = excluded.claimed_at,
             expires_at = excluded.expires_at,
             worker_handle = NULL
         WHERE idempotency_claims.expires_at <= excluded.claimed_at`,
		jobID,
		storage.FormatTime(now),
		storage.FormatTime(now.Add(g.ttl)),
	)
	if err != nil {
		return false, fmt.Errorf("acquire claim: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// ConfirmWorker records the launched worker's handle on an existing claim.
func (g *Gate) ConfirmWorker(ctx context.Context, jobID, workerHandle string) error {
	_, err := g.db.Exec(
		ctx,
		`UPDATE idempotency_claims SET worker_handle = ? WHERE job_id = ?`,
		storage.NullableString(workerHandle),
		jobID,
	)
	if err != nil {
		return fmt.Errorf("confirm worker: %w", err)
	}
	return nil
}

// Release deletes the claim so a future redelivery can retry cleanly. Only
// the launch-failure path calls this; success leaves the claim to expire.
func (g *Gate) Release(ctx context.Context, jobID string) error {
	_, err := g.db.Exec(ctx, `DELETE FROM idempotency_claims WHERE job_id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// Get fetches the claim for a job, expired or not. Returns nil when absent.
func (g *Gate) Get(ctx context.Context, jobID string) (*Claim, error) {
	row := g.db.QueryRow(
		ctx,
		`SELECT job_id, claimed_at, expires_at, worker_handle FROM idempotency_claims WHERE job_id = ?`,
		jobID,
	)

	var (
		id           string
		claimedRaw   string
		expiresRaw   string
		workerHandle sql.NullString
	)
	err := row.Scan(&id, &claimedRaw, &expiresRaw, &workerHandle)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get claim: %w", err)
	}

	claim := &Claim{JobID: id, WorkerHandle: workerHandle.String}
	if claimed, err := storage.ParseTime(claimedRaw); err == nil {
		claim.ClaimedAt = claimed
	}
	if expires, err := storage.ParseTime(expiresRaw); err == nil {
		claim.ExpiresAt = expires
	}
	return claim, nil
}

// Sweep removes expired claims. Purely housekeeping: Acquire already treats
// expired rows as absent.
func (g *Gate) Sweep(ctx context.Context) (int64, error) {
	res, err := g.db.Exec(
		ctx,
		`DELETE FROM idempotency_claims WHERE expires_at <= ?`,
		storage.FormatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep claims: %w", err)
	}
	return res.RowsAffected()
}
