// Package claims implements the idempotency gate that turns at-least-once
// queue delivery into at-most-one worker start per job.
//
// A claim is acquired with a single conditional upsert against SQLite: the
// write succeeds only when no row exists or the existing row has expired.
// Live claims are never overwritten and never deleted on success; expiry is
// the sole removal path, which both permits retry after infrastructure
// failure and suppresses zombie duplicate starts shortly after completion.
package claims
