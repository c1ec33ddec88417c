// Package storage owns the shared SQLite connection for sprocket's durable
// state: job records, idempotency claims, queue messages, and dead letters.
//
// It applies the WAL and busy-timeout pragmas once at open, wraps writes in a
// bounded busy-retry loop, and provides the nullable/timestamp helpers every
// table uses. Higher-level stores (jobs, claims, queue) each initialize their
// own schema against this handle.
package storage
