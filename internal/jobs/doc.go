// Package jobs persists job records in SQLite and exposes the guarded
// transitions the dispatcher and pipeline executor drive them through.
//
// A job moves queued -> processing -> completed|failed. The store enforces
// single-writer-per-field ownership with status guards on every update:
// stage and terminal writes only apply while the job is processing, so a
// terminal record can never be mutated again. Progress and current_stage are
// written in one statement to keep the polling view consistent.
//
// Treat this package as the single source of truth for job lifecycle
// semantics; when you add fields, update schema.sql alongside.
package jobs
