// Package services defines the error taxonomy and context annotation helpers
// shared by the dispatcher, pipeline executor, and stage clients.
//
// Errors are tagged with sentinel markers (malformed message, duplicate job,
// launch failure, stage failure, publication failure) via Wrap so callers can
// classify with errors.Is and logging can extract structured details without
// string matching. Context helpers carry job IDs, stage names, and correlation
// IDs across component boundaries for consistent log tagging.
package services
