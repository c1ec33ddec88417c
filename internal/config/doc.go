// Package config loads, normalizes, and validates Sprocket configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SPROCKET_SUMMARY_API_KEY. The Config type centralizes every knob the daemon,
// worker, and CLI need: queue delivery tuning, dispatch claim policy, external
// stage service endpoints, and the result sink.
//
// Validation enforces the relationship the dispatcher depends on: the
// idempotency claim ttl must be strictly shorter than the queue's redelivery
// window, otherwise a crashed dispatch could block a job until it dead-letters.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
