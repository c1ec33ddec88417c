// Package daemon wires the dispatcher, claim housekeeping, and the HTTP API
// into one single-instance background process guarded by a lock file.
package daemon
