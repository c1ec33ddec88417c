// Package worker implements the per-job worker process: load one job, emit
// the readiness handshake, run the stage pipeline to a terminal state, exit.
package worker
