// Package pipeline runs the fixed stage sequence for a single job inside a
// worker process. The executor is the sole writer of job state after
// dispatch: it records each stage transition, finalizes the record on
// success or first failure, and hands the finished output to the sink.
package pipeline
