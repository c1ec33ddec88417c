// Package dispatcher bridges the durable notification queue and isolated
// worker processes. It guarantees at most one worker start per job id within
// the claim ttl, no matter how many times the queue redelivers the same
// notification.
package dispatcher
