// Package launcher starts isolated worker processes and confirms they are
// running via a stdout readiness handshake. The dispatcher only deletes a
// queue message after this confirmation, so a worker that never came up
// leaves the message eligible for redelivery.
package launcher
