// Package queue implements the durable at-least-once delivery channel that
// carries enqueue notifications to the dispatcher.
//
// Messages are leased rather than removed on receive: a lease pushes the
// message's availability forward by the visibility timeout, and the consumer
// deletes the message only once ownership of the work has transferred. A
// consumer crash therefore leads to automatic redelivery. Messages that reach
// the configured receive limit are redriven to the dead_letters table, never
// silently dropped, and can be replayed as fresh messages by an operator.
package queue
