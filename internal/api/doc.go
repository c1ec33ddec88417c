// Package api defines the daemon HTTP API wire types and the client the CLI
// uses to talk to a running daemon.
package api
