// Package server provides the gateway's HTTP server lifecycle:
// non-blocking startup, graceful shutdown, and SIGINT/SIGTERM handling.
//
// Manager wraps a net/http.Server and its net.Listener, exposing
// Start/Shutdown/WaitForShutdown plus an async error channel for
// listen/serve failures. Start runs the server in a background
// goroutine; Shutdown drains in-flight requests within a configured
// timeout; WaitForShutdown blocks until a shutdown signal or server
// error arrives, then shuts down.
package server
