// Package server is the transport around the relay core: it upgrades HTTP
// requests to WebSockets, adapts each connection to relay.Channel, serves the
// chat page and health check, and runs the HTTP server lifecycle.
//
// The implementation is organized into specialized files for configuration,
// origin checks, the WebSocket channel, routing, and HTTP handlers.
package server
