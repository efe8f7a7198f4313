// Package relay implements the presence-and-messaging core: the connection
// registry, message routing, presence announcements, per-connection liveness
// monitoring and the session lifecycle that ties them together.
//
// The package knows nothing about WebSockets. Transports plug in through the
// Channel interface and hand accepted connections to Hub.Attach.
package relay
