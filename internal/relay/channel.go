//go:generate go run go.uber.org/mock/mockgen -source=channel.go -destination=../mocks/mock_channel.go -package=mocks
package relay

import "context"

// EventKind tells the session how to route an inbound event.
type EventKind int

const (
	// EventData carries an application payload for the Router.
	EventData EventKind = iota
	// EventPing is a heartbeat probe from the peer.
	EventPing
	// EventPong answers one of our heartbeat probes.
	EventPong
)

func (k EventKind) String() string {
	switch k {
	case EventData:
		return "data"
	case EventPing:
		return "ping"
	case EventPong:
		return "pong"
	default:
		return "unknown"
	}
}

// Event is one inbound item read from a Channel.
type Event struct {
	Kind    EventKind
	Payload []byte
}

// Channel is one participant's duplex message stream.
//
// Send and Ping must be safe to call from any goroutine. Receive is called by a
// single goroutine (the owning session). Once closed, Receive returns
// ErrChannelClosed and Send fails with ErrChannelClosed.
type Channel interface {
	Send(payload []byte) error
	Receive(ctx context.Context) (Event, error)
	Ping() error
	Close() error
	RemoteAddr() string
}
