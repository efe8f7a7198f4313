package relay

import "fmt"

var (
	// ErrProtocol marks an inbound payload that could not be decoded or violates
	// the wire protocol. The offending message is dropped.
	ErrProtocol = fmt.Errorf("protocol error")
	// ErrNotIdentified is returned when TEXT or DM arrives before INIT.
	ErrNotIdentified = fmt.Errorf("%w: connection has not sent INIT", ErrProtocol)
	// ErrUnknownType is returned for an mtype the router does not handle.
	ErrUnknownType = fmt.Errorf("%w: unknown mtype", ErrProtocol)

	// ErrDelivery marks a failed send to one recipient.
	ErrDelivery = fmt.Errorf("delivery error")
	// ErrChannelClosed is returned by a Channel once it has been closed.
	ErrChannelClosed = fmt.Errorf("channel closed")
	// ErrSendBufferFull is returned when a recipient's outbound queue is full.
	ErrSendBufferFull = fmt.Errorf("send buffer full")
	// ErrHubClosed is returned by Hub.Attach after Shutdown.
	ErrHubClosed = fmt.Errorf("hub is shut down")
)
