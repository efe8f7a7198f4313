package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/presence-relay/internal/relay"
)

// wsChannel adapts a gorilla WebSocket connection to relay.Channel.
//
// A read pump turns frames (and ping/pong control frames) into relay events;
// a write pump drains a bounded outbound queue so that every recipient keeps
// per-connection FIFO order and a slow peer never blocks its senders.
type wsChannel struct {
	conn      *websocket.Conn
	addr      string
	writeWait time.Duration
	maxSize   int64
	log       *slog.Logger

	send   chan []byte
	events chan relay.Event
	done   chan struct{}
	once   sync.Once

	// readErr is written by the read pump before it closes events.
	readErr error
}

func newWSChannel(conn *websocket.Conn, addr string, cfg Config, log *slog.Logger) *wsChannel {
	c := &wsChannel{
		conn:      conn,
		addr:      addr,
		writeWait: cfg.WriteWait,
		maxSize:   cfg.MaxMessageSize,
		log:       log.With("remote", addr),
		send:      make(chan []byte, cfg.SendBufferSize),
		events:    make(chan relay.Event),
		done:      make(chan struct{}),
	}

	conn.SetReadLimit(cfg.MaxMessageSize)
	conn.SetPingHandler(c.handlePing)
	conn.SetPongHandler(func(string) error {
		c.emit(relay.Event{Kind: relay.EventPong})
		return nil
	})

	go c.readPump()
	go c.writePump()
	return c
}

// Send queues payload for delivery. It never blocks.
func (c *wsChannel) Send(payload []byte) error {
	select {
	case <-c.done:
		return relay.ErrChannelClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return relay.ErrChannelClosed
	default:
		return relay.ErrSendBufferFull
	}
}

// Receive returns the next inbound event. After the connection ends it
// returns relay.ErrChannelClosed for an orderly close, or the transport error.
func (c *wsChannel) Receive(ctx context.Context) (relay.Event, error) {
	select {
	case ev, ok := <-c.events:
		if !ok {
			return relay.Event{}, c.readErr
		}
		return ev, nil
	case <-c.done:
		return relay.Event{}, relay.ErrChannelClosed
	case <-ctx.Done():
		return relay.Event{}, ctx.Err()
	}
}

// Ping writes a heartbeat probe. Control frames may be written concurrently
// with the write pump.
func (c *wsChannel) Ping() error {
	select {
	case <-c.done:
		return relay.ErrChannelClosed
	default:
	}
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

// Close sends a close frame and releases the connection. Safe to call more
// than once and from any goroutine.
func (c *wsChannel) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)

		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeWait)); werr != nil && !isExpectedCloseError(werr) {
			c.log.Debug("Error writing close message", "error", werr)
		}
		if cerr := c.conn.Close(); cerr != nil && !isExpectedCloseError(cerr) {
			err = cerr
		}
	})
	return err
}

func (c *wsChannel) RemoteAddr() string { return c.addr }

func (c *wsChannel) handlePing(appData string) error {
	err := c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeWait))
	if err != nil && !isExpectedCloseError(err) {
		c.log.Debug("Error answering ping", "error", err)
	}
	c.emit(relay.Event{Kind: relay.EventPing})
	return nil
}

// emit hands an event to Receive unless the channel is closing.
func (c *wsChannel) emit(ev relay.Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *wsChannel) readPump() {
	defer close(c.events)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.readErr = c.classifyReadError(err)
			return
		}
		c.emit(relay.Event{Kind: relay.EventData, Payload: data})
	}
}

func (c *wsChannel) writePump() {
	for {
		select {
		case message := <-c.send:
			if !c.writeText(message) {
				_ = c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsChannel) writeText(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
		c.log.Debug("Error setting write deadline", "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing message", "error", err)
		}
		return false
	}
	return true
}

// classifyReadError maps the read loop's terminal error onto the relay's
// taxonomy: orderly closes become ErrChannelClosed, anything else is a
// transport error.
func (c *wsChannel) classifyReadError(err error) error {
	select {
	case <-c.done:
		return relay.ErrChannelClosed
	default:
	}

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Message exceeded maximum size", "limit", c.maxSize)
		return fmt.Errorf("read limit of %d bytes exceeded: %w", c.maxSize, err)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived):
		c.log.Debug("Client disconnected", "reason", err)
		return relay.ErrChannelClosed
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), isExpectedCloseError(err):
		c.log.Debug("Connection closed", "reason", err)
		return relay.ErrChannelClosed
	default:
		return err
	}
}

// isExpectedCloseError reports errors that only mean the connection is gone.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}
