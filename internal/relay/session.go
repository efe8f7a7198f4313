package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SessionState is the lifecycle stage of a session.
type SessionState int

const (
	// SessionConnecting is a session that has not started Run yet.
	SessionConnecting SessionState = iota
	// SessionOpen is a session serving inbound messages.
	SessionOpen
	// SessionClosing is a session whose receive loop ended and is tearing down.
	SessionClosing
	// SessionClosed is a session that released its registration and channel.
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionOpen:
		return "open"
	case SessionClosing:
		return "closing"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionOptions tune per-connection behaviour.
type SessionOptions struct {
	HeartbeatInterval    time.Duration
	HeartbeatMaxMissed   int
	RateLimit            RateLimit
	CloseOnProtocolError bool
}

// Session owns one Channel for its whole life: it runs the heartbeat, feeds
// inbound messages to the router and cleans up the registry on teardown.
type Session struct {
	id       string
	ch       Channel
	registry *Registry
	presence *Presence
	router   *Router
	opts     SessionOptions
	log      *slog.Logger
	limiter  *tokenBucket
	monitor  *LivenessMonitor

	mu       sync.Mutex
	identity string
	state    SessionState
	closed   sync.Once
}

// NewSession wires a session for ch. Run must be called to start it.
func NewSession(ch Channel, registry *Registry, presence *Presence, router *Router, opts SessionOptions, log *slog.Logger) *Session {
	id := uuid.NewString()
	log = log.With("session", id, "remote", ch.RemoteAddr())

	return &Session{
		id:       id,
		ch:       ch,
		registry: registry,
		presence: presence,
		router:   router,
		opts:     opts,
		log:      log,
		limiter:  newTokenBucket(opts.RateLimit, nil),
		monitor:  NewLivenessMonitor(ch, opts.HeartbeatInterval, opts.HeartbeatMaxMissed, log),
		state:    SessionConnecting,
	}
}

// ID returns the session's unique id, used for log correlation.
func (s *Session) ID() string { return s.id }

// Channel returns the connection owned by this session.
func (s *Session) Channel() Channel { return s.ch }

// Monitor returns the session's liveness monitor.
func (s *Session) Monitor() *LivenessMonitor { return s.monitor }

// Identity returns the bound identity, or "" before INIT.
func (s *Session) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Bind sets the identity this connection speaks for.
func (s *Session) Bind(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identity = id
}

// State returns the current lifecycle stage.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Run serves the connection until the peer goes away, the transport fails or
// ctx is cancelled. The heartbeat task is always stopped and joined before the
// registry is touched. A transport failure is returned; a normal close is not.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.monitor.Run(gctx) })

	s.setState(SessionOpen)
	s.log.Info("Session opened")

	err := s.receive(ctx)

	s.setState(SessionClosing)
	cancel()
	_ = g.Wait()

	s.teardown()
	return err
}

func (s *Session) receive(ctx context.Context) error {
	for {
		ev, err := s.ch.Receive(ctx)
		if err != nil {
			switch {
			case errors.Is(err, ErrChannelClosed):
				s.log.Info("Connection closed")
				return nil
			case ctx.Err() != nil:
				s.log.Info("Session cancelled")
				return nil
			default:
				s.log.Warn("Transport error", "error", err)
				return err
			}
		}

		switch ev.Kind {
		case EventPing:
			s.log.Debug("Ping received")
		case EventPong:
			s.monitor.ObservePong()
		case EventData:
			if !s.limiter.allow() {
				s.log.Warn("Rate limit exceeded; discarding message",
					"burst", s.opts.RateLimit.Burst, "interval", s.opts.RateLimit.Interval)
				continue
			}
			if err := s.route(ev.Payload); err != nil {
				s.log.Warn("Dropping inbound message", "error", err)
				if s.opts.CloseOnProtocolError && errors.Is(err, ErrProtocol) {
					return nil
				}
			}
		}
	}
}

// route runs the router on one payload, turning a panic into an error so one
// bad message cannot take the process down.
func (s *Session) route(payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Recovered from panic while routing", "panic", r)
			err = fmt.Errorf("routing panic: %v", r)
		}
	}()
	return s.router.Route(s, payload)
}

// teardown unregisters the identity, announces the departure and closes the
// channel. Only the first call has any effect.
func (s *Session) teardown() {
	s.closed.Do(func() {
		if id := s.Identity(); id != "" && s.registry.Unregister(id, s.ch) {
			s.log.Info("User left", "id", id, "online", s.registry.Len())
			s.presence.AnnounceLeave(id, s.ch)
		}
		if err := s.ch.Close(); err != nil && !errors.Is(err, ErrChannelClosed) {
			s.log.Debug("Error closing channel", "error", err)
		}
		s.setState(SessionClosed)
		s.log.Info("Session closed")
	})
}
