package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Options configure a Hub and the sessions it runs.
type Options struct {
	Session         SessionOptions
	EvictSuperseded bool
}

// Hub owns the shared registry and routing components and runs one Session
// per attached Channel.
type Hub struct {
	registry *Registry
	presence *Presence
	router   *Router
	opts     Options
	log      *slog.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewHub creates a hub with an empty registry.
func NewHub(opts Options, log *slog.Logger) *Hub {
	registry := NewRegistry()
	presence := NewPresence(registry, log)
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		registry: registry,
		presence: presence,
		router:   NewRouter(registry, presence, log, WithEvictSuperseded(opts.EvictSuperseded)),
		opts:     opts,
		log:      log,
		sessions: make(map[*Session]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Registry exposes the hub's registry for inspection.
func (h *Hub) Registry() *Registry { return h.registry }

// Attach starts a session for ch in its own goroutine. After Shutdown the
// channel is closed immediately and ErrHubClosed is returned.
func (h *Hub) Attach(ch Channel) (*Session, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = ch.Close()
		return nil, ErrHubClosed
	}
	s := NewSession(ch, h.registry, h.presence, h.router, h.opts.Session, h.log)
	h.sessions[s] = struct{}{}
	count := len(h.sessions)
	h.wg.Add(1)
	h.mu.Unlock()

	h.log.Info("Connection attached", "session", s.ID(), "remote", ch.RemoteAddr(), "connections", count)

	go func() {
		defer h.wg.Done()
		defer h.detach(s)
		if err := s.Run(h.ctx); err != nil {
			h.log.Debug("Session ended with error", "session", s.ID(), "error", err)
		}
	}()
	return s, nil
}

func (h *Hub) detach(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s)
	count := len(h.sessions)
	h.mu.Unlock()
	h.log.Debug("Connection detached", "session", s.ID(), "connections", count)
}

// Connections returns the number of live sessions, identified or not.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Shutdown stops accepting sessions, closes every open channel and waits for
// the sessions to finish, or until timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown...")

	h.mu.Lock()
	h.closed = true
	sessions := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	h.cancel()
	for _, s := range sessions {
		if err := s.Channel().Close(); err != nil {
			h.log.Debug("Error closing connection", "session", s.ID(), "error", err)
		}
	}
	h.log.Info("Closed client connections", "count", len(sessions))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}
