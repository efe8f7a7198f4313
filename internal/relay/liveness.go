package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultHeartbeatInterval is the probe period used when none is configured.
const DefaultHeartbeatInterval = 10 * time.Second

// LivenessState is the heartbeat state of one connection.
type LivenessState int

const (
	// LivenessActive means the last probe was answered (or none was sent yet).
	LivenessActive LivenessState = iota
	// LivenessAwaiting means a probe is outstanding.
	LivenessAwaiting
)

func (s LivenessState) String() string {
	if s == LivenessAwaiting {
		return "awaiting"
	}
	return "active"
}

// LivenessMonitor pings one channel on a fixed interval and records whether
// the peer answers. It is observational unless maxMissed is positive, in
// which case it closes the channel after that many consecutive misses.
type LivenessMonitor struct {
	ch        Channel
	interval  time.Duration
	maxMissed int
	log       *slog.Logger

	mu       sync.Mutex
	state    LivenessState
	missed   int
	lastPing time.Time
	lastPong time.Time
}

// NewLivenessMonitor returns a monitor for ch. A non-positive interval falls
// back to DefaultHeartbeatInterval.
func NewLivenessMonitor(ch Channel, interval time.Duration, maxMissed int, log *slog.Logger) *LivenessMonitor {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	return &LivenessMonitor{
		ch:        ch,
		interval:  interval,
		maxMissed: maxMissed,
		log:       log,
		lastPong:  time.Now(),
	}
}

// Run probes once immediately, then every interval until ctx is cancelled.
// It returns nil on cancellation so that a routine shutdown never surfaces as
// an error.
func (m *LivenessMonitor) Run(ctx context.Context) error {
	if ctx.Err() != nil || !m.probe() {
		return nil
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// Both cases may be ready at once; never probe a closed connection.
			if ctx.Err() != nil {
				return nil
			}
			if !m.probe() {
				return nil
			}
		}
	}
}

// probe records a miss if the previous probe is unanswered, then pings. It
// returns false once the monitor has given up on the connection.
func (m *LivenessMonitor) probe() bool {
	m.mu.Lock()
	if m.state == LivenessAwaiting {
		m.missed++
		m.log.Warn("Heartbeat not answered", "missed", m.missed, "last_pong", m.lastPong)
	}
	missed := m.missed
	m.mu.Unlock()

	if m.maxMissed > 0 && missed >= m.maxMissed {
		m.log.Warn("Peer unresponsive; closing connection", "missed", missed)
		if err := m.ch.Close(); err != nil {
			m.log.Debug("Closing unresponsive connection failed", "error", err)
		}
		return false
	}

	// Mark the probe outstanding first so a fast pong cannot be overwritten.
	m.mu.Lock()
	m.state = LivenessAwaiting
	m.lastPing = time.Now()
	m.mu.Unlock()

	if err := m.ch.Ping(); err != nil {
		m.log.Debug("Heartbeat probe failed", "error", err)
	}
	return true
}

// ObservePong records a heartbeat answer.
func (m *LivenessMonitor) ObservePong() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state = LivenessActive
	m.missed = 0
	m.lastPong = time.Now()
}

// State returns the current heartbeat state.
func (m *LivenessMonitor) State() LivenessState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Missed returns the number of consecutive unanswered probes.
func (m *LivenessMonitor) Missed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.missed
}

// LastPong returns when the peer last answered, or when monitoring started.
func (m *LivenessMonitor) LastPong() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPong
}
