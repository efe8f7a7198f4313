package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLivenessMonitor_ProbesOnInterval(t *testing.T) {
	ch := newFakeChannel("peer")
	m := NewLivenessMonitor(ch, 10*time.Millisecond, 0, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return ch.pingCount() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err, "cancellation is not an error")
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancellation")
	}

	after := ch.pingCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, ch.pingCount(), "no probe may be sent after cancellation")
	assert.False(t, ch.isClosed(), "observational monitor never closes the channel")
}

func TestLivenessMonitor_ProbesImmediately(t *testing.T) {
	ch := newFakeChannel("peer")
	m := NewLivenessMonitor(ch, time.Hour, 0, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return ch.pingCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, LivenessAwaiting, m.State())

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, ch.pingCount())
}

func TestLivenessMonitor_CancelledBeforeStart(t *testing.T) {
	ch := newFakeChannel("peer")
	m := NewLivenessMonitor(ch, time.Millisecond, 0, discardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, m.Run(ctx))
	assert.Zero(t, ch.pingCount())
}

func TestLivenessMonitor_PongResetsState(t *testing.T) {
	ch := newFakeChannel("peer")
	m := NewLivenessMonitor(ch, time.Hour, 0, discardLogger())
	before := m.LastPong()

	assert.True(t, m.probe())
	assert.Equal(t, LivenessAwaiting, m.State())

	assert.True(t, m.probe())
	assert.Equal(t, 1, m.Missed())

	m.ObservePong()
	assert.Equal(t, LivenessActive, m.State())
	assert.Equal(t, 0, m.Missed())
	assert.False(t, m.LastPong().Before(before))
}

func TestLivenessMonitor_ClosesAfterMaxMissed(t *testing.T) {
	ch := newFakeChannel("peer")
	m := NewLivenessMonitor(ch, 5*time.Millisecond, 2, discardLogger())

	done := make(chan error, 1)
	go func() { done <- m.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor kept probing an unresponsive peer")
	}
	assert.True(t, ch.isClosed())
	assert.Equal(t, 2, m.Missed())
}

func TestLivenessMonitor_DefaultInterval(t *testing.T) {
	m := NewLivenessMonitor(newFakeChannel("peer"), 0, 0, discardLogger())
	assert.Equal(t, DefaultHeartbeatInterval, m.interval)
	assert.Equal(t, "active", m.State().String())
}
