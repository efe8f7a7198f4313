package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeChannel is an in-memory Channel. Tests push inbound events with
// deliver and read what the relay sent with messages.
type fakeChannel struct {
	addr  string
	inbox chan Event
	done  chan struct{}
	once  sync.Once

	mu      sync.Mutex
	sent    [][]byte
	pings   int
	sendErr error
}

func newFakeChannel(addr string) *fakeChannel {
	return &fakeChannel{
		addr:  addr,
		inbox: make(chan Event, 16),
		done:  make(chan struct{}),
	}
}

func (f *fakeChannel) Send(payload []byte) error {
	select {
	case <-f.done:
		return ErrChannelClosed
	default:
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, append([]byte(nil), payload...))
	return nil
}

func (f *fakeChannel) Receive(ctx context.Context) (Event, error) {
	select {
	case ev := <-f.inbox:
		return ev, nil
	case <-f.done:
		return Event{}, ErrChannelClosed
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (f *fakeChannel) Ping() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return nil
}

func (f *fakeChannel) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

func (f *fakeChannel) RemoteAddr() string { return f.addr }

func (f *fakeChannel) isClosed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *fakeChannel) deliver(t *testing.T, raw string) {
	t.Helper()
	select {
	case f.inbox <- Event{Kind: EventData, Payload: []byte(raw)}:
	case <-time.After(time.Second):
		t.Fatalf("inbox of %s is full", f.addr)
	}
}

func (f *fakeChannel) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

func (f *fakeChannel) failSends(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

// messages decodes everything sent so far.
func (f *fakeChannel) messages(t *testing.T) []map[string]string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]map[string]string, 0, len(f.sent))
	for _, raw := range f.sent {
		var m map[string]string
		require.NoError(t, json.Unmarshal(raw, &m))
		out = append(out, m)
	}
	return out
}

func (f *fakeChannel) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

// fakePeer is a minimal Peer for router tests.
type fakePeer struct {
	identity string
	ch       Channel
}

func (p *fakePeer) Identity() string { return p.identity }
func (p *fakePeer) Bind(id string)   { p.identity = id }
func (p *fakePeer) Channel() Channel { return p.ch }

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func msg(mtype, id string) map[string]string {
	return map[string]string{"mtype": mtype, "id": id}
}

func chat(mtype, id, text string) map[string]string {
	return map[string]string{"mtype": mtype, "id": id, "text": text}
}
