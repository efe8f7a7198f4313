package server

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const testOrigin = "http://localhost:8080"

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RateLimitBurst = 0
	cfg.HeartbeatInterval = time.Hour
	cfg.ShutdownTimeout = 2 * time.Second
	return cfg
}

// startServer runs a relay behind an httptest server and tears both down
// with the test.
func startServer(t *testing.T, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(cfg, slog.New(slog.DiscardHandler))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Hub().Shutdown(cfg.ShutdownTimeout)
	})
	return srv, ts
}

// freePort asks the kernel for an unused TCP port.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, err := dialWithOrigin(ts, testOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func dialWithOrigin(ts *httptest.Server, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	conn, resp, err := dialer.Dial(wsURL(ts), headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

func expectMessage(t *testing.T, conn *websocket.Conn) map[string]string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]string
	require.NoError(t, json.Unmarshal(data, &msg), "payload %q", data)
	return msg
}

func expectNoMessage(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, data, err := conn.ReadMessage()
	require.Error(t, err, "unexpected message %q", data)
	// A timed-out read poisons the connection; callers must not read again.
}

// join dials and identifies as id, consuming the presence messages the join
// produces for the new connection (roster plus own entry).
func join(t *testing.T, ts *httptest.Server, id string, online int) *websocket.Conn {
	t.Helper()
	conn := dial(t, ts)
	sendJSON(t, conn, map[string]string{"mtype": "INIT", "id": id})
	for i := 0; i < online; i++ {
		require.Equal(t, "USER_ENTER", expectMessage(t, conn)["mtype"])
	}
	require.Equal(t, map[string]string{"mtype": "USER_ENTER", "id": id}, expectMessage(t, conn))
	return conn
}
