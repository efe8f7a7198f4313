package server

import (
	"embed"
	"fmt"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

//go:embed static/index.html
var staticFiles embed.FS

// handleWebSocket upgrades the request and hands the connection to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error response.
		s.log.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	ch := newWSChannel(conn, r.RemoteAddr, s.cfg, s.log)
	if _, err := s.hub.Attach(ch); err != nil {
		s.log.Warn("Rejected connection", "remote", r.RemoteAddr, "error", err)
	}
}

// handleHealth reports that the process is up.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "presence-relay is running! connections=%d online=%d",
		s.hub.Connections(), s.hub.Registry().Len())
}

// handleIndex serves the bundled chat page.
func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	page, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		s.log.Error("Chat page missing from binary", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(page); err != nil {
		s.log.Debug("Error writing HTML response", "error", err)
	}
}
