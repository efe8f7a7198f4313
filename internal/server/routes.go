package server

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// routes wires the HTTP handlers into a router.
func (s *Server) routes() http.Handler {
	router := httprouter.New()
	router.GET("/", s.handleIndex)
	router.GET("/health", s.handleHealth)
	router.GET("/ws", s.handleWebSocket)
	return router
}
