// Package server wires HTTP handlers into a ServeMux for the echat
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application
// routes: health check, WebSocket upgrade, and message history.
func (g *Gateway) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", g.HandleHealth)
	mux.HandleFunc("/ws", g.HandleWebSocket)
	mux.HandleFunc("/api/messages/history", g.HandleHistory)
	return mux
}
