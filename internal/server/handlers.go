// Package server exposes the HTTP surface: health check and the
// authenticated message-history query. The WebSocket upgrade lives on the
// Gateway.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/qumn/echat/internal/store"
)

// HandleHealth provides a simple health check endpoint that returns server
// status.
func (g *Gateway) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "echat server is running!")
}

// HandleHistory returns persisted messages for a recipient, oldest first.
// Direct-message history is always scoped to the caller's own uid; group
// history takes the group id from the query string.
func (g *Gateway) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed.", http.StatusMethodNotAllowed)
		return
	}

	identity, err := g.auth.Authenticate(r)
	if err != nil {
		w.Header().Set("WWW-Authenticate", "Token")
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	kind := store.ReceiverUser
	if param := r.URL.Query().Get("kind"); param != "" {
		kind, err = store.ParseReceiverKind(param)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	recipient := identity.UID
	if kind == store.ReceiverGroup {
		recipient, err = strconv.ParseUint(r.URL.Query().Get("id"), 10, 64)
		if err != nil {
			http.Error(w, "missing or invalid group id", http.StatusBadRequest)
			return
		}
	}

	msgs, err := g.messages.ByRecipient(r.Context(), recipient, kind)
	if err != nil {
		g.log.Error("history query failed", "uid", identity.UID, "error", err)
		http.Error(w, "history query failed", http.StatusInternalServerError)
		return
	}
	if msgs == nil {
		msgs = []store.Message{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(msgs); err != nil {
		g.log.Warn("writing history response", "error", err)
	}
}
