package api

import (
	"encoding/json"
	"log"
	"net/http"

	"coin-arena/internal/leaderboard"
)

// routerHandlers holds the handler dependencies for the router. Used by
// both the standalone router (for tests) and the full Server.
type routerHandlers struct {
	session GameSession
	store   ScoreStore
}

// handleGetState returns a read-only snapshot of the world for debugging
// and admin tooling. It is not part of the game protocol.
func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	players := h.session.Players()
	items := h.session.Items()

	writeJSON(w, map[string]interface{}{
		"players":     players,
		"items":       items,
		"playerCount": len(players),
		"itemCount":   len(items),
	})
}

// handleGetLeaderboard proxies the external store's top-10. The store is
// network-optional: any failure degrades to an empty list, never an error
// status, because the game must not care whether the store is reachable.
func (h *routerHandlers) handleGetLeaderboard(w http.ResponseWriter, r *http.Request) {
	entries := []leaderboard.Entry{}

	if h.store != nil && h.store.Enabled() {
		top, err := h.store.Top(r.Context(), 10)
		if err != nil {
			log.Printf("⚠️ Leaderboard query failed: %v", err)
		} else if top != nil {
			entries = top
		}
	}

	writeJSON(w, entries)
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
