package api

import (
	"encoding/json"
	"log"
	"net/http"

	"coin-arena/internal/game"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if IsAllowedOrigin(origin) {
			return true
		}
		log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
		RecordConnectionRejected("origin")
		return false
	},
}

// HandleWebSocket upgrades the connection, registers it with the hub, and
// runs its read loop. No Player exists until the connection sends a join
// intent; intents arriving before that are existence-checked no-ops.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if s.hub.ClientCount() >= s.hub.maxTotal {
		log.Printf("⚠️ WebSocket connection rejected: total limit reached (%d)", s.hub.maxTotal)
		RecordConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	if !s.hub.connLimiter.Allow(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		s.hub.connLimiter.Release(ip)
		return
	}

	client := newClient(uuid.NewString(), conn, ip)
	s.hub.register(client)

	go client.writePump()
	go s.readLoop(client)
}

// readLoop consumes intents until the transport closes. Malformed frames
// are skipped; the close (however it happens) is the one terminal event.
func (s *Server) readLoop(c *Client) {
	defer s.handleDisconnect(c)

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}

		s.dispatch(c, env)
	}
}

// dispatch applies one intent and emits its broadcasts. The dispatch mutex
// serializes intents end to end - mutation plus fan-out enqueue - so every
// client observes a single player's events in the order the server applied
// them (the event-loop discipline the protocol assumes).
func (s *Server) dispatch(c *Client, env Envelope) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	switch env.Event {
	case IntentJoin:
		RecordIntent(IntentJoin)
		var in joinIntent
		if env.Data != nil {
			if err := json.Unmarshal(env.Data, &in); err != nil {
				return
			}
		}
		s.handleJoin(c, in.PlayerName)

	case IntentMovement:
		RecordIntent(IntentMovement)
		var in movementIntent
		if err := json.Unmarshal(env.Data, &in); err != nil {
			return
		}
		if rec, ok := s.session.Move(c.ID, in.X, in.Y, in.Rotation); ok {
			s.hub.BroadcastExcept(c.ID, EventPlayerMoved, rec)
		}

	case IntentCollect:
		RecordIntent(IntentCollect)
		var itemID string
		if err := json.Unmarshal(env.Data, &itemID); err != nil {
			return
		}
		s.handleCollect(c, itemID)

	case IntentHit:
		RecordIntent(IntentHit)
		var in hitIntent
		if err := json.Unmarshal(env.Data, &in); err != nil {
			return
		}
		s.handleHit(c, in.TargetPlayerID)

	case IntentRename:
		RecordIntent(IntentRename)
		var in renameIntent
		if err := json.Unmarshal(env.Data, &in); err != nil {
			return
		}
		if res, ok := s.session.Rename(c.ID, in.NewName); ok {
			s.hub.BroadcastExcept(c.ID, EventNameChanged, nameChangedPayload{
				PlayerID: res.PlayerID,
				OldName:  res.OldName,
				NewName:  res.NewName,
			})
		}

	case IntentHeartbeat:
		RecordIntent(IntentHeartbeat)
		s.session.Heartbeat(c.ID)

	default:
		// Unrecognized intent: not acted upon.
		RecordIntent("unknown")
	}
}

func (s *Server) handleJoin(c *Client, playerName string) {
	res := s.session.Join(c.ID, playerName)

	// The joiner gets the world before anyone hears about the joiner.
	s.hub.SendTo(c.ID, EventCurrentPlayers, res.Players)
	s.hub.SendTo(c.ID, EventGameState, gameStatePayload{Items: res.Items})

	if res.Created {
		s.hub.BroadcastExcept(c.ID, EventNewPlayer, res.Player)
		UpdatePlayerCount(s.session.PlayerCount())
	}
}

func (s *Server) handleCollect(c *Client, itemID string) {
	res, ok := s.session.Collect(c.ID, itemID)
	if !ok {
		// Stale or forged id, or lost the race to another collector.
		return
	}

	RecordCoinCollected()

	// Everyone, collector included: clients remove the item on receiving
	// this broadcast, not on sending the intent.
	s.hub.Broadcast(EventItemCollected, itemCollectedPayload{
		ItemID:      res.ItemID,
		PlayerID:    res.Collector.ID,
		NewItem:     res.NewItem,
		CollectedAt: res.CollectedAt,
	})
	s.hub.Broadcast(EventScoreUpdate, scoreUpdatePayload{
		PlayerID: res.Collector.ID,
		Score:    res.Collector.Score,
	})

	if res.ExtraLife {
		s.hub.Broadcast(EventHealthUpdate, res.Health)
		s.hub.SendTo(c.ID, EventExtraLife, livesPayload{
			PlayerID: res.Collector.ID,
			Lives:    res.Collector.Lives,
		})
	}
}

func (s *Server) handleHit(c *Client, targetID string) {
	res, ok := s.session.Hit(c.ID, targetID)
	if !ok {
		return
	}

	if res.Eliminated {
		RecordElimination()
		s.hub.SendTo(targetID, EventEliminated, eliminatedPayload{
			PlayerID:   res.Target.ID,
			FinalScore: res.Target.Score,
		})
		// The game entity is gone but the connection stays open; the
		// client may rejoin as a new player.
		s.hub.BroadcastExcept(targetID, EventPlayerDisconnected, res.Target.ID)
		UpdatePlayerCount(s.session.PlayerCount())
		s.submitScore(res.Target)
	} else if res.LifeLost {
		s.hub.SendTo(targetID, EventLifeLost, livesPayload{
			PlayerID: res.Target.ID,
			Lives:    res.Target.Lives,
		})
	}

	s.hub.Broadcast(EventHealthUpdate, res.Health)

	// Cosmetic recoil cues: mild for the reporter, strong for the target.
	s.hub.SendTo(c.ID, EventKnockback, knockbackPayload{Direction: KnockbackAttacker})
	s.hub.SendTo(targetID, EventKnockback, knockbackPayload{Direction: KnockbackVictim})
}

// handleDisconnect runs exactly once per connection, when its read loop
// ends. Registry removal is immediate - no grace period.
func (s *Server) handleDisconnect(c *Client) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	rec, ok := s.session.Leave(c.ID)
	s.hub.unregister(c)

	if ok {
		s.hub.Broadcast(EventPlayerDisconnected, rec.ID)
		UpdatePlayerCount(s.session.PlayerCount())
		s.submitScore(rec)
	}
}

// onEvict is the idle sweeper callback: the effect is identical to a
// disconnect, except the underlying connection (if it even still exists)
// is left alone.
func (s *Server) onEvict(rec game.PlayerRecord) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	RecordEviction()
	s.hub.Broadcast(EventPlayerDisconnected, rec.ID)
	UpdatePlayerCount(s.session.PlayerCount())
	s.submitScore(rec)
}
