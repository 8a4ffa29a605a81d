package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"coin-arena/internal/config"
	"coin-arena/internal/game"

	"github.com/gorilla/websocket"
)

const readTimeout = 3 * time.Second

// smallWorld is a compact arena so integration tests stay fast and
// deterministic.
func smallWorld() config.WorldConfig {
	cfg := config.DefaultWorld()
	cfg.MaxItems = 5
	return cfg
}

func newGameServer(t *testing.T, worldCfg config.WorldConfig) *httptest.Server {
	t.Helper()

	session := game.NewSession(worldCfg)
	rateCfg := generousRateLimit
	srv := NewServer(session, nil, ServerConfig{
		MaxConnections:  100,
		MaxConnsPerIP:   100,
		RateLimitConfig: &rateCfg,
		DisableLogging:  true,
	})

	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		srv.Stop()
	})
	return ts
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendIntent(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s data: %v", event, err)
	}
	if err := conn.WriteJSON(Envelope{Event: event, Data: raw}); err != nil {
		t.Fatalf("send %s: %v", event, err)
	}
}

// nextEvent reads exactly one envelope. Used where delivery order matters.
func nextEvent(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read: %v", err)
	}
	return env
}

// awaitEvent reads until the named event arrives, skipping interleaved
// broadcasts (healthUpdate, knockback, movement from other clients).
func awaitEvent(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()

	deadline := time.Now().Add(readTimeout)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(deadline)
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if env.Event == event {
			return env.Data
		}
	}
	t.Fatalf("timed out waiting for %s", event)
	return nil
}

// joinPlayer performs the join handshake and returns the player's own id
// plus the item snapshot.
func joinPlayer(t *testing.T, conn *websocket.Conn, name string, knownIDs map[string]bool) (string, []game.Item) {
	t.Helper()

	sendIntent(t, conn, IntentJoin, joinIntent{PlayerName: name})

	var players map[string]game.PlayerRecord
	if err := json.Unmarshal(awaitEvent(t, conn, EventCurrentPlayers), &players); err != nil {
		t.Fatalf("decode currentPlayers: %v", err)
	}

	var state gameStatePayload
	if err := json.Unmarshal(awaitEvent(t, conn, EventGameState), &state); err != nil {
		t.Fatalf("decode gameState: %v", err)
	}

	// Our own id is the one not seen by earlier joiners.
	var selfID string
	for id := range players {
		if !knownIDs[id] {
			selfID = id
		}
	}
	if selfID == "" {
		t.Fatal("could not determine own player id from the registry snapshot")
	}
	knownIDs[selfID] = true
	return selfID, state.Items
}

// TestJoinHandshake verifies a joiner gets the registry snapshot before the
// item snapshot, with join defaults applied.
func TestJoinHandshake(t *testing.T) {
	world := smallWorld()
	ts := newGameServer(t, world)
	conn := dialWS(t, ts)

	sendIntent(t, conn, IntentJoin, joinIntent{PlayerName: "Alice"})

	first := nextEvent(t, conn)
	if first.Event != EventCurrentPlayers {
		t.Fatalf("first event should be %s, got %s", EventCurrentPlayers, first.Event)
	}
	var players map[string]game.PlayerRecord
	if err := json.Unmarshal(first.Data, &players); err != nil {
		t.Fatalf("decode currentPlayers: %v", err)
	}
	if len(players) != 1 {
		t.Fatalf("expected 1 player, got %d", len(players))
	}
	for _, p := range players {
		if p.Name != "Alice" {
			t.Errorf("expected name Alice, got %q", p.Name)
		}
		if p.Lives != world.StartingLives {
			t.Errorf("expected %d lives, got %d", world.StartingLives, p.Lives)
		}
		if p.CoinsToLife != world.CoinsPerLife {
			t.Errorf("expected coinsToLife %d, got %d", world.CoinsPerLife, p.CoinsToLife)
		}
	}

	second := nextEvent(t, conn)
	if second.Event != EventGameState {
		t.Fatalf("second event should be %s, got %s", EventGameState, second.Event)
	}
	var state gameStatePayload
	if err := json.Unmarshal(second.Data, &state); err != nil {
		t.Fatalf("decode gameState: %v", err)
	}
	if len(state.Items) != world.MaxItems {
		t.Errorf("expected %d items, got %d", world.MaxItems, len(state.Items))
	}
}

// TestJoinAnnouncement verifies existing clients hear about a new joiner,
// and the joiner's snapshot includes the earlier player.
func TestJoinAnnouncement(t *testing.T) {
	ts := newGameServer(t, smallWorld())
	known := map[string]bool{}

	c1 := dialWS(t, ts)
	aliceID, _ := joinPlayer(t, c1, "Alice", known)

	c2 := dialWS(t, ts)
	sendIntent(t, c2, IntentJoin, joinIntent{PlayerName: "Bob"})

	var joined game.PlayerRecord
	if err := json.Unmarshal(awaitEvent(t, c1, EventNewPlayer), &joined); err != nil {
		t.Fatalf("decode newPlayer: %v", err)
	}
	if joined.Name != "Bob" {
		t.Errorf("expected Bob announced, got %q", joined.Name)
	}
	if joined.ID == aliceID {
		t.Error("announced player should not be the existing one")
	}

	var players map[string]game.PlayerRecord
	if err := json.Unmarshal(awaitEvent(t, c2, EventCurrentPlayers), &players); err != nil {
		t.Fatalf("decode currentPlayers: %v", err)
	}
	if _, ok := players[aliceID]; !ok {
		t.Error("joiner's snapshot should include the earlier player")
	}
}

// TestMovementRelay verifies movement reaches the other client (the sender
// already knows its own position and is excluded).
func TestMovementRelay(t *testing.T) {
	ts := newGameServer(t, smallWorld())
	known := map[string]bool{}

	c1 := dialWS(t, ts)
	joinPlayer(t, c1, "Alice", known)
	c2 := dialWS(t, ts)
	bobID, _ := joinPlayer(t, c2, "Bob", known)

	rot := 1.25
	sendIntent(t, c2, IntentMovement, movementIntent{X: 123, Y: 456, Rotation: &rot})

	var moved game.PlayerRecord
	if err := json.Unmarshal(awaitEvent(t, c1, EventPlayerMoved), &moved); err != nil {
		t.Fatalf("decode playerMoved: %v", err)
	}
	if moved.ID != bobID {
		t.Errorf("expected %s to move, got %s", bobID, moved.ID)
	}
	if moved.X != 123 || moved.Y != 456 || moved.Rotation != 1.25 {
		t.Errorf("unexpected position: %+v", moved)
	}
}

// TestCollectFlow verifies the itemCollected fan-out (everyone, collector
// included, with a replacement item) and the score broadcast.
func TestCollectFlow(t *testing.T) {
	world := smallWorld()
	ts := newGameServer(t, world)
	known := map[string]bool{}

	c1 := dialWS(t, ts)
	aliceID, items := joinPlayer(t, c1, "Alice", known)
	c2 := dialWS(t, ts)
	joinPlayer(t, c2, "Bob", known)

	target := items[0]
	sendIntent(t, c1, IntentCollect, target.ID)

	for _, conn := range []*websocket.Conn{c1, c2} {
		var collected itemCollectedPayload
		if err := json.Unmarshal(awaitEvent(t, conn, EventItemCollected), &collected); err != nil {
			t.Fatalf("decode itemCollected: %v", err)
		}
		if collected.ItemID != target.ID {
			t.Errorf("expected item %s collected, got %s", target.ID, collected.ItemID)
		}
		if collected.PlayerID != aliceID {
			t.Errorf("expected collector %s, got %s", aliceID, collected.PlayerID)
		}
		if collected.NewItem.ID == target.ID {
			t.Error("replacement item must carry a fresh id")
		}
		if collected.CollectedAt.X != target.X || collected.CollectedAt.Y != target.Y {
			t.Error("collectedAt should echo the removed item's position")
		}

		var score scoreUpdatePayload
		if err := json.Unmarshal(awaitEvent(t, conn, EventScoreUpdate), &score); err != nil {
			t.Fatalf("decode scoreUpdate: %v", err)
		}
		if score.PlayerID != aliceID || score.Score != world.CoinScore {
			t.Errorf("unexpected scoreUpdate: %+v", score)
		}
	}
}

// TestHitLifecycle drives a victim from full health through a life loss to
// elimination and checks each notification.
func TestHitLifecycle(t *testing.T) {
	world := smallWorld()
	world.HitThreshold = 2
	world.StartingLives = 2
	ts := newGameServer(t, world)
	known := map[string]bool{}

	attacker := dialWS(t, ts)
	joinPlayer(t, attacker, "Alice", known)
	victim := dialWS(t, ts)
	victimID, _ := joinPlayer(t, victim, "Bob", known)

	hit := func() { sendIntent(t, attacker, IntentHit, hitIntent{TargetPlayerID: victimID}) }

	// First hit: health tick plus recoil cues on both sides.
	hit()
	var health game.Health
	if err := json.Unmarshal(awaitEvent(t, attacker, EventHealthUpdate), &health); err != nil {
		t.Fatalf("decode healthUpdate: %v", err)
	}
	if health.PlayerID != victimID || health.HitCount != 1 || health.Lives != 2 {
		t.Errorf("unexpected health after first hit: %+v", health)
	}

	var kb knockbackPayload
	if err := json.Unmarshal(awaitEvent(t, attacker, EventKnockback), &kb); err != nil {
		t.Fatalf("decode knockback: %v", err)
	}
	if kb.Direction != KnockbackAttacker {
		t.Errorf("attacker should get %q recoil, got %q", KnockbackAttacker, kb.Direction)
	}
	if err := json.Unmarshal(awaitEvent(t, victim, EventKnockback), &kb); err != nil {
		t.Fatalf("decode knockback: %v", err)
	}
	if kb.Direction != KnockbackVictim {
		t.Errorf("victim should get %q recoil, got %q", KnockbackVictim, kb.Direction)
	}

	// Second hit crosses the threshold: the victim is told privately.
	hit()
	var lost livesPayload
	if err := json.Unmarshal(awaitEvent(t, victim, EventLifeLost), &lost); err != nil {
		t.Fatalf("decode lifeLost: %v", err)
	}
	if lost.PlayerID != victimID || lost.Lives != 1 {
		t.Errorf("unexpected lifeLost: %+v", lost)
	}

	// Two more hits eliminate the victim.
	hit()
	hit()

	var elim eliminatedPayload
	if err := json.Unmarshal(awaitEvent(t, victim, EventEliminated), &elim); err != nil {
		t.Fatalf("decode eliminated: %v", err)
	}
	if elim.PlayerID != victimID {
		t.Errorf("expected %s eliminated, got %s", victimID, elim.PlayerID)
	}

	var goneID string
	if err := json.Unmarshal(awaitEvent(t, attacker, EventPlayerDisconnected), &goneID); err != nil {
		t.Fatalf("decode playerDisconnected: %v", err)
	}
	if goneID != victimID {
		t.Errorf("expected departure of %s, got %s", victimID, goneID)
	}
}

// TestRenameBroadcast verifies other clients hear about a rename.
func TestRenameBroadcast(t *testing.T) {
	ts := newGameServer(t, smallWorld())
	known := map[string]bool{}

	c1 := dialWS(t, ts)
	joinPlayer(t, c1, "Alice", known)
	c2 := dialWS(t, ts)
	bobID, _ := joinPlayer(t, c2, "Bob", known)

	sendIntent(t, c2, IntentRename, renameIntent{NewName: "Robert"})

	var renamed nameChangedPayload
	if err := json.Unmarshal(awaitEvent(t, c1, EventNameChanged), &renamed); err != nil {
		t.Fatalf("decode playerNameChanged: %v", err)
	}
	if renamed.PlayerID != bobID || renamed.OldName != "Bob" || renamed.NewName != "Robert" {
		t.Errorf("unexpected rename broadcast: %+v", renamed)
	}
}

// TestDisconnectBroadcast verifies a transport close removes the player
// and tells everyone else.
func TestDisconnectBroadcast(t *testing.T) {
	ts := newGameServer(t, smallWorld())
	known := map[string]bool{}

	c1 := dialWS(t, ts)
	joinPlayer(t, c1, "Alice", known)
	c2 := dialWS(t, ts)
	bobID, _ := joinPlayer(t, c2, "Bob", known)

	c2.Close()

	var goneID string
	if err := json.Unmarshal(awaitEvent(t, c1, EventPlayerDisconnected), &goneID); err != nil {
		t.Fatalf("decode playerDisconnected: %v", err)
	}
	if goneID != bobID {
		t.Errorf("expected departure of %s, got %s", bobID, goneID)
	}
}

// TestPreJoinIntentsIgnored verifies intents from a connection with no
// player are silent no-ops and the connection stays usable.
func TestPreJoinIntentsIgnored(t *testing.T) {
	ts := newGameServer(t, smallWorld())
	conn := dialWS(t, ts)

	sendIntent(t, conn, IntentMovement, movementIntent{X: 1, Y: 2})
	sendIntent(t, conn, IntentCollect, "some-item")
	sendIntent(t, conn, IntentHit, hitIntent{TargetPlayerID: "nobody"})

	// The connection must still complete a normal join afterwards.
	sendIntent(t, conn, IntentJoin, joinIntent{PlayerName: "Late"})
	var players map[string]game.PlayerRecord
	if err := json.Unmarshal(awaitEvent(t, conn, EventCurrentPlayers), &players); err != nil {
		t.Fatalf("decode currentPlayers: %v", err)
	}
	if len(players) != 1 {
		t.Errorf("expected exactly the late joiner, got %d players", len(players))
	}
}

// TestMalformedFramesSkipped verifies junk frames do not kill the read
// loop.
func TestMalformedFramesSkipped(t *testing.T) {
	ts := newGameServer(t, smallWorld())
	conn := dialWS(t, ts)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json at all")); err != nil {
		t.Fatalf("write junk: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"playerMovement","data":"not an object"}`)); err != nil {
		t.Fatalf("write junk: %v", err)
	}

	sendIntent(t, conn, IntentJoin, joinIntent{PlayerName: "Alice"})
	awaitEvent(t, conn, EventCurrentPlayers)
}

// TestPerIPConnectionLimit verifies the websocket handshake is refused
// past the per-IP cap.
func TestPerIPConnectionLimit(t *testing.T) {
	session := game.NewSession(smallWorld())
	rateCfg := generousRateLimit
	srv := NewServer(session, nil, ServerConfig{
		MaxConnections:  100,
		MaxConnsPerIP:   1,
		RateLimitConfig: &rateCfg,
		DisableLogging:  true,
	})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()
	defer srv.Stop()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	first, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("first dial: %v", err)
	}
	defer first.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("second connection from the same IP should be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429 handshake refusal, got %+v", resp)
	}
}
