package api

import (
	"encoding/json"

	"coin-arena/internal/game"
)

// Wire protocol: every message in either direction is a JSON envelope
// {"event": "...", "data": ...}. Unrecognized or malformed intents are
// dropped without a reply - the protocol has no error surface.

// Client -> server intents.
const (
	IntentJoin      = "join"
	IntentMovement  = "playerMovement"
	IntentCollect   = "collectItem"
	IntentHit       = "playerHit"
	IntentRename    = "nameChange"
	IntentHeartbeat = "heartbeat"
)

// Server -> client events.
const (
	EventCurrentPlayers     = "currentPlayers"
	EventGameState          = "gameState"
	EventNewPlayer          = "newPlayer"
	EventPlayerMoved        = "playerMoved"
	EventPlayerDisconnected = "playerDisconnected"
	EventItemCollected      = "itemCollected"
	EventScoreUpdate        = "scoreUpdate"
	EventHealthUpdate       = "healthUpdate"
	EventExtraLife          = "extraLife"
	EventLifeLost           = "lifeLost"
	EventEliminated         = "eliminated"
	EventNameChanged        = "playerNameChanged"
	EventKnockback          = "knockback"
)

// Knockback direction tags. Purely cosmetic, client-applied impulses.
const (
	KnockbackAttacker = "attacker"
	KnockbackVictim   = "victim"
)

// Envelope is the message frame shared by both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Intent payloads.

type joinIntent struct {
	PlayerName string `json:"playerName"`
}

type movementIntent struct {
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Rotation *float64 `json:"rotation,omitempty"`
}

type hitIntent struct {
	TargetPlayerID string `json:"targetPlayerId"`
}

type renameIntent struct {
	NewName string `json:"newName"`
}

// Broadcast payloads. PlayerRecord, Item, Position and Health come from
// the game package and are reused on the wire directly.

type gameStatePayload struct {
	Items []game.Item `json:"items"`
}

type itemCollectedPayload struct {
	ItemID      string        `json:"itemId"`
	PlayerID    string        `json:"playerId"`
	NewItem     game.Item     `json:"newItem"`
	CollectedAt game.Position `json:"collectedAt"`
}

type scoreUpdatePayload struct {
	PlayerID string `json:"playerId"`
	Score    int    `json:"score"`
}

type livesPayload struct {
	PlayerID string `json:"playerId"`
	Lives    int    `json:"lives"`
}

type eliminatedPayload struct {
	PlayerID   string `json:"playerId"`
	FinalScore int    `json:"finalScore"`
}

type nameChangedPayload struct {
	PlayerID string `json:"playerId"`
	OldName  string `json:"oldName"`
	NewName  string `json:"newName"`
}

type knockbackPayload struct {
	Direction string `json:"direction"`
}

// encodeEvent marshals an envelope for the send pumps. A marshal failure
// returns nil, which the hub treats as "nothing to send".
func encodeEvent(event string, data interface{}) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	msg, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return nil
	}
	return msg
}
