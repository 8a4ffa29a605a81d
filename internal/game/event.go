package game

import (
	"encoding/json"
	"time"
)

// EventType classifies audit-log events.
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeJoin
	EventTypeLeave
	EventTypeEvict
	EventTypeCollect
	EventTypeLifeLost
	EventTypeEliminated
	EventTypeRename
)

// EventVersion allows the log format to evolve without breaking readers.
const EventVersion uint8 = 1

// Event is one entry in the session audit log.
type Event struct {
	Version   uint8     `json:"version"`
	Type      EventType `json:"type"`
	Timestamp int64     `json:"timestamp"` // Unix nano
	Sequence  uint64    `json:"sequence"`  // Monotonic
	PlayerID  string          `json:"playerId"`
	Payload   json.RawMessage `json:"payload"` // Embedded as-is, not base64
}

// String returns a human-readable event type.
func (t EventType) String() string {
	switch t {
	case EventTypeJoin:
		return "join"
	case EventTypeLeave:
		return "leave"
	case EventTypeEvict:
		return "evict"
	case EventTypeCollect:
		return "collect"
	case EventTypeLifeLost:
		return "life_lost"
	case EventTypeEliminated:
		return "eliminated"
	case EventTypeRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Typed payloads for the different event types.

// JoinPayload records a player entering the arena.
type JoinPayload struct {
	PlayerID string  `json:"playerId"`
	Name     string  `json:"name"`
	SpawnX   float64 `json:"spawnX"`
	SpawnY   float64 `json:"spawnY"`
	Color    int     `json:"color"`
}

// LeavePayload records a player departing, however that happened
// (disconnect, idle eviction, elimination).
type LeavePayload struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
	Score    int    `json:"score"`
}

// CollectPayload records one adjudicated coin pickup.
type CollectPayload struct {
	PlayerID  string `json:"playerId"`
	ItemID    string `json:"itemId"`
	Score     int    `json:"score"`
	ExtraLife bool   `json:"extraLife"`
}

// HealthPayload records a life change.
type HealthPayload struct {
	PlayerID string `json:"playerId"`
	Lives    int    `json:"lives"`
	HitCount int    `json:"hitCount"`
}

// RenamePayload records an accepted rename.
type RenamePayload struct {
	PlayerID string `json:"playerId"`
	OldName  string `json:"oldName"`
	NewName  string `json:"newName"`
}

func encodePayload(payload interface{}) []byte {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

func newEvent(eventType EventType, playerID string, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		PlayerID:  playerID,
		Payload:   encodePayload(payload),
	}
}
