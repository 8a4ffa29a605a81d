package game

import (
	"strings"
	"time"
)

// DefaultPlayerName is used when a join or rename carries no usable name.
const DefaultPlayerName = "Anonymous"

// Player is the authoritative server-side state for one connected
// participant. It is keyed by the transport connection id and lives from
// join until disconnect, idle eviction, or elimination.
//
// Position and rotation echo the last client report - this is a
// trust-the-client design with no server-side validation (a known
// limitation, kept deliberately).
type Player struct {
	ID       string
	X        float64
	Y        float64
	Rotation float64
	Color    int // RGB, assigned once at join, immutable
	Name     string

	Score       int
	Lives       int
	HitCount    int // counts toward the next life loss, resets on loss
	CoinsToLife int // countdown toward a bonus life

	LastActivity time.Time // refreshed on every inbound intent
}

// PlayerRecord is the wire-format snapshot of a Player. Session methods
// return records rather than live pointers so callers never observe (or
// race with) mutations made under the session lock.
type PlayerRecord struct {
	ID          string  `json:"id"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Rotation    float64 `json:"rotation"`
	Color       int     `json:"color"`
	Name        string  `json:"name"`
	Score       int     `json:"score"`
	Lives       int     `json:"lives"`
	HitCount    int     `json:"hitCount"`
	CoinsToLife int     `json:"coinsToLife"`
}

// Health is the lives/hitCount/coinsToLife triple carried by healthUpdate
// broadcasts.
type Health struct {
	PlayerID    string `json:"playerId"`
	Lives       int    `json:"lives"`
	HitCount    int    `json:"hitCount"`
	CoinsToLife int    `json:"coinsToLife"`
}

// Record returns a value snapshot of the player. Callers must hold the
// session lock.
func (p *Player) Record() PlayerRecord {
	return PlayerRecord{
		ID:          p.ID,
		X:           p.X,
		Y:           p.Y,
		Rotation:    p.Rotation,
		Color:       p.Color,
		Name:        p.Name,
		Score:       p.Score,
		Lives:       p.Lives,
		HitCount:    p.HitCount,
		CoinsToLife: p.CoinsToLife,
	}
}

// health returns the health triple for broadcasts.
func (p *Player) health() Health {
	return Health{
		PlayerID:    p.ID,
		Lives:       p.Lives,
		HitCount:    p.HitCount,
		CoinsToLife: p.CoinsToLife,
	}
}

// sanitizeName trims a requested display name. Returns "" when nothing
// usable remains.
func sanitizeName(name string) string {
	return strings.TrimSpace(name)
}
