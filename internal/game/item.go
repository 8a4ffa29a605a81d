package game

import "github.com/google/uuid"

// ItemTypeCoin is the single item type in this design.
const ItemTypeCoin = "coin"

// Item is a collectible entity. Items are created at world init and after
// every collection, and destroyed on collection - the pool never shrinks
// below its target size.
type Item struct {
	ID   string  `json:"id"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Type string  `json:"type"`
}

// Position is a bare (x, y) pair, used for the collectedAt field of
// itemCollected broadcasts so non-collectors can render the pickup effect
// at the right place after the item is already gone from their copy.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// spawnItem creates a coin at a uniformly random position within the arena
// bounds. The id only needs practical uniqueness among live items; a UUID
// is more than enough. Callers must hold the session lock (for the rng).
func (s *Session) spawnItem() Item {
	return Item{
		ID:   uuid.NewString(),
		X:    s.rng.Float64() * s.cfg.Width,
		Y:    s.rng.Float64() * s.cfg.Height,
		Type: ItemTypeCoin,
	}
}

// removeItem performs the atomic check-and-remove that resolves the
// double-collect race: the first intent that finds the item present wins,
// the second finds it absent and is a no-op. Callers must hold the session
// lock. Pool order is preserved so broadcast snapshots stay stable.
func (s *Session) removeItem(itemID string) (Item, bool) {
	for i, it := range s.items {
		if it.ID == itemID {
			removed := it
			s.items = append(s.items[:i], s.items[i+1:]...)
			return removed, true
		}
	}
	return Item{}, false
}
