package game

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"coin-arena/internal/config"
)

// Session is the single shared world: every connected client plays in the
// same arena, there are no rooms or shards. It owns the player registry and
// the item pool, and every mutation happens under one mutex so intents are
// applied with single-writer discipline. That lock is what makes the
// first-write-wins collection semantics hold and keeps the score/lives
// counters free of lost updates.
type Session struct {
	mu      sync.Mutex
	cfg     config.WorldConfig
	players map[string]*Player
	items   []Item
	rng     *rand.Rand

	eventLog *EventLog

	// Idle sweeper state
	running  bool
	stopChan chan struct{}
	onEvict  func(PlayerRecord)

	now func() time.Time // injectable clock for tests
}

// JoinResult carries everything the API layer needs to answer a join: the
// new player's record plus full registry and item snapshots for the joining
// connection.
type JoinResult struct {
	Player  PlayerRecord
	Players map[string]PlayerRecord
	Items   []Item
	Created bool // false when the connection already had a player
}

// CollectResult describes one successful collection.
type CollectResult struct {
	Collector   PlayerRecord
	ItemID      string
	CollectedAt Position
	NewItem     Item
	ExtraLife   bool
	Health      Health
}

// HitResult describes the outcome of one applied hit report.
type HitResult struct {
	Target     PlayerRecord
	Health     Health
	LifeLost   bool
	Eliminated bool
}

// RenameResult describes an accepted rename.
type RenameResult struct {
	PlayerID string
	OldName  string
	NewName  string
}

// NewSession creates a session and seeds the item pool to its target size.
func NewSession(cfg config.WorldConfig) *Session {
	s := &Session{
		cfg:      cfg,
		players:  make(map[string]*Player),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		eventLog: NewEventLog(),
		stopChan: make(chan struct{}),
		now:      time.Now,
	}

	s.items = make([]Item, 0, cfg.MaxItems)
	for i := 0; i < cfg.MaxItems; i++ {
		s.items = append(s.items, s.spawnItem())
	}

	return s
}

// Join registers a player for the given connection. The spawn point is
// drawn inside an inset margin so avatars never materialize on the arena
// edge. Joining twice on one connection is idempotent: the existing player
// and fresh snapshots are returned with Created=false.
func (s *Session) Join(connID, name string) JoinResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.players[connID]; ok {
		existing.LastActivity = s.now()
		return JoinResult{
			Player:  existing.Record(),
			Players: s.playerRecords(),
			Items:   s.itemList(),
		}
	}

	name = sanitizeName(name)
	if name == "" {
		name = DefaultPlayerName
	}

	margin := s.cfg.SpawnMargin
	p := &Player{
		ID:           connID,
		X:            margin + s.rng.Float64()*(s.cfg.Width-2*margin),
		Y:            margin + s.rng.Float64()*(s.cfg.Height-2*margin),
		Color:        s.rng.Intn(0x1000000),
		Name:         name,
		Lives:        s.cfg.StartingLives,
		CoinsToLife:  s.cfg.CoinsPerLife,
		LastActivity: s.now(),
	}
	s.players[connID] = p

	s.eventLog.Emit(EventTypeJoin, p.ID, JoinPayload{
		PlayerID: p.ID,
		Name:     p.Name,
		SpawnX:   p.X,
		SpawnY:   p.Y,
		Color:    p.Color,
	})
	log.Printf("👤 Player joined: %s (%s)", p.Name, p.ID)

	return JoinResult{
		Player:  p.Record(),
		Players: s.playerRecords(),
		Items:   s.itemList(),
		Created: true,
	}
}

// Leave removes the player on transport-level disconnect. There is no grace
// period; the record is returned so the caller can broadcast the departure.
func (s *Session) Leave(connID string) (PlayerRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[connID]
	if !ok {
		return PlayerRecord{}, false
	}
	delete(s.players, connID)

	s.eventLog.Emit(EventTypeLeave, p.ID, LeavePayload{PlayerID: p.ID, Name: p.Name, Score: p.Score})
	log.Printf("👋 Player left: %s (%s)", p.Name, p.ID)

	return p.Record(), true
}

// Move updates the player's self-reported position and rotation in place.
// A nil rotation means the client did not report one; the stored value is
// kept. No bounds or speed validation happens here; the server relays
// whatever the client claims.
func (s *Session) Move(connID string, x, y float64, rotation *float64) (PlayerRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[connID]
	if !ok {
		return PlayerRecord{}, false
	}

	p.X = x
	p.Y = y
	if rotation != nil {
		p.Rotation = *rotation
	}
	p.LastActivity = s.now()

	return p.Record(), true
}

// Collect adjudicates an item pickup. A stale or forged item id (including
// the loser of a near-simultaneous double collect) is a silent no-op. On
// success the pool is replenished in the same critical section, so its size
// is invariant from any observer's point of view.
func (s *Session) Collect(connID, itemID string) (CollectResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[connID]
	if !ok {
		return CollectResult{}, false
	}

	removed, ok := s.removeItem(itemID)
	if !ok {
		return CollectResult{}, false
	}

	newItem := s.spawnItem()
	s.items = append(s.items, newItem)

	p.Score += s.cfg.CoinScore
	p.LastActivity = s.now()

	extraLife := false
	p.CoinsToLife--
	if p.CoinsToLife <= 0 {
		p.Lives++
		p.CoinsToLife = s.cfg.CoinsPerLife
		extraLife = true
		log.Printf("💖 Extra life for %s (lives: %d)", p.Name, p.Lives)
	}

	s.eventLog.Emit(EventTypeCollect, p.ID, CollectPayload{
		PlayerID:  p.ID,
		ItemID:    removed.ID,
		Score:     p.Score,
		ExtraLife: extraLife,
	})

	return CollectResult{
		Collector:   p.Record(),
		ItemID:      removed.ID,
		CollectedAt: Position{X: removed.X, Y: removed.Y},
		NewItem:     newItem,
		ExtraLife:   extraLife,
		Health:      p.health(),
	}, true
}

// Hit applies a hit report to the named target, unconditionally: the server
// does not verify that the reporter is anywhere near the target, and there
// is no server-side cooldown. Both are inherited trust-the-client
// weaknesses, relayed as-is rather than silently hardened.
//
// A report from a connection with no registered player is ignored, as is a
// report naming a target that no longer exists. Applying a report also
// refreshes the reporter's activity clock.
func (s *Session) Hit(reporterID, targetID string) (HitResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if reporter, ok := s.players[reporterID]; ok {
		reporter.LastActivity = s.now()
	} else {
		return HitResult{}, false
	}

	t, ok := s.players[targetID]
	if !ok {
		return HitResult{}, false
	}

	t.HitCount++
	res := HitResult{}

	if t.HitCount >= s.cfg.HitThreshold {
		t.HitCount = 0
		t.Lives--
		res.LifeLost = true

		s.eventLog.Emit(EventTypeLifeLost, t.ID, HealthPayload{
			PlayerID: t.ID,
			Lives:    t.Lives,
			HitCount: t.HitCount,
		})

		if t.Lives <= 0 {
			t.Lives = 0
			res.Eliminated = true
			delete(s.players, targetID)

			s.eventLog.Emit(EventTypeEliminated, t.ID, LeavePayload{
				PlayerID: t.ID,
				Name:     t.Name,
				Score:    t.Score,
			})
			log.Printf("☠️ Player eliminated: %s (final score %d)", t.Name, t.Score)
		}
	}

	res.Target = t.Record()
	res.Health = t.health()
	return res, true
}

// Rename updates the display name. Empty or whitespace-only requests are
// silently ignored.
func (s *Session) Rename(connID, newName string) (RenameResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[connID]
	if !ok {
		return RenameResult{}, false
	}

	newName = sanitizeName(newName)
	if newName == "" {
		return RenameResult{}, false
	}

	oldName := p.Name
	p.Name = newName
	p.LastActivity = s.now()

	s.eventLog.Emit(EventTypeRename, p.ID, RenamePayload{
		PlayerID: p.ID,
		OldName:  oldName,
		NewName:  newName,
	})

	return RenameResult{PlayerID: p.ID, OldName: oldName, NewName: newName}, true
}

// Heartbeat refreshes the player's activity clock. It carries no payload
// and produces no broadcast; its only job is to keep the idle sweeper away
// from connections that are alive but quiet.
func (s *Session) Heartbeat(connID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.players[connID]
	if !ok {
		return false
	}
	p.LastActivity = s.now()
	return true
}

// SweepIdle removes every player whose lastActivity is older than the idle
// timeout and returns their records. This guards against connections that
// drop without a clean close; a normal disconnect never waits for it.
func (s *Session) SweepIdle(now time.Time) []PlayerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.cfg.IdleTimeout)
	var evicted []PlayerRecord
	for id, p := range s.players {
		if p.LastActivity.Before(cutoff) {
			evicted = append(evicted, p.Record())
			delete(s.players, id)

			s.eventLog.Emit(EventTypeEvict, p.ID, LeavePayload{PlayerID: p.ID, Name: p.Name, Score: p.Score})
			log.Printf("💤 Evicted idle player: %s (%s)", p.Name, p.ID)
		}
	}
	return evicted
}

// Start launches the periodic idle sweeper. onEvict is called once per
// evicted player, outside the session lock, so the callback may broadcast.
func (s *Session) Start(onEvict func(PlayerRecord)) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.onEvict = onEvict
	interval := s.cfg.SweepInterval
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				for _, rec := range s.SweepIdle(s.now()) {
					if onEvict != nil {
						onEvict(rec)
					}
				}
			case <-s.stopChan:
				return
			}
		}
	}()

	log.Printf("🧹 Idle sweeper started (every %s, timeout %s)", interval, s.cfg.IdleTimeout)
}

// Stop halts the idle sweeper.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stopChan)
}

// Players returns a snapshot of the full registry keyed by player id.
func (s *Session) Players() map[string]PlayerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerRecords()
}

// Items returns a snapshot of the live item pool.
func (s *Session) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.itemList()
}

// PlayerCount returns the number of registered players.
func (s *Session) PlayerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.players)
}

// StartEventLog begins persisting session events to the given JSONL file.
func (s *Session) StartEventLog(filePath string) error {
	return s.eventLog.Start(filePath)
}

// StopEventLog flushes and closes the event log.
func (s *Session) StopEventLog() {
	s.eventLog.Stop()
}

// EventLogStats exposes event log counters for monitoring.
func (s *Session) EventLogStats() map[string]interface{} {
	return s.eventLog.Stats()
}

func (s *Session) playerRecords() map[string]PlayerRecord {
	out := make(map[string]PlayerRecord, len(s.players))
	for id, p := range s.players {
		out[id] = p.Record()
	}
	return out
}

func (s *Session) itemList() []Item {
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}
