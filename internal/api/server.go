package api

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"coin-arena/internal/game"
	"coin-arena/internal/leaderboard"

	"github.com/go-chi/chi/v5"
)

// GameSession defines the session methods the API layer uses. The
// interface exists so router and dispatch tests can run against small
// fakes instead of a full session.
type GameSession interface {
	Join(connID, name string) game.JoinResult
	Leave(connID string) (game.PlayerRecord, bool)
	Move(connID string, x, y float64, rotation *float64) (game.PlayerRecord, bool)
	Collect(connID, itemID string) (game.CollectResult, bool)
	Hit(reporterID, targetID string) (game.HitResult, bool)
	Rename(connID, newName string) (game.RenameResult, bool)
	Heartbeat(connID string) bool
	Players() map[string]game.PlayerRecord
	Items() []game.Item
	PlayerCount() int
}

// ScoreStore is the external leaderboard surface the API consumes.
type ScoreStore interface {
	Enabled() bool
	Submit(ctx context.Context, playerName string, score int) error
	Top(ctx context.Context, n int) ([]leaderboard.Entry, error)
}

// Server combines the HTTP router with the websocket hub and the intent
// dispatcher. Background workers do NOT start until Start is called, so
// tests can construct a Server and drive Router() under httptest.
type Server struct {
	session GameSession
	store   ScoreStore
	hub     *Hub
	router  *chi.Mux

	rateLimiter *IPRateLimiter

	// dispatchMu serializes intent handling (see dispatch).
	dispatchMu sync.Mutex
}

// ServerConfig carries the knobs NewServer needs from the config package.
type ServerConfig struct {
	MaxConnections int
	MaxConnsPerIP  int

	// RateLimitConfig overrides the HTTP limiter defaults (tests raise it).
	RateLimitConfig *RateLimitConfig

	// DisableLogging turns off the request logger middleware.
	DisableLogging bool
}

// NewServer wires the session, store, hub, and router together.
func NewServer(session GameSession, store ScoreStore, cfg ServerConfig) *Server {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 500
	}
	if cfg.MaxConnsPerIP <= 0 {
		cfg.MaxConnsPerIP = 10
	}

	rateLimitCfg := DefaultRateLimitConfig
	if cfg.RateLimitConfig != nil {
		rateLimitCfg = *cfg.RateLimitConfig
	}

	s := &Server{
		session:     session,
		store:       store,
		hub:         NewHub(cfg.MaxConnections, cfg.MaxConnsPerIP),
		rateLimiter: NewIPRateLimiter(rateLimitCfg),
	}

	s.router = NewRouter(RouterConfig{
		Session:        session,
		Store:          store,
		RateLimiter:    s.rateLimiter,
		DisableLogging: cfg.DisableLogging,
	})

	// The websocket route needs the hub, so it can't live in the pure
	// router factory.
	s.router.Get("/ws", s.HandleWebSocket)

	return s
}

// Start runs the HTTP server. Blocking; the only goroutines it spawns are
// per-connection pumps.
func (s *Server) Start(addr string) error {
	log.Printf("🌐 Game server starting on %s", addr)
	return http.ListenAndServe(addr, s.router)
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub exposes the websocket hub (the eviction callback and tests need it).
func (s *Server) Hub() *Hub {
	return s.hub
}

// OnEvict returns the callback to hand to Session.Start.
func (s *Server) OnEvict() func(game.PlayerRecord) {
	return s.onEvict
}

// Stop shuts down background workers owned by the server.
func (s *Server) Stop() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}

// submitScore pushes a departed player's final score to the external
// store. Best-effort and asynchronous: the session never waits on it and
// failures only log.
func (s *Server) submitScore(rec game.PlayerRecord) {
	if s.store == nil || !s.store.Enabled() || rec.Score <= 0 {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.store.Submit(ctx, rec.Name, rec.Score); err != nil {
			log.Printf("⚠️ Leaderboard submit failed for %s: %v", rec.Name, err)
		}
	}()
}
