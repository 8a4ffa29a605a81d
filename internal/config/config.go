// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for all game and server settings.
//
// IMPORTANT: When changing default values, only modify this file.
// All other parts of the codebase should reference these values.
package config

import (
	"os"
	"strconv"
	"time"
)

// =============================================================================
// WORLD / GAME RULES CONFIGURATION
// =============================================================================

// WorldConfig holds the arena dimensions and game-rule constants.
// These values are shared between the session core and the API layer.
type WorldConfig struct {
	Width       float64 // Arena width in world units
	Height      float64 // Arena height in world units
	SpawnMargin float64 // Inset from the arena edges for spawn points

	MaxItems      int // Target coin pool size, replenished after every collection
	CoinScore     int // Score awarded per collected coin
	StartingLives int // Lives a player joins with
	HitThreshold  int // Accumulated hits that cost one life
	CoinsPerLife  int // Coins collected to earn a bonus life

	IdleTimeout   time.Duration // lastActivity age that triggers eviction
	SweepInterval time.Duration // How often the idle sweeper runs
}

// DefaultWorld returns the default world configuration.
func DefaultWorld() WorldConfig {
	return WorldConfig{
		Width:         800,
		Height:        600,
		SpawnMargin:   50,
		MaxItems:      15,
		CoinScore:     10,
		StartingLives: 3,
		HitThreshold:  10,
		CoinsPerLife:  100,
		IdleTimeout:   time.Hour,
		SweepInterval: time.Minute,
	}
}

// WorldFromEnv returns world configuration with environment variable overrides.
// Environment variables take precedence over defaults.
func WorldFromEnv() WorldConfig {
	cfg := DefaultWorld()

	if w := getEnvFloat("ARENA_WIDTH", 0); w > 0 {
		cfg.Width = w
	}
	if h := getEnvFloat("ARENA_HEIGHT", 0); h > 0 {
		cfg.Height = h
	}
	if n := getEnvInt("MAX_ITEMS", 0); n > 0 {
		cfg.MaxItems = n
	}
	if s := getEnvInt("COIN_SCORE", 0); s > 0 {
		cfg.CoinScore = s
	}
	if l := getEnvInt("STARTING_LIVES", 0); l > 0 {
		cfg.StartingLives = l
	}
	if t := getEnvInt("HIT_THRESHOLD", 0); t > 0 {
		cfg.HitThreshold = t
	}
	if c := getEnvInt("COINS_PER_LIFE", 0); c > 0 {
		cfg.CoinsPerLife = c
	}
	if d := getEnvDuration("IDLE_TIMEOUT", 0); d > 0 {
		cfg.IdleTimeout = d
	}
	if d := getEnvDuration("SWEEP_INTERVAL", 0); d > 0 {
		cfg.SweepInterval = d
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int
	MaxConnections  int // Hard cap on concurrent websocket connections
	MaxConnsPerIP   int // Concurrent websocket connections per client IP
	EventLogPath    string
	DisableEventLog bool
	DisableDebugSrv bool
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:           3000,
		MaxConnections: 500,
		MaxConnsPerIP:  10,
		EventLogPath:   "events.jsonl",
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if mc := getEnvInt("MAX_CONNECTIONS", 0); mc > 0 {
		cfg.MaxConnections = mc
	}
	if mc := getEnvInt("MAX_CONNECTIONS_PER_IP", 0); mc > 0 {
		cfg.MaxConnsPerIP = mc
	}
	if p := os.Getenv("EVENT_LOG_PATH"); p != "" {
		cfg.EventLogPath = p
	}
	if os.Getenv("DISABLE_EVENT_LOG") == "true" {
		cfg.DisableEventLog = true
	}
	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		cfg.DisableDebugSrv = true
	}

	return cfg
}

// =============================================================================
// LEADERBOARD STORE CONFIGURATION
// =============================================================================

// LeaderboardConfig holds settings for the external leaderboard table store.
// The integration is best-effort: when URL is empty the client is disabled
// and every call degrades to a no-op.
type LeaderboardConfig struct {
	URL     string // Base URL of the REST table endpoint
	APIKey  string
	Table   string
	Timeout time.Duration
}

// DefaultLeaderboard returns the default (disabled) leaderboard configuration.
func DefaultLeaderboard() LeaderboardConfig {
	return LeaderboardConfig{
		Table:   "leaderboard",
		Timeout: 5 * time.Second,
	}
}

// LeaderboardFromEnv returns leaderboard configuration with env overrides.
func LeaderboardFromEnv() LeaderboardConfig {
	cfg := DefaultLeaderboard()

	if u := os.Getenv("LEADERBOARD_URL"); u != "" {
		cfg.URL = u
	}
	if k := os.Getenv("LEADERBOARD_API_KEY"); k != "" {
		cfg.APIKey = k
	}
	if t := os.Getenv("LEADERBOARD_TABLE"); t != "" {
		cfg.Table = t
	}
	if d := getEnvDuration("LEADERBOARD_TIMEOUT", 0); d > 0 {
		cfg.Timeout = d
	}

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	World       WorldConfig
	Server      ServerConfig
	Leaderboard LeaderboardConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		World:       WorldFromEnv(),
		Server:      ServerFromEnv(),
		Leaderboard: LeaderboardFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
