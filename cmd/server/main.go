package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"coin-arena/internal/api"
	"coin-arena/internal/config"
	"coin-arena/internal/game"
	"coin-arena/internal/leaderboard"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("💡 No .env file found, using environment variables only")
	}

	log.Println("🪙 ================================")
	log.Println("🪙  COIN ARENA - GAME SERVER")
	log.Println("🪙 ================================")

	// Load centralized configuration (SSOT - Single Source of Truth)
	appConfig := config.Load()
	worldCfg := appConfig.World
	serverCfg := appConfig.Server

	log.Printf("🗺️ Arena: %.0fx%.0f, %d coins, %d lives, hit threshold %d",
		worldCfg.Width, worldCfg.Height, worldCfg.MaxItems,
		worldCfg.StartingLives, worldCfg.HitThreshold)
	log.Printf("🧹 Idle eviction: sweep every %s, timeout %s",
		worldCfg.SweepInterval, worldCfg.IdleTimeout)

	// Create the session (the single shared world)
	session := game.NewSession(worldCfg)

	// Start event log
	if !serverCfg.DisableEventLog {
		if err := session.StartEventLog(serverCfg.EventLogPath); err != nil {
			log.Printf("⚠️ Event log disabled: %v", err)
		} else {
			log.Printf("📝 Event log: %s", serverCfg.EventLogPath)
		}
	}

	// Start debug server (pprof + metrics, localhost only)
	if !serverCfg.DisableDebugSrv {
		if err := api.StartDebugServer(api.DefaultObservabilityConfig()); err != nil {
			log.Printf("⚠️ Debug server disabled: %v", err)
		}
	}

	// External leaderboard store (best-effort, network-optional)
	store := leaderboard.New(appConfig.Leaderboard)
	if store.Enabled() {
		log.Printf("🏆 Leaderboard store: %s (table %s)", appConfig.Leaderboard.URL, appConfig.Leaderboard.Table)
	} else {
		log.Println("🏆 Leaderboard store not configured - scores stay in-session only")
	}

	server := api.NewServer(session, store, api.ServerConfig{
		MaxConnections: serverCfg.MaxConnections,
		MaxConnsPerIP:  serverCfg.MaxConnsPerIP,
	})

	// Start the idle sweeper; evictions broadcast like disconnects
	session.Start(server.OnEvict())

	// Start API server in goroutine
	go func() {
		addr := ":" + strconv.Itoa(serverCfg.Port)
		log.Printf("🌐 Listening on http://localhost%s (ws: /ws)", addr)

		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	server.Stop()
	session.Stop()
	session.StopEventLog()
	log.Println("👋 Goodbye!")
}
