package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/savegress/fleetwatch/internal/api"
	"github.com/savegress/fleetwatch/internal/config"
	"github.com/savegress/fleetwatch/internal/tracker"
	"github.com/savegress/fleetwatch/pkg/models"
)

func main() {
	// Load configuration
	var cfg *config.Config
	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	} else {
		cfg = config.LoadFromEnv()
	}

	log.Printf("Starting FleetWatch - Fleet Telemetry Status Tracker")
	log.Printf("Environment: %s", cfg.Server.Environment)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize status tracker
	statusTracker := tracker.New(&cfg.Tracker)
	if err := statusTracker.Start(ctx); err != nil {
		log.Fatalf("Failed to start status tracker: %v", err)
	}
	log.Println("Status tracker started")

	if cfg.Server.Environment == "development" {
		statusTracker.SetTransitionCallback(func(deviceID string, oldStatus, newStatus models.DeviceStatus) {
			log.Printf("Device %s: %s -> %s", deviceID, oldStatus, newStatus)
		})
	}

	// Create API server
	server := api.NewServer(statusTracker)

	// Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: server.Handler(),
	}

	go func() {
		log.Printf("HTTP server listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	statusTracker.Stop()

	log.Println("FleetWatch stopped")
}
