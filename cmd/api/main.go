package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kimland-sync/internal/app"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	configPath := os.Getenv("CONFIG_FILE")
	if configPath == "" {
		configPath = "config.json5"
	}

	a, err := app.New(ctx, app.Options{ConfigPath: configPath})
	if err != nil {
		app.NewLogger(false).Fatalf("Failed to start: %v", err)
	}

	// Get port from environment variable, default to 8080
	port := "8080"
	if envPort := os.Getenv("API_PORT"); envPort != "" {
		port = envPort
	}

	server := NewServer(a.Logger, a.Orchestrator, a.Catalog)
	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts end with the process so running batches stop between items
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		a.Close(context.Background())
		a.Logger.Fatalf("Failed to listen on port %s: %v", port, err)
	}

	a.Logger.Infof("Starting API server on port %s", port)
	a.Logger.Info("Available endpoints:")
	a.Logger.Info("  POST /sync       - Synchronize one product")
	a.Logger.Info("  POST /sync/batch - Synchronize many products, streamed as NDJSON")
	a.Logger.Info("  GET  /health     - Health check")

	// Serve returns after in-flight requests have finished, so the store is closed last
	err = Serve(ctx, httpServer, ln, 10*time.Second)
	a.Close(context.Background())
	if err != nil {
		a.Logger.Fatalf("Server failed: %v", err)
	}
	a.Logger.Info("Server stopped")
}
