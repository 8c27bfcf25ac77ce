package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"biomark/internal/config"
	"biomark/internal/container"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load application configuration
	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Create dependency injection container
	appContainer, err := container.New(appConfig)
	if err != nil {
		log.Fatalf("Failed to create application container: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if appConfig.Profiling.Enabled {
		log.Printf("📊 Ops endpoints on :%s (health at /healthz, profiles under /debug/pprof)", appConfig.Profiling.Port)
		log.Printf("💡 View profiles: go tool pprof -http=:8081 http://localhost:%s/debug/pprof/profile?seconds=30", appConfig.Profiling.Port)
	}
	log.Printf("🔬 %s listening on :%s (predictor=%s)", appConfig.UI.Title, appConfig.Server.Port, appContainer.Predictor.Name())

	runErr := appContainer.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := appContainer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown incomplete: %v", err)
	}

	if runErr != nil {
		log.Fatalf("Server stopped: %v", runErr)
	}
	log.Println("Server stopped")
}
