package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"ingest/cmd"
	"ingest/internal/config"
	"ingest/internal/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	// Commands load and validate their own configuration; here it only
	// selects the logger settings.
	cfg, err := config.Load()
	if err != nil {
		if err := logger.Setup(logger.DefaultConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	} else {
		if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	}

	log := logger.WithComponent("main")
	log.Debug().Msg("Starting ingest")

	cmd.Execute()

	log.Debug().Msg("ingest shutdown")
	os.Exit(0)
}
