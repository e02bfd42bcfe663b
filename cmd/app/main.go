package main

import (
	"flag"
	"log"
	"os"

	"OptiFlow/internal/di"
	"OptiFlow/pkg/config"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	envPath := flag.String("env", "", "optional .env file with broker credentials")
	flag.Parse()

	// .env is optional; broker tokens usually arrive through the environment
	if *envPath != "" {
		if err := godotenv.Load(*envPath); err != nil {
			log.Fatalf("env load failed: %v", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s feed=%s relay=%s", cfg.Environment, cfg.Feed.Mode, cfg.Relay.Backend)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
