package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/vidgrab/vidgrab/internal"
	"github.com/vidgrab/vidgrab/pkg/logger"
)

var log = logger.Get("Main")

// main is the entry point to the program. The user's configuration is read
// from the config file (and environment), the Vidgrab services are
// constructed, and everything runs until an interrupt arrives.
func main() {
	// A .env alongside the binary is a convenience for development;
	// its absence is fine.
	_ = godotenv.Load()

	configPath := flag.String("config", "vidgrab.yaml", "path to the YAML configuration file")
	flag.Parse()

	config := internal.VidgrabConfig{}
	if err := config.LoadFromFile(*configPath); err != nil {
		log.Emit(logger.FATAL, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := internal.New(config).Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Vidgrab exited with error: %v\n", err)
		os.Exit(1)
	}

	log.Emit(logger.STOP, "Vidgrab exited cleanly\n")
}
