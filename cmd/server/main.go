package main

import (
	"context"
	"log"
	"os"

	"tasktrack/internal/app"
	"tasktrack/internal/config"
)

func main() {
	cfg, err := config.Load(os.Getenv("TASKTRACK_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	code, err := app.Serve(context.Background(), cfg)
	if err != nil {
		log.Fatalf("serve: %v", err)
	}
	os.Exit(code)
}
