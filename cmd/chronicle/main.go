package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/chroniclekeeper/chronicle/internal/cli"
)

func main() {
	// Missing .env is fine; flags and real env still apply.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[CHRONICLE] Failed to load .env: %v", err)
	}

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
