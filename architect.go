package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	cli "github.com/neboloop/architect/cmd/architect"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	cli.Version = version
	if err := cli.SetupRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
