// Package cmd provides CLI commands for the wayfare AI service.
//
// Commands:
//   - serve: HTTP API server (SSE proofreading, RAG search)
//   - migrate: apply database migrations and exit
//
// Signal handling and graceful shutdown are implemented for serve via
// context cancellation.
package cmd

import (
	"fmt"
	"os"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// Execute is the main entry point for the wayfare CLI.
func Execute() error {
	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "migrate":
		return runMigrate()
	case "version", "--version", "-v":
		fmt.Println("wayfare", Version)
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("wayfare - travel content AI service")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  wayfare serve [addr]  Start HTTP API server (default: :8080)")
	fmt.Println("  wayfare migrate       Apply database migrations and exit")
	fmt.Println("  wayfare --version     Show version information")
	fmt.Println("  wayfare --help        Show this help")
	fmt.Println()
	fmt.Println("Configuration is read from wayfare.yaml and WAYFARE_* environment")
	fmt.Println("variables (e.g. WAYFARE_MODEL_API_KEY).")
}
