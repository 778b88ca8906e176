package main

import (
	"fmt"
	"os"

	"github.com/jobins-devs/redmine-jira-integration/internal/config"
	"github.com/jobins-devs/redmine-jira-integration/internal/crypto"
	"github.com/jobins-devs/redmine-jira-integration/internal/entrypoint"
)

// Version information - set at build time via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	// If no arguments or "serve" command, run the HTTP server
	if len(os.Args) < 2 || os.Args[1] == "serve" {
		cfg := config.NewConfig()
		entrypoint.Run(cfg, Version)
		return
	}

	command := os.Args[1]

	switch command {
	case "generate-key":
		key, err := crypto.GenerateKey()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(key)

	case "-h", "--help", "help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  serve         Start the HTTP server (default if no command given)\n")
	fmt.Fprintf(os.Stderr, "  generate-key  Generate a credential encryption key for APP_ENCRYPTION_KEY\n")
}
