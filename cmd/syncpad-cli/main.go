package main

import (
	"fmt"
	"os"
)

var version = "dev"

var (
	endpoint string
	token    string
)

func init() {
	endpoint = envOrDefault("SYNCPAD_ENDPOINT", "http://localhost:8080")
	token = envOrDefault("SYNCPAD_ADMIN_TOKEN", "")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Parse global flags before subcommand
	args := os.Args[1:]
	for len(args) > 0 && len(args[0]) > 0 && args[0][0] == '-' {
		switch args[0] {
		case "--endpoint":
			if len(args) < 2 {
				fatal("--endpoint requires a value")
			}
			endpoint = args[1]
			args = args[2:]
		case "--token":
			if len(args) < 2 {
				fatal("--token requires a value")
			}
			token = args[1]
			args = args[2:]
		case "--version", "-v":
			fmt.Printf("syncpad-cli %s\n", version)
			os.Exit(0)
		case "--help", "-h":
			printUsage()
			os.Exit(0)
		default:
			fatal("unknown flag: " + args[0])
		}
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	cmd := args[0]
	cmdArgs := args[1:]

	switch cmd {
	case "status":
		runStatus(cmdArgs)
	case "stats":
		runStats(cmdArgs)
	case "session":
		runSession(cmdArgs)
	case "document":
		runDocument(cmdArgs)
	case "search":
		runSearch(cmdArgs)
	case "sync":
		runSync(cmdArgs)
	case "backup":
		runBackup(cmdArgs)
	case "version":
		fmt.Printf("syncpad-cli %s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: syncpad-cli [flags] <command> <subcommand> [args]

Global Flags:
  --endpoint <url>     SyncPad endpoint (default: $SYNCPAD_ENDPOINT or http://localhost:8080)
  --token <token>      Admin API token (default: $SYNCPAD_ADMIN_TOKEN)
  --version, -v        Show version

Commands:
  status               Show server health and readiness
  stats                Show service statistics
  session              Session operations (list)
  document             Document operations (show, dump, snapshot, diff)
  search               Full-text search over documents
  sync                 Site sync operations (status)
  backup               Backup operations (status, run)
  version              Show version
  help                 Show this help`)
}

func fatal(msg string) {
	fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	os.Exit(1)
}
