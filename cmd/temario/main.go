package main

import (
	"fmt"
	"os"
)

// Version is set at build time via ldflags
var Version = "dev"

const (
	pidFile = "temariod.pid"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "start":
		err = cmdStart()
	case "stop":
		err = cmdStop()
	case "status":
		err = cmdStatus()
	case "logs":
		err = cmdLogs()
	case "config":
		err = cmdConfig()
	case "migrate":
		err = cmdMigrate(os.Args[2:])
	case "select":
		err = cmdSelect(os.Args[2:])
	case "session":
		err = cmdSession(os.Args[2:])
	case "advance":
		err = cmdAdvance(os.Args[2:])
	case "abandon":
		err = cmdAbandon(os.Args[2:])
	case "mcp":
		err = cmdMCP()
	case "help", "-h", "--help":
		printUsage()
	case "version", "-v", "--version":
		fmt.Printf("temario %s\n", Version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Temario - Question selection for exam practice

Usage:
  temario <command> [arguments]

Setup Commands:
  config          Show current configuration
  migrate         Apply database migrations (--seed <fixture.yaml> loads content)

Daemon Commands:
  start           Start the Temario daemon
  stop            Stop the Temario daemon
  status          Show daemon status
  logs            View daemon logs

Session Commands:
  select          Build a question plan (see 'temario select -h')
  session <id>    Show an adaptive session
  advance <id> <question> <correct|wrong> [--seq N]
                  Report an answer to an adaptive session
  abandon <id>    End an adaptive session

Integration Commands:
  mcp             Start MCP server on stdio

Other:
  help            Show this help message
  version         Show version information

Examples:
  temario migrate --seed catalog.yaml         # Create schema and load content
  temario start                               # Start daemon
  temario select --laws CE --count 20         # Prioritized plan for one law
  temario select --topic 1 --adaptive         # Adaptive session for a topic
  temario select --laws CE --failed --user u1 # Review failed questions`)
}
