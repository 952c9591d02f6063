package main

import (
	"fmt"
	"os"
)

const version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "server":
		if len(os.Args) < 3 {
			printServerUsage()
			return
		}
		switch os.Args[2] {
		case "add":
			cmdServerAdd(os.Args[3:])
		case "add-json":
			cmdServerAddJSON(os.Args[3:])
		case "remove", "rm":
			cmdServerRemove(os.Args[3:])
		case "list", "ls":
			cmdServerList(os.Args[3:])
		case "paths":
			cmdServerPaths(os.Args[3:])
		case "help", "-h", "--help":
			printServerUsage()
		default:
			printServerUsage()
			os.Exit(1)
		}
	case "version", "-v", "--version":
		fmt.Printf("mcpgate version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`mcpgate - Connection manager and gateway for MCP tool servers

Usage:
  mcpgate <command> [options]

Commands:
  serve            Start the gateway
  server add       Register a tool server
  server add-json  Register a tool server from JSON config
  server remove    Unregister a tool server
  server list      List configured tool servers
  server paths     Show config file paths
  version          Show version
  help             Show this help

Run 'mcpgate <command> --help' for more information on a command.
`)
}

func printServerUsage() {
	fmt.Print(`mcpgate server - Manage tool server registrations

Usage:
  mcpgate server <subcommand> [options]

Subcommands:
  add <key> <command> [args...] [options]
      Register a tool server (stdio transport)
      Options: --project, --user, --transport, --url, --env, --header, --cwd

  add-json <key> '<json>' [--project|--user]
      Register a tool server from JSON config

  remove <key> [--project|--user]
      Unregister a tool server

  list [--json]
      List configured tool servers (merged user + project view)

  paths
      Show config file paths

Keys:
  A server key is "toolset/server"; a bare id lands in the default
  toolset.

Scope Options:
  --project    Project config (.mcpgate.kdl) [default]
  --user       User config (~/.config/mcpgate/config.kdl)

Transport Options:
  --transport=<type>  stdio (default), sse, streamable-http
  --url=<url>         Server URL (required for remote transports)

Config Options:
  --env KEY=VALUE, -e KEY=VALUE      Set environment variable
  --header "Key: Value", -H "..."    Set HTTP header
  --cwd <dir>                        Working directory for stdio servers

Examples:
  # Add with stdio transport (default)
  mcpgate server add tools/fs fs-server --root /tmp

  # Add with an environment placeholder resolved at launch
  mcpgate server add search search-server -e API_KEY='${SEARCH_API_KEY}'

  # Add with SSE transport
  mcpgate server add remote/api --transport=sse --url=https://mcp.example.com/sse

  # Add from JSON
  mcpgate server add-json fs '{"command":"fs-server","args":["--root","/tmp"]}'

  # Show all paths
  mcpgate server paths
`)
}
