package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcpgate/mcpgate/internal/config"
	"github.com/mcpgate/mcpgate/internal/logging"
	"github.com/mcpgate/mcpgate/internal/manifest"
	"github.com/mcpgate/mcpgate/internal/oauth"
	"github.com/mcpgate/mcpgate/internal/registry"
	"github.com/mcpgate/mcpgate/internal/server"
	"github.com/mcpgate/mcpgate/internal/store"
)

// statusLogger logs every server status transition.
type statusLogger struct {
	log logging.Logger
}

func (s *statusLogger) OnServerStatusChanged(ev registry.StatusEvent) {
	args := []any{"server", ev.Key.String(), "status", ev.Status}
	if ev.ToolCount > 0 {
		args = append(args, "tools", ev.ToolCount)
	}
	if ev.Err != "" {
		args = append(args, "error", ev.Err)
		s.log.Warn("server status changed", args...)
		return
	}
	s.log.Info("server status changed", args...)
}

func cmdServe(args []string) {
	port := 0
	showHelp := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--port", "-p":
			if i+1 < len(args) {
				fmt.Sscanf(args[i+1], "%d", &port)
				i++
			}
		case "--help", "-h":
			showHelp = true
		}
	}

	if showHelp {
		printServeUsage()
		return
	}

	log := logging.Default()

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error getting current directory: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	storePath := cfg.StorePath
	if storePath == "" {
		storePath = config.DefaultStorePath()
	}
	st, err := store.New(storePath, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Config file declarations win over whatever the store last saw.
	for keyStr, def := range cfg.Servers {
		key, rcfg, err := def.ToRegistry()
		if err != nil {
			log.Warn("skipping invalid server definition", "key", keyStr, "error", err)
			continue
		}
		if err := st.Save(ctx, key, rcfg); err != nil {
			log.Warn("persisting server definition failed", "key", key.String(), "error", err)
		}
	}

	if cfg.ToolsetsDir != "" {
		if err := manifest.ImportDir(ctx, cfg.ToolsetsDir, st, log); err != nil {
			log.Warn("importing toolset manifests failed", "dir", cfg.ToolsetsDir, "error", err)
		}
	}

	reg := registry.New(registry.Params{
		Store:     st,
		Overrides: st,
		Auth:      oauth.New(st, nil, log),
		Logger:    log,
	})
	defer reg.Shutdown()
	reg.Subscribe(&statusLogger{log: log})

	if err := reg.Initialize(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing servers: %v\n", err)
		os.Exit(1)
	}

	srv := server.New(reg, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutdown signal received")
		cancel()
	}()

	if port > 0 {
		err = srv.RunHTTP(ctx, port)
	} else {
		err = srv.RunStdio(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}

func printServeUsage() {
	fmt.Print(`mcpgate serve - Start the gateway

Usage:
  mcpgate serve [options]

Options:
  --port, -p PORT    Run with SSE transport on PORT
                     (default: stdio transport)
  --help, -h         Show this help

Examples:
  mcpgate serve                # Run with stdio transport
  mcpgate serve --port 8080    # Run with SSE on port 8080

Configuration:
  The gateway loads tool server configurations from:
  1. User config: ~/.config/mcpgate/config.kdl
  2. Project config: .mcpgate.kdl (in current directory)

  Project config overrides user config for the same server key.
  Declared servers are persisted to the SQLite store ("store" setting,
  default ~/.local/share/mcpgate/mcpgate.db) together with per-tool
  overrides and OAuth tokens.
`)
}
