package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mcpgate/mcpgate/internal/config"
)

func cmdServerAdd(args []string) {
	scope := config.ScopeProject
	transport := ""
	url := ""
	cwd := ""
	env := make(map[string]string)
	headers := make(map[string]string)

	var positional []string
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--project":
			scope = config.ScopeProject
		case args[i] == "--user":
			scope = config.ScopeUser
		case args[i] == "--transport" || args[i] == "-t":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --transport requires a value")
				os.Exit(1)
			}
			i++
			transport = args[i]
		case strings.HasPrefix(args[i], "--transport="):
			transport = strings.TrimPrefix(args[i], "--transport=")
		case args[i] == "--url":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --url requires a value")
				os.Exit(1)
			}
			i++
			url = args[i]
		case strings.HasPrefix(args[i], "--url="):
			url = strings.TrimPrefix(args[i], "--url=")
		case args[i] == "--cwd":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --cwd requires a value")
				os.Exit(1)
			}
			i++
			cwd = args[i]
		case strings.HasPrefix(args[i], "--cwd="):
			cwd = strings.TrimPrefix(args[i], "--cwd=")
		case args[i] == "--env" || args[i] == "-e":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --env requires KEY=VALUE")
				os.Exit(1)
			}
			i++
			kv := strings.SplitN(args[i], "=", 2)
			if len(kv) != 2 {
				fmt.Fprintf(os.Stderr, "Error: invalid env format %q, expected KEY=VALUE\n", args[i])
				os.Exit(1)
			}
			env[kv[0]] = kv[1]
		case strings.HasPrefix(args[i], "--env="):
			kv := strings.SplitN(strings.TrimPrefix(args[i], "--env="), "=", 2)
			if len(kv) != 2 {
				fmt.Fprintln(os.Stderr, "Error: invalid env format, expected KEY=VALUE")
				os.Exit(1)
			}
			env[kv[0]] = kv[1]
		case args[i] == "--header" || args[i] == "-H":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --header requires 'Key: Value'")
				os.Exit(1)
			}
			i++
			parts := strings.SplitN(args[i], ":", 2)
			if len(parts) != 2 {
				fmt.Fprintf(os.Stderr, "Error: invalid header format %q, expected 'Key: Value'\n", args[i])
				os.Exit(1)
			}
			headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		case strings.HasPrefix(args[i], "--header="):
			parts := strings.SplitN(strings.TrimPrefix(args[i], "--header="), ":", 2)
			if len(parts) != 2 {
				fmt.Fprintln(os.Stderr, "Error: invalid header format, expected 'Key: Value'")
				os.Exit(1)
			}
			headers[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
		case args[i] == "--help" || args[i] == "-h":
			printServerUsage()
			return
		default:
			positional = append(positional, args[i])
		}
	}

	def := config.ServerDef{
		Transport: transport,
		URL:       url,
		Cwd:       cwd,
	}
	if len(env) > 0 {
		def.Env = env
	}
	if len(headers) > 0 {
		def.Headers = headers
	}

	key := ""
	if url != "" || transport == "sse" || transport == "streamable-http" || transport == "streamable" || transport == "http" {
		if len(positional) < 1 {
			fmt.Fprintln(os.Stderr, "Error: key is required")
			os.Exit(1)
		}
		key = positional[0]
		if url == "" {
			fmt.Fprintln(os.Stderr, "Error: --url is required for remote transports")
			os.Exit(1)
		}
	} else {
		if len(positional) < 2 {
			fmt.Fprintln(os.Stderr, "Error: key and command are required for stdio transport")
			os.Exit(1)
		}
		key = positional[0]
		def.Command = positional[1]
		def.Args = positional[2:]
	}

	// Validate before touching the file.
	def.Key = key
	if _, _, err := def.ToRegistry(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cwdDir, _ := os.Getwd()
	path := config.ConfigPathForScope(scope, cwdDir)
	if path == "" {
		fmt.Fprintln(os.Stderr, "Error: could not determine config path")
		os.Exit(1)
	}
	if err := config.AddServerToFile(path, key, def); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Added server %q to %s config (%s)\n", key, scope, path)
}

func cmdServerAddJSON(args []string) {
	scope := config.ScopeProject
	var positional []string
	for _, arg := range args {
		switch arg {
		case "--project":
			scope = config.ScopeProject
		case "--user":
			scope = config.ScopeUser
		case "--help", "-h":
			printServerUsage()
			return
		default:
			positional = append(positional, arg)
		}
	}
	if len(positional) < 2 {
		fmt.Fprintln(os.Stderr, "Error: key and JSON config are required")
		os.Exit(1)
	}
	key := positional[0]

	def, err := config.ParseJSONServer(positional[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing JSON: %v\n", err)
		os.Exit(1)
	}
	def.Key = key
	if _, _, err := def.ToRegistry(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cwd, _ := os.Getwd()
	path := config.ConfigPathForScope(scope, cwd)
	if err := config.AddServerToFile(path, key, *def); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Added server %q to %s config (%s)\n", key, scope, path)
}

func cmdServerRemove(args []string) {
	scope := config.ScopeProject
	var positional []string
	for _, arg := range args {
		switch arg {
		case "--project":
			scope = config.ScopeProject
		case "--user":
			scope = config.ScopeUser
		case "--help", "-h":
			printServerUsage()
			return
		default:
			positional = append(positional, arg)
		}
	}
	if len(positional) < 1 {
		fmt.Fprintln(os.Stderr, "Error: key is required")
		os.Exit(1)
	}
	key := positional[0]

	cwd, _ := os.Getwd()
	path := config.ConfigPathForScope(scope, cwd)
	if err := config.RemoveServerFromFile(path, key); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Removed server %q from %s config (%s)\n", key, scope, path)
}

func cmdServerList(args []string) {
	asJSON := false
	for _, arg := range args {
		switch arg {
		case "--json":
			asJSON = true
		case "--help", "-h":
			printServerUsage()
			return
		}
	}

	cwd, _ := os.Getwd()
	cfg, err := config.Load(cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	keys := make([]string, 0, len(cfg.Servers))
	for key := range cfg.Servers {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	if asJSON {
		defs := make([]config.ServerDef, 0, len(keys))
		for _, key := range keys {
			defs = append(defs, cfg.Servers[key])
		}
		data, err := json.MarshalIndent(defs, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
		return
	}

	if len(keys) == 0 {
		fmt.Println("No tool servers configured.")
		return
	}
	for _, key := range keys {
		def := cfg.Servers[key]
		target := def.Command
		if len(def.Args) > 0 {
			target += " " + strings.Join(def.Args, " ")
		}
		if def.URL != "" {
			target = def.URL
		}
		transport := def.Transport
		if transport == "" {
			if def.URL != "" {
				transport = "streamable-http"
			} else {
				transport = "stdio"
			}
		}
		fmt.Printf("%-30s %-16s %s (%s)\n", key, transport, target, def.Source)
	}
}

func cmdServerPaths(args []string) {
	cwd, _ := os.Getwd()
	cfg, err := config.Load(cwd)
	storePath := ""
	if err == nil {
		storePath = cfg.StorePath
	}
	if storePath == "" {
		storePath = config.DefaultStorePath()
	}

	fmt.Printf("User config:    %s\n", config.UserConfigPath())
	fmt.Printf("Project config: %s\n", config.ProjectConfigPath(cwd))
	fmt.Printf("Store:          %s\n", storePath)
}
