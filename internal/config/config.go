// Package config loads mcpgate's KDL configuration files and converts
// their server declarations into registry records.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/mcpgate/mcpgate/internal/registry"
)

// DefaultToolset owns servers declared without an explicit toolset
// component in their key.
const DefaultToolset = "default"

// Config is the merged configuration from user and project sources.
type Config struct {
	// StorePath is the SQLite database location; empty selects the
	// per-user default.
	StorePath string

	// ToolsetsDir is an optional directory of toolset manifests to
	// import at startup.
	ToolsetsDir string

	// Servers is keyed by the rendered "toolset/server" key.
	Servers map[string]ServerDef
}

// ServerDef is one declared tool server.
type ServerDef struct {
	Key                  string            `json:"key,omitempty"`
	Transport            string            `json:"transport"`
	Command              string            `json:"command,omitempty"`
	Args                 []string          `json:"args,omitempty"`
	Cwd                  string            `json:"cwd,omitempty"`
	Env                  map[string]string `json:"env,omitempty"`
	URL                  string            `json:"url,omitempty"`
	Headers              map[string]string `json:"headers,omitempty"`
	RequiresConfirmation bool              `json:"requires_confirmation,omitempty"`
	Source               Source            `json:"-"`
}

// Scope indicates where a config edit should be stored.
type Scope int

const (
	ScopeProject Scope = iota // .mcpgate.kdl in the project root, shared via git
	ScopeUser                 // ~/.config/mcpgate/config.kdl, personal cross-project
)

func (s Scope) String() string {
	switch s {
	case ScopeProject:
		return "project"
	case ScopeUser:
		return "user"
	default:
		return "unknown"
	}
}

// ParseScope parses a scope string, defaulting to project.
func ParseScope(s string) Scope {
	if s == "user" {
		return ScopeUser
	}
	return ScopeProject
}

// Source indicates where a server definition came from.
type Source int

const (
	SourceUser Source = iota
	SourceProject
)

func (s Source) String() string {
	switch s {
	case SourceUser:
		return "user"
	case SourceProject:
		return "project"
	default:
		return "unknown"
	}
}

// NewConfig creates an empty config.
func NewConfig() *Config {
	return &Config{
		Servers: make(map[string]ServerDef),
	}
}

// ToRegistry converts a definition into the registry's key and config.
// A bare server id (no "/") lands in the default toolset.
func (d ServerDef) ToRegistry() (registry.ServerKey, registry.ServerConfig, error) {
	keyStr := d.Key
	key, err := registry.ParseServerKey(keyStr)
	if err != nil {
		key, err = registry.NewServerKey(DefaultToolset, keyStr)
		if err != nil {
			return registry.ServerKey{}, registry.ServerConfig{}, err
		}
	}

	transport := d.Transport
	if transport == "" && d.URL != "" {
		transport = "streamable-http"
	}
	kind, err := registry.ParseTransportKind(transport)
	if err != nil {
		return registry.ServerKey{}, registry.ServerConfig{}, err
	}

	cfg := registry.ServerConfig{
		Kind:                 kind,
		Command:              d.Command,
		Args:                 d.Args,
		Cwd:                  d.Cwd,
		Env:                  d.Env,
		URL:                  d.URL,
		Headers:              d.Headers,
		RequiresConfirmation: d.RequiresConfirmation,
	}
	if err := cfg.Validate(); err != nil {
		return registry.ServerKey{}, registry.ServerConfig{}, fmt.Errorf("server %s: %w", keyStr, err)
	}
	return key, cfg, nil
}

// JSONServerDef is the JSON shape used by common MCP client configs
// (an entry of an "mcpServers" object).
type JSONServerDef struct {
	Type    string            `json:"type,omitempty"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// ParseJSONServer parses a single JSON server definition.
func ParseJSONServer(data string) (*ServerDef, error) {
	var def JSONServerDef
	if err := json.Unmarshal([]byte(data), &def); err != nil {
		return nil, err
	}

	transport := def.Type
	if transport == "" {
		if def.Command != "" {
			transport = "stdio"
		} else {
			transport = "streamable-http"
		}
	}
	return &ServerDef{
		Transport: transport,
		Command:   def.Command,
		Args:      def.Args,
		Env:       def.Env,
		URL:       def.URL,
		Headers:   def.Headers,
	}, nil
}
