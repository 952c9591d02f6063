package registry

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Status is the connection status of a tool server.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
	StatusRequiresAuth Status = "requires_auth"
)

// Valid reports whether s is one of the five defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusDisconnected, StatusConnecting, StatusConnected, StatusError, StatusRequiresAuth:
		return true
	}
	return false
}

// TransportKind selects how a tool server is reached.
type TransportKind string

const (
	KindStdio          TransportKind = "stdio"
	KindSSE            TransportKind = "sse"
	KindStreamableHTTP TransportKind = "streamable-http"
)

// ParseTransportKind parses a transport kind string, accepting the
// aliases used by older config formats.
func ParseTransportKind(s string) (TransportKind, error) {
	switch s {
	case "stdio", "command", "":
		return KindStdio, nil
	case "sse":
		return KindSSE, nil
	case "streamable-http", "streamable", "http":
		return KindStreamableHTTP, nil
	}
	return "", &ConfigurationError{Reason: fmt.Sprintf("unknown transport kind: %q", s)}
}

// ServerConfig describes how to reach one tool server.
type ServerConfig struct {
	Kind TransportKind `json:"kind"`

	// stdio
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`

	// sse / streamable-http
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	// Default confirmation flag applied to every tool the server
	// exposes, unless a per-tool override says otherwise.
	RequiresConfirmation bool `json:"requires_confirmation,omitempty"`
}

// Validate checks that the config is usable for its transport kind.
func (c ServerConfig) Validate() error {
	switch c.Kind {
	case KindStdio:
		if c.Command == "" {
			return &ConfigurationError{Reason: "stdio server config requires a command"}
		}
	case KindSSE, KindStreamableHTTP:
		if c.URL == "" {
			return &ConfigurationError{Reason: fmt.Sprintf("%s server config requires a url", c.Kind)}
		}
	default:
		return &ConfigurationError{Reason: fmt.Sprintf("unknown transport kind: %q", c.Kind)}
	}
	return nil
}

// ToolDescriptor is the externally visible form of one tool, derived
// from the server's raw tool list plus override records on every
// catalog read. Never persisted.
type ToolDescriptor struct {
	ID                   string `json:"id"`
	RawName              string `json:"raw_name"`
	DisplayName          string `json:"display_name"`
	Description          string `json:"description"`
	InputSchema          any    `json:"input_schema,omitempty"`
	Renderer             string `json:"renderer,omitempty"`
	RequiresConfirmation bool   `json:"requires_confirmation"`
}

// Override is a per-tool override record, keyed by "serverId:toolName"
// within a toolset. Pointer fields distinguish "not overridden" from an
// explicit value.
type Override struct {
	DisplayName          string `json:"display_name,omitempty"`
	Description          string `json:"description,omitempty"`
	Renderer             string `json:"renderer,omitempty"`
	RequiresConfirmation *bool  `json:"requires_confirmation,omitempty"`
	Disabled             bool   `json:"disabled,omitempty"`
}

// OverrideKey builds the override-table key for a tool on a server.
func OverrideKey(serverID, toolName string) string {
	return serverID + ":" + toolName
}

// ServerSummary is the read-only view of one registered server returned
// by ListServers. Env values are sanitized.
type ServerSummary struct {
	Key                  string            `json:"key"`
	Toolset              string            `json:"toolset"`
	Server               string            `json:"server"`
	Kind                 TransportKind     `json:"kind"`
	Status               Status            `json:"status"`
	Error                string            `json:"error,omitempty"`
	ToolCount            int               `json:"tool_count"`
	Command              string            `json:"command,omitempty"`
	URL                  string            `json:"url,omitempty"`
	Env                  map[string]string `json:"env,omitempty"`
	RequiresConfirmation bool              `json:"requires_confirmation"`
}

// StoredServer is one durable server record as returned by a ConfigStore.
type StoredServer struct {
	Key    ServerKey
	Config ServerConfig
}

// ConfigStore is the durable store of server definitions.
type ConfigStore interface {
	// ListEnabled returns the enabled server records, optionally
	// filtered to one toolset (empty toolsetID means all).
	ListEnabled(ctx context.Context, toolsetID string) ([]StoredServer, error)
	Save(ctx context.Context, key ServerKey, cfg ServerConfig) error
	Delete(ctx context.Context, key ServerKey) error
	Rename(ctx context.Context, oldKey, newKey ServerKey) error
}

// OverrideStore supplies per-tool override records for a toolset,
// keyed by OverrideKey(serverID, toolName).
type OverrideStore interface {
	Overrides(ctx context.Context, toolsetID string) (map[string]Override, error)
}

// AuthProbeResult is the outcome of probing an HTTP endpoint for an
// OAuth challenge.
type AuthProbeResult struct {
	RequiresAuth        bool
	ResourceMetadataURL string
}

// AuthProvider is the OAuth collaborator consumed by the streamable-HTTP
// connector. Token acquisition itself happens elsewhere; the registry
// only looks credentials up and injects them.
type AuthProvider interface {
	HasValidCredential(ctx context.Context, serverID, toolsetID string) bool
	Decorator(serverID, toolsetID string, base http.RoundTripper) http.RoundTripper
	Probe(ctx context.Context, url string) (AuthProbeResult, error)
}

// serverState is the in-memory record of one registered server. Owned
// exclusively by the Registry; all field access goes through st.mu.
type serverState struct {
	mu sync.Mutex

	key    ServerKey
	config ServerConfig

	status Status
	errMsg string

	rawTools []*mcp.Tool
	session  *mcp.ClientSession
	stderr   *StderrRing

	retryCount int

	// Lifecycle task: one connect attempt plus the supervision loop
	// that follows it. Reconnect task: the pending retry schedule.
	// teardown cancels both and awaits the done channels.
	lifecycleCtx    context.Context
	lifecycleCancel context.CancelFunc
	lifecycleDone   chan struct{}
	reconnectCancel context.CancelFunc
	reconnectDone   chan struct{}
}

func newServerState(key ServerKey, cfg ServerConfig) *serverState {
	return &serverState{
		key:    key,
		config: cfg,
		status: StatusDisconnected,
	}
}

func (st *serverState) snapshotStatus() Status {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.status
}

func (st *serverState) snapshotSession() *mcp.ClientSession {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session
}

func (st *serverState) summary() ServerSummary {
	st.mu.Lock()
	defer st.mu.Unlock()

	var env map[string]string
	if len(st.config.Env) > 0 {
		env = make(map[string]string, len(st.config.Env))
		for k := range st.config.Env {
			env[k] = "***"
		}
	}

	return ServerSummary{
		Key:                  st.key.String(),
		Toolset:              st.key.Toolset,
		Server:               st.key.Server,
		Kind:                 st.config.Kind,
		Status:               st.status,
		Error:                st.errMsg,
		ToolCount:            len(st.rawTools),
		Command:              st.config.Command,
		URL:                  st.config.URL,
		Env:                  env,
		RequiresConfirmation: st.config.RequiresConfirmation,
	}
}
