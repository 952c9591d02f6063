package registry

import (
	"fmt"
	"strings"
)

// KeyDelimiter separates the toolset and server components of a rendered
// ServerKey. ToolIDDelimiter separates a rendered key from the raw tool
// name in a tool id.
const (
	KeyDelimiter    = "/"
	ToolIDDelimiter = ":"
)

// ServerKey identifies one tool server within its owning toolset.
// Rendered as "toolset/server"; neither component may contain the
// delimiter. The rendered form is the registry's map key and the prefix
// of every tool id the server exposes.
type ServerKey struct {
	Toolset string
	Server  string
}

// NewServerKey validates and constructs a ServerKey.
func NewServerKey(toolset, server string) (ServerKey, error) {
	if toolset == "" || server == "" {
		return ServerKey{}, &ConfigurationError{
			Reason: fmt.Sprintf("server key requires both toolset and server id, got toolset=%q server=%q", toolset, server),
		}
	}
	if strings.Contains(toolset, KeyDelimiter) || strings.Contains(server, KeyDelimiter) {
		return ServerKey{}, &ConfigurationError{
			Reason: fmt.Sprintf("server key components must not contain %q: toolset=%q server=%q", KeyDelimiter, toolset, server),
		}
	}
	return ServerKey{Toolset: toolset, Server: server}, nil
}

// ParseServerKey parses a rendered "toolset/server" key.
func ParseServerKey(s string) (ServerKey, error) {
	parts := strings.SplitN(s, KeyDelimiter, 2)
	if len(parts) != 2 {
		return ServerKey{}, &ConfigurationError{
			Reason: fmt.Sprintf("malformed server key %q, want toolset%sserver", s, KeyDelimiter),
		}
	}
	return NewServerKey(parts[0], parts[1])
}

// String renders the key as "toolset/server".
func (k ServerKey) String() string {
	return k.Toolset + KeyDelimiter + k.Server
}

// IsZero reports whether the key is unset.
func (k ServerKey) IsZero() bool {
	return k.Toolset == "" && k.Server == ""
}

// ToolID builds the globally unique id for a raw tool name on this
// server: "toolset/server:toolName". Unique across toolsets even when
// two servers expose identically named tools.
func (k ServerKey) ToolID(rawToolName string) string {
	return k.String() + ToolIDDelimiter + rawToolName
}
