package registry

import (
	"fmt"
	"strings"
)

// ConfigurationError indicates a bad or duplicate server definition.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("invalid server configuration for %s: %s", e.Key, e.Reason)
	}
	return "invalid server configuration: " + e.Reason
}

// ConnectionError indicates a transport-level connect or handshake
// failure. Diagnostic carries the captured stderr tail for stdio
// servers, or the underlying error text otherwise.
type ConnectionError struct {
	Key        ServerKey
	Diagnostic string
	Err        error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to server %s: %s", e.Key, e.Diagnostic)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// AuthRequiredError indicates a streamable-HTTP server answered the
// auth probe with an OAuth challenge and no cached credential exists.
type AuthRequiredError struct {
	Key                 ServerKey
	ResourceMetadataURL string
}

func (e *AuthRequiredError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "server %s requires authorization before connecting\n\n", e.Key)
	sb.WriteString("Fix:\n")
	sb.WriteString("1. Complete the OAuth flow for this server\n")
	sb.WriteString("2. Reconnect it once a credential is stored\n")
	if e.ResourceMetadataURL != "" {
		fmt.Fprintf(&sb, "\nResource metadata: %s", e.ResourceMetadataURL)
	}
	return sb.String()
}

// ToolNotConnectedError indicates a tool invocation against a server
// that is not in the connected status.
type ToolNotConnectedError struct {
	Key    ServerKey
	Status Status
}

func (e *ToolNotConnectedError) Error() string {
	return fmt.Sprintf("server %s is not connected (status: %s)", e.Key, e.Status)
}

// ToolInvocationError indicates the remote tool ran and reported a
// failure.
type ToolInvocationError struct {
	Key     ServerKey
	Tool    string
	Message string
}

func (e *ToolInvocationError) Error() string {
	return fmt.Sprintf("tool %s on server %s failed: %s", e.Tool, e.Key, e.Message)
}

// AmbiguousServerReferenceError indicates a bare server id matched more
// than one registered key.
type AmbiguousServerReferenceError struct {
	Identifier string
	Matches    []string
}

func (e *AmbiguousServerReferenceError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "server reference %q is ambiguous\n\n", e.Identifier)
	sb.WriteString("Matching servers:\n")
	for _, m := range e.Matches {
		fmt.Fprintf(&sb, "  - %s\n", m)
	}
	sb.WriteString("\nUse the full toolset/server key to disambiguate")
	return sb.String()
}
