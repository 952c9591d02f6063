package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// CallTool invokes a tool on a connected server and normalizes the
// multi-part result into a single string: text parts joined by
// newlines, binary parts replaced with a byte-length placeholder,
// anything else stringified.
//
// Fails with ToolNotConnectedError unless the server is connected. If
// the underlying error indicates a dropped session, the server is also
// transitioned to error so subsequent calls fail fast.
func (r *Registry) CallTool(ctx context.Context, key ServerKey, toolName string, args map[string]any) (string, error) {
	st, err := r.lookup(key)
	if err != nil {
		return "", err
	}

	st.mu.Lock()
	status := st.status
	session := st.session
	st.mu.Unlock()

	if status != StatusConnected || session == nil {
		return "", &ToolNotConnectedError{Key: key, Status: status}
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		if looksLikeConnectionLost(err.Error()) {
			r.failConnected(st, "connection lost during tool call: "+err.Error())
		}
		return "", &ToolInvocationError{Key: key, Tool: toolName, Message: err.Error()}
	}

	text := normalizeResult(result)
	if result.IsError {
		msg := text
		if msg == "" {
			msg = "tool returned an error"
		}
		return "", &ToolInvocationError{Key: key, Tool: toolName, Message: msg}
	}
	return text, nil
}

// normalizeResult flattens a tool result's content parts into one
// string.
func normalizeResult(result *mcp.CallToolResult) string {
	parts := make([]string, 0, len(result.Content))
	for _, content := range result.Content {
		switch c := content.(type) {
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[Binary data: %d bytes]", len(c.Data)))
		case *mcp.AudioContent:
			parts = append(parts, fmt.Sprintf("[Binary data: %d bytes]", len(c.Data)))
		default:
			parts = append(parts, fmt.Sprintf("%v", content))
		}
	}
	return strings.Join(parts, "\n")
}

// ToolAdapter is a ready-to-register callable for one tool on one
// server, carrying the override-merged descriptor.
type ToolAdapter struct {
	Descriptor ToolDescriptor

	registry *Registry
	key      ServerKey
}

// Call invokes the adapted tool.
func (a *ToolAdapter) Call(ctx context.Context, args map[string]any) (string, error) {
	return a.registry.CallTool(ctx, a.key, a.Descriptor.RawName, args)
}

// CreateAdapter builds an adapter for one tool. Returns nil when the
// server is not connected or the tool is disabled by override, so a
// caller never receives an adapter that could only fail at call time.
func (r *Registry) CreateAdapter(ctx context.Context, key ServerKey, toolName string) *ToolAdapter {
	desc, ok := r.toolDescriptor(ctx, key, toolName)
	if !ok {
		return nil
	}
	return &ToolAdapter{
		Descriptor: desc,
		registry:   r,
		key:        key,
	}
}
