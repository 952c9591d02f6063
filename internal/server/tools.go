package server

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// registerTools registers the gateway's meta-tools with manually crafted
// schemas. The Go SDK's auto-generated schemas use patterns like
// "type": ["null", "object"] that some strict client validators reject.
func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		&mcp.Tool{
			Name:         "search_tools",
			Description:  "Search the tools of all connected servers by name and description. Results are paginated (default: 20, max: 100). Use offset for subsequent pages.",
			InputSchema:  searchToolsInputSchema,
			OutputSchema: searchToolsOutputSchema,
		},
		s.wrapSearchTools,
	)

	s.mcpServer.AddTool(
		&mcp.Tool{
			Name:         "call_tool",
			Description:  "Invoke a tool on a connected server. The server may be a full toolset/server key or a bare server id when unambiguous.",
			InputSchema:  callToolInputSchema,
			OutputSchema: callToolOutputSchema,
		},
		s.wrapCallTool,
	)

	s.mcpServer.AddTool(
		&mcp.Tool{
			Name:         "list_servers",
			Description:  "List registered servers with their connection status and tool counts, optionally filtered to one toolset.",
			InputSchema:  listServersInputSchema,
			OutputSchema: listServersOutputSchema,
		},
		s.wrapListServers,
	)

	s.mcpServer.AddTool(
		&mcp.Tool{
			Name:         "manage_servers",
			Description:  "Manage server connections: list, disconnect, reconnect, remove, or rename a registered server.",
			InputSchema:  manageServersInputSchema,
			OutputSchema: manageServersOutputSchema,
		},
		s.wrapManageServers,
	)
}

// Wrapper handlers that parse JSON manually and call the typed handlers.

func (s *Server) wrapSearchTools(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input SearchToolsInput
	if err := json.Unmarshal(req.Params.Arguments, &input); err != nil {
		return nil, err
	}

	output, err := s.handleSearchTools(ctx, input)
	if err != nil {
		return errorResult(err), nil
	}
	return toCallToolResult(output)
}

func (s *Server) wrapCallTool(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input CallToolInput
	if err := json.Unmarshal(req.Params.Arguments, &input); err != nil {
		return nil, err
	}

	output, err := s.handleCallTool(ctx, input)
	if err != nil {
		return errorResult(err), nil
	}
	return toCallToolResult(output)
}

func (s *Server) wrapListServers(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ListServersInput
	if err := json.Unmarshal(req.Params.Arguments, &input); err != nil {
		return nil, err
	}

	output, err := s.handleListServers(ctx, input)
	if err != nil {
		return errorResult(err), nil
	}
	return toCallToolResult(output)
}

func (s *Server) wrapManageServers(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input ManageServersInput
	if err := json.Unmarshal(req.Params.Arguments, &input); err != nil {
		return nil, err
	}

	output, err := s.handleManageServers(ctx, input)
	if err != nil {
		return errorResult(err), nil
	}
	return toCallToolResult(output)
}

// errorResult creates an error CallToolResult.
func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}

// toCallToolResult converts any output to a CallToolResult with JSON text content.
func toCallToolResult(output any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(output)
	if err != nil {
		return errorResult(err), nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil
}
