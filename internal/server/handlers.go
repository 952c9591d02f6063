package server

import (
	"context"
	"fmt"

	"github.com/mcpgate/mcpgate/internal/registry"
)

// DefaultSearchLimit is the default page size for search_tools.
const DefaultSearchLimit = 20

// MaxSearchLimit caps the search_tools page size.
const MaxSearchLimit = 100

// SearchToolsInput is the input for the search_tools tool.
type SearchToolsInput struct {
	Query  string `json:"query,omitempty"`
	Server string `json:"server,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

// SearchToolsOutput is the output for the search_tools tool.
type SearchToolsOutput struct {
	Tools   []registry.ToolDescriptor `json:"tools"`
	Total   int                       `json:"total"`
	Limit   int                       `json:"limit"`
	Offset  int                       `json:"offset"`
	HasMore bool                      `json:"has_more"`
}

func (s *Server) handleSearchTools(ctx context.Context, input SearchToolsInput) (SearchToolsOutput, error) {
	tools, err := s.registry.SearchTools(ctx, input.Query, input.Server)
	if err != nil {
		return SearchToolsOutput{}, err
	}

	total := len(tools)

	limit := input.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	offset := input.Offset
	if offset < 0 {
		offset = 0
	}

	if offset >= len(tools) {
		tools = []registry.ToolDescriptor{}
	} else {
		tools = tools[offset:]
		if len(tools) > limit {
			tools = tools[:limit]
		}
	}

	return SearchToolsOutput{
		Tools:   tools,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+len(tools) < total,
	}, nil
}

// CallToolInput is the input for the call_tool tool.
type CallToolInput struct {
	Server    string         `json:"server"`
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// CallToolOutput is the output for the call_tool tool.
type CallToolOutput struct {
	Output string `json:"output"`
}

func (s *Server) handleCallTool(ctx context.Context, input CallToolInput) (CallToolOutput, error) {
	if input.Server == "" {
		return CallToolOutput{}, fmt.Errorf("server is required")
	}
	if input.Tool == "" {
		return CallToolOutput{}, fmt.Errorf("tool is required")
	}

	key, err := s.registry.Resolve(input.Server)
	if err != nil {
		return CallToolOutput{}, err
	}

	output, err := s.registry.CallTool(ctx, key, input.Tool, input.Arguments)
	if err != nil {
		return CallToolOutput{}, err
	}
	return CallToolOutput{Output: output}, nil
}

// ListServersInput is the input for the list_servers tool.
type ListServersInput struct {
	Toolset string `json:"toolset,omitempty"`
}

// ListServersOutput is the output for the list_servers tool.
type ListServersOutput struct {
	Servers []registry.ServerSummary `json:"servers"`
}

func (s *Server) handleListServers(ctx context.Context, input ListServersInput) (ListServersOutput, error) {
	all := s.registry.ListServers()
	if input.Toolset == "" {
		return ListServersOutput{Servers: all}, nil
	}

	filtered := make([]registry.ServerSummary, 0, len(all))
	for _, sv := range all {
		if sv.Toolset == input.Toolset {
			filtered = append(filtered, sv)
		}
	}
	return ListServersOutput{Servers: filtered}, nil
}

// ManageServersInput is the input for the manage_servers tool.
type ManageServersInput struct {
	Action  string `json:"action"`
	Server  string `json:"server,omitempty"`
	NewName string `json:"new_name,omitempty"`
}

// ManageServersOutput is the output for the manage_servers tool.
type ManageServersOutput struct {
	Status  string                   `json:"status"`
	Servers []registry.ServerSummary `json:"servers,omitempty"`
}

func (s *Server) handleManageServers(ctx context.Context, input ManageServersInput) (ManageServersOutput, error) {
	switch input.Action {
	case "list":
		return ManageServersOutput{
			Status:  "ok",
			Servers: s.registry.ListServers(),
		}, nil

	case "disconnect":
		key, err := s.registry.Resolve(input.Server)
		if err != nil {
			return ManageServersOutput{}, err
		}
		if err := s.registry.Disconnect(key); err != nil {
			return ManageServersOutput{}, err
		}
		return ManageServersOutput{Status: fmt.Sprintf("disconnected %s", key)}, nil

	case "reconnect":
		key, err := s.registry.Resolve(input.Server)
		if err != nil {
			return ManageServersOutput{}, err
		}
		if err := s.registry.Reconnect(key); err != nil {
			return ManageServersOutput{}, err
		}
		return ManageServersOutput{Status: fmt.Sprintf("reconnecting %s", key)}, nil

	case "remove":
		key, err := s.registry.Resolve(input.Server)
		if err != nil {
			return ManageServersOutput{}, err
		}
		if err := s.registry.RemoveServer(ctx, key); err != nil {
			return ManageServersOutput{}, err
		}
		return ManageServersOutput{Status: fmt.Sprintf("removed %s", key)}, nil

	case "rename":
		if input.NewName == "" {
			return ManageServersOutput{}, fmt.Errorf("new_name is required for rename")
		}
		key, err := s.registry.Resolve(input.Server)
		if err != nil {
			return ManageServersOutput{}, err
		}
		newKey, err := registry.ParseServerKey(input.NewName)
		if err != nil {
			newKey, err = registry.NewServerKey(key.Toolset, input.NewName)
			if err != nil {
				return ManageServersOutput{}, err
			}
		}
		if err := s.registry.Rename(ctx, key, newKey.Toolset, newKey.Server); err != nil {
			return ManageServersOutput{}, err
		}
		return ManageServersOutput{Status: fmt.Sprintf("renamed %s to %s", key, newKey)}, nil

	default:
		return ManageServersOutput{}, fmt.Errorf("unknown action %q (want list, disconnect, reconnect, remove, or rename)", input.Action)
	}
}
