// Package server exposes the gateway over MCP: a client connects to
// mcpgate and sees a small set of meta-tools for discovering and
// invoking the tools of every registered downstream server.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/mcpgate/mcpgate/internal/logging"
	"github.com/mcpgate/mcpgate/internal/registry"
)

const (
	serverName    = "mcpgate"
	serverVersion = "0.1.0"
)

// Server is the MCP-facing gateway surface.
type Server struct {
	mcpServer *mcp.Server
	registry  *registry.Registry
	logger    logging.Logger
}

// New creates a gateway server over an already-initialized registry.
func New(reg *registry.Registry, log logging.Logger) *Server {
	if log == nil {
		log = logging.Default()
	}
	s := &Server{
		registry: reg,
		logger:   log,
	}

	s.mcpServer = mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		},
		&mcp.ServerOptions{
			Capabilities: &mcp.ServerCapabilities{
				Tools: &mcp.ToolCapabilities{},
			},
		},
	)

	s.registerTools()
	return s
}

// Registry returns the underlying registry.
func (s *Server) Registry() *registry.Registry {
	return s.registry
}

// RunStdio runs the gateway on stdio until ctx is cancelled or the
// client disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	transport := &mcp.StdioTransport{}
	return s.mcpServer.Run(ctx, transport)
}

// RunHTTP runs the gateway over SSE on the given port.
func (s *Server) RunHTTP(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)

	sseHandler := mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("/", sseHandler)

	s.logger.Info("mcpgate gateway running", "addr", addr)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()
	return srv.ListenAndServe()
}

// CallTool invokes a gateway tool directly (for testing purposes).
func (s *Server) CallTool(ctx context.Context, toolName string, args map[string]any) (any, error) {
	switch toolName {
	case "search_tools":
		input := SearchToolsInput{
			Query:  getStringArg(args, "query"),
			Server: getStringArg(args, "server"),
			Limit:  getIntArg(args, "limit"),
			Offset: getIntArg(args, "offset"),
		}
		out, err := s.handleSearchTools(ctx, input)
		return out, err

	case "call_tool":
		input := CallToolInput{
			Server:    getStringArg(args, "server"),
			Tool:      getStringArg(args, "tool"),
			Arguments: getMapArg(args, "arguments"),
		}
		out, err := s.handleCallTool(ctx, input)
		return out, err

	case "list_servers":
		out, err := s.handleListServers(ctx, ListServersInput{
			Toolset: getStringArg(args, "toolset"),
		})
		return out, err

	case "manage_servers":
		input := ManageServersInput{
			Action:  getStringArg(args, "action"),
			Server:  getStringArg(args, "server"),
			NewName: getStringArg(args, "new_name"),
		}
		out, err := s.handleManageServers(ctx, input)
		return out, err

	default:
		return nil, fmt.Errorf("unknown tool: %s", toolName)
	}
}

func getStringArg(args map[string]any, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getIntArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func getMapArg(args map[string]any, key string) map[string]any {
	if v, ok := args[key]; ok {
		if m, ok := v.(map[string]any); ok {
			return m
		}
	}
	return nil
}
