//go:build integration

package server_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpgate/mcpgate/internal/logging"
	"github.com/mcpgate/mcpgate/internal/registry"
	"github.com/mcpgate/mcpgate/internal/server"
)

// mockServerPath returns the path to the prebuilt mock tool server.
// Build it first: go build -o testdata/mock-mcp/mock-mcp ./testdata/mock-mcp
func mockServerPath(t *testing.T) string {
	t.Helper()
	_, filename, _, ok := runtime.Caller(0)
	require.True(t, ok, "could not get caller info")
	return filepath.Join(filepath.Dir(filename), "testdata", "mock-mcp", "mock-mcp")
}

// staticStore serves a fixed server list and discards writes.
type staticStore struct {
	entries []registry.StoredServer
}

func (s *staticStore) ListEnabled(ctx context.Context, toolsetID string) ([]registry.StoredServer, error) {
	return s.entries, nil
}

func (s *staticStore) Save(ctx context.Context, key registry.ServerKey, cfg registry.ServerConfig) error {
	return nil
}

func (s *staticStore) Delete(ctx context.Context, key registry.ServerKey) error { return nil }

func (s *staticStore) Rename(ctx context.Context, oldKey, newKey registry.ServerKey) error {
	return nil
}

func setupGateway(t *testing.T) *server.Server {
	t.Helper()

	key, err := registry.NewServerKey("tools", "mock")
	require.NoError(t, err)

	reg := registry.New(registry.Params{
		Store: &staticStore{entries: []registry.StoredServer{{
			Key:    key,
			Config: registry.ServerConfig{Kind: registry.KindStdio, Command: mockServerPath(t)},
		}}},
		Logger: logging.Nop(),
	})
	t.Cleanup(reg.Shutdown)
	require.NoError(t, reg.Initialize(context.Background()))

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		status, err := reg.Status(key)
		require.NoError(t, err)
		if status == registry.StatusConnected {
			return server.New(reg, logging.Nop())
		}
		if status == registry.StatusError {
			summaries := reg.ListServers()
			t.Fatalf("mock server failed to connect: %+v", summaries)
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("mock server never connected")
	return nil
}

func TestGateway_SearchTools(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	s := setupGateway(t)

	result, err := s.CallTool(context.Background(), "search_tools", map[string]any{
		"query": "echo",
	})
	require.NoError(t, err)

	data, err := json.Marshal(result)
	require.NoError(t, err)

	var out struct {
		Tools []struct {
			ID      string `json:"id"`
			RawName string `json:"raw_name"`
		} `json:"tools"`
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	require.Greater(t, out.Total, 0)

	found := false
	for _, tool := range out.Tools {
		if tool.RawName == "echo" && tool.ID == "tools/mock:echo" {
			found = true
		}
	}
	assert.True(t, found, "echo tool should be listed under tools/mock")
}

func TestGateway_CallTool_Echo(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	s := setupGateway(t)

	result, err := s.CallTool(context.Background(), "call_tool", map[string]any{
		"server": "mock",
		"tool":   "echo",
		"arguments": map[string]any{
			"message": "over real stdio",
		},
	})
	require.NoError(t, err)

	out, ok := result.(server.CallToolOutput)
	require.True(t, ok)
	assert.Contains(t, out.Output, "over real stdio")
}

func TestGateway_CallTool_Add(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	s := setupGateway(t)

	result, err := s.CallTool(context.Background(), "call_tool", map[string]any{
		"server": "mock",
		"tool":   "add",
		"arguments": map[string]any{
			"a": 10,
			"b": 25,
		},
	})
	require.NoError(t, err)

	out, ok := result.(server.CallToolOutput)
	require.True(t, ok)
	assert.Contains(t, out.Output, "35")
}

func TestGateway_CallTool_ToolError(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	s := setupGateway(t)

	_, err := s.CallTool(context.Background(), "call_tool", map[string]any{
		"server":    "mock",
		"tool":      "always_fails",
		"arguments": map[string]any{},
	})
	require.Error(t, err)

	var toolErr *registry.ToolInvocationError
	require.ErrorAs(t, err, &toolErr)
	assert.Contains(t, toolErr.Error(), "deliberate failure")
}

func TestGateway_ListServers(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	s := setupGateway(t)

	result, err := s.CallTool(context.Background(), "list_servers", map[string]any{})
	require.NoError(t, err)

	out, ok := result.(server.ListServersOutput)
	require.True(t, ok)
	require.Len(t, out.Servers, 1)
	assert.Equal(t, "tools/mock", out.Servers[0].Key)
	assert.Equal(t, registry.StatusConnected, out.Servers[0].Status)
	assert.Equal(t, 3, out.Servers[0].ToolCount)
}

func TestGateway_ManageServers_DisconnectReconnect(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	s := setupGateway(t)
	ctx := context.Background()

	_, err := s.CallTool(ctx, "manage_servers", map[string]any{
		"action": "disconnect",
		"server": "mock",
	})
	require.NoError(t, err)

	// A disconnected server rejects calls with its current status.
	_, err = s.CallTool(ctx, "call_tool", map[string]any{
		"server":    "mock",
		"tool":      "echo",
		"arguments": map[string]any{"message": "x"},
	})
	var notConnected *registry.ToolNotConnectedError
	require.ErrorAs(t, err, &notConnected)

	_, err = s.CallTool(ctx, "manage_servers", map[string]any{
		"action": "reconnect",
		"server": "mock",
	})
	require.NoError(t, err)

	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		result, err := s.CallTool(ctx, "call_tool", map[string]any{
			"server":    "mock",
			"tool":      "echo",
			"arguments": map[string]any{"message": "back"},
		})
		if err == nil {
			out := result.(server.CallToolOutput)
			assert.Contains(t, out.Output, "back")
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("mock server never came back after reconnect")
}
