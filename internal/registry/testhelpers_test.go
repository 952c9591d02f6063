package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/mcpgate/mcpgate/internal/logging"
)

// shortOptions shrinks every timing so lifecycle paths run in
// milliseconds.
func shortOptions() Options {
	return Options{
		StdioConnectTimeout: 200 * time.Millisecond,
		SSEConnectTimeout:   200 * time.Millisecond,
		HTTPConnectTimeout:  200 * time.Millisecond,
		PingInterval:        20 * time.Millisecond,
		PingTimeout:         100 * time.Millisecond,
		RetrySchedule: []time.Duration{
			10 * time.Millisecond,
			20 * time.Millisecond,
		},
		ClientName:    "mcpgate-test",
		ClientVersion: "0.0.0",
	}
}

func mustKey(t *testing.T, toolset, server string) ServerKey {
	t.Helper()
	key, err := NewServerKey(toolset, server)
	require.NoError(t, err)
	return key
}

func stdioConfig() ServerConfig {
	return ServerConfig{Kind: KindStdio, Command: "mock-server"}
}

// fakeStore is an in-memory ConfigStore.
type fakeStore struct {
	mu      sync.Mutex
	servers map[ServerKey]ServerConfig
	saveErr error
	renames [][2]ServerKey
	deleted []ServerKey
}

func newFakeStore(entries ...StoredServer) *fakeStore {
	s := &fakeStore{servers: make(map[ServerKey]ServerConfig)}
	for _, e := range entries {
		s.servers[e.Key] = e.Config
	}
	return s
}

func (s *fakeStore) ListEnabled(ctx context.Context, toolsetID string) ([]StoredServer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StoredServer, 0, len(s.servers))
	for key, cfg := range s.servers {
		if toolsetID != "" && key.Toolset != toolsetID {
			continue
		}
		out = append(out, StoredServer{Key: key, Config: cfg})
	}
	return out, nil
}

func (s *fakeStore) Save(ctx context.Context, key ServerKey, cfg ServerConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.servers[key] = cfg
	return nil
}

func (s *fakeStore) Delete(ctx context.Context, key ServerKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.servers, key)
	s.deleted = append(s.deleted, key)
	return nil
}

func (s *fakeStore) Rename(ctx context.Context, oldKey, newKey ServerKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.servers[oldKey]
	if !ok {
		return fmt.Errorf("no such record: %s", oldKey)
	}
	delete(s.servers, oldKey)
	s.servers[newKey] = cfg
	s.renames = append(s.renames, [2]ServerKey{oldKey, newKey})
	return nil
}

// fakeOverrides is an in-memory OverrideStore keyed by toolset id.
type fakeOverrides struct {
	mu        sync.Mutex
	overrides map[string]map[string]Override
	err       error
}

func newFakeOverrides() *fakeOverrides {
	return &fakeOverrides{overrides: make(map[string]map[string]Override)}
}

func (f *fakeOverrides) set(toolsetID, overrideKey string, ov Override) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.overrides[toolsetID] == nil {
		f.overrides[toolsetID] = make(map[string]Override)
	}
	f.overrides[toolsetID][overrideKey] = ov
}

func (f *fakeOverrides) Overrides(ctx context.Context, toolsetID string) (map[string]Override, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]Override, len(f.overrides[toolsetID]))
	for k, v := range f.overrides[toolsetID] {
		out[k] = v
	}
	return out, nil
}

// fakeAuth is a scripted AuthProvider.
type fakeAuth struct {
	mu       sync.Mutex
	valid    bool
	probe    AuthProbeResult
	probeErr error
	probes   int
}

func (a *fakeAuth) setValid(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.valid = v
}

func (a *fakeAuth) HasValidCredential(ctx context.Context, serverID, toolsetID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.valid
}

func (a *fakeAuth) Decorator(serverID, toolsetID string, base http.RoundTripper) http.RoundTripper {
	return base
}

func (a *fakeAuth) Probe(ctx context.Context, url string) (AuthProbeResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.probes++
	return a.probe, a.probeErr
}

// statusRecorder collects every status event for later assertions.
type statusRecorder struct {
	mu     sync.Mutex
	events []StatusEvent
}

func (rec *statusRecorder) OnServerStatusChanged(ev StatusEvent) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.events = append(rec.events, ev)
}

func (rec *statusRecorder) statuses(key ServerKey) []Status {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	var out []Status
	for _, ev := range rec.events {
		if ev.Key == key {
			out = append(out, ev.Status)
		}
	}
	return out
}

func (rec *statusRecorder) count(key ServerKey) int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	n := 0
	for _, ev := range rec.events {
		if ev.Key == key {
			n++
		}
	}
	return n
}

// waitForStatus polls until the server reaches the wanted status.
func waitForStatus(t *testing.T, r *Registry, key ServerKey, want Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := r.Status(key)
		if err == nil && got == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	got, err := r.Status(key)
	t.Fatalf("server %s never reached %s (last status %q, err %v)", key, want, got, err)
}

// newToolServer builds an in-memory tool server with echo, add,
// always_fails, and screenshot tools.
func newToolServer() *mcp.Server {
	srv := mcp.NewServer(
		&mcp.Implementation{Name: "mock-tools", Version: "1.0.0"},
		&mcp.ServerOptions{
			Capabilities: &mcp.ServerCapabilities{
				Tools: &mcp.ToolCapabilities{},
			},
		},
	)

	objSchema := json.RawMessage(`{"type":"object","additionalProperties":true}`)

	srv.AddTool(
		&mcp.Tool{Name: "echo", Description: "Echoes back the input message", InputSchema: objSchema},
		func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, err
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					&mcp.TextContent{Text: "Echo: " + args.Message},
				},
			}, nil
		},
	)

	srv.AddTool(
		&mcp.Tool{Name: "add", Description: "Adds two numbers", InputSchema: objSchema},
		func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			var args struct {
				A float64 `json:"a"`
				B float64 `json:"b"`
			}
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return nil, err
			}
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					&mcp.TextContent{Text: fmt.Sprintf("%v", args.A+args.B)},
				},
			}, nil
		},
	)

	srv.AddTool(
		&mcp.Tool{Name: "always_fails", Description: "Returns a tool-level error", InputSchema: objSchema},
		func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				IsError: true,
				Content: []mcp.Content{
					&mcp.TextContent{Text: "deliberate failure"},
				},
			}, nil
		},
	)

	srv.AddTool(
		&mcp.Tool{Name: "screenshot", Description: "Returns binary image data", InputSchema: objSchema},
		func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					&mcp.TextContent{Text: "captured"},
					&mcp.ImageContent{Data: make([]byte, 64), MIMEType: "image/png"},
				},
			}, nil
		},
	)

	return srv
}

// scriptedDialer is an injectable Dialer: it can fail the first N dials,
// capture server-side sessions so tests can sever connections, and
// report how many dials happened.
type scriptedDialer struct {
	mu       sync.Mutex
	failures int
	dialErr  error
	ring     *StderrRing
	factory  func() *mcp.Server
	dials    int
	sessions []*mcp.ServerSession
}

func newScriptedDialer() *scriptedDialer {
	return &scriptedDialer{factory: newToolServer}
}

func (d *scriptedDialer) dial(ctx context.Context, key ServerKey, cfg ServerConfig) (*mcp.ClientSession, *StderrRing, error) {
	d.mu.Lock()
	d.dials++
	fail := d.failures != 0
	if d.failures > 0 {
		d.failures--
	}
	dialErr := d.dialErr
	ring := d.ring
	factory := d.factory
	d.mu.Unlock()

	if fail {
		if dialErr == nil {
			dialErr = fmt.Errorf("dial refused")
		}
		return nil, ring, dialErr
	}

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	srvSession, err := factory().Connect(ctx, serverTransport, nil)
	if err != nil {
		return nil, nil, err
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "mcpgate-test", Version: "0.0.0"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		srvSession.Close()
		return nil, nil, err
	}

	d.mu.Lock()
	d.sessions = append(d.sessions, srvSession)
	d.mu.Unlock()
	return session, ring, nil
}

func (d *scriptedDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *scriptedDialer) setFailures(n int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures = n
	d.dialErr = err
}

// severLatest closes the newest server-side session, simulating the
// remote end dropping the connection.
func (d *scriptedDialer) severLatest(t *testing.T) {
	t.Helper()
	d.mu.Lock()
	require.NotEmpty(t, d.sessions)
	session := d.sessions[len(d.sessions)-1]
	d.mu.Unlock()
	session.Close()
}

// newTestRegistry wires a registry around the scripted dialer with short
// timings and a quiet logger.
func newTestRegistry(t *testing.T, store *fakeStore, dialer *scriptedDialer) (*Registry, *statusRecorder) {
	t.Helper()
	rec := &statusRecorder{}
	r := New(Params{
		Store:   store,
		Dialer:  dialer.dial,
		Logger:  logging.Nop(),
		Options: shortOptions(),
	})
	r.Subscribe(rec)
	t.Cleanup(r.Shutdown)
	return r, rec
}
