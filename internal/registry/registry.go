// Package registry manages the lifecycle of externally hosted tool
// servers: it connects to them over stdio, SSE, or streamable HTTP,
// supervises the live sessions, schedules reconnects, and brokers tool
// listing and invocation for the rest of the application.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mcpgate/mcpgate/internal/logging"
)

// Options tunes timeouts and retry behavior. The defaults match
// production use; tests shrink them so lifecycle paths run in
// milliseconds.
type Options struct {
	// Soft connect timeouts per transport. Exceeding one logs a
	// warning but does not cancel the attempt; the in-flight connect
	// still resolves the state machine when it completes or fails.
	StdioConnectTimeout time.Duration
	SSEConnectTimeout   time.Duration
	HTTPConnectTimeout  time.Duration

	// Liveness probing of connected sessions.
	PingInterval time.Duration
	PingTimeout  time.Duration

	// Escalating delays between automatic reconnect attempts after a
	// connected server fails. When exhausted the server stays in
	// error until a manual reconnect.
	RetrySchedule []time.Duration

	// Client identity reported during the protocol handshake.
	ClientName    string
	ClientVersion string
}

// DefaultOptions returns the production option set.
func DefaultOptions() Options {
	return Options{
		StdioConnectTimeout: 5 * time.Second,
		SSEConnectTimeout:   5 * time.Second,
		HTTPConnectTimeout:  10 * time.Second,
		PingInterval:        10 * time.Second,
		PingTimeout:         5 * time.Second,
		RetrySchedule: []time.Duration{
			1 * time.Second,
			3 * time.Second,
			10 * time.Second,
			15 * time.Second,
			60 * time.Second,
		},
		ClientName:    "mcpgate",
		ClientVersion: "0.1.0",
	}
}

func (o Options) connectTimeout(kind TransportKind) time.Duration {
	switch kind {
	case KindSSE:
		return o.SSEConnectTimeout
	case KindStreamableHTTP:
		return o.HTTPConnectTimeout
	default:
		return o.StdioConnectTimeout
	}
}

// Params collects the collaborators a Registry needs.
type Params struct {
	Store     ConfigStore
	Overrides OverrideStore
	Auth      AuthProvider
	Dialer    Dialer // nil selects the real transport dialer
	Logger    logging.Logger
	Options   Options
}

// Registry is the top-level orchestrator. It owns the map of server key
// to state plus running tasks, and is the only component that mutates
// server state.
//
// Operations on different keys are safe to call concurrently. Callers
// must serialize mutations against the same key.
type Registry struct {
	mu          sync.RWMutex
	servers     map[ServerKey]*serverState
	initialized bool

	store     ConfigStore
	overrides OverrideStore
	auth      AuthProvider
	dialer    Dialer
	notifier  *notifier
	log       logging.Logger
	opts      Options

	// Parent of every lifecycle and reconnect context; cancelled on
	// Shutdown.
	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// New creates a Registry. Params.Store is required; the other
// collaborators are optional.
func New(p Params) *Registry {
	log := p.Logger
	if log == nil {
		log = logging.Default()
	}
	opts := p.Options
	if opts.PingInterval == 0 {
		opts = DefaultOptions()
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	r := &Registry{
		servers:    make(map[ServerKey]*serverState),
		store:      p.Store,
		overrides:  p.Overrides,
		auth:       p.Auth,
		dialer:     p.Dialer,
		notifier:   newNotifier(log),
		log:        log,
		opts:       opts,
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}
	if r.dialer == nil {
		r.dialer = r.defaultDial
	}
	return r
}

// Subscribe registers a status listener. Every state transition is
// delivered synchronously to all listeners.
func (r *Registry) Subscribe(l StatusListener) {
	r.notifier.subscribe(l)
}

// Unsubscribe removes a previously registered listener.
func (r *Registry) Unsubscribe(l StatusListener) {
	r.notifier.unsubscribe(l)
}

// Initialize loads every enabled server from the config store and
// starts a connect attempt for each. Guarded so concurrent calls do not
// double-connect; only the first call does work. Per-server connection
// failures are captured in server state and never abort the load.
func (r *Registry) Initialize(ctx context.Context) error {
	r.mu.Lock()
	if r.initialized {
		r.mu.Unlock()
		return nil
	}
	r.initialized = true
	r.mu.Unlock()

	entries, err := r.store.ListEnabled(ctx, "")
	if err != nil {
		return fmt.Errorf("loading server configs: %w", err)
	}

	for _, entry := range entries {
		st, err := r.register(entry.Key, entry.Config)
		if err != nil {
			r.log.Warn("skipping invalid server config", "server", entry.Key.String(), "error", err)
			continue
		}
		r.startConnect(st)
	}

	r.log.Info("registry initialized", "servers", len(entries))
	return nil
}

// ReloadFromStore diffs the store against the currently registered keys
// and connects only newly appeared entries. Already-running servers are
// untouched.
func (r *Registry) ReloadFromStore(ctx context.Context) error {
	entries, err := r.store.ListEnabled(ctx, "")
	if err != nil {
		return fmt.Errorf("reloading server configs: %w", err)
	}

	var added int
	for _, entry := range entries {
		r.mu.RLock()
		_, exists := r.servers[entry.Key]
		r.mu.RUnlock()
		if exists {
			continue
		}

		st, err := r.register(entry.Key, entry.Config)
		if err != nil {
			r.log.Warn("skipping invalid server config", "server", entry.Key.String(), "error", err)
			continue
		}
		r.startConnect(st)
		added++
	}

	if added > 0 {
		r.log.Info("reload connected new servers", "count", added)
	}
	return nil
}

// AddServer persists a new server definition and begins connecting it.
// Fails with ConfigurationError if the key is already registered.
func (r *Registry) AddServer(ctx context.Context, key ServerKey, cfg ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	st, err := r.register(key, cfg)
	if err != nil {
		return err
	}

	if err := r.store.Save(ctx, key, cfg); err != nil {
		r.mu.Lock()
		delete(r.servers, key)
		r.mu.Unlock()
		return fmt.Errorf("persisting server %s: %w", key, err)
	}

	r.startConnect(st)
	return nil
}

// UpdateServer replaces the config of an existing server: the running
// session is torn down, the new config persisted, and a fresh connect
// attempt started.
func (r *Registry) UpdateServer(ctx context.Context, key ServerKey, cfg ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	st, err := r.lookup(key)
	if err != nil {
		return err
	}

	r.teardown(st)

	st.mu.Lock()
	st.config = cfg
	st.mu.Unlock()

	if err := r.store.Save(ctx, key, cfg); err != nil {
		return fmt.Errorf("persisting server %s: %w", key, err)
	}

	r.startConnect(st)
	return nil
}

// RemoveServer disconnects a server and deletes both its state and its
// persisted record. After it returns, no background work for the key
// remains.
func (r *Registry) RemoveServer(ctx context.Context, key ServerKey) error {
	st, err := r.lookup(key)
	if err != nil {
		return err
	}

	r.teardown(st)
	r.setStatus(st, StatusDisconnected, "")

	r.mu.Lock()
	delete(r.servers, key)
	r.mu.Unlock()

	if err := r.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("deleting server %s: %w", key, err)
	}
	return nil
}

// Rename moves a server to a new key. The old entry is torn down and
// removed; the new entry starts disconnected and is not automatically
// reconnected. Callers reconnect explicitly when desired.
func (r *Registry) Rename(ctx context.Context, oldKey ServerKey, newToolset, newServer string) error {
	newKey, err := NewServerKey(newToolset, newServer)
	if err != nil {
		return err
	}

	st, err := r.lookup(oldKey)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.servers[newKey]; exists {
		r.mu.Unlock()
		return &ConfigurationError{Key: newKey.String(), Reason: "a server with this key already exists"}
	}
	r.mu.Unlock()

	r.teardown(st)
	r.setStatus(st, StatusDisconnected, "")

	st.mu.Lock()
	cfg := st.config
	st.mu.Unlock()

	r.mu.Lock()
	delete(r.servers, oldKey)
	newState := newServerState(newKey, cfg)
	r.servers[newKey] = newState
	r.mu.Unlock()

	if err := r.store.Rename(ctx, oldKey, newKey); err != nil {
		return fmt.Errorf("renaming server %s to %s: %w", oldKey, newKey, err)
	}

	r.setStatus(newState, StatusDisconnected, "")
	return nil
}

// Resolve maps an identifier to a registered key. Full "toolset/server"
// strings must match exactly; a bare server id resolves when it is
// unique across toolsets, and fails with AmbiguousServerReferenceError
// otherwise.
func (r *Registry) Resolve(identifier string) (ServerKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if key, err := ParseServerKey(identifier); err == nil {
		if _, ok := r.servers[key]; ok {
			return key, nil
		}
		return ServerKey{}, &ConfigurationError{Key: identifier, Reason: "no such server"}
	}

	var matches []ServerKey
	for key := range r.servers {
		if key.Server == identifier {
			matches = append(matches, key)
		}
	}
	switch len(matches) {
	case 0:
		return ServerKey{}, &ConfigurationError{Key: identifier, Reason: "no such server"}
	case 1:
		return matches[0], nil
	}

	rendered := make([]string, len(matches))
	for i, m := range matches {
		rendered[i] = m.String()
	}
	sort.Strings(rendered)
	return ServerKey{}, &AmbiguousServerReferenceError{Identifier: identifier, Matches: rendered}
}

// Disconnect manually disconnects a server, cancelling any pending
// reconnect and resetting the retry counter.
func (r *Registry) Disconnect(key ServerKey) error {
	st, err := r.lookup(key)
	if err != nil {
		return err
	}

	r.teardown(st)
	r.setStatus(st, StatusDisconnected, "")
	return nil
}

// Reconnect manually reconnects a server: any running session or
// pending retry is torn down first, the retry counter reset, and a
// fresh connect attempt started. This is also the path out of
// requires_auth once the caller has completed an OAuth flow.
func (r *Registry) Reconnect(key ServerKey) error {
	st, err := r.lookup(key)
	if err != nil {
		return err
	}

	r.teardown(st)
	r.startConnect(st)
	return nil
}

// Shutdown disconnects every registered server and stops all background
// work. Used at process exit.
func (r *Registry) Shutdown() {
	r.mu.RLock()
	states := make([]*serverState, 0, len(r.servers))
	for _, st := range r.servers {
		states = append(states, st)
	}
	r.mu.RUnlock()

	for _, st := range states {
		r.teardown(st)
		r.setStatus(st, StatusDisconnected, "")
	}
	r.baseCancel()
	r.log.Info("registry shut down", "servers", len(states))
}

// ListServers returns a summary of every registered server, sorted by
// key. Env values are sanitized.
func (r *Registry) ListServers() []ServerSummary {
	r.mu.RLock()
	states := make([]*serverState, 0, len(r.servers))
	for _, st := range r.servers {
		states = append(states, st)
	}
	r.mu.RUnlock()

	out := make([]ServerSummary, 0, len(states))
	for _, st := range states {
		out = append(out, st.summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Status returns the current status of one server.
func (r *Registry) Status(key ServerKey) (Status, error) {
	st, err := r.lookup(key)
	if err != nil {
		return "", err
	}
	return st.snapshotStatus(), nil
}

// register validates and inserts a fresh state for key. Fails with
// ConfigurationError on duplicates.
func (r *Registry) register(key ServerKey, cfg ServerConfig) (*serverState, error) {
	if _, err := NewServerKey(key.Toolset, key.Server); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.servers[key]; exists {
		return nil, &ConfigurationError{Key: key.String(), Reason: "a server with this key already exists"}
	}
	st := newServerState(key, cfg)
	r.servers[key] = st
	return st, nil
}

func (r *Registry) lookup(key ServerKey) (*serverState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	st, ok := r.servers[key]
	if !ok {
		return nil, &ConfigurationError{Key: key.String(), Reason: "no such server"}
	}
	return st, nil
}

// setStatus transitions a server's status, clears the tool list when
// leaving connected, and dispatches the event to all listeners. The
// notifier runs outside the state lock so listeners may call back into
// the registry.
func (r *Registry) setStatus(st *serverState, status Status, errMsg string) {
	st.mu.Lock()
	st.status = status
	st.errMsg = errMsg
	if status != StatusConnected {
		st.rawTools = nil
	}
	ev := StatusEvent{
		Key:       st.key,
		Status:    status,
		Err:       errMsg,
		ToolCount: len(st.rawTools),
	}
	st.mu.Unlock()

	r.log.Debug("server status changed",
		"server", ev.Key.String(),
		"status", string(ev.Status),
		"tools", ev.ToolCount,
		"error", ev.Err,
	)
	r.notifier.dispatch(ev)
}

// teardown cancels the server's lifecycle and reconnect tasks and
// blocks until both have finished, closing any live session along the
// way. Every mutation path (update, remove, rename, manual
// disconnect/reconnect, shutdown) funnels through here before touching
// the state, so no orphaned subprocess or socket survives a
// reconfiguration. Also resets the retry counter.
func (r *Registry) teardown(st *serverState) {
	st.mu.Lock()
	rCancel, rDone := st.reconnectCancel, st.reconnectDone
	st.reconnectCancel, st.reconnectDone = nil, nil
	lCancel, lDone := st.lifecycleCancel, st.lifecycleDone
	st.lifecycleCtx, st.lifecycleCancel, st.lifecycleDone = nil, nil, nil
	session := st.session
	st.session = nil
	st.rawTools = nil
	st.mu.Unlock()

	if rCancel != nil {
		rCancel()
	}
	if rDone != nil {
		<-rDone
	}
	if lCancel != nil {
		lCancel()
	}
	if session != nil {
		_ = session.Close()
	}
	if lDone != nil {
		<-lDone
	}

	st.mu.Lock()
	st.retryCount = 0
	st.mu.Unlock()
}
