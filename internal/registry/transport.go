package registry

import (
	"context"
	"net/http"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"

	"github.com/mcpgate/mcpgate/internal/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// StderrRingLines bounds the captured stderr tail kept per stdio server
// for diagnostics.
const StderrRingLines = 20

// StderrRing is a bounded line buffer fed by a subprocess's stderr.
// It keeps the last StderrRingLines complete lines plus any trailing
// partial line.
type StderrRing struct {
	mu      sync.Mutex
	lines   []string
	partial string
	max     int
}

func NewStderrRing(max int) *StderrRing {
	return &StderrRing{max: max}
}

func (r *StderrRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	text := r.partial + string(p)
	parts := strings.Split(text, "\n")
	r.partial = parts[len(parts)-1]
	for _, line := range parts[:len(parts)-1] {
		r.lines = append(r.lines, line)
	}
	if len(r.lines) > r.max {
		r.lines = r.lines[len(r.lines)-r.max:]
	}
	return len(p), nil
}

// Tail returns the buffered stderr tail as a single string, empty if
// nothing was captured.
func (r *StderrRing) Tail() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := strings.Join(r.lines, "\n")
	if r.partial != "" {
		if out != "" {
			out += "\n"
		}
		out += r.partial
	}
	return strings.TrimSpace(out)
}

var envPlaceholderRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvValue resolves ${VAR} placeholders against the process
// environment. Unresolved placeholders are left verbatim and logged.
func expandEnvValue(value string, log logging.Logger) string {
	return envPlaceholderRe.ReplaceAllStringFunc(value, func(m string) string {
		name := m[2 : len(m)-1]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		log.Warn("environment placeholder unresolved, leaving verbatim", "placeholder", m)
		return m
	})
}

// expandEnv resolves placeholders in every value of a server env map.
func expandEnv(env map[string]string, log logging.Logger) map[string]string {
	if len(env) == 0 {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = expandEnvValue(v, log)
	}
	return out
}

// headerRoundTripper injects fixed headers into every outgoing request.
type headerRoundTripper struct {
	base    http.RoundTripper
	headers map[string]string
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	base := h.base
	if base == nil {
		base = http.DefaultTransport
	}
	if len(h.headers) == 0 {
		return base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	for k, v := range h.headers {
		clone.Header.Set(k, v)
	}
	return base.RoundTrip(clone)
}

// Dialer establishes one live session for a server config. The returned
// ring is non-nil only for stdio servers, where it holds the captured
// stderr tail. Injectable so tests can dial in-memory transports.
type Dialer func(ctx context.Context, key ServerKey, cfg ServerConfig) (*mcp.ClientSession, *StderrRing, error)

// defaultDial builds the real transport for cfg and connects a client
// session over it.
func (r *Registry) defaultDial(ctx context.Context, key ServerKey, cfg ServerConfig) (*mcp.ClientSession, *StderrRing, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    r.opts.ClientName,
		Version: r.opts.ClientVersion,
	}, nil)

	switch cfg.Kind {
	case KindStdio:
		cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
		if cfg.Cwd != "" {
			cmd.Dir = cfg.Cwd
		}
		cmd.Env = os.Environ()
		for k, v := range expandEnv(cfg.Env, r.log.With("server", key.String())) {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		ring := NewStderrRing(StderrRingLines)
		cmd.Stderr = ring

		session, err := client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
		return session, ring, err

	case KindSSE:
		hc := &http.Client{Transport: &headerRoundTripper{headers: cfg.Headers}}
		session, err := client.Connect(ctx, &mcp.SSEClientTransport{
			Endpoint:   cfg.URL,
			HTTPClient: hc,
		}, nil)
		return session, nil, err

	case KindStreamableHTTP:
		var rt http.RoundTripper = &headerRoundTripper{headers: cfg.Headers}
		if r.auth != nil && r.auth.HasValidCredential(ctx, key.Server, key.Toolset) {
			rt = r.auth.Decorator(key.Server, key.Toolset, rt)
		}
		session, err := client.Connect(ctx, &mcp.StreamableClientTransport{
			Endpoint:   cfg.URL,
			HTTPClient: &http.Client{Transport: rt},
		}, nil)
		return session, nil, err
	}

	return nil, nil, &ConfigurationError{Key: key.String(), Reason: "unknown transport kind: " + string(cfg.Kind)}
}
