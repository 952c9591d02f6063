// Package oauth supplies the credential side of connecting to
// OAuth-gated tool servers: it probes endpoints for Bearer challenges,
// answers whether a usable token is stored, and decorates outgoing
// requests with it. Token acquisition (the interactive flow) happens
// outside this process; tokens arrive through the store.
package oauth

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/mcpgate/mcpgate/internal/logging"
	"github.com/mcpgate/mcpgate/internal/registry"
)

// probeTimeout bounds the challenge probe request.
const probeTimeout = 10 * time.Second

// expiryBuffer treats tokens expiring within this window as already
// expired, so a request never goes out with a token about to lapse.
const expiryBuffer = 5 * time.Minute

var resourceMetadataRe = regexp.MustCompile(`resource_metadata="([^"]+)"`)

// TokenStore is the persistence surface the manager needs.
type TokenStore interface {
	GetToken(ctx context.Context, toolsetID, serverID string) (*oauth2.Token, error)
	PutToken(ctx context.Context, toolsetID, serverID string, tok *oauth2.Token) error
	DeleteToken(ctx context.Context, toolsetID, serverID string) error
}

// Manager implements the registry's AuthProvider over a token store.
type Manager struct {
	tokens TokenStore
	client *http.Client
	log    logging.Logger
}

// New creates a Manager. A nil client gets a probe-ready default that
// never follows redirects.
func New(tokens TokenStore, client *http.Client, log logging.Logger) *Manager {
	if log == nil {
		log = logging.Default()
	}
	if client == nil {
		client = &http.Client{
			Timeout: probeTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return &Manager{tokens: tokens, client: client, log: log}
}

// HasValidCredential reports whether a non-expired token is stored for
// the server.
func (m *Manager) HasValidCredential(ctx context.Context, serverID, toolsetID string) bool {
	tok, err := m.tokens.GetToken(ctx, toolsetID, serverID)
	if err != nil {
		m.log.Warn("token lookup failed", "server", serverID, "toolset", toolsetID, "error", err)
		return false
	}
	if tok == nil || tok.AccessToken == "" {
		return false
	}
	if tok.Expiry.IsZero() {
		return true
	}
	return time.Now().Add(expiryBuffer).Before(tok.Expiry)
}

// Decorator wraps base so every outgoing request carries the stored
// bearer token. The token is re-read per request, so a refreshed token
// takes effect without reconnecting.
func (m *Manager) Decorator(serverID, toolsetID string, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &bearerRoundTripper{
		mgr:       m,
		serverID:  serverID,
		toolsetID: toolsetID,
		base:      base,
	}
}

type bearerRoundTripper struct {
	mgr       *Manager
	serverID  string
	toolsetID string
	base      http.RoundTripper
}

func (b *bearerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := b.mgr.tokens.GetToken(req.Context(), b.toolsetID, b.serverID)
	if err != nil {
		return nil, err
	}
	if tok == nil || tok.AccessToken == "" {
		return b.base.RoundTrip(req)
	}

	clone := req.Clone(req.Context())
	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}
	clone.Header.Set("Authorization", tokenType+" "+tok.AccessToken)
	return b.base.RoundTrip(clone)
}

// Probe issues a GET against url (without following redirects) and
// inspects the response for an OAuth challenge. Auth is required only
// when the endpoint answers 401 with a WWW-Authenticate header naming
// the Bearer scheme; the resource metadata URL is extracted from the
// challenge when present.
func (m *Manager) Probe(ctx context.Context, url string) (registry.AuthProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return registry.AuthProbeResult{}, err
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return registry.AuthProbeResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		return registry.AuthProbeResult{}, nil
	}

	challenge := resp.Header.Get("WWW-Authenticate")
	if !strings.Contains(challenge, "Bearer") {
		return registry.AuthProbeResult{}, nil
	}

	result := registry.AuthProbeResult{RequiresAuth: true}
	if match := resourceMetadataRe.FindStringSubmatch(challenge); match != nil {
		result.ResourceMetadataURL = match[1]
	}
	return result, nil
}
