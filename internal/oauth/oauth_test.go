package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/mcpgate/mcpgate/internal/logging"
)

// memTokens is an in-memory TokenStore.
type memTokens struct {
	tokens map[string]*oauth2.Token
	err    error
}

func newMemTokens() *memTokens {
	return &memTokens{tokens: make(map[string]*oauth2.Token)}
}

func (m *memTokens) GetToken(ctx context.Context, toolsetID, serverID string) (*oauth2.Token, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.tokens[toolsetID+"/"+serverID], nil
}

func (m *memTokens) PutToken(ctx context.Context, toolsetID, serverID string, tok *oauth2.Token) error {
	m.tokens[toolsetID+"/"+serverID] = tok
	return nil
}

func (m *memTokens) DeleteToken(ctx context.Context, toolsetID, serverID string) error {
	delete(m.tokens, toolsetID+"/"+serverID)
	return nil
}

func newManager(tokens TokenStore) *Manager {
	return New(tokens, nil, logging.Nop())
}

func TestHasValidCredential(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		tok  *oauth2.Token
		want bool
	}{
		{"no token", nil, false},
		{"empty access token", &oauth2.Token{}, false},
		{"no expiry", &oauth2.Token{AccessToken: "x"}, true},
		{"far future expiry", &oauth2.Token{AccessToken: "x", Expiry: time.Now().Add(time.Hour)}, true},
		{"already expired", &oauth2.Token{AccessToken: "x", Expiry: time.Now().Add(-time.Minute)}, false},
		{"expiring within buffer", &oauth2.Token{AccessToken: "x", Expiry: time.Now().Add(time.Minute)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens := newMemTokens()
			if tt.tok != nil {
				require.NoError(t, tokens.PutToken(ctx, "remote", "api", tt.tok))
			}
			m := newManager(tokens)
			assert.Equal(t, tt.want, m.HasValidCredential(ctx, "api", "remote"))
		})
	}
}

func TestHasValidCredential_StoreError(t *testing.T) {
	tokens := newMemTokens()
	tokens.err = assert.AnError
	m := newManager(tokens)
	assert.False(t, m.HasValidCredential(context.Background(), "api", "remote"))
}

func TestDecorator_InjectsBearer(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	tokens := newMemTokens()
	require.NoError(t, tokens.PutToken(context.Background(), "remote", "api", &oauth2.Token{
		AccessToken: "tok-123",
		TokenType:   "Bearer",
	}))
	m := newManager(tokens)

	client := &http.Client{Transport: m.Decorator("api", "remote", nil)}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestDecorator_ReReadsTokenPerRequest(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	ctx := context.Background()
	tokens := newMemTokens()
	require.NoError(t, tokens.PutToken(ctx, "remote", "api", &oauth2.Token{AccessToken: "old"}))
	m := newManager(tokens)
	client := &http.Client{Transport: m.Decorator("api", "remote", nil)}

	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "Bearer old", gotAuth)

	// A refreshed token takes effect without rebuilding the transport.
	require.NoError(t, tokens.PutToken(ctx, "remote", "api", &oauth2.Token{AccessToken: "new"}))
	resp, err = client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "Bearer new", gotAuth)
}

func TestDecorator_NoTokenPassesThrough(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	m := newManager(newMemTokens())
	client := &http.Client{Transport: m.Decorator("api", "remote", nil)}
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, gotAuth)
}

func TestProbe_BearerChallenge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate",
			`Bearer realm="mcp", resource_metadata="https://api.example.com/.well-known/oauth-protected-resource"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := newManager(newMemTokens())
	res, err := m.Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, res.RequiresAuth)
	assert.Equal(t, "https://api.example.com/.well-known/oauth-protected-resource", res.ResourceMetadataURL)
}

func TestProbe_ChallengeWithoutMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="mcp"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := newManager(newMemTokens())
	res, err := m.Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.True(t, res.RequiresAuth)
	assert.Empty(t, res.ResourceMetadataURL)
}

func TestProbe_NoAuthRequired(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"plain 200", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}},
		{"401 without bearer scheme", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("WWW-Authenticate", `Basic realm="legacy"`)
			w.WriteHeader(http.StatusUnauthorized)
		}},
		{"401 without challenge header", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}},
		{"403 is not a challenge", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			m := newManager(newMemTokens())
			res, err := m.Probe(context.Background(), srv.URL)
			require.NoError(t, err)
			assert.False(t, res.RequiresAuth)
		})
	}
}

func TestProbe_DoesNotFollowRedirects(t *testing.T) {
	final := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer final.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, final.URL, http.StatusFound)
	}))
	defer srv.Close()

	m := newManager(newMemTokens())
	res, err := m.Probe(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.False(t, res.RequiresAuth)
}

func TestProbe_UnreachableEndpoint(t *testing.T) {
	m := newManager(newMemTokens())
	_, err := m.Probe(context.Background(), "http://127.0.0.1:1/mcp")
	assert.Error(t, err)
}
