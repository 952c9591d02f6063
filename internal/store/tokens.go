package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// GetToken returns the stored OAuth token for a server, or nil when
// none exists.
func (s *Store) GetToken(ctx context.Context, toolsetID, serverID string) (*oauth2.Token, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, token_type, expires_at
		FROM oauth_tokens WHERE toolset_id = ? AND server_id = ?`,
		toolsetID, serverID)

	var accessToken, refreshToken, tokenType, expiresAt string
	if err := row.Scan(&accessToken, &refreshToken, &tokenType, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading token for %s/%s: %w", toolsetID, serverID, err)
	}

	tok := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		TokenType:    tokenType,
	}
	if expiresAt != "" {
		t, err := time.Parse(time.RFC3339, expiresAt)
		if err != nil {
			return nil, fmt.Errorf("parsing token expiry for %s/%s: %w", toolsetID, serverID, err)
		}
		tok.Expiry = t
	}
	return tok, nil
}

// PutToken upserts the OAuth token for a server.
func (s *Store) PutToken(ctx context.Context, toolsetID, serverID string, tok *oauth2.Token) error {
	expiresAt := ""
	if !tok.Expiry.IsZero() {
		expiresAt = tok.Expiry.UTC().Format(time.RFC3339)
	}
	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_tokens (id, toolset_id, server_id, access_token, refresh_token,
			token_type, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(toolset_id, server_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		uuid.NewString(), toolsetID, serverID, tok.AccessToken, tok.RefreshToken,
		tokenType, expiresAt, now)
	if err != nil {
		return fmt.Errorf("saving token for %s/%s: %w", toolsetID, serverID, err)
	}
	return nil
}

// DeleteToken removes the stored token for a server.
func (s *Store) DeleteToken(ctx context.Context, toolsetID, serverID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM oauth_tokens WHERE toolset_id = ? AND server_id = ?`,
		toolsetID, serverID)
	if err != nil {
		return fmt.Errorf("deleting token for %s/%s: %w", toolsetID, serverID, err)
	}
	return nil
}
