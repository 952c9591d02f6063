// Package store persists server definitions, per-tool overrides, and
// OAuth tokens in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/mcpgate/mcpgate/internal/logging"
	"github.com/mcpgate/mcpgate/internal/registry"
)

// Store wraps the SQLite database holding durable state.
type Store struct {
	db  *sql.DB
	log logging.Logger
}

// New opens (creating if necessary) the database at dbPath and applies
// the schema.
func New(dbPath string, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS servers (
		id TEXT PRIMARY KEY,
		toolset_id TEXT NOT NULL,
		server_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		command TEXT NOT NULL DEFAULT '',
		args_json TEXT NOT NULL DEFAULT '[]',
		cwd TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		headers_json TEXT NOT NULL DEFAULT '{}',
		env_json TEXT NOT NULL DEFAULT '{}',
		requires_confirmation INTEGER NOT NULL DEFAULT 0,
		enabled INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(toolset_id, server_id)
	);
	CREATE INDEX IF NOT EXISTS idx_servers_toolset ON servers(toolset_id);

	CREATE TABLE IF NOT EXISTS tool_overrides (
		id TEXT PRIMARY KEY,
		toolset_id TEXT NOT NULL,
		override_key TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		renderer TEXT NOT NULL DEFAULT '',
		requires_confirmation INTEGER,
		disabled INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		UNIQUE(toolset_id, override_key)
	);
	CREATE INDEX IF NOT EXISTS idx_overrides_toolset ON tool_overrides(toolset_id);

	CREATE TABLE IF NOT EXISTS oauth_tokens (
		id TEXT PRIMARY KEY,
		toolset_id TEXT NOT NULL,
		server_id TEXT NOT NULL,
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL DEFAULT '',
		token_type TEXT NOT NULL DEFAULT 'Bearer',
		expires_at TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL,
		UNIQUE(toolset_id, server_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ListEnabled returns the enabled server records, optionally filtered
// to one toolset.
func (s *Store) ListEnabled(ctx context.Context, toolsetID string) ([]registry.StoredServer, error) {
	query := `SELECT toolset_id, server_id, kind, command, args_json, cwd, url,
		headers_json, env_json, requires_confirmation
		FROM servers WHERE enabled = 1`
	args := []any{}
	if toolsetID != "" {
		query += ` AND toolset_id = ?`
		args = append(args, toolsetID)
	}
	query += ` ORDER BY toolset_id, server_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing servers: %w", err)
	}
	defer rows.Close()

	var out []registry.StoredServer
	for rows.Next() {
		entry, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func scanServer(rows *sql.Rows) (registry.StoredServer, error) {
	var (
		toolsetID, serverID, kind, command, argsJSON, cwd, url string
		headersJSON, envJSON                                   string
		requiresConfirmation                                   bool
	)
	if err := rows.Scan(&toolsetID, &serverID, &kind, &command, &argsJSON, &cwd, &url,
		&headersJSON, &envJSON, &requiresConfirmation); err != nil {
		return registry.StoredServer{}, fmt.Errorf("scanning server row: %w", err)
	}

	key, err := registry.NewServerKey(toolsetID, serverID)
	if err != nil {
		return registry.StoredServer{}, err
	}

	cfg := registry.ServerConfig{
		Kind:                 registry.TransportKind(kind),
		Command:              command,
		Cwd:                  cwd,
		URL:                  url,
		RequiresConfirmation: requiresConfirmation,
	}
	if err := json.Unmarshal([]byte(argsJSON), &cfg.Args); err != nil {
		return registry.StoredServer{}, fmt.Errorf("decoding args for %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(headersJSON), &cfg.Headers); err != nil {
		return registry.StoredServer{}, fmt.Errorf("decoding headers for %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(envJSON), &cfg.Env); err != nil {
		return registry.StoredServer{}, fmt.Errorf("decoding env for %s: %w", key, err)
	}
	return registry.StoredServer{Key: key, Config: cfg}, nil
}

// Save upserts one server definition.
func (s *Store) Save(ctx context.Context, key registry.ServerKey, cfg registry.ServerConfig) error {
	argsJSON, err := json.Marshal(orEmptySlice(cfg.Args))
	if err != nil {
		return err
	}
	headersJSON, err := json.Marshal(orEmptyMap(cfg.Headers))
	if err != nil {
		return err
	}
	envJSON, err := json.Marshal(orEmptyMap(cfg.Env))
	if err != nil {
		return err
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO servers (id, toolset_id, server_id, kind, command, args_json, cwd, url,
			headers_json, env_json, requires_confirmation, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(toolset_id, server_id) DO UPDATE SET
			kind = excluded.kind,
			command = excluded.command,
			args_json = excluded.args_json,
			cwd = excluded.cwd,
			url = excluded.url,
			headers_json = excluded.headers_json,
			env_json = excluded.env_json,
			requires_confirmation = excluded.requires_confirmation,
			updated_at = excluded.updated_at`,
		uuid.NewString(), key.Toolset, key.Server, string(cfg.Kind), cfg.Command,
		string(argsJSON), cfg.Cwd, cfg.URL, string(headersJSON), string(envJSON),
		cfg.RequiresConfirmation, now, now)
	if err != nil {
		return fmt.Errorf("saving server %s: %w", key, err)
	}
	return nil
}

// Delete removes one server definition.
func (s *Store) Delete(ctx context.Context, key registry.ServerKey) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM servers WHERE toolset_id = ? AND server_id = ?`,
		key.Toolset, key.Server)
	if err != nil {
		return fmt.Errorf("deleting server %s: %w", key, err)
	}
	return nil
}

// Rename moves a server record to a new key.
func (s *Store) Rename(ctx context.Context, oldKey, newKey registry.ServerKey) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.ExecContext(ctx, `
		UPDATE servers SET toolset_id = ?, server_id = ?, updated_at = ?
		WHERE toolset_id = ? AND server_id = ?`,
		newKey.Toolset, newKey.Server, now, oldKey.Toolset, oldKey.Server)
	if err != nil {
		return fmt.Errorf("renaming server %s: %w", oldKey, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("renaming server %s: no such record", oldKey)
	}
	return nil
}

// SetEnabled toggles whether a server is loaded at startup.
func (s *Store) SetEnabled(ctx context.Context, key registry.ServerKey, enabled bool) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		UPDATE servers SET enabled = ?, updated_at = ?
		WHERE toolset_id = ? AND server_id = ?`,
		enabled, now, key.Toolset, key.Server)
	if err != nil {
		return fmt.Errorf("toggling server %s: %w", key, err)
	}
	return nil
}

// Overrides returns the per-tool override table for one toolset, keyed
// by "serverId:toolName".
func (s *Store) Overrides(ctx context.Context, toolsetID string) (map[string]registry.Override, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT override_key, display_name, description, renderer, requires_confirmation, disabled
		FROM tool_overrides WHERE toolset_id = ?`, toolsetID)
	if err != nil {
		return nil, fmt.Errorf("listing overrides: %w", err)
	}
	defer rows.Close()

	out := make(map[string]registry.Override)
	for rows.Next() {
		var (
			key, displayName, description, renderer string
			requiresConfirmation                    sql.NullBool
			disabled                                bool
		)
		if err := rows.Scan(&key, &displayName, &description, &renderer, &requiresConfirmation, &disabled); err != nil {
			return nil, fmt.Errorf("scanning override row: %w", err)
		}
		ov := registry.Override{
			DisplayName: displayName,
			Description: description,
			Renderer:    renderer,
			Disabled:    disabled,
		}
		if requiresConfirmation.Valid {
			v := requiresConfirmation.Bool
			ov.RequiresConfirmation = &v
		}
		out[key] = ov
	}
	return out, rows.Err()
}

// PutOverride upserts one override record.
func (s *Store) PutOverride(ctx context.Context, toolsetID, overrideKey string, ov registry.Override) error {
	var requiresConfirmation sql.NullBool
	if ov.RequiresConfirmation != nil {
		requiresConfirmation = sql.NullBool{Bool: *ov.RequiresConfirmation, Valid: true}
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tool_overrides (id, toolset_id, override_key, display_name, description,
			renderer, requires_confirmation, disabled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(toolset_id, override_key) DO UPDATE SET
			display_name = excluded.display_name,
			description = excluded.description,
			renderer = excluded.renderer,
			requires_confirmation = excluded.requires_confirmation,
			disabled = excluded.disabled,
			updated_at = excluded.updated_at`,
		uuid.NewString(), toolsetID, overrideKey, ov.DisplayName, ov.Description,
		ov.Renderer, requiresConfirmation, ov.Disabled, now)
	if err != nil {
		return fmt.Errorf("saving override %s: %w", overrideKey, err)
	}
	return nil
}

// DeleteOverride removes one override record.
func (s *Store) DeleteOverride(ctx context.Context, toolsetID, overrideKey string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tool_overrides WHERE toolset_id = ? AND override_key = ?`,
		toolsetID, overrideKey)
	if err != nil {
		return fmt.Errorf("deleting override %s: %w", overrideKey, err)
	}
	return nil
}

func orEmptySlice(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func orEmptyMap(v map[string]string) map[string]string {
	if v == nil {
		return map[string]string{}
	}
	return v
}
