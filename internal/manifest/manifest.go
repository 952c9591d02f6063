// Package manifest loads toolset manifests: YAML files bundling a
// toolset's tool-server definitions so they can be imported into the
// durable store in one step.
package manifest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mcpgate/mcpgate/internal/logging"
	"github.com/mcpgate/mcpgate/internal/registry"
)

// FileName is the manifest file looked for inside a toolset directory.
const FileName = "toolset.yaml"

// SupportedVersion is the manifest schema version this build reads.
const SupportedVersion = 1

// Manifest is one toolset's declaration.
type Manifest struct {
	ManifestVersion int           `yaml:"manifest_version"`
	ID              string        `yaml:"id"`
	Name            string        `yaml:"name"`
	Version         string        `yaml:"version"`
	MCPServers      []ServerEntry `yaml:"mcp_servers"`
}

// ServerEntry declares one tool server owned by the toolset. Env
// values may be ${VAR} placeholders; they stay placeholders in the
// store and resolve against the process environment at spawn time.
type ServerEntry struct {
	ID                   string            `yaml:"id"`
	Transport            string            `yaml:"transport,omitempty"`
	Command              string            `yaml:"command,omitempty"`
	Args                 []string          `yaml:"args,omitempty"`
	Cwd                  string            `yaml:"cwd,omitempty"`
	URL                  string            `yaml:"url,omitempty"`
	Headers              map[string]string `yaml:"headers,omitempty"`
	Env                  map[string]string `yaml:"env,omitempty"`
	RequiresConfirmation bool              `yaml:"requires_confirmation,omitempty"`
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return &m, nil
}

// Validate checks structural requirements.
func (m *Manifest) Validate() error {
	if m.ManifestVersion != SupportedVersion {
		return fmt.Errorf("unsupported manifest_version %d, want %d", m.ManifestVersion, SupportedVersion)
	}
	if m.ID == "" {
		return fmt.Errorf("manifest requires an id")
	}
	seen := make(map[string]bool, len(m.MCPServers))
	for i, entry := range m.MCPServers {
		if entry.ID == "" {
			return fmt.Errorf("mcp_servers[%d] requires an id", i)
		}
		if seen[entry.ID] {
			return fmt.Errorf("duplicate server id %q", entry.ID)
		}
		seen[entry.ID] = true
		if entry.Command == "" && entry.URL == "" {
			return fmt.Errorf("server %q requires a command or a url", entry.ID)
		}
	}
	return nil
}

// ServerConfigs converts the manifest's entries into registry records
// keyed under the manifest's toolset id.
func (m *Manifest) ServerConfigs() ([]registry.StoredServer, error) {
	out := make([]registry.StoredServer, 0, len(m.MCPServers))
	for _, entry := range m.MCPServers {
		key, err := registry.NewServerKey(m.ID, entry.ID)
		if err != nil {
			return nil, err
		}

		cfg := registry.ServerConfig{
			Command:              entry.Command,
			Args:                 entry.Args,
			Cwd:                  entry.Cwd,
			Env:                  entry.Env,
			URL:                  entry.URL,
			Headers:              entry.Headers,
			RequiresConfirmation: entry.RequiresConfirmation,
		}
		cfg.Kind, err = entryKind(entry)
		if err != nil {
			return nil, fmt.Errorf("server %q: %w", entry.ID, err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("server %q: %w", entry.ID, err)
		}
		out = append(out, registry.StoredServer{Key: key, Config: cfg})
	}
	return out, nil
}

// entryKind resolves a server entry's transport: an explicit transport
// field wins, otherwise a command means stdio and a url means
// streamable HTTP.
func entryKind(entry ServerEntry) (registry.TransportKind, error) {
	if entry.Transport != "" {
		return registry.ParseTransportKind(entry.Transport)
	}
	if entry.Command != "" {
		return registry.KindStdio, nil
	}
	return registry.KindStreamableHTTP, nil
}

// Import upserts every server in the manifest into the store.
func (m *Manifest) Import(ctx context.Context, store registry.ConfigStore) error {
	entries, err := m.ServerConfigs()
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := store.Save(ctx, entry.Key, entry.Config); err != nil {
			return err
		}
	}
	return nil
}

// ImportDir walks root for toolset.yaml files and imports each one.
// Invalid manifests are skipped with a warning so one broken toolset
// cannot block the rest.
func ImportDir(ctx context.Context, root string, store registry.ConfigStore, log logging.Logger) error {
	if log == nil {
		log = logging.Default()
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != FileName {
			return nil
		}

		m, err := Load(path)
		if err != nil {
			log.Warn("skipping manifest", "path", path, "error", err)
			return nil
		}
		if err := m.Import(ctx, store); err != nil {
			log.Warn("importing manifest failed", "path", path, "error", err)
			return nil
		}
		log.Info("imported toolset", "toolset", m.ID, "servers", len(m.MCPServers))
		return nil
	})
}
