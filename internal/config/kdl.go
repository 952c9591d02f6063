package config

import (
	"os"
	"path/filepath"

	kdl "github.com/sblinch/kdl-go"
)

const (
	ProjectConfigFile = ".mcpgate.kdl"
	UserConfigDir     = "mcpgate"
	UserConfigFile    = "config.kdl"
	DefaultStoreFile  = "mcpgate.db"
)

// KDLConfig is the raw KDL structure for unmarshaling.
type KDLConfig struct {
	Store    string      `kdl:"store"`
	Toolsets string      `kdl:"toolsets"`
	Servers  []KDLServer `kdl:"server,multiple"`
}

// KDLServer represents a server node in KDL. The node argument is the
// "toolset/server" key (or a bare server id for the default toolset).
type KDLServer struct {
	Key                  string            `kdl:",arg"`
	Transport            string            `kdl:"transport"`
	Command              string            `kdl:"command"`
	Args                 []string          `kdl:"args"`
	Cwd                  string            `kdl:"cwd"`
	Env                  map[string]string `kdl:"env"`
	URL                  string            `kdl:"url"`
	Headers              map[string]string `kdl:"headers"`
	RequiresConfirmation bool              `kdl:"requires-confirmation"`
}

// UserConfigPath returns the path to the user config file.
func UserConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, UserConfigDir, UserConfigFile)
}

// ProjectConfigPath returns the path to the project config file.
func ProjectConfigPath(dir string) string {
	return filepath.Join(dir, ProjectConfigFile)
}

// ConfigPathForScope returns the config path for a given scope.
func ConfigPathForScope(scope Scope, projectDir string) string {
	if scope == ScopeUser {
		return UserConfigPath()
	}
	return ProjectConfigPath(projectDir)
}

// DefaultStorePath returns the per-user default database location.
func DefaultStorePath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return DefaultStoreFile
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataDir, UserConfigDir, DefaultStoreFile)
}

// LoadUserConfig loads configuration from the user config file.
func LoadUserConfig() (*Config, error) {
	path := UserConfigPath()
	if path == "" {
		return NewConfig(), nil
	}
	return loadConfigFile(path, SourceUser)
}

// LoadProjectConfig loads configuration from the project config file.
func LoadProjectConfig(dir string) (*Config, error) {
	return loadConfigFile(ProjectConfigPath(dir), SourceProject)
}

func loadConfigFile(path string, source Source) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewConfig(), nil
	}
	if err != nil {
		return nil, err
	}
	return ParseKDLConfig(string(data), source)
}

// ParseKDLConfig parses KDL configuration data.
func ParseKDLConfig(data string, source Source) (*Config, error) {
	var kdlCfg KDLConfig
	if err := kdl.Unmarshal([]byte(data), &kdlCfg); err != nil {
		return nil, err
	}

	cfg := NewConfig()
	cfg.StorePath = kdlCfg.Store
	cfg.ToolsetsDir = kdlCfg.Toolsets
	for _, s := range kdlCfg.Servers {
		cfg.Servers[s.Key] = ServerDef{
			Key:                  s.Key,
			Transport:            s.Transport,
			Command:              s.Command,
			Args:                 s.Args,
			Cwd:                  s.Cwd,
			Env:                  s.Env,
			URL:                  s.URL,
			Headers:              s.Headers,
			RequiresConfirmation: s.RequiresConfirmation,
			Source:               source,
		}
	}
	return cfg, nil
}

// AddServerToFile adds a server definition to a KDL config file,
// creating the file if needed.
func AddServerToFile(path, key string, def ServerDef) error {
	cfg, err := loadConfigFile(path, SourceProject)
	if err != nil {
		return err
	}

	def.Key = key
	if def.Transport == "" {
		if def.URL != "" {
			def.Transport = "streamable-http"
		} else {
			def.Transport = "stdio"
		}
	}
	cfg.Servers[key] = def
	return WriteConfigFile(path, cfg)
}

// RemoveServerFromFile removes a server definition from a KDL config
// file.
func RemoveServerFromFile(path, key string) error {
	cfg, err := loadConfigFile(path, SourceProject)
	if err != nil {
		return err
	}
	delete(cfg.Servers, key)
	return WriteConfigFile(path, cfg)
}

// WriteConfigFile writes a config to a KDL file.
func WriteConfigFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	var content string
	if cfg.StorePath != "" {
		content += "store \"" + cfg.StorePath + "\"\n"
	}
	if cfg.ToolsetsDir != "" {
		content += "toolsets \"" + cfg.ToolsetsDir + "\"\n"
	}
	if content != "" {
		content += "\n"
	}
	for _, def := range cfg.Servers {
		content += formatServerBlock(def)
	}
	return os.WriteFile(path, []byte(content), 0644)
}

func formatServerBlock(def ServerDef) string {
	result := "server \"" + def.Key + "\" {\n"

	if def.Transport != "" {
		result += "    transport \"" + def.Transport + "\"\n"
	} else {
		result += "    transport \"stdio\"\n"
	}

	if def.Command != "" {
		result += "    command \"" + def.Command + "\"\n"
	}

	if len(def.Args) > 0 {
		result += "    args"
		for _, arg := range def.Args {
			result += " \"" + arg + "\""
		}
		result += "\n"
	}

	if def.Cwd != "" {
		result += "    cwd \"" + def.Cwd + "\"\n"
	}

	if def.URL != "" {
		result += "    url \"" + def.URL + "\"\n"
	}

	if def.RequiresConfirmation {
		result += "    requires-confirmation true\n"
	}

	if len(def.Env) > 0 {
		result += "    env {\n"
		for k, v := range def.Env {
			result += "        " + k + " \"" + v + "\"\n"
		}
		result += "    }\n"
	}

	if len(def.Headers) > 0 {
		result += "    headers {\n"
		for k, v := range def.Headers {
			result += "        " + k + " \"" + v + "\"\n"
		}
		result += "    }\n"
	}

	result += "}\n\n"
	return result
}
