package config

// Merge combines user and project configs. Project config takes
// precedence over user config for the same server key, and for the
// store path and toolsets directory when it sets them.
func Merge(user, project *Config) *Config {
	merged := NewConfig()

	if user != nil {
		merged.StorePath = user.StorePath
		merged.ToolsetsDir = user.ToolsetsDir
		for key, def := range user.Servers {
			merged.Servers[key] = def
		}
	}

	if project != nil {
		if project.StorePath != "" {
			merged.StorePath = project.StorePath
		}
		if project.ToolsetsDir != "" {
			merged.ToolsetsDir = project.ToolsetsDir
		}
		for key, def := range project.Servers {
			merged.Servers[key] = def
		}
	}

	return merged
}

// Load loads and merges user and project configs.
func Load(projectDir string) (*Config, error) {
	user, err := LoadUserConfig()
	if err != nil {
		return nil, err
	}

	project, err := LoadProjectConfig(projectDir)
	if err != nil {
		return nil, err
	}

	return Merge(user, project), nil
}
