package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "forum.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/forum"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"

	// EnvAPIURL overrides api.base_url
	EnvAPIURL = "FORUM_API_URL"
	// EnvDataDir overrides data_dir
	EnvDataDir = "FORUM_DATA_DIR"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger *slog.Logger

	// ExplicitPath replaces the user and project files when set
	ExplicitPath string

	// overridable in tests
	homeDir   func() (string, error)
	workDir   func() (string, error)
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		logger:    logger,
		homeDir:   os.UserHomeDir,
		workDir:   os.Getwd,
		lookupEnv: os.LookupEnv,
	}
}

// Load loads configuration with layered precedence:
// 1. Default config
// 2. User config (~/.config/forum/config.yaml)
// 3. Project config (forum.yaml in current or parent directories)
// 4. Environment variables (FORUM_API_URL, FORUM_DATA_DIR)
//
// An explicit path replaces steps 2 and 3 and must exist
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	if l.ExplicitPath != "" {
		explicit, err := LoadFromFile(l.ExplicitPath)
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Loaded config", slog.String("path", l.ExplicitPath))
		config.Merge(explicit)
	} else {
		l.mergeLayers(config)
	}

	if v, ok := l.lookupEnv(EnvAPIURL); ok && v != "" {
		config.API.BaseURL = v
	}
	if v, ok := l.lookupEnv(EnvDataDir); ok && v != "" {
		config.DataDir = v
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (l *Loader) mergeLayers(config *Config) {
	if userConfigPath := l.userConfigPath(); userConfigPath != "" {
		if userConfig, err := LoadFromFile(userConfigPath); err == nil {
			l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
			config.Merge(userConfig)
		} else if !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
		}
	}

	projectConfigPath := l.findProjectConfig()
	if projectConfigPath == "" {
		l.logger.Debug("No project config found")
		return
	}
	if projectConfig, err := LoadFromFile(projectConfigPath); err == nil {
		l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
		config.Merge(projectConfig)
	} else {
		l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
	}
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home, err := l.homeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for forum.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	cwd, err := l.workDir()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
