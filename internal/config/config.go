package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// EnvironmentConfig describes a single named environment from authplane.toml.
type EnvironmentConfig struct {
	ProjectRef string `toml:"project_ref"`
	Region     string `toml:"region"`
	PoolerPort int    `toml:"pooler_port"`
	DirectHost string `toml:"direct_host"`
	DirectPort int    `toml:"direct_port"`
	Database   string `toml:"database"`
	User       string `toml:"user"`
	Password   string `toml:"password"`
}

type Config struct {
	// HistoryURL points the run-history store somewhere other than the
	// default local SQLite file. Accepts a file path or a libsql:// URL.
	HistoryURL     string                       `toml:"history_url"`
	Environments   map[string]EnvironmentConfig `toml:"environments"`
	ConfigFilePath string                       `toml:"-"`
}

// LoadConfig finds authplane.toml in the current directory or any parent
// directory up to the project root.
func LoadConfig() (*Config, error) {
	startDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return LoadConfigFrom(startDir)
}

// LoadConfigFrom walks up from dir looking for authplane.toml.
func LoadConfigFrom(dir string) (*Config, error) {
	for {
		configPath := filepath.Join(dir, "authplane.toml")
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, err
			}

			var config Config
			if err := toml.Unmarshal(data, &config); err != nil {
				return nil, err
			}

			config.ConfigFilePath = configPath
			return &config, nil
		}

		if isProjectRoot(dir) {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root
			break
		}
		dir = parent
	}

	return &Config{}, nil
}

// ConfigDir returns the directory holding authplane.toml, or "" when no
// config file was found.
func (c *Config) ConfigDir() string {
	if c == nil || c.ConfigFilePath == "" {
		return ""
	}
	return filepath.Dir(c.ConfigFilePath)
}

// isProjectRoot checks if the directory is a project root based on common markers
func isProjectRoot(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, "package.json")); err == nil {
		return true
	}
	return false
}
