package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

const (
	defaultPoolerPort = 6543
	defaultDirectPort = 5432
	defaultDatabase   = "postgres"
	defaultUser       = "postgres"
)

// Environment is a fully-resolved named environment: the project it points
// at plus everything needed to build connection endpoints for it.
type Environment struct {
	Name       string
	ProjectRef string
	Region     string
	PoolerPort int
	DirectHost string
	DirectPort int
	Database   string
	User       string
	Password   string
	DotenvPath string
	FromDotenv bool
}

// ResolveEnvironment resolves a named environment into concrete connection
// parameters. The TOML block supplies topology (project ref, region, ports);
// the password comes from .env.<name> next to authplane.toml, falling back
// to the TOML password field.
func ResolveEnvironment(cfg *Config, name string) (*Environment, error) {
	envName := strings.TrimSpace(name)
	if envName == "" {
		return nil, fmt.Errorf("environment name is required")
	}

	if cfg == nil || len(cfg.Environments) == 0 {
		return nil, fmt.Errorf("no environments defined; create authplane.toml with an [environments.%s] block", envName)
	}

	envConfig, ok := cfg.Environments[envName]
	if !ok {
		return nil, fmt.Errorf("environment %q not defined in %s", envName, cfg.ConfigFilePath)
	}

	if envConfig.ProjectRef == "" {
		return nil, fmt.Errorf("environment %q is missing project_ref", envName)
	}
	if envConfig.Region == "" && envConfig.DirectHost == "" {
		return nil, fmt.Errorf("environment %q needs either region (for the pooled endpoint) or direct_host", envName)
	}

	resolved := &Environment{
		Name:       envName,
		ProjectRef: envConfig.ProjectRef,
		Region:     envConfig.Region,
		PoolerPort: envConfig.PoolerPort,
		DirectHost: envConfig.DirectHost,
		DirectPort: envConfig.DirectPort,
		Database:   envConfig.Database,
		User:       envConfig.User,
		Password:   envConfig.Password,
	}

	if resolved.PoolerPort == 0 {
		resolved.PoolerPort = defaultPoolerPort
	}
	if resolved.DirectPort == 0 {
		resolved.DirectPort = defaultDirectPort
	}
	if resolved.Database == "" {
		resolved.Database = defaultDatabase
	}
	if resolved.User == "" {
		resolved.User = defaultUser
	}

	baseDir := cfg.ConfigDir()
	if baseDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			baseDir = cwd
		}
	}
	resolved.DotenvPath = filepath.Join(baseDir, ".env."+envName)

	if info, err := os.Stat(resolved.DotenvPath); err == nil && !info.IsDir() {
		values, err := godotenv.Read(resolved.DotenvPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", resolved.DotenvPath, err)
		}
		resolved.FromDotenv = true

		if value := values["AUTHPLANE_DB_PASSWORD"]; value != "" {
			resolved.Password = value
		} else if value := values["POSTGRES_PASSWORD"]; value != "" {
			resolved.Password = value
		}
	} else if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to access %s: %w", resolved.DotenvPath, err)
	}

	if resolved.Password == "" {
		return nil, fmt.Errorf("no database password for environment %q: set AUTHPLANE_DB_PASSWORD in %s", envName, resolved.DotenvPath)
	}

	return resolved, nil
}
