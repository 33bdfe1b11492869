// Package endpoint derives the ordered list of connection endpoints for an
// environment. The pooled endpoint is always tried first; the direct
// database host is always the last resort.
package endpoint

import (
	"fmt"

	"github.com/authplane/authplane/internal/config"
)

// Endpoint is one candidate connection route to an environment's database.
type Endpoint struct {
	Label    string
	Host     string
	Port     int
	User     string
	Database string
	Password string
}

// Addr returns the host:port pair for logging.
func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Candidates returns the connection endpoints for env in priority order.
// The list is never empty and always terminates with the direct endpoint.
func Candidates(env *config.Environment) []Endpoint {
	var endpoints []Endpoint

	if env.Region != "" {
		endpoints = append(endpoints, Endpoint{
			Label:    "pooler",
			Host:     fmt.Sprintf("aws-0-%s.pooler.supabase.com", env.Region),
			Port:     env.PoolerPort,
			User:     fmt.Sprintf("%s.%s", env.User, env.ProjectRef),
			Database: env.Database,
			Password: env.Password,
		})
	}

	directHost := env.DirectHost
	if directHost == "" {
		directHost = fmt.Sprintf("db.%s.supabase.co", env.ProjectRef)
	}
	endpoints = append(endpoints, Endpoint{
		Label:    "direct",
		Host:     directHost,
		Port:     env.DirectPort,
		User:     env.User,
		Database: env.Database,
		Password: env.Password,
	})

	return endpoints
}
