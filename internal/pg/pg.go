// Package pg opens direct database/sql connections over lib/pq for the few
// places the pipeline speaks SQL itself rather than through the client
// tools: the row-delete clear fallback and post-restore verification.
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/authplane/authplane/internal/endpoint"
)

// Open connects to ep and verifies the connection with a ping.
func Open(ctx context.Context, ep endpoint.Endpoint) (*sql.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=require connect_timeout=10",
		ep.Host, ep.Port, ep.User, ep.Password, ep.Database)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
