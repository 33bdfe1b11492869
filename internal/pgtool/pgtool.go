// Package pgtool wraps the PostgreSQL client tools (pg_dump, pg_restore,
// psql) as black-box process invocations. Exit status is the sole success
// signal; stderr is captured into the returned error and teed into the run
// log.
package pgtool

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/authplane/authplane/internal/endpoint"
)

// connectTimeoutSeconds bounds each connection attempt so a dead endpoint
// fails over to the next candidate instead of hanging.
const connectTimeoutSeconds = 10

// Runner executes an external command. Tests swap in a fake so no client
// tools or databases are needed.
type Runner interface {
	Run(ctx context.Context, name string, args []string, env []string) error
}

// ExecRunner runs commands with os/exec. Stderr is copied to Log (the
// per-run log file) as well as into any returned error.
type ExecRunner struct {
	Log io.Writer
}

func (r *ExecRunner) Run(ctx context.Context, name string, args []string, env []string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), env...)

	var stderr strings.Builder
	if r.Log != nil {
		cmd.Stderr = io.MultiWriter(&stderr, r.Log)
		cmd.Stdout = r.Log
	} else {
		cmd.Stderr = &stderr
	}

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("%s failed: %w (stderr: %s)", name, err, msg)
		}
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

// connArgs are the flags shared by every tool that connects to an endpoint.
func connArgs(ep endpoint.Endpoint) []string {
	return []string{
		"-h", ep.Host,
		"-p", strconv.Itoa(ep.Port),
		"-U", ep.User,
		"-d", ep.Database,
	}
}

func connEnv(ep endpoint.Endpoint) []string {
	return []string{
		"PGPASSWORD=" + ep.Password,
		"PGCONNECT_TIMEOUT=" + strconv.Itoa(connectTimeoutSeconds),
	}
}

// DumpArgs builds the pg_dump invocation for a data-only, table-restricted
// custom-format archive with no ownership or privilege metadata.
func DumpArgs(ep endpoint.Endpoint, tables []string, archivePath string) []string {
	args := append(connArgs(ep),
		"--format=custom",
		"--data-only",
		"--no-owner",
		"--no-privileges",
	)
	for _, table := range tables {
		args = append(args, "--table="+table)
	}
	return append(args, "--file="+archivePath)
}

// Dump extracts the given tables from ep into a custom-format archive.
func Dump(ctx context.Context, r Runner, ep endpoint.Endpoint, tables []string, archivePath string) error {
	return r.Run(ctx, "pg_dump", DumpArgs(ep, tables, archivePath), connEnv(ep))
}

// ExtractSQLArgs builds the pg_restore invocation that converts a custom
// archive into a literal SQL statement stream. Purely local, no endpoint.
func ExtractSQLArgs(archivePath, sqlPath string) []string {
	return []string{
		"--data-only",
		"--no-owner",
		"--no-privileges",
		"--file=" + sqlPath,
		archivePath,
	}
}

// ExtractSQL converts archivePath into a SQL file at sqlPath.
func ExtractSQL(ctx context.Context, r Runner, archivePath, sqlPath string) error {
	return r.Run(ctx, "pg_restore", ExtractSQLArgs(archivePath, sqlPath), nil)
}

// ExecFileArgs builds the psql invocation for executing a SQL file in a
// single transaction with abort-on-first-error semantics.
func ExecFileArgs(ep endpoint.Endpoint, sqlPath string) []string {
	return append(connArgs(ep),
		"--set", "ON_ERROR_STOP=1",
		"--single-transaction",
		"--file", sqlPath,
	)
}

// ExecFile runs sqlPath against ep via psql.
func ExecFile(ctx context.Context, r Runner, ep endpoint.Endpoint, sqlPath string) error {
	return r.Run(ctx, "psql", ExecFileArgs(ep, sqlPath), connEnv(ep))
}
