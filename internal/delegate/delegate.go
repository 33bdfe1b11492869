// Package delegate invokes the two migrations this tool does not implement
// itself: interactive-user migration and function-code migration. Each is a
// separate external tool that manages its own connections and retries; the
// pipeline only passes environment names, the workspace, and mode flags,
// and reads the exit status.
package delegate

import (
	"context"
	"path/filepath"

	"github.com/authplane/authplane/internal/pgtool"
)

const (
	usersTool     = "authplane-migrate-users"
	functionsTool = "authplane-migrate-functions"
)

// Options are common to every delegated migration.
type Options struct {
	Source      string
	Target      string
	Workspace   string
	AutoConfirm bool
}

func (o Options) args(logPath string) []string {
	args := []string{
		"--source", o.Source,
		"--target", o.Target,
		"--workspace", o.Workspace,
		"--log", logPath,
	}
	if o.AutoConfirm {
		args = append(args, "--yes")
	}
	return args
}

// RunUsers migrates interactive users between the environments. Returns the
// delegated tool's log path.
func RunUsers(ctx context.Context, runner pgtool.Runner, opts Options) (string, error) {
	logPath := filepath.Join(opts.Workspace, "users.log")
	if err := runner.Run(ctx, usersTool, opts.args(logPath), nil); err != nil {
		return logPath, err
	}
	return logPath, nil
}

// RunFunctions migrates function code between the environments. Returns the
// delegated tool's log path.
func RunFunctions(ctx context.Context, runner pgtool.Runner, opts Options) (string, error) {
	logPath := filepath.Join(opts.Workspace, "functions.log")
	if err := runner.Run(ctx, functionsTool, opts.args(logPath), nil); err != nil {
		return logPath, err
	}
	return logPath, nil
}
