// Package pipeline implements the destructive sync of the managed auth
// tables from a source environment into a target environment: extract,
// clear, sanitize, load. Each stage is a hard gate; failure aborts the rest
// of the run and preserves the workspace for post-mortem inspection.
package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/authplane/authplane/internal/config"
	"github.com/authplane/authplane/internal/endpoint"
	"github.com/authplane/authplane/internal/fallback"
	"github.com/authplane/authplane/internal/pg"
	"github.com/authplane/authplane/internal/pgtool"
	"github.com/authplane/authplane/internal/report"
	"github.com/authplane/authplane/internal/sanitize"
)

// Confirmer approves the destructive clear of the target. Injected so
// non-interactive automation and tests stay deterministic.
type Confirmer interface {
	Confirm(source, target string, tables []string) (bool, error)
}

// Options controls one sync run.
type Options struct {
	Source      string
	Target      string
	AutoConfirm bool
	Workspace   string
}

// RunResult describes a completed run and where its artifacts live.
type RunResult struct {
	RunID          string
	Workspace      string
	ArchivePath    string
	LogPath        string
	ReportPath     string
	StageEndpoints map[string]string
	RowCounts      map[string]int64
	Duration       time.Duration
}

// Orchestrator sequences the pipeline stages. Zero-value fields get
// production defaults in Run; tests substitute fakes.
type Orchestrator struct {
	Config  *config.Config
	Confirm Confirmer
	Out     io.Writer

	// Runner executes the external client tools. Defaults to an ExecRunner
	// writing subprocess output into the run log.
	Runner pgtool.Runner

	// RowClear deletes all rows from tables on ep in one transaction. Used
	// only when the structural clear has exhausted every endpoint.
	RowClear func(ctx context.Context, ep endpoint.Endpoint, tables []string) error

	// CountRows serves post-restore verification.
	CountRows func(ctx context.Context, ep endpoint.Endpoint, table string) (int64, error)

	// LockDir holds the per-target run lock. Defaults to the system temp dir.
	LockDir string
}

// New returns an Orchestrator wired with production defaults.
func New(cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		Config:    cfg,
		Out:       os.Stderr,
		RowClear:  rowClear,
		CountRows: countRows,
	}
}

// Run executes the full pipeline. It refuses to run when source and target
// resolve to the same project, and requires confirmation unless
// opts.AutoConfirm is set. On failure the workspace is preserved and the
// returned error names the failing stage and the log to inspect.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*RunResult, error) {
	start := time.Now()
	out := o.Out
	if out == nil {
		out = io.Discard
	}

	source, err := config.ResolveEnvironment(o.Config, opts.Source)
	if err != nil {
		return nil, err
	}
	target, err := config.ResolveEnvironment(o.Config, opts.Target)
	if err != nil {
		return nil, err
	}
	if source.ProjectRef == target.ProjectRef {
		return nil, fmt.Errorf("%w: %q and %q both resolve to project %s",
			ErrSameProject, source.Name, target.Name, source.ProjectRef)
	}

	runID := uuid.NewString()
	ws, err := NewWorkspace(opts.Workspace, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = ws.Close() }()

	lockDir := o.LockDir
	if lockDir == "" {
		lockDir = os.TempDir()
	}
	lock, err := acquireLock(lockDir, target.Name, ws.Dir)
	if err != nil {
		return nil, err
	}
	defer func() { _ = lock.release() }()

	runner := o.Runner
	if runner == nil {
		runner = &pgtool.ExecRunner{Log: ws.LogWriter()}
	}
	rowClearFn := o.RowClear
	if rowClearFn == nil {
		rowClearFn = rowClear
	}

	rs := newRunState(ws.StatePath, runID, source.Name, target.Name)
	if err := rs.save(); err != nil {
		return nil, err
	}
	ws.Printf("run %s: syncing %s -> %s (project %s -> %s)", runID, source.Name, target.Name, source.ProjectRef, target.ProjectRef)

	var removed int
	fail := func(err error) (*RunResult, error) {
		rs.fail(err)
		ws.Printf("run failed in state %s: %v", rs.State, err)
		o.writeReport(rs, ws, removed, nil, start)
		return nil, fmt.Errorf("%w (inspect %s)", err, ws.LogPath)
	}

	// Confirming
	if err := rs.transition(StateConfirming); err != nil {
		return fail(err)
	}
	if !opts.AutoConfirm {
		if o.Confirm == nil {
			return fail(fmt.Errorf("%w: no confirmer configured and --yes not given", ErrConfirmationDeclined))
		}
		ok, err := o.Confirm.Confirm(source.Name, target.Name, ManagedTables)
		if err != nil {
			return fail(fmt.Errorf("%w: %v", ErrConfirmationDeclined, err))
		}
		if !ok {
			return fail(ErrConfirmationDeclined)
		}
	}

	sourceEndpoints := endpoint.Candidates(source)
	targetEndpoints := endpoint.Candidates(target)

	// Dumping
	if err := rs.transition(StateDumping); err != nil {
		return fail(err)
	}
	fmt.Fprintf(out, "Dumping %d tables from %s...\n", len(ManagedTables), source.Name)
	res, err := fallback.Run(ctx, ws, sourceEndpoints, func(ctx context.Context, ep endpoint.Endpoint) error {
		return pgtool.Dump(ctx, runner, ep, ManagedTables, ws.ArchivePath)
	})
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrDumpFailed, err))
	}
	rs.recordEndpoint(StateDumping, res.Endpoint.Label)
	ws.Printf("dump complete via %s endpoint into %s", res.Endpoint.Label, ws.ArchivePath)

	// Clearing
	if err := rs.transition(StateClearing); err != nil {
		return fail(err)
	}
	fmt.Fprintf(out, "Clearing managed tables on %s...\n", target.Name)
	if err := o.clear(ctx, runner, rowClearFn, ws, rs, targetEndpoints); err != nil {
		return fail(err)
	}

	// Sanitizing
	if err := rs.transition(StateSanitizing); err != nil {
		return fail(err)
	}
	fmt.Fprintf(out, "Sanitizing dump...\n")
	if err := pgtool.ExtractSQL(ctx, runner, ws.ArchivePath, ws.ExtractedSQLPath); err != nil {
		return fail(fmt.Errorf("%w: %w", ErrExtractionFailed, err))
	}
	sres, err := sanitize.File(ws.ExtractedSQLPath, ws.RestoreSQLPath)
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrSanitizeFailed, err))
	}
	removed = sres.StatementsRemoved
	ws.Printf("sanitize removed %d sequence assignment statement(s)", removed)
	ws.RemoveIntermediate(ws.ExtractedSQLPath)

	// Restoring
	if err := rs.transition(StateRestoring); err != nil {
		return fail(err)
	}
	fmt.Fprintf(out, "Restoring into %s...\n", target.Name)
	res, err = fallback.Run(ctx, ws, targetEndpoints, func(ctx context.Context, ep endpoint.Endpoint) error {
		return pgtool.ExecFile(ctx, runner, ep, ws.RestoreSQLPath)
	})
	if err != nil {
		return fail(fmt.Errorf("%w: %w", ErrRestoreFailed, err))
	}
	rs.recordEndpoint(StateRestoring, res.Endpoint.Label)
	ws.RemoveIntermediate(ws.RestoreSQLPath)

	// Post-restore verification is informational: a count failure is logged
	// but never fails a run whose restore already succeeded.
	counts := o.verifyCounts(ctx, ws, res.Endpoint)

	if err := rs.transition(StateDone); err != nil {
		return fail(err)
	}
	o.writeReport(rs, ws, removed, counts, start)
	ws.Printf("run %s complete", runID)

	return &RunResult{
		RunID:          runID,
		Workspace:      ws.Dir,
		ArchivePath:    ws.ArchivePath,
		LogPath:        ws.LogPath,
		ReportPath:     ws.ReportPath,
		StageEndpoints: rs.StageEndpoints,
		RowCounts:      counts,
		Duration:       time.Since(start),
	}, nil
}

// clear empties the managed tables on the target. Primary strategy is one
// structural TRUNCATE batch; only after it exhausts every endpoint does the
// transactional row-delete fallback run.
func (o *Orchestrator) clear(ctx context.Context, runner pgtool.Runner, rowClearFn func(context.Context, endpoint.Endpoint, []string) error, ws *Workspace, rs *RunState, endpoints []endpoint.Endpoint) error {
	if err := os.WriteFile(ws.ClearSQLPath, []byte(clearSQL(ManagedTables)), 0o644); err != nil {
		return fmt.Errorf("%w: failed to write clear statements: %w", ErrClearFailed, err)
	}

	res, structuralErr := fallback.Run(ctx, ws, endpoints, func(ctx context.Context, ep endpoint.Endpoint) error {
		return pgtool.ExecFile(ctx, runner, ep, ws.ClearSQLPath)
	})
	if structuralErr == nil {
		rs.recordEndpoint(StateClearing, res.Endpoint.Label)
		ws.RemoveIntermediate(ws.ClearSQLPath)
		return nil
	}

	ws.Printf("structural clear exhausted all endpoints, falling back to row deletes: %v", structuralErr)

	res, deleteErr := fallback.Run(ctx, ws, endpoints, func(ctx context.Context, ep endpoint.Endpoint) error {
		return rowClearFn(ctx, ep, deleteOrder)
	})
	if deleteErr != nil {
		return fmt.Errorf("%w: structural clear: %v; row-delete fallback: %w; target may be partially cleared",
			ErrClearFailed, structuralErr, deleteErr)
	}

	rs.recordEndpoint(StateClearing, res.Endpoint.Label)
	ws.Printf("row-delete fallback cleared %d tables via %s endpoint", len(deleteOrder), res.Endpoint.Label)
	ws.RemoveIntermediate(ws.ClearSQLPath)
	return nil
}

func (o *Orchestrator) verifyCounts(ctx context.Context, ws *Workspace, ep endpoint.Endpoint) map[string]int64 {
	countFn := o.CountRows
	if countFn == nil {
		return nil
	}
	counts := make(map[string]int64, len(ManagedTables))
	for _, table := range ManagedTables {
		n, err := countFn(ctx, ep, table)
		if err != nil {
			ws.Printf("warning: verification count for %s failed: %v", table, err)
			continue
		}
		counts[table] = n
		ws.Printf("verified %s: %d rows", table, n)
	}
	return counts
}

func (o *Orchestrator) writeReport(rs *RunState, ws *Workspace, removed int, counts map[string]int64, start time.Time) {
	rep := &report.Report{
		RunID:             rs.RunID,
		Source:            rs.Source,
		Target:            rs.Target,
		State:             string(rs.State),
		Success:           rs.State == StateDone,
		Tables:            ManagedTables,
		StageEndpoints:    rs.StageEndpoints,
		RowCounts:         counts,
		StatementsRemoved: removed,
		Workspace:         ws.Dir,
		Archive:           ws.ArchivePath,
		Log:               ws.LogPath,
		StartedAt:         start.UTC(),
		FinishedAt:        time.Now().UTC(),
		Error:             rs.Error,
	}
	if err := report.Write(ws.ReportPath, rep); err != nil {
		ws.Printf("warning: failed to write report: %v", err)
	}
}

// clearSQL builds the structural clear batch: one TRUNCATE covering every
// managed table, resetting identity and cascading to dependents.
func clearSQL(tables []string) string {
	stmt := "TRUNCATE TABLE "
	for i, table := range tables {
		if i > 0 {
			stmt += ", "
		}
		stmt += table
	}
	return stmt + " RESTART IDENTITY CASCADE;\n"
}

// rowClear is the production row-delete fallback: every managed table
// emptied in one transaction, children before parents.
func rowClear(ctx context.Context, ep endpoint.Endpoint, tables []string) error {
	db, err := pg.Open(ctx, ep)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	tx, err := db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for _, table := range tables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deletes: %w", err)
	}
	return nil
}

func countRows(ctx context.Context, ep endpoint.Endpoint, table string) (int64, error) {
	db, err := pg.Open(ctx, ep)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()

	var n int64
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
