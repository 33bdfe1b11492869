package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/authplane/authplane/internal/config"
	"github.com/authplane/authplane/internal/endpoint"
	"github.com/authplane/authplane/internal/report"
)

const sampleExtractedSQL = `COPY auth.sessions (id, user_id) FROM stdin;
1	u1
\.

SELECT pg_catalog.setval('auth.sessions_id_seq', 1, true);
`

type call struct {
	name string
	args []string
}

// fakeRunner emulates the client tools: it records every invocation,
// consults hook for failures, and creates the output files the real tools
// would produce.
type fakeRunner struct {
	calls []call
	hook  func(name string, args []string) error
}

func (r *fakeRunner) Run(ctx context.Context, name string, args []string, env []string) error {
	r.calls = append(r.calls, call{name: name, args: args})
	if r.hook != nil {
		if err := r.hook(name, args); err != nil {
			return err
		}
	}
	switch name {
	case "pg_dump":
		if path := fileArg(args); path != "" {
			if err := os.WriteFile(path, []byte("fake archive"), 0o644); err != nil {
				return err
			}
		}
	case "pg_restore":
		if path := fileArg(args); path != "" {
			if err := os.WriteFile(path, []byte(sampleExtractedSQL), 0o644); err != nil {
				return err
			}
		}
	}
	return nil
}

func fileArg(args []string) string {
	for i, arg := range args {
		if strings.HasPrefix(arg, "--file=") {
			return strings.TrimPrefix(arg, "--file=")
		}
		if arg == "--file" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func argsContain(args []string, substr string) bool {
	for _, arg := range args {
		if strings.Contains(arg, substr) {
			return true
		}
	}
	return false
}

type fakeConfirmer struct {
	answer bool
	asked  int
}

func (c *fakeConfirmer) Confirm(source, target string, tables []string) (bool, error) {
	c.asked++
	return c.answer, nil
}

func testConfig(t *testing.T, sourceRef, targetRef string) *config.Config {
	t.Helper()
	return &config.Config{
		ConfigFilePath: filepath.Join(t.TempDir(), "authplane.toml"),
		Environments: map[string]config.EnvironmentConfig{
			"staging": {ProjectRef: sourceRef, Region: "us-east-1", Password: "src-pass"},
			"dev":     {ProjectRef: targetRef, Region: "us-east-1", Password: "tgt-pass"},
		},
	}
}

func testOrchestrator(t *testing.T, cfg *config.Config, runner *fakeRunner) *Orchestrator {
	t.Helper()
	return &Orchestrator{
		Config:  cfg,
		Runner:  runner,
		Confirm: &fakeConfirmer{answer: true},
		Out:     io.Discard,
		LockDir: t.TempDir(),
		RowClear: func(ctx context.Context, ep endpoint.Endpoint, tables []string) error {
			return errors.New("row clear not expected in this test")
		},
		CountRows: func(ctx context.Context, ep endpoint.Endpoint, table string) (int64, error) {
			return 10, nil
		},
	}
}

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		Source:      "staging",
		Target:      "dev",
		AutoConfirm: true,
		Workspace:   filepath.Join(t.TempDir(), "ws"),
	}
}

func TestRunSameProjectFailsFast(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	orch := testOrchestrator(t, testConfig(t, "samealikeref0000", "samealikeref0000"), runner)

	_, err := orch.Run(context.Background(), testOptions(t))
	if !errors.Is(err, ErrSameProject) {
		t.Fatalf("Expected ErrSameProject, got %v", err)
	}
	if len(runner.calls) != 0 {
		t.Fatalf("Expected no tool invocations, got %d", len(runner.calls))
	}
}

func TestRunHappyPath(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	orch := testOrchestrator(t, testConfig(t, "sourceref0000000", "targetref0000000"), runner)
	opts := testOptions(t)

	result, err := orch.Run(context.Background(), opts)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	var names []string
	for _, c := range runner.calls {
		names = append(names, c.name)
	}
	want := []string{"pg_dump", "psql", "pg_restore", "psql"}
	if len(names) != len(want) {
		t.Fatalf("Expected calls %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("Expected call %d to be %s, got %s", i, want[i], names[i])
		}
	}

	dump := runner.calls[0]
	if !argsContain(dump.args, "--data-only") {
		t.Fatal("Expected pg_dump to run data-only")
	}
	for _, table := range ManagedTables {
		if !argsContain(dump.args, table) {
			t.Fatalf("Expected pg_dump to be restricted to %s", table)
		}
	}

	// Pooled endpoint serves every stage when it is healthy.
	if result.StageEndpoints[string(StateDumping)] != "pooler" {
		t.Fatalf("Expected dump via pooler, got %q", result.StageEndpoints[string(StateDumping)])
	}

	rs, err := LoadRunState(filepath.Join(opts.Workspace, "state.json"))
	if err != nil {
		t.Fatalf("Failed to load run state: %v", err)
	}
	if rs.State != StateDone {
		t.Fatalf("Expected final state done, got %s", rs.State)
	}

	rep, err := report.Load(result.ReportPath)
	if err != nil {
		t.Fatalf("Failed to load report: %v", err)
	}
	if !rep.Success {
		t.Fatal("Expected report to mark the run successful")
	}
	if rep.StatementsRemoved != 1 {
		t.Fatalf("Expected 1 sanitized statement in report, got %d", rep.StatementsRemoved)
	}

	// Intermediate SQL is gone; archive, log, state, and report remain.
	for _, gone := range []string{"clear.sql", "restore.sql", "extracted.sql"} {
		if _, err := os.Stat(filepath.Join(opts.Workspace, gone)); !os.IsNotExist(err) {
			t.Fatalf("Expected intermediate file %s to be removed", gone)
		}
	}
	for _, kept := range []string{"auth-data.dump", "sync.log", "state.json", "report.json"} {
		if _, err := os.Stat(filepath.Join(opts.Workspace, kept)); err != nil {
			t.Fatalf("Expected artifact %s to be retained: %v", kept, err)
		}
	}

	if result.RowCounts["auth.sessions"] != 10 {
		t.Fatalf("Expected verification counts in result, got %v", result.RowCounts)
	}
}

func TestRunDumpFallsBackToDirect(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	runner.hook = func(name string, args []string) error {
		if name == "pg_dump" && argsContain(args, "pooler.supabase.com") {
			return errors.New("pooler unreachable")
		}
		return nil
	}
	orch := testOrchestrator(t, testConfig(t, "sourceref0000000", "targetref0000000"), runner)

	result, err := orch.Run(context.Background(), testOptions(t))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if result.StageEndpoints[string(StateDumping)] != "direct" {
		t.Fatalf("Expected dump to fall back to direct endpoint, got %q", result.StageEndpoints[string(StateDumping)])
	}
}

func TestRunDumpFailedWhenAllEndpointsFail(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	runner.hook = func(name string, args []string) error {
		if name == "pg_dump" {
			return errors.New("no route to host")
		}
		return nil
	}
	orch := testOrchestrator(t, testConfig(t, "sourceref0000000", "targetref0000000"), runner)
	opts := testOptions(t)

	_, err := orch.Run(context.Background(), opts)
	if !errors.Is(err, ErrDumpFailed) {
		t.Fatalf("Expected ErrDumpFailed, got %v", err)
	}

	// Nothing destructive may have reached the target.
	for _, c := range runner.calls {
		if c.name == "psql" {
			t.Fatal("Expected no psql invocation after dump failure")
		}
	}

	rs, err := LoadRunState(filepath.Join(opts.Workspace, "state.json"))
	if err != nil {
		t.Fatalf("Failed to load run state: %v", err)
	}
	if rs.State != StateFailed {
		t.Fatalf("Expected failed state, got %s", rs.State)
	}
}

func TestRunConfirmationDeclined(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	orch := testOrchestrator(t, testConfig(t, "sourceref0000000", "targetref0000000"), runner)
	confirmer := &fakeConfirmer{answer: false}
	orch.Confirm = confirmer

	opts := testOptions(t)
	opts.AutoConfirm = false

	_, err := orch.Run(context.Background(), opts)
	if !errors.Is(err, ErrConfirmationDeclined) {
		t.Fatalf("Expected ErrConfirmationDeclined, got %v", err)
	}
	if confirmer.asked != 1 {
		t.Fatalf("Expected exactly one confirmation request, got %d", confirmer.asked)
	}
	if len(runner.calls) != 0 {
		t.Fatal("Expected no tool invocations after declined confirmation")
	}
}

func TestRunAutoConfirmSkipsPrompt(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	orch := testOrchestrator(t, testConfig(t, "sourceref0000000", "targetref0000000"), runner)
	confirmer := &fakeConfirmer{answer: false}
	orch.Confirm = confirmer

	if _, err := orch.Run(context.Background(), testOptions(t)); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if confirmer.asked != 0 {
		t.Fatalf("Expected no confirmation request with AutoConfirm, got %d", confirmer.asked)
	}
}

func TestRunClearFallsBackToRowDelete(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	runner.hook = func(name string, args []string) error {
		if name == "psql" && argsContain(args, "clear.sql") {
			return errors.New("cannot truncate: sequence ownership conflict")
		}
		return nil
	}

	orch := testOrchestrator(t, testConfig(t, "sourceref0000000", "targetref0000000"), runner)
	var clearedTables []string
	orch.RowClear = func(ctx context.Context, ep endpoint.Endpoint, tables []string) error {
		clearedTables = append([]string{}, tables...)
		return nil
	}

	result, err := orch.Run(context.Background(), testOptions(t))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(clearedTables) != len(ManagedTables) {
		t.Fatalf("Expected row-delete fallback to cover all %d tables, got %d", len(ManagedTables), len(clearedTables))
	}
	// Children must be deleted before their parents.
	if clearedTables[0] != "auth.mfa_amr_claims" {
		t.Fatalf("Expected child tables first in delete order, got %v", clearedTables)
	}
	if result.StageEndpoints[string(StateClearing)] == "" {
		t.Fatal("Expected clearing endpoint to be recorded")
	}
}

func TestRunClearFailedStopsBeforeRestore(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	runner.hook = func(name string, args []string) error {
		if name == "psql" && argsContain(args, "clear.sql") {
			return errors.New("truncate refused")
		}
		return nil
	}

	orch := testOrchestrator(t, testConfig(t, "sourceref0000000", "targetref0000000"), runner)
	orch.RowClear = func(ctx context.Context, ep endpoint.Endpoint, tables []string) error {
		return errors.New("delete refused")
	}

	opts := testOptions(t)
	_, err := orch.Run(context.Background(), opts)
	if !errors.Is(err, ErrClearFailed) {
		t.Fatalf("Expected ErrClearFailed, got %v", err)
	}

	for _, c := range runner.calls {
		if c.name == "pg_restore" || (c.name == "psql" && argsContain(c.args, "restore.sql")) {
			t.Fatal("Expected no restore activity after clear failure")
		}
	}
}

func TestRunRestoreFailedPreservesArtifacts(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	runner.hook = func(name string, args []string) error {
		if name == "psql" && argsContain(args, "restore.sql") {
			return errors.New("ERROR: duplicate key value on statement 5")
		}
		return nil
	}

	orch := testOrchestrator(t, testConfig(t, "sourceref0000000", "targetref0000000"), runner)
	opts := testOptions(t)

	_, err := orch.Run(context.Background(), opts)
	if !errors.Is(err, ErrRestoreFailed) {
		t.Fatalf("Expected ErrRestoreFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), opts.Workspace) {
		t.Fatalf("Expected error to point at the workspace log, got %v", err)
	}

	// The sanitized SQL and archive stay behind for the post-mortem.
	for _, kept := range []string{"restore.sql", "auth-data.dump", "sync.log", "state.json", "report.json"} {
		if _, statErr := os.Stat(filepath.Join(opts.Workspace, kept)); statErr != nil {
			t.Fatalf("Expected %s to be preserved after restore failure: %v", kept, statErr)
		}
	}

	rep, err := report.Load(filepath.Join(opts.Workspace, "report.json"))
	if err != nil {
		t.Fatalf("Failed to load failure report: %v", err)
	}
	if rep.Success {
		t.Fatal("Expected failure report")
	}
	if rep.State != string(StateFailed) {
		t.Fatalf("Expected failed state in report, got %q", rep.State)
	}
}

func TestRunLockedTargetFailsFast(t *testing.T) {
	t.Parallel()

	lockDir := t.TempDir()
	lock, err := acquireLock(lockDir, "dev", "elsewhere")
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer func() { _ = lock.release() }()

	runner := &fakeRunner{}
	orch := testOrchestrator(t, testConfig(t, "sourceref0000000", "targetref0000000"), runner)
	orch.LockDir = lockDir

	_, err = orch.Run(context.Background(), testOptions(t))
	if !errors.Is(err, ErrRunLocked) {
		t.Fatalf("Expected ErrRunLocked, got %v", err)
	}
	if len(runner.calls) != 0 {
		t.Fatal("Expected no tool invocations while the target is locked")
	}
}

func TestRunUnknownEnvironment(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	orch := testOrchestrator(t, testConfig(t, "sourceref0000000", "targetref0000000"), runner)

	opts := testOptions(t)
	opts.Source = "production"

	if _, err := orch.Run(context.Background(), opts); err == nil {
		t.Fatal("Expected error for unknown source environment")
	}
	if len(runner.calls) != 0 {
		t.Fatal("Expected no tool invocations for unresolvable environments")
	}
}

func TestClearSQL(t *testing.T) {
	t.Parallel()

	sql := clearSQL([]string{"auth.a", "auth.b"})
	want := "TRUNCATE TABLE auth.a, auth.b RESTART IDENTITY CASCADE;\n"
	if sql != want {
		t.Fatalf("Expected %q, got %q", want, sql)
	}
}

func TestManagedTableSetsAgree(t *testing.T) {
	t.Parallel()

	if len(ManagedTables) != len(deleteOrder) {
		t.Fatalf("Managed set (%d) and delete order (%d) must cover the same tables", len(ManagedTables), len(deleteOrder))
	}
	seen := make(map[string]bool, len(ManagedTables))
	for _, table := range ManagedTables {
		seen[table] = true
	}
	for _, table := range deleteOrder {
		if !seen[table] {
			t.Fatalf("Table %s in delete order but not managed", table)
		}
	}
}

func TestRunStateTransitionsPersist(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state.json")
	rs := newRunState(path, "run-1", "staging", "dev")
	if err := rs.save(); err != nil {
		t.Fatalf("Failed to save initial state: %v", err)
	}
	if err := rs.transition(StateDumping); err != nil {
		t.Fatalf("Failed to transition: %v", err)
	}
	rs.recordEndpoint(StateDumping, "pooler")

	loaded, err := LoadRunState(path)
	if err != nil {
		t.Fatalf("Failed to load state: %v", err)
	}
	if loaded.State != StateDumping {
		t.Fatalf("Expected persisted state dumping, got %s", loaded.State)
	}
	if loaded.StageEndpoints[string(StateDumping)] != "pooler" {
		t.Fatalf("Expected endpoint record to persist, got %v", loaded.StageEndpoints)
	}

	rs.fail(fmt.Errorf("boom"))
	loaded, err = LoadRunState(path)
	if err != nil {
		t.Fatalf("Failed to reload state: %v", err)
	}
	if loaded.State != StateFailed || loaded.Error != "boom" {
		t.Fatalf("Expected failed state with error, got %s %q", loaded.State, loaded.Error)
	}
}

func TestLockStaleReplaced(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := lockPath(dir, "dev")
	if err := os.WriteFile(path, []byte(`{"target":"dev","pid":999999999,"workspace":"old"}`), 0o600); err != nil {
		t.Fatalf("Failed to plant stale lock: %v", err)
	}

	lock, err := acquireLock(dir, "dev", "new-ws")
	if err != nil {
		t.Fatalf("Expected stale lock to be replaced, got %v", err)
	}
	defer func() { _ = lock.release() }()

	if lock.PID != os.Getpid() {
		t.Fatalf("Expected lock owned by this process, got pid %d", lock.PID)
	}
}
