// Package sanitize rewrites an extracted SQL stream so that statements
// reassigning sequence state never reach the target environment. Sequence
// watermarks belong to the target; copying the source's values corrupts it.
//
// The filter works on statement boundaries, not raw lines: a candidate
// statement is only dropped after pg_query confirms it really is a
// sequence assignment, so a data literal that merely contains the marker
// text is always passed through unchanged.
package sanitize

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
)

// maxLineSize accommodates wide COPY data rows.
const maxLineSize = 16 * 1024 * 1024

// Result summarizes one sanitize pass.
type Result struct {
	StatementsRemoved int
}

// File filters the SQL at inPath into outPath. Statement order is
// preserved; only sequence-assignment statements are removed.
func File(inPath, outPath string) (*Result, error) {
	in, err := os.Open(inPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open extracted SQL: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create sanitized SQL: %w", err)
	}

	result, err := Stream(in, out)
	if err != nil {
		_ = out.Close()
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("failed to write sanitized SQL: %w", err)
	}
	return result, nil
}

// Stream copies SQL from r to w, dropping sequence-assignment statements.
// COPY ... FROM stdin data blocks are passed through opaquely and never
// inspected.
func Stream(r io.Reader, w io.Writer) (*Result, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	writer := bufio.NewWriter(w)

	result := &Result{}
	var stmt []string
	inCopyData := false

	flush := func(drop bool) error {
		if len(stmt) == 0 {
			return nil
		}
		if drop {
			result.StatementsRemoved++
		} else {
			for _, line := range stmt {
				if _, err := fmt.Fprintln(writer, line); err != nil {
					return err
				}
			}
		}
		stmt = stmt[:0]
		return nil
	}

	for scanner.Scan() {
		line := scanner.Text()

		if inCopyData {
			if _, err := fmt.Fprintln(writer, line); err != nil {
				return nil, fmt.Errorf("failed to write sanitized SQL: %w", err)
			}
			if line == `\.` {
				inCopyData = false
			}
			continue
		}

		trimmed := strings.TrimSpace(line)

		// Blank lines and comments between statements pass straight through.
		if len(stmt) == 0 && (trimmed == "" || strings.HasPrefix(trimmed, "--")) {
			if _, err := fmt.Fprintln(writer, line); err != nil {
				return nil, fmt.Errorf("failed to write sanitized SQL: %w", err)
			}
			continue
		}

		stmt = append(stmt, line)

		if strings.HasSuffix(trimmed, "FROM stdin;") && strings.HasPrefix(strings.ToUpper(trimmed), "COPY ") {
			if err := flush(false); err != nil {
				return nil, fmt.Errorf("failed to write sanitized SQL: %w", err)
			}
			inCopyData = true
			continue
		}

		if strings.HasSuffix(trimmed, ";") {
			full := strings.Join(stmt, "\n")
			if err := flush(isSequenceAssignment(full)); err != nil {
				return nil, fmt.Errorf("failed to write sanitized SQL: %w", err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read extracted SQL: %w", err)
	}

	// Trailing partial statement (no terminating semicolon) passes through.
	if err := flush(false); err != nil {
		return nil, fmt.Errorf("failed to write sanitized SQL: %w", err)
	}

	if err := writer.Flush(); err != nil {
		return nil, fmt.Errorf("failed to write sanitized SQL: %w", err)
	}
	return result, nil
}

// isSequenceAssignment reports whether sql is a statement that sets a
// sequence's current value: a setval() call or ALTER SEQUENCE ... RESTART.
// Statements that fail to parse are kept, never dropped.
func isSequenceAssignment(sql string) bool {
	lower := strings.ToLower(sql)
	if !strings.Contains(lower, "setval") && !strings.Contains(lower, "alter sequence") {
		return false
	}

	tree, err := pg_query.Parse(sql)
	if err != nil {
		return false
	}

	for _, raw := range tree.Stmts {
		if raw.Stmt == nil {
			continue
		}
		switch node := raw.Stmt.Node.(type) {
		case *pg_query.Node_SelectStmt:
			if selectCallsSetval(node.SelectStmt) {
				return true
			}
		case *pg_query.Node_AlterSeqStmt:
			for _, opt := range node.AlterSeqStmt.Options {
				if def, ok := opt.Node.(*pg_query.Node_DefElem); ok {
					name := def.DefElem.Defname
					if name == "restart" || name == "start" {
						return true
					}
				}
			}
		}
	}
	return false
}

func selectCallsSetval(stmt *pg_query.SelectStmt) bool {
	for _, target := range stmt.TargetList {
		res, ok := target.Node.(*pg_query.Node_ResTarget)
		if !ok || res.ResTarget.Val == nil {
			continue
		}
		call, ok := res.ResTarget.Val.Node.(*pg_query.Node_FuncCall)
		if !ok {
			continue
		}
		names := call.FuncCall.Funcname
		if len(names) == 0 {
			continue
		}
		last, ok := names[len(names)-1].Node.(*pg_query.Node_String_)
		if ok && last.String_.Sval == "setval" {
			return true
		}
	}
	return false
}
