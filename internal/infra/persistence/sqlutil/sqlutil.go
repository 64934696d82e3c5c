// Package sqlutil carries the small helpers shared by the SQL-backed node
// stores.
package sqlutil

import (
	"bufio"
	"strings"
)

// SplitStatements splits a semicolon-terminated DDL script into executable
// statements. It drops blank lines and single-line comments that start with
// "--", so schema files stay readable without confusing drivers that reject
// multi-statement Exec calls.
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	flush := func() {
		stmt := strings.TrimSpace(current.String())
		if stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	if tail := strings.TrimSpace(current.String()); tail != "" {
		stmts = append(stmts, tail)
	}
	return stmts
}
