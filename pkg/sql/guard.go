// Package sql guards model-generated SQL before it reaches a datasource:
// single read-only statements only, normalized for limit injection.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the statement contains more than one
	// SQL statement.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed")

	// ErrNotReadOnly indicates the statement is not a SELECT or WITH query.
	ErrNotReadOnly = errors.New("only SELECT statements are allowed")

	// ErrEmptyStatement indicates there is nothing to execute.
	ErrEmptyStatement = errors.New("empty SQL statement")
)

// Normalize validates a generated statement and returns it ready for
// execution: trailing semicolon stripped, surrounding whitespace trimmed.
// Statements that are empty, contain embedded semicolons outside string
// literals, or do not read data are rejected.
func Normalize(stmt string) (string, error) {
	stmt = stripTrailingSemicolon(strings.TrimSpace(stmt))
	if stmt == "" {
		return "", ErrEmptyStatement
	}
	if hasSemicolonOutsideStrings(stmt) {
		return "", ErrMultipleStatements
	}
	if !isReadStatement(stmt) {
		return "", ErrNotReadOnly
	}
	return stmt, nil
}

// isReadStatement reports whether the statement starts with a read verb.
// Generated queries are SELECTs, optionally behind a WITH clause.
func isReadStatement(stmt string) bool {
	first := strings.ToLower(firstWord(stmt))
	return first == "select" || first == "with"
}

func firstWord(s string) string {
	s = strings.TrimLeft(s, " \t\n\r(")
	if i := strings.IndexAny(s, " \t\n\r("); i >= 0 {
		return s[:i]
	}
	return s
}

// hasSemicolonOutsideStrings scans for a semicolon that is not inside a
// single- or double-quoted literal. After the trailing semicolon is
// stripped, any remaining one means a second statement.
func hasSemicolonOutsideStrings(stmt string) bool {
	const (
		stateNormal = iota
		stateSingleQuote
		stateDoubleQuote
	)

	state := stateNormal
	prev := rune(0)

	for _, ch := range stmt {
		switch state {
		case stateNormal:
			switch ch {
			case ';':
				return true
			case '\'':
				state = stateSingleQuote
			case '"':
				state = stateDoubleQuote
			}
		case stateSingleQuote:
			// Both backslash escape (\') and SQL doubled quote ('') are
			// handled: the doubled quote exits and immediately re-enters.
			if ch == '\'' && prev != '\\' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if ch == '"' && prev != '\\' {
				state = stateNormal
			}
		}
		prev = ch
	}

	return false
}

func stripTrailingSemicolon(stmt string) string {
	stmt = strings.TrimRight(stmt, " \t\n\r")
	if strings.HasSuffix(stmt, ";") {
		stmt = strings.TrimRight(strings.TrimSuffix(stmt, ";"), " \t\n\r")
	}
	return stmt
}
