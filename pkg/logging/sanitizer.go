package logging

import (
	"regexp"
)

const (
	// MaxSQLLogLength is the maximum length of a SQL statement to log.
	MaxSQLLogLength = 200
	// MaxErrorLength bounds recorded database error text so state stays
	// compact across long runs.
	MaxErrorLength = 2000
	// RedactedText is the replacement text for sensitive data.
	RedactedText = "[REDACTED]"
)

var (
	// Matches password=xxx, pwd=xxx, pass=xxx until the next delimiter.
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Matches potential API keys and tokens in key=value form.
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|token|key)=[A-Za-z0-9-_.]{20,}`)

	// Matches user:pass@host credentials embedded in URLs/DSNs.
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)
)

// TruncateSQL shortens a SQL statement for log output.
func TruncateSQL(sql string) string {
	if len(sql) <= MaxSQLLogLength {
		return sql
	}
	return sql[:MaxSQLLogLength] + "..."
}

// TruncateError bounds error text recorded into analysis state.
func TruncateError(msg string) string {
	if len(msg) <= MaxErrorLength {
		return msg
	}
	return msg[:MaxErrorLength]
}

// SanitizeConnectionString removes credentials from connection strings
// before they reach logs.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	sanitized = apiKeyPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	sanitized = connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
	return sanitized
}

// SanitizeError sanitizes an error message that might embed credentials,
// e.g. a driver error echoing the DSN.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return SanitizeConnectionString(err.Error())
}
