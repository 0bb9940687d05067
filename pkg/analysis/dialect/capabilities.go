// Package dialect describes per-dialect SQL capabilities used for prompt
// construction and for post-processing generated SQL.
package dialect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/insightline/analyst-engine/pkg/models"
)

// Capabilities is the static description of one SQL dialect.
type Capabilities struct {
	// Limit is the row-limiting idiom shown to the model, e.g. "LIMIT n".
	Limit string
	// LimitPrefix is true for dialects whose row-limiting syntax goes
	// immediately after the leading SELECT keyword (e.g. mssql TOP).
	LimitPrefix bool
	// DateTrunc is the date-truncation idiom.
	DateTrunc string
	// Timezone is the timezone-conversion idiom; empty when unsupported.
	Timezone string
	// StringAgg is the string-aggregation idiom.
	StringAgg string
	// ILike reports case-insensitive match support.
	ILike bool
	// IdentifierQuote is the identifier quoting character.
	IdentifierQuote string
	// Examples are canonical statements used purely for prompt construction.
	Examples []string
}

var capabilities = map[models.Dialect]Capabilities{
	models.DialectPostgres: {
		Limit:           "LIMIT n",
		DateTrunc:       "DATE_TRUNC('month', ts_column)",
		Timezone:        "ts_column AT TIME ZONE 'Asia/Kolkata'",
		StringAgg:       "STRING_AGG(column, ',')",
		ILike:           true,
		IdentifierQuote: `"`,
		Examples: []string{
			"SELECT DATE_TRUNC('month', created_at) AS month, COUNT(*) FROM orders GROUP BY 1",
			"SELECT * FROM users WHERE email ILIKE '%@example.com'",
			"WITH monthly_sales AS (SELECT 1) SELECT * FROM monthly_sales",
		},
	},
	models.DialectMySQL: {
		Limit:           "LIMIT n",
		DateTrunc:       "DATE_FORMAT(ts_column, '%Y-%m-01')",
		Timezone:        "CONVERT_TZ(ts_column, '+00:00', '+05:30')",
		StringAgg:       "GROUP_CONCAT(column)",
		IdentifierQuote: "`",
		Examples: []string{
			"SELECT DATE_FORMAT(created_at, '%Y-%m-01') AS month, COUNT(*) FROM orders GROUP BY 1",
			"SELECT * FROM users WHERE LOWER(email) LIKE LOWER('%@example.com%')",
			"SELECT GROUP_CONCAT(name) FROM users",
		},
	},
	models.DialectSQLite: {
		Limit:           "LIMIT n",
		DateTrunc:       "strftime('%Y-%m-01', ts_column)",
		StringAgg:       "GROUP_CONCAT(column)",
		IdentifierQuote: `"`,
		Examples: []string{
			"SELECT strftime('%Y-%m-01', created_at) AS month, COUNT(*) FROM orders GROUP BY 1",
			"SELECT * FROM users WHERE LOWER(email) LIKE LOWER('%@example.com%')",
			"SELECT GROUP_CONCAT(name) FROM users",
		},
	},
	models.DialectSnowflake: {
		Limit:           "LIMIT n",
		DateTrunc:       "DATE_TRUNC('month', ts_column)",
		Timezone:        "CONVERT_TIMEZONE('Asia/Kolkata', ts_column)",
		StringAgg:       "LISTAGG(column, ',')",
		ILike:           true,
		IdentifierQuote: `"`,
		Examples: []string{
			"SELECT DATE_TRUNC('month', created_at) AS month, COUNT(*) FROM orders GROUP BY 1",
			"SELECT * FROM users WHERE email ILIKE '%@example.com'",
			"SELECT * FROM (SELECT *, ROW_NUMBER() OVER (ORDER BY sales DESC) AS rn FROM products) QUALIFY rn <= 10",
		},
	},
	models.DialectBigQuery: {
		Limit:           "LIMIT n",
		DateTrunc:       "TIMESTAMP_TRUNC(ts_column, MONTH)",
		Timezone:        "TIMESTAMP(ts_column, 'Asia/Kolkata')",
		StringAgg:       "STRING_AGG(column, ',')",
		IdentifierQuote: "`",
		Examples: []string{
			"SELECT TIMESTAMP_TRUNC(created_at, MONTH) AS month, COUNT(*) FROM `project.dataset.orders` GROUP BY 1",
			"SELECT * FROM `project.dataset.users` WHERE LOWER(email) LIKE LOWER('%@example.com%')",
			"SELECT STRING_AGG(name, ',') FROM `project.dataset.users`",
		},
	},
	models.DialectMSSQL: {
		Limit:           "TOP n",
		LimitPrefix:     true,
		DateTrunc:       "DATETRUNC(month, ts_column)",
		StringAgg:       "STRING_AGG(column, ',')",
		IdentifierQuote: "[",
		Examples: []string{
			"SELECT TOP 100 DATETRUNC(month, created_at) AS month, COUNT(*) FROM [orders] GROUP BY DATETRUNC(month, created_at)",
			"SELECT * FROM [users] WHERE LOWER(email) LIKE LOWER('%@example.com%')",
			"SELECT STRING_AGG(name, ',') FROM [users]",
		},
	},
	models.DialectDuckDB: {
		Limit:           "LIMIT n",
		DateTrunc:       "DATE_TRUNC('month', ts_column)",
		Timezone:        "ts_column AT TIME ZONE 'Asia/Kolkata'",
		StringAgg:       "STRING_AGG(column, ',')",
		ILike:           true,
		IdentifierQuote: `"`,
		Examples: []string{
			"SELECT DATE_TRUNC('month', created_at) AS month, COUNT(*) FROM orders GROUP BY 1",
			"SELECT * FROM users WHERE email ILIKE '%@example.com'",
			"SELECT STRING_AGG(name, ',') FROM users",
		},
	},
}

// Get returns the capabilities for a dialect, defaulting to postgres for
// unknown dialects so prompt construction never fails.
func Get(d models.Dialect) Capabilities {
	if caps, ok := capabilities[d]; ok {
		return caps
	}
	return capabilities[models.DialectPostgres]
}

var (
	limitWordPattern  = regexp.MustCompile(`(?i)\bLIMIT\s+\d`)
	topWordPattern    = regexp.MustCompile(`(?i)\bTOP\s*\(?\s*\d`)
	leadingSelectOnly = regexp.MustCompile(`(?i)^\s*SELECT\b`)
)

// EnsureLimit guarantees a row cap on the statement. Statements that
// already carry a LIMIT or TOP clause are returned unmodified. For
// prefix-positioned dialects the cap is injected immediately after the
// leading SELECT keyword; otherwise it is appended as a trailing clause.
func EnsureLimit(sql string, d models.Dialect, rowCap int) string {
	if rowCap <= 0 {
		return sql
	}
	if limitWordPattern.MatchString(sql) || topWordPattern.MatchString(sql) {
		return sql
	}

	caps := Get(d)
	if caps.LimitPrefix {
		loc := leadingSelectOnly.FindStringIndex(sql)
		if loc == nil {
			return sql
		}
		return sql[:loc[1]] + fmt.Sprintf(" TOP %d", rowCap) + sql[loc[1]:]
	}

	return fmt.Sprintf("%s LIMIT %d", strings.TrimRight(strings.TrimSpace(sql), ";"), rowCap)
}
