// Package datasource defines the connector contract the analysis engine
// executes against, plus a registry for the pluggable per-dialect adapters.
package datasource

import (
	"context"
	"time"

	"github.com/insightline/analyst-engine/pkg/models"
)

// MaxQueryLimit is the hard cap on rows returned by RunSQL.
// Protects the engine from unbounded result sets.
const MaxQueryLimit = 100000

// ColumnInfo describes a result column with database-agnostic type information.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Result holds the rows returned by a query.
type Result struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// ForeignKey represents a foreign key relationship.
type ForeignKey struct {
	Column           string `json:"column"`
	ReferencedTable  string `json:"referenced_table"`
	ReferencedColumn string `json:"referenced_column"`
}

// Constraints holds table-level constraint information.
type Constraints struct {
	PrimaryKey  []string     `json:"primary_key"`
	ForeignKeys []ForeignKey `json:"foreign_keys"`
}

// TableProfile holds basic profiling information for a table.
type TableProfile struct {
	Table      string     `json:"table"`
	TotalRows  int64      `json:"total_rows"`
	DateColumn string     `json:"date_column,omitempty"`
	MinDate    *time.Time `json:"min_date,omitempty"`
	MaxDate    *time.Time `json:"max_date,omitempty"`
}

// Connector is the contract every datasource adapter implements.
// Each connector owns its connection and must be closed when done.
type Connector interface {
	// Dialect identifies the SQL dialect the connector speaks.
	Dialect() models.Dialect

	// ListTables returns table names, optionally filtered to one schema.
	ListTables(ctx context.Context, schema string) ([]string, error)

	// GetColumns returns column metadata for a table.
	GetColumns(ctx context.Context, table string) ([]models.SchemaColumn, error)

	// GetConstraints returns primary key and foreign key information.
	GetConstraints(ctx context.Context, table string) (*Constraints, error)

	// ProfileCounts returns the row count and, when tsCol is non-empty and
	// the table has rows, the min/max of that timestamp column.
	ProfileCounts(ctx context.Context, table, tsCol string) (*TableProfile, error)

	// RunSQL executes a query and returns bounded results. A limit <= 0 or
	// above MaxQueryLimit is replaced by MaxQueryLimit; statements that
	// already carry a LIMIT or TOP are left untouched.
	RunSQL(ctx context.Context, sql string, params []any, limit int) (*Result, error)

	// QuoteIdent quotes an identifier for safe use in SQL.
	QuoteIdent(name string) string

	// LimitClause renders the dialect's row-limit clause for n rows.
	LimitClause(n int) string

	// Close releases the underlying connections.
	Close() error
}

// RLSExecutor is implemented by connectors that can run a query under a
// caller's row-level-security identity. The access token's claims are bound
// to the session for the duration of the statement.
type RLSExecutor interface {
	RunSQLWithRLS(ctx context.Context, sql string, params []any, limit int, accessToken string) (*Result, error)
}

// CapLimit normalizes a requested row limit into the allowed range.
func CapLimit(limit int) int {
	if limit <= 0 || limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}
