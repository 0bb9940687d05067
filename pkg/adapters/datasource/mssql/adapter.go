// Package mssql implements the datasource connector for SQL Server.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"
	"go.uber.org/zap"

	"github.com/insightline/analyst-engine/pkg/adapters/datasource"
	"github.com/insightline/analyst-engine/pkg/analysis/dialect"
	"github.com/insightline/analyst-engine/pkg/logging"
	"github.com/insightline/analyst-engine/pkg/models"
)

// Adapter is a SQL Server connector backed by database/sql.
type Adapter struct {
	db     *sql.DB
	schema string
	logger *zap.Logger
}

var _ datasource.Connector = (*Adapter)(nil)

// New opens a SQL Server connection and verifies it with a ping.
func New(ctx context.Context, cfg datasource.Config, logger *zap.Logger) (*Adapter, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlserver: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlserver: %w", err)
	}
	return NewWithDB(db, cfg.Schema, logger), nil
}

// NewWithDB wraps an existing connection. Used by tests with sqlmock.
func NewWithDB(db *sql.DB, schema string, logger *zap.Logger) *Adapter {
	if schema == "" {
		schema = "dbo"
	}
	return &Adapter{db: db, schema: schema, logger: logger.Named("mssql")}
}

func (a *Adapter) Dialect() models.Dialect { return models.DialectMSSQL }

func (a *Adapter) ListTables(ctx context.Context, schema string) ([]string, error) {
	if schema == "" {
		schema = a.schema
	}

	rows, err := a.db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = @p1 AND table_type = 'BASE TABLE'
		ORDER BY table_name`, schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (a *Adapter) GetColumns(ctx context.Context, table string) ([]models.SchemaColumn, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT
			c.column_name,
			c.data_type,
			CASE WHEN c.is_nullable = 'YES' THEN 1 ELSE 0 END,
			COALESCE(c.column_default, ''),
			CASE WHEN pk.column_name IS NULL THEN 0 ELSE 1 END,
			COLUMNPROPERTY(OBJECT_ID(@p1 + '.' + @p2), c.column_name, 'IsIdentity')
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT kcu.column_name
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY'
				AND tc.table_schema = @p1 AND tc.table_name = @p2
		) pk ON pk.column_name = c.column_name
		WHERE c.table_schema = @p1 AND c.table_name = @p2
		ORDER BY c.ordinal_position`, a.schema, table)
	if err != nil {
		return nil, fmt.Errorf("get columns for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []models.SchemaColumn
	for rows.Next() {
		var col models.SchemaColumn
		var identity sql.NullInt64
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &col.Default, &col.PrimaryKey, &identity); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.Autoincrement = identity.Valid && identity.Int64 == 1
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (a *Adapter) GetConstraints(ctx context.Context, table string) (*datasource.Constraints, error) {
	constraints := &datasource.Constraints{}

	pkRows, err := a.db.QueryContext(ctx, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = @p1 AND tc.table_name = @p2
		ORDER BY kcu.ordinal_position`, a.schema, table)
	if err != nil {
		return nil, fmt.Errorf("get primary key for %s: %w", table, err)
	}
	defer pkRows.Close()
	for pkRows.Next() {
		var col string
		if err := pkRows.Scan(&col); err != nil {
			return nil, fmt.Errorf("scan primary key column: %w", err)
		}
		constraints.PrimaryKey = append(constraints.PrimaryKey, col)
	}
	if err := pkRows.Err(); err != nil {
		return nil, err
	}

	fkRows, err := a.db.QueryContext(ctx, `
		SELECT
			cp.name,
			tr.name,
			cr.name
		FROM sys.foreign_key_columns fkc
		JOIN sys.tables tp ON fkc.parent_object_id = tp.object_id
		JOIN sys.columns cp ON fkc.parent_object_id = cp.object_id AND fkc.parent_column_id = cp.column_id
		JOIN sys.tables tr ON fkc.referenced_object_id = tr.object_id
		JOIN sys.columns cr ON fkc.referenced_object_id = cr.object_id AND fkc.referenced_column_id = cr.column_id
		WHERE tp.name = @p1`, table)
	if err != nil {
		return nil, fmt.Errorf("get foreign keys for %s: %w", table, err)
	}
	defer fkRows.Close()
	for fkRows.Next() {
		var fk datasource.ForeignKey
		if err := fkRows.Scan(&fk.Column, &fk.ReferencedTable, &fk.ReferencedColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		constraints.ForeignKeys = append(constraints.ForeignKeys, fk)
	}
	return constraints, fkRows.Err()
}

func (a *Adapter) ProfileCounts(ctx context.Context, table, tsCol string) (*datasource.TableProfile, error) {
	profile := &datasource.TableProfile{Table: table}

	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s", a.QuoteIdent(table))
	if err := a.db.QueryRowContext(ctx, countSQL).Scan(&profile.TotalRows); err != nil {
		return nil, fmt.Errorf("profile %s: %w", table, err)
	}

	if tsCol != "" && profile.TotalRows > 0 {
		col := a.QuoteIdent(tsCol)
		tsSQL := fmt.Sprintf(
			"SELECT MIN(%s), MAX(%s) FROM %s WHERE %s IS NOT NULL",
			col, col, a.QuoteIdent(table), col)

		var minDate, maxDate sql.NullTime
		if err := a.db.QueryRowContext(ctx, tsSQL).Scan(&minDate, &maxDate); err != nil {
			a.logger.Warn("timestamp profiling failed",
				zap.String("table", table), zap.String("column", tsCol), zap.Error(err))
		} else if minDate.Valid {
			profile.DateColumn = tsCol
			profile.MinDate = &minDate.Time
			profile.MaxDate = &maxDate.Time
		}
	}

	return profile, nil
}

func (a *Adapter) RunSQL(ctx context.Context, sqlQuery string, params []any, limit int) (*datasource.Result, error) {
	final := dialect.EnsureLimit(sqlQuery, models.DialectMSSQL, datasource.CapLimit(limit))

	rows, err := a.db.QueryContext(ctx, final, params...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	result, err := datasource.ScanRows(rows)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("executed query",
		zap.Int("rows", result.RowCount),
		zap.String("sql_preview", logging.TruncateSQL(final)))
	return result, nil
}

func (a *Adapter) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (a *Adapter) LimitClause(n int) string {
	// TOP goes after SELECT rather than at the end of the statement.
	return fmt.Sprintf("TOP %d", n)
}

func (a *Adapter) Close() error {
	return a.db.Close()
}
