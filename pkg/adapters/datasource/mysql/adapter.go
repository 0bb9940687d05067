// Package mysql implements the datasource connector for MySQL and MariaDB.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/insightline/analyst-engine/pkg/adapters/datasource"
	"github.com/insightline/analyst-engine/pkg/analysis/dialect"
	"github.com/insightline/analyst-engine/pkg/logging"
	"github.com/insightline/analyst-engine/pkg/models"
)

// Adapter is a MySQL connector backed by database/sql.
type Adapter struct {
	db     *sql.DB
	schema string
	logger *zap.Logger
}

var _ datasource.Connector = (*Adapter)(nil)

// New opens a MySQL connection and verifies it with a ping.
func New(ctx context.Context, cfg datasource.Config, logger *zap.Logger) (*Adapter, error) {
	db, err := sql.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	return NewWithDB(db, cfg.Schema, logger), nil
}

// NewWithDB wraps an existing connection. Used by tests with sqlmock.
func NewWithDB(db *sql.DB, schema string, logger *zap.Logger) *Adapter {
	return &Adapter{db: db, schema: schema, logger: logger.Named("mysql")}
}

func (a *Adapter) Dialect() models.Dialect { return models.DialectMySQL }

func (a *Adapter) ListTables(ctx context.Context, schema string) ([]string, error) {
	if schema == "" {
		schema = a.schema
	}

	query := `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE())
			AND table_type = 'BASE TABLE'
		ORDER BY table_name`
	rows, err := a.db.QueryContext(ctx, query, schema)
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
			column_name,
			data_type,
			is_nullable = 'YES',
			COALESCE(column_default, ''),
			column_key = 'PRI',
			extra LIKE '%auto_increment%'
		FROM information_schema.columns
		WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND table_name = ?
		ORDER BY ordinal_position`, a.schema, table)
	if err != nil {
		return nil, fmt.Errorf("get columns for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []models.SchemaColumn
	for rows.Next() {
		var col models.SchemaColumn
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &col.Default, &col.PrimaryKey, &col.Autoincrement); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (a *Adapter) GetConstraints(ctx context.Context, table string) (*datasource.Constraints, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT
			column_name,
			COALESCE(referenced_table_name, ''),
			COALESCE(referenced_column_name, ''),
			constraint_name
		FROM information_schema.key_column_usage
		WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE()) AND table_name = ?
		ORDER BY constraint_name, ordinal_position`, a.schema, table)
	if err != nil {
		return nil, fmt.Errorf("get constraints for %s: %w", table, err)
	}
	defer rows.Close()

	constraints := &datasource.Constraints{}
	for rows.Next() {
		var column, refTable, refColumn, constraintName string
		if err := rows.Scan(&column, &refTable, &refColumn, &constraintName); err != nil {
			return nil, fmt.Errorf("scan constraint: %w", err)
		}
		switch {
		case constraintName == "PRIMARY":
			constraints.PrimaryKey = append(constraints.PrimaryKey, column)
		case refTable != "":
			constraints.ForeignKeys = append(constraints.ForeignKeys, datasource.ForeignKey{
				Column:           column,
				ReferencedTable:  refTable,
				ReferencedColumn: refColumn,
			})
		}
	}
	return constraints, rows.Err()
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
	final := dialect.EnsureLimit(sqlQuery, models.DialectMySQL, datasource.CapLimit(limit))

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
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (a *Adapter) LimitClause(n int) string {
	return fmt.Sprintf("LIMIT %d", n)
}

func (a *Adapter) Close() error {
	return a.db.Close()
}
