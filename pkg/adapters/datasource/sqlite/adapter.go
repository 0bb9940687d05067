// Package sqlite implements the datasource connector for SQLite. Useful for
// local analysis over file-based datasets and for exercising the engine in
// tests without external services.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/insightline/analyst-engine/pkg/adapters/datasource"
	"github.com/insightline/analyst-engine/pkg/analysis/dialect"
	"github.com/insightline/analyst-engine/pkg/logging"
	"github.com/insightline/analyst-engine/pkg/models"
)

// Adapter is a SQLite connector backed by database/sql.
type Adapter struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ datasource.Connector = (*Adapter)(nil)

// New opens a SQLite database. The DSN is a file path or ":memory:".
func New(ctx context.Context, cfg datasource.Config, logger *zap.Logger) (*Adapter, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return NewWithDB(db, logger), nil
}

// NewWithDB wraps an existing connection.
func NewWithDB(db *sql.DB, logger *zap.Logger) *Adapter {
	return &Adapter{db: db, logger: logger.Named("sqlite")}
}

func (a *Adapter) Dialect() models.Dialect { return models.DialectSQLite }

func (a *Adapter) ListTables(ctx context.Context, schema string) ([]string, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name`)
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
	rows, err := a.db.QueryContext(ctx,
		fmt.Sprintf("PRAGMA table_info(%s)", a.QuoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("get columns for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []models.SchemaColumn
	for rows.Next() {
		var (
			cid        int
			name       string
			typ        string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		columns = append(columns, models.SchemaColumn{
			Name:       name,
			Type:       typ,
			Nullable:   notNull == 0,
			Default:    defaultVal.String,
			PrimaryKey: pk > 0,
			// INTEGER PRIMARY KEY columns are rowid aliases
			Autoincrement: pk > 0 && strings.EqualFold(typ, "INTEGER"),
		})
	}
	return columns, rows.Err()
}

func (a *Adapter) GetConstraints(ctx context.Context, table string) (*datasource.Constraints, error) {
	constraints := &datasource.Constraints{}

	columns, err := a.GetColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	for _, col := range columns {
		if col.PrimaryKey {
			constraints.PrimaryKey = append(constraints.PrimaryKey, col.Name)
		}
	}

	rows, err := a.db.QueryContext(ctx,
		fmt.Sprintf("PRAGMA foreign_key_list(%s)", a.QuoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("get foreign keys for %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, seq                  int
			refTable, from, to       string
			onUpdate, onDelete, mtch string
		)
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &mtch); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		constraints.ForeignKeys = append(constraints.ForeignKeys, datasource.ForeignKey{
			Column:           from,
			ReferencedTable:  refTable,
			ReferencedColumn: to,
		})
	}
	return constraints, rows.Err()
}

func (a *Adapter) ProfileCounts(ctx context.Context, table, tsCol string) (*datasource.TableProfile, error) {
	profile := &datasource.TableProfile{Table: table}

	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s", a.QuoteIdent(table))
	if err := a.db.QueryRowContext(ctx, countSQL).Scan(&profile.TotalRows); err != nil {
		return nil, fmt.Errorf("profile %s: %w", table, err)
	}

	// SQLite stores timestamps as text or numbers, so min/max profiling is
	// left to the caller's queries.
	return profile, nil
}

func (a *Adapter) RunSQL(ctx context.Context, sqlQuery string, params []any, limit int) (*datasource.Result, error) {
	final := dialect.EnsureLimit(sqlQuery, models.DialectSQLite, datasource.CapLimit(limit))

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
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (a *Adapter) LimitClause(n int) string {
	return fmt.Sprintf("LIMIT %d", n)
}

func (a *Adapter) Close() error {
	return a.db.Close()
}
