// Package postgres implements the datasource connector for PostgreSQL,
// including Supabase-style row-level security via session claims.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/insightline/analyst-engine/pkg/adapters/datasource"
	"github.com/insightline/analyst-engine/pkg/analysis/dialect"
	"github.com/insightline/analyst-engine/pkg/logging"
	"github.com/insightline/analyst-engine/pkg/models"
)

// Adapter is a PostgreSQL connector backed by a pgx connection pool.
type Adapter struct {
	pool    *pgxpool.Pool
	schema  string
	typeMap *pgtype.Map
	logger  *zap.Logger
}

var (
	_ datasource.Connector   = (*Adapter)(nil)
	_ datasource.RLSExecutor = (*Adapter)(nil)
)

// New opens a pooled PostgreSQL connection and verifies it with a ping.
func New(ctx context.Context, cfg datasource.Config, logger *zap.Logger) (*Adapter, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	schema := cfg.Schema
	if schema == "" {
		schema = "public"
	}

	return &Adapter{
		pool:    pool,
		schema:  schema,
		typeMap: pgtype.NewMap(),
		logger:  logger.Named("postgres"),
	}, nil
}

func (a *Adapter) Dialect() models.Dialect { return models.DialectPostgres }

func (a *Adapter) ListTables(ctx context.Context, schema string) ([]string, error) {
	if schema == "" {
		schema = a.schema
	}

	rows, err := a.pool.Query(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1 AND table_type = 'BASE TABLE'
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
	rows, err := a.pool.Query(ctx, `
		SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES',
			COALESCE(c.column_default, ''),
			COALESCE(pk.is_pk, false)
		FROM information_schema.columns c
		LEFT JOIN (
			SELECT kcu.column_name, true AS is_pk
			FROM information_schema.table_constraints tc
			JOIN information_schema.key_column_usage kcu
				ON tc.constraint_name = kcu.constraint_name
				AND tc.table_schema = kcu.table_schema
			WHERE tc.constraint_type = 'PRIMARY KEY'
				AND tc.table_schema = $1 AND tc.table_name = $2
		) pk ON pk.column_name = c.column_name
		WHERE c.table_schema = $1 AND c.table_name = $2
		ORDER BY c.ordinal_position`, a.schema, table)
	if err != nil {
		return nil, fmt.Errorf("get columns for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []models.SchemaColumn
	for rows.Next() {
		var col models.SchemaColumn
		if err := rows.Scan(&col.Name, &col.Type, &col.Nullable, &col.Default, &col.PrimaryKey); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		col.Autoincrement = strings.HasPrefix(col.Default, "nextval(")
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (a *Adapter) GetConstraints(ctx context.Context, table string) (*datasource.Constraints, error) {
	constraints := &datasource.Constraints{}

	pkRows, err := a.pool.Query(ctx, `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
			AND tc.table_schema = $1 AND tc.table_name = $2
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

	fkRows, err := a.pool.Query(ctx, `
		SELECT kcu.column_name, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.table_schema = ccu.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND tc.table_schema = $1 AND tc.table_name = $2`, a.schema, table)
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
	if err := a.pool.QueryRow(ctx, countSQL).Scan(&profile.TotalRows); err != nil {
		return nil, fmt.Errorf("profile %s: %w", table, err)
	}

	if tsCol != "" && profile.TotalRows > 0 {
		col := a.QuoteIdent(tsCol)
		tsSQL := fmt.Sprintf(
			"SELECT MIN(%s), MAX(%s) FROM %s WHERE %s IS NOT NULL",
			col, col, a.QuoteIdent(table), col)

		var minDate, maxDate *time.Time
		if err := a.pool.QueryRow(ctx, tsSQL).Scan(&minDate, &maxDate); err != nil {
			a.logger.Warn("timestamp profiling failed",
				zap.String("table", table), zap.String("column", tsCol), zap.Error(err))
		} else if minDate != nil {
			profile.DateColumn = tsCol
			profile.MinDate = minDate
			profile.MaxDate = maxDate
		}
	}

	return profile, nil
}

func (a *Adapter) RunSQL(ctx context.Context, sqlQuery string, params []any, limit int) (*datasource.Result, error) {
	final := dialect.EnsureLimit(sqlQuery, models.DialectPostgres, datasource.CapLimit(limit))

	rows, err := a.pool.Query(ctx, final, params...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	result, err := a.collectRows(rows)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("executed query",
		zap.Int("rows", result.RowCount),
		zap.String("sql_preview", logging.TruncateSQL(final)))
	return result, nil
}

// RunSQLWithRLS binds the token's claims to the session before executing,
// so PostgreSQL row-level security policies see the caller's identity. The
// claims are scoped to a transaction and reset when it ends.
func (a *Adapter) RunSQLWithRLS(ctx context.Context, sqlQuery string, params []any, limit int, accessToken string) (*datasource.Result, error) {
	claimsJSON, sub, role, err := extractClaims(accessToken)
	if err != nil {
		return nil, fmt.Errorf("extract RLS claims: %w", err)
	}

	final := dialect.EnsureLimit(sqlQuery, models.DialectPostgres, datasource.CapLimit(limit))

	tx, err := a.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin RLS transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT set_config('request.jwt.claims', $1, true)", claimsJSON); err != nil {
		return nil, fmt.Errorf("set RLS claims: %w", err)
	}
	if _, err := tx.Exec(ctx, "SELECT set_config('request.jwt.claim.sub', $1, true)", sub); err != nil {
		return nil, fmt.Errorf("set RLS sub claim: %w", err)
	}
	if _, err := tx.Exec(ctx, "SELECT set_config('request.jwt.claim.role', $1, true)", role); err != nil {
		return nil, fmt.Errorf("set RLS role claim: %w", err)
	}

	rows, err := tx.Query(ctx, final, params...)
	if err != nil {
		return nil, fmt.Errorf("execute RLS query: %w", err)
	}
	defer rows.Close()

	result, err := a.collectRows(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit RLS transaction: %w", err)
	}
	return result, nil
}

func (a *Adapter) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (a *Adapter) LimitClause(n int) string {
	return fmt.Sprintf("LIMIT %d", n)
}

func (a *Adapter) Close() error {
	a.pool.Close()
	return nil
}

func (a *Adapter) collectRows(rows pgx.Rows) (*datasource.Result, error) {
	fields := rows.FieldDescriptions()
	columns := make([]datasource.ColumnInfo, len(fields))
	for i, fd := range fields {
		typeName := fmt.Sprintf("oid:%d", fd.DataTypeOID)
		if t, ok := a.typeMap.TypeForOID(fd.DataTypeOID); ok {
			typeName = strings.ToUpper(t.Name)
		}
		columns[i] = datasource.ColumnInfo{Name: fd.Name, Type: typeName}
	}

	result := &datasource.Result{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row values: %w", err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col.Name] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

// extractClaims parses the JWT without verifying the signature; the token was
// already validated upstream and here it only seeds the session identity.
func extractClaims(accessToken string) (claimsJSON, sub, role string, err error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err = parser.ParseUnverified(accessToken, claims); err != nil {
		return "", "", "", fmt.Errorf("parse access token: %w", err)
	}

	raw, err := json.Marshal(claims)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal claims: %w", err)
	}

	sub, _ = claims["sub"].(string)
	role, _ = claims["role"].(string)
	if role == "" {
		role = "authenticated"
	}
	return string(raw), sub, role, nil
}
