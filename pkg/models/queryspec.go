package models

// Dialect identifies the SQL variant targeted by query generation.
type Dialect string

const (
	DialectPostgres  Dialect = "postgres"
	DialectMySQL     Dialect = "mysql"
	DialectMSSQL     Dialect = "mssql"
	DialectSQLite    Dialect = "sqlite"
	DialectSnowflake Dialect = "snowflake"
	DialectBigQuery  Dialect = "bigquery"
	DialectDuckDB    Dialect = "duckdb"
)

// ValidationProfile controls validation strictness.
type ValidationProfile string

const (
	ValidationFast     ValidationProfile = "fast"
	ValidationBalanced ValidationProfile = "balanced"
	ValidationStrict   ValidationProfile = "strict"
)

// Budget is the resource allowance for a single analysis job.
type Budget struct {
	Queries int     `json:"queries"`
	Seconds float64 `json:"seconds"`
}

const (
	defaultBudgetQueries = 30
	defaultBudgetSeconds = 90

	minBudgetQueries = 1
	maxBudgetQueries = 100
	minBudgetSeconds = 10
	maxBudgetSeconds = 600
)

// DefaultBudget returns the standard allowance for jobs that do not
// specify one.
func DefaultBudget() Budget {
	return Budget{Queries: defaultBudgetQueries, Seconds: defaultBudgetSeconds}
}

// Clamp forces the budget into the supported range, filling zero values
// with defaults.
func (b Budget) Clamp() Budget {
	out := b
	if out.Queries == 0 {
		out.Queries = defaultBudgetQueries
	}
	if out.Seconds == 0 {
		out.Seconds = defaultBudgetSeconds
	}
	if out.Queries < minBudgetQueries {
		out.Queries = minBudgetQueries
	}
	if out.Queries > maxBudgetQueries {
		out.Queries = maxBudgetQueries
	}
	if out.Seconds < minBudgetSeconds {
		out.Seconds = minBudgetSeconds
	}
	if out.Seconds > maxBudgetSeconds {
		out.Seconds = maxBudgetSeconds
	}
	return out
}

// QuerySpec is the immutable specification for a data analysis query.
type QuerySpec struct {
	Question          string            `json:"question"`
	Dialect           Dialect           `json:"dialect"`
	TimeWindow        string            `json:"time_window,omitempty"`
	Grain             string            `json:"grain,omitempty"`
	Filters           map[string]any    `json:"filters,omitempty"`
	Budget            Budget            `json:"budget"`
	ValidationProfile ValidationProfile `json:"validation_profile,omitempty"`
}

// Normalize returns a copy of the spec with the budget clamped and the
// validation profile defaulted.
func (s QuerySpec) Normalize() QuerySpec {
	out := s
	out.Budget = out.Budget.Clamp()
	if out.ValidationProfile == "" {
		out.ValidationProfile = ValidationBalanced
	}
	if out.Dialect == "" {
		out.Dialect = DialectPostgres
	}
	return out
}

// MaxAttempts is the cap on query-generation attempts, one fifth of the
// query budget.
func (s QuerySpec) MaxAttempts() int {
	return s.Budget.Queries / 5
}

// RLSContext carries the row-level-security identity propagated with
// every execution against an RLS-capable store.
type RLSContext struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	AutoRefresh  bool   `json:"auto_refresh,omitempty"`
}
