package apperrors

import "errors"

var (
	// ErrBudgetExhausted is raised when mvq or refine is attempted with no
	// remaining query or time budget.
	ErrBudgetExhausted = errors.New("analysis budget exhausted")

	// ErrNoQuestion indicates the spec carried no usable question text.
	ErrNoQuestion = errors.New("no question provided")

	// ErrSchemaUnavailable indicates schema discovery failed entirely.
	ErrSchemaUnavailable = errors.New("schema information unavailable")

	// ErrSynthesisUnusable indicates the model returned output that could
	// not be parsed even after fallback extraction.
	ErrSynthesisUnusable = errors.New("synthesis response unusable")

	// ErrRLSRefresh indicates an RLS access token could not be refreshed.
	ErrRLSRefresh = errors.New("rls token refresh failed")

	// ErrNoConnector indicates the execution context has no datasource
	// connector attached.
	ErrNoConnector = errors.New("no datasource connector attached")

	// ErrJobNotFound indicates an unknown job id.
	ErrJobNotFound = errors.New("job not found")

	// ErrUnsafeFilter indicates a spec filter value matched a SQL
	// injection pattern.
	ErrUnsafeFilter = errors.New("filter value failed injection screening")
)
