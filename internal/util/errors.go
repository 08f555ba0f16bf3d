// Package util holds the error taxonomy shared by every layer of the
// warehouse engine: field resolution, planning, execution and combined-result
// post-processing all fail with one of these kinds rather than ad-hoc errors.
package util

import "fmt"

// Kind identifies one of the error categories the engine can raise. Callers
// that need to branch on failure type should use errors.As against *Error
// and switch on Kind, not string-match Error().
type Kind string

const (
	// KindInvalidField marks an unknown metric/dimension name, or an ad-hoc
	// field that collides with an existing global name.
	KindInvalidField Kind = "InvalidField"
	// KindUnsupportedGrain marks the absence of any join plan covering a
	// requested grain.
	KindUnsupportedGrain Kind = "UnsupportedGrain"
	// KindMaxFormulaDepth marks formula expansion exceeding the bound.
	KindMaxFormulaDepth Kind = "MaxFormulaDepth"
	// KindDataSourceQueryTimeout marks the executor's global deadline
	// elapsing during fan-out.
	KindDataSourceQueryTimeout Kind = "DataSourceQueryTimeout"
	// KindExecutionKilled marks a caller-invoked kill of an in-flight report.
	KindExecutionKilled Kind = "ExecutionKilled"
	// KindDisallowedSQL marks a formula or ds_formula containing a forbidden
	// keyword caught by the SQL lexer pass.
	KindDisallowedSQL Kind = "DisallowedSQL"
	// KindWarehouseIntegrity marks a startup-time integrity check failure.
	KindWarehouseIntegrity Kind = "WarehouseIntegrity"
	// KindReportException marks a structural violation discovered during
	// planning or combined-result assembly.
	KindReportException Kind = "ReportException"
)

// Error is the concrete type every public engine error is wrapped in.
type Error struct {
	Kind    Kind
	Msg     string
	Cause   error
	Details map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, &Error{Kind: KindX}) to match any error of the
// same kind regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == "" {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

func InvalidField(msg string, cause error) *Error {
	return newErr(KindInvalidField, msg, cause)
}

// UnsupportedGrain builds the error naming the dimensions that could not be
// reached by any join plan, per §4.D.2 and §8's UnsupportedGrain property.
func UnsupportedGrain(unreachable []string, cause error) *Error {
	e := newErr(KindUnsupportedGrain, fmt.Sprintf("no join plan covers dimensions: %v", unreachable), cause)
	e.Details = map[string]any{"unreachable_dimensions": unreachable}
	return e
}

func MaxFormulaDepth(field string, depth int) *Error {
	return newErr(KindMaxFormulaDepth, fmt.Sprintf("formula for field %q exceeded max depth %d", field, depth), nil)
}

func DataSourceQueryTimeout(datasource string, cause error) *Error {
	return newErr(KindDataSourceQueryTimeout, fmt.Sprintf("query against datasource %q timed out", datasource), cause)
}

func ExecutionKilled(reportID string) *Error {
	return newErr(KindExecutionKilled, fmt.Sprintf("report %q was killed", reportID), nil)
}

func DisallowedSQL(token string, expr string) *Error {
	return newErr(KindDisallowedSQL, fmt.Sprintf("forbidden token %q found in expression: %s", token, expr), nil)
}

func WarehouseIntegrity(msg string, cause error) *Error {
	return newErr(KindWarehouseIntegrity, msg, cause)
}

func ReportException(msg string, cause error) *Error {
	return newErr(KindReportException, msg, cause)
}

// Is reports whether err carries the given Kind, looking through wrapping.
func Is(err error, kind Kind) bool {
	var e *Error
	return asError(err, &e) && e.Kind == kind
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
