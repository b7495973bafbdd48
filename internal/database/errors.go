package database

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Kind categorizes data-layer errors.
type Kind string

const (
	// KindNotInitialized indicates the pool was never opened (or was closed).
	KindNotInitialized Kind = "NOT_INITIALIZED"

	// KindTimeout indicates the availability wait ran out.
	KindTimeout Kind = "TIMEOUT"

	// KindSchemaMissing indicates an unknown table or one lacking a primary key.
	KindSchemaMissing Kind = "SCHEMA_MISSING"

	// KindMissingKey indicates a primary-key value was absent or nil.
	KindMissingKey Kind = "MISSING_KEY"

	// KindInvalidArgument indicates a malformed option or filter.
	KindInvalidArgument Kind = "INVALID_ARGUMENT"

	// KindUnsafeDelete indicates a delete without any condition.
	KindUnsafeDelete Kind = "UNSAFE_DELETE"

	// KindQueryFailed indicates the driver rejected a statement.
	KindQueryFailed Kind = "QUERY_FAILED"
)

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrNotInitialized  = &Error{Kind: KindNotInitialized}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrSchemaMissing   = &Error{Kind: KindSchemaMissing}
	ErrMissingKey      = &Error{Kind: KindMissingKey}
	ErrInvalidArgument = &Error{Kind: KindInvalidArgument}
	ErrUnsafeDelete    = &Error{Kind: KindUnsafeDelete}
	ErrQueryFailed     = &Error{Kind: KindQueryFailed}
)

// Error is the error type returned by the data layer.
type Error struct {
	Kind      Kind
	Table     string
	Column    string
	Message   string
	Statement string // truncated statement preview, set for KindQueryFailed
	Cause     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Table != "" {
		fmt.Fprintf(&b, " (table=%s", e.Table)
		if e.Column != "" {
			fmt.Fprintf(&b, ", column=%s", e.Column)
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Errorf builds an *Error of the given kind with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// SchemaMissing reports an unknown table.
func SchemaMissing(table string) *Error {
	return &Error{Kind: KindSchemaMissing, Table: table, Message: "schema missing"}
}

// Preview truncates a statement to at most n bytes for diagnostics,
// never splitting a UTF-8 sequence.
func Preview(sql string, n int) string {
	sql = strings.Join(strings.Fields(sql), " ")
	if len(sql) <= n {
		return sql
	}
	for n > 0 && !utf8.RuneStart(sql[n]) {
		n--
	}
	return sql[:n] + "..."
}
