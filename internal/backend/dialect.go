package backend

import (
	"database/sql"

	"github.com/shakram02/go-mcp-db-gateway/internal/validation"
)

// Dialect captures what differs between relational engines. Each supported
// engine (PostgreSQL, SQL Server, MySQL, SQLite) implements it.
type Dialect interface {
	// Name is the backend name, e.g. "postgres". It doubles as the resource
	// URI scheme.
	Name() string

	// DriverName returns the database/sql driver name.
	DriverName() string

	// BuildDSN constructs a DSN from the dialect's configuration.
	BuildDSN() (string, error)

	// DatabaseName extracts the database/file name from a DSN string.
	DatabaseName(dsn string) string

	// ListTablesQuery returns the SQL query and arguments to list base
	// tables in name order.
	ListTablesQuery(databaseName string) (string, []any)

	// ReadSchemaQuery returns the SQL query and arguments to read column
	// info for a table.
	ReadSchemaQuery(databaseName, tableName string) (string, []any)

	// ScanSchemaRow scans a single row from the schema query result.
	ScanSchemaRow(rows *sql.Rows) (Column, error)

	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder(n int) string

	// QuoteIdent quotes a table or column name.
	QuoteIdent(name string) string

	// PreviewQuery selects all columns of an already quoted table with one
	// placeholder for the row limit.
	PreviewQuery(quotedTable string) string

	// ForbiddenPatterns are rejected by the read-only validator in addition
	// to the common rules.
	ForbiddenPatterns() []validation.Pattern
}

func yesNo(s string) *bool {
	b := s == "YES"
	return &b
}

func nullableString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
