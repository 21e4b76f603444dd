// Package backend adapts concrete databases to the capabilities the tool
// layer needs: listing tables or collections, describing them, and row or
// document level reads and writes.
//
// Relational engines share one database/sql implementation parameterized by
// a Dialect. MongoDB has its own adapter. The two families differ on
// purpose: relational backends report typed columns, while the document
// backend is schema-less and describes a collection by its indexes.
package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/shakram02/go-mcp-db-gateway/internal/config"
	"github.com/shakram02/go-mcp-db-gateway/internal/validation"
)

// Connection pool settings shared by every driver.
const (
	ConnectionTimeout  = 10 * time.Second
	MaxConnectionsIdle = 5
	MaxConnectionsOpen = 10
)

// Column describes one column of a table, or one indexed field of a
// collection on the document backend.
type Column struct {
	Name     string  `json:"column_name"`
	DataType string  `json:"data_type"`
	Nullable *bool   `json:"nullable,omitempty"`
	Default  *string `json:"default,omitempty"`
	Key      string  `json:"column_key,omitempty"`
	Extra    string  `json:"extra,omitempty"`
}

// TableSchema is the ordered column list of a table.
type TableSchema []Column

// Row is one result row or document keyed by column or field name.
type Row map[string]any

// Mutation reports the outcome of a single-row write.
type Mutation struct {
	InsertedID any   `json:"inserted_id,omitempty"`
	Matched    int64 `json:"matched"`
	Affected   int64 `json:"affected"`
}

// Backend is the capability every database kind provides.
//
// Insert, Update and Delete each commit on their own. For relational
// backends key and values are column→value maps and key is matched with
// equality. For the document backend key is a query filter and values are
// applied with $set.
type Backend interface {
	// Kind is the backend name, one of the config.Backend* constants.
	Kind() string

	// DatabaseName is the database the backend is bound to.
	DatabaseName() string

	// Schemaless is true when Schema describes indexes rather than columns.
	Schemaless() bool

	ListTables(ctx context.Context) ([]string, error)

	// Schema fails with an errs.NotFound error for an unknown table.
	Schema(ctx context.Context, table string) (TableSchema, error)

	Insert(ctx context.Context, table string, values map[string]any) (Mutation, error)
	Update(ctx context.Context, table string, key, values map[string]any) (Mutation, error)
	Delete(ctx context.Context, table string, key map[string]any) (Mutation, error)

	Close() error
}

// SQL is a relational backend that executes statements.
type SQL interface {
	Backend

	// Validator returns the read-only validator for this dialect.
	Validator() *validation.Validator

	// Query runs exactly one statement and returns at most the configured
	// maximum number of rows.
	Query(ctx context.Context, stmt string, args ...any) ([]Row, error)

	// PreviewStatement builds a statement selecting every column of table
	// with a single placeholder for the row limit.
	PreviewStatement(table string) string
}

// FindQuery selects documents from a collection. A nil Projection returns
// whole documents; a non-positive Limit means no limit.
type FindQuery struct {
	Filter     map[string]any
	Projection map[string]any
	Limit      int64
}

// IndexKey is one field of an index and its sort order or index type.
type IndexKey struct {
	Field string `json:"field"`
	Order any    `json:"order"`
}

// Index describes one index of a collection.
type Index struct {
	Name   string     `json:"name"`
	Keys   []IndexKey `json:"keys"`
	Unique bool       `json:"unique,omitempty"`
}

// Document is a schema-less backend addressed by collection.
type Document interface {
	Backend

	Find(ctx context.Context, collection string, q FindQuery) ([]Row, error)
	CreateIndex(ctx context.Context, collection, field string, unique bool) (string, error)
	DropIndex(ctx context.Context, collection, name string) error
	Indexes(ctx context.Context, collection string) ([]Index, error)
}

// Open connects to the backend selected by cfg.Backend. The returned
// Backend owns its connection pool; Close releases it.
func Open(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Backend {
	case config.BackendMongo:
		return OpenMongo(ctx, cfg.Mongo, cfg.MaxRows)
	case config.BackendPostgres:
		return OpenSQL(ctx, &PostgresDialect{cfg: cfg.Postgres, readOnly: cfg.ReadOnly}, cfg.MaxRows)
	case config.BackendMSSQL:
		return OpenSQL(ctx, &MSSQLDialect{cfg: cfg.MSSQL}, cfg.MaxRows)
	case config.BackendMySQL:
		return OpenSQL(ctx, &MySQLDialect{cfg: cfg.MySQL, readOnly: cfg.ReadOnly}, cfg.MaxRows)
	case config.BackendSQLite:
		return OpenSQL(ctx, &SQLiteDialect{cfg: cfg.SQLite, readOnly: cfg.ReadOnly}, cfg.MaxRows)
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}

func truncationWarning(maxRows int) Row {
	return Row{"_warning": fmt.Sprintf("Result truncated at %d rows", maxRows)}
}
