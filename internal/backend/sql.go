package backend

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shakram02/go-mcp-db-gateway/internal/errs"
	"github.com/shakram02/go-mcp-db-gateway/internal/validation"
)

// SQLBackend implements SQL on top of database/sql. Requests check
// connections out of the pool, so concurrent tool calls are safe.
type SQLBackend struct {
	db        *sql.DB
	dialect   Dialect
	dbName    string
	maxRows   int
	validator *validation.Validator
}

var _ SQL = (*SQLBackend)(nil)

// OpenSQL connects using the dialect's DSN and verifies the connection.
func OpenSQL(ctx context.Context, dialect Dialect, maxRows int) (*SQLBackend, error) {
	dsn, err := dialect.BuildDSN()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxIdleConns(MaxConnectionsIdle)
	db.SetMaxOpenConns(MaxConnectionsOpen)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, pingCancel := context.WithTimeout(ctx, ConnectionTimeout)
	defer pingCancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database: %w", dialect.Name(), err)
	}

	return NewSQL(db, dialect, dialect.DatabaseName(dsn), maxRows), nil
}

// NewSQL wraps an already open database. The backend takes ownership of db.
func NewSQL(db *sql.DB, dialect Dialect, dbName string, maxRows int) *SQLBackend {
	return &SQLBackend{
		db:        db,
		dialect:   dialect,
		dbName:    dbName,
		maxRows:   maxRows,
		validator: validation.New(dialect.ForbiddenPatterns()...),
	}
}

func (b *SQLBackend) Kind() string                     { return b.dialect.Name() }
func (b *SQLBackend) DatabaseName() string             { return b.dbName }
func (b *SQLBackend) Schemaless() bool                 { return false }
func (b *SQLBackend) Validator() *validation.Validator { return b.validator }

func (b *SQLBackend) PreviewStatement(table string) string {
	return b.dialect.PreviewQuery(b.dialect.QuoteIdent(table))
}

func (b *SQLBackend) ListTables(ctx context.Context) ([]string, error) {
	query, args := b.dialect.ListTablesQuery(b.dbName)
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}
	return tables, nil
}

func (b *SQLBackend) Schema(ctx context.Context, table string) (TableSchema, error) {
	query, args := b.dialect.ReadSchemaQuery(b.dbName, table)
	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}
	defer rows.Close()

	var schema TableSchema
	for rows.Next() {
		col, err := b.dialect.ScanSchemaRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		schema = append(schema, col)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading schema: %w", err)
	}
	if len(schema) == 0 {
		return nil, errs.NotFoundf("table %q not found", table)
	}
	return schema, nil
}

func (b *SQLBackend) Query(ctx context.Context, stmt string, args ...any) ([]Row, error) {
	rows, err := b.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query error: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	results := []Row{}
	for rows.Next() {
		if len(results) >= b.maxRows {
			results = append(results, truncationWarning(b.maxRows))
			break
		}

		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", len(results)+1, err)
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			// []byte is not JSON friendly
			if bs, ok := values[i].([]byte); ok {
				row[col] = string(bs)
			} else {
				row[col] = values[i]
			}
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return results, nil
}

func (b *SQLBackend) Insert(ctx context.Context, table string, values map[string]any) (Mutation, error) {
	if len(values) == 0 {
		return Mutation{}, errs.New(errs.Validation, "no values to insert")
	}
	cols := sortedKeys(values)
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		quoted[i] = b.dialect.QuoteIdent(c)
		marks[i] = b.dialect.Placeholder(i + 1)
		args[i] = values[c]
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		b.dialect.QuoteIdent(table), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	n, err := b.exec(ctx, stmt, args)
	if err != nil {
		return Mutation{}, err
	}
	return Mutation{Affected: n}, nil
}

func (b *SQLBackend) Update(ctx context.Context, table string, key, values map[string]any) (Mutation, error) {
	if len(values) == 0 {
		return Mutation{}, errs.New(errs.Validation, "no values to update")
	}
	if len(key) == 0 {
		return Mutation{}, errs.New(errs.Validation, "update requires a non-empty key")
	}
	cols := sortedKeys(values)
	sets := make([]string, len(cols))
	args := make([]any, 0, len(values)+len(key))
	for i, c := range cols {
		args = append(args, values[c])
		sets[i] = fmt.Sprintf("%s = %s", b.dialect.QuoteIdent(c), b.dialect.Placeholder(len(args)))
	}
	where, args := b.whereClause(key, args)
	stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		b.dialect.QuoteIdent(table), strings.Join(sets, ", "), where)

	n, err := b.exec(ctx, stmt, args)
	if err != nil {
		return Mutation{}, err
	}
	return Mutation{Matched: n, Affected: n}, nil
}

func (b *SQLBackend) Delete(ctx context.Context, table string, key map[string]any) (Mutation, error) {
	if len(key) == 0 {
		return Mutation{}, errs.New(errs.Validation, "delete requires a non-empty key")
	}
	where, args := b.whereClause(key, nil)
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", b.dialect.QuoteIdent(table), where)

	n, err := b.exec(ctx, stmt, args)
	if err != nil {
		return Mutation{}, err
	}
	return Mutation{Matched: n, Affected: n}, nil
}

func (b *SQLBackend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

// whereClause ANDs an equality test per key column, continuing the
// placeholder numbering after args.
func (b *SQLBackend) whereClause(key map[string]any, args []any) (string, []any) {
	cols := sortedKeys(key)
	conds := make([]string, len(cols))
	for i, c := range cols {
		if key[c] == nil {
			conds[i] = b.dialect.QuoteIdent(c) + " IS NULL"
			continue
		}
		args = append(args, key[c])
		conds[i] = fmt.Sprintf("%s = %s", b.dialect.QuoteIdent(c), b.dialect.Placeholder(len(args)))
	}
	return strings.Join(conds, " AND "), args
}

// exec runs one statement in its own transaction and commits it. Any
// failure rolls the transaction back.
func (b *SQLBackend) exec(ctx context.Context, stmt string, args []any) (int64, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}

	res, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		rollback(tx)
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		rollback(tx)
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		rollback(tx)
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		log.Warn().Err(err).Msg("rollback failed")
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
