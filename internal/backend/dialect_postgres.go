package backend

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/lib/pq"

	"github.com/shakram02/go-mcp-db-gateway/internal/config"
	"github.com/shakram02/go-mcp-db-gateway/internal/validation"
)

// PostgresDialect implements Dialect for PostgreSQL databases. Only the
// public schema is exposed.
type PostgresDialect struct {
	cfg      config.PostgresConfig
	readOnly bool
}

func (d *PostgresDialect) Name() string       { return config.BackendPostgres }
func (d *PostgresDialect) DriverName() string { return "postgres" }

func (d *PostgresDialect) BuildDSN() (string, error) {
	c := d.cfg
	if c.Host == "" || c.Port == "" || c.Database == "" || c.User == "" {
		return "", fmt.Errorf("postgres host, port, database and user are required")
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "prefer"
	}
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		url.PathEscape(c.User), url.PathEscape(c.Password), c.Host, c.Port, url.PathEscape(c.Database), sslmode)
	// sent as a startup parameter, so every pooled session is read-only
	if d.readOnly {
		dsn += "&default_transaction_read_only=on"
	}
	return dsn, nil
}

func (d *PostgresDialect) DatabaseName(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return ""
	}
	name, err := url.PathUnescape(strings.TrimPrefix(u.Path, "/"))
	if err != nil {
		return strings.TrimPrefix(u.Path, "/")
	}
	return name
}

func (d *PostgresDialect) ListTablesQuery(databaseName string) (string, []any) {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE' AND table_catalog = $1
		ORDER BY table_name`, []any{databaseName}
}

func (d *PostgresDialect) ReadSchemaQuery(databaseName, tableName string) (string, []any) {
	return `SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns
		WHERE table_catalog = $1 AND table_schema = 'public' AND table_name = $2
		ORDER BY ordinal_position`, []any{databaseName, tableName}
}

func (d *PostgresDialect) ScanSchemaRow(rows *sql.Rows) (Column, error) {
	var colName, dataType, isNullable string
	var colDefault sql.NullString

	if err := rows.Scan(&colName, &dataType, &isNullable, &colDefault); err != nil {
		return Column{}, err
	}
	return Column{
		Name:     colName,
		DataType: dataType,
		Nullable: yesNo(isNullable),
		Default:  nullableString(colDefault),
	}, nil
}

func (d *PostgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (d *PostgresDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *PostgresDialect) PreviewQuery(quotedTable string) string {
	return "SELECT * FROM " + quotedTable + " LIMIT $1"
}

func (d *PostgresDialect) ForbiddenPatterns() []validation.Pattern {
	return validation.PostgresPatterns
}
