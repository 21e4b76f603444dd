package backend

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/shakram02/go-mcp-db-gateway/internal/config"
	"github.com/shakram02/go-mcp-db-gateway/internal/validation"
)

// SQLiteDialect implements Dialect for SQLite database files.
type SQLiteDialect struct {
	cfg      config.SQLiteConfig
	readOnly bool
}

func (d *SQLiteDialect) Name() string       { return config.BackendSQLite }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) BuildDSN() (string, error) {
	dbPath := d.cfg.Path
	if dbPath == "" {
		return "", fmt.Errorf("sqlite path is required")
	}
	if !d.readOnly {
		return dbPath, nil
	}
	// mode=ro only binds file: URIs; query_only is set on every connection.
	if !strings.Contains(dbPath, "query_only") {
		dbPath = withQueryParam(dbPath, "_pragma=query_only(1)")
	}
	if !strings.Contains(dbPath, "mode=") {
		dbPath = withQueryParam(dbPath, "mode=ro")
	}
	return dbPath, nil
}

func withQueryParam(dsn, param string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + param
	}
	return dsn + "?" + param
}

func (d *SQLiteDialect) DatabaseName(dsn string) string {
	path := dsn
	if idx := strings.Index(path, "?"); idx != -1 {
		path = path[:idx]
	}
	name := filepath.Base(strings.TrimPrefix(path, "file:"))
	for _, ext := range []string{".db", ".sqlite3", ".sqlite"} {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

// ListTablesQuery ignores databaseName: SQLite has one database per file.
func (d *SQLiteDialect) ListTablesQuery(string) (string, []any) {
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`,
		nil
}

func (d *SQLiteDialect) ReadSchemaQuery(_, tableName string) (string, []any) {
	// PRAGMA table_info cannot use ? placeholders, so we embed the table name safely.
	return fmt.Sprintf("PRAGMA table_info('%s')", strings.ReplaceAll(tableName, "'", "''")),
		nil
}

func (d *SQLiteDialect) ScanSchemaRow(rows *sql.Rows) (Column, error) {
	// PRAGMA table_info returns: cid, name, type, notnull, dflt_value, pk
	var cid int
	var name, colType string
	var notNull, pk int
	var dfltValue sql.NullString

	if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
		return Column{}, err
	}

	nullable := notNull == 0
	col := Column{
		Name:     name,
		DataType: colType,
		Nullable: &nullable,
		Default:  nullableString(dfltValue),
	}
	if pk > 0 {
		col.Key = "PRI"
	}
	return col, nil
}

func (d *SQLiteDialect) Placeholder(int) string { return "?" }

func (d *SQLiteDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *SQLiteDialect) PreviewQuery(quotedTable string) string {
	return "SELECT * FROM " + quotedTable + " LIMIT ?"
}

func (d *SQLiteDialect) ForbiddenPatterns() []validation.Pattern {
	return validation.SQLitePatterns
}
