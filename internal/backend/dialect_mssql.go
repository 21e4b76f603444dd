package backend

import (
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/shakram02/go-mcp-db-gateway/internal/config"
	"github.com/shakram02/go-mcp-db-gateway/internal/validation"
)

// MSSQLDialect implements Dialect for Microsoft SQL Server.
type MSSQLDialect struct {
	cfg config.MSSQLConfig
}

func (d *MSSQLDialect) Name() string       { return config.BackendMSSQL }
func (d *MSSQLDialect) DriverName() string { return "sqlserver" }

// BuildDSN returns a sqlserver:// URL. Without a user the driver falls back
// to integrated authentication.
func (d *MSSQLDialect) BuildDSN() (string, error) {
	c := d.cfg
	if c.Host == "" || c.Database == "" {
		return "", fmt.Errorf("mssql host and database are required")
	}
	host := c.Host
	if c.Port != "" {
		host = net.JoinHostPort(c.Host, c.Port)
	}
	q := url.Values{}
	q.Set("database", c.Database)
	q.Set("encrypt", "disable")
	q.Set("TrustServerCertificate", "true")
	u := &url.URL{Scheme: "sqlserver", Host: host, RawQuery: q.Encode()}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	return u.String(), nil
}

func (d *MSSQLDialect) DatabaseName(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return ""
	}
	return u.Query().Get("database")
}

func (d *MSSQLDialect) ListTablesQuery(databaseName string) (string, []any) {
	return `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE' AND TABLE_CATALOG = @p1
		ORDER BY TABLE_NAME`, []any{databaseName}
}

func (d *MSSQLDialect) ReadSchemaQuery(databaseName, tableName string) (string, []any) {
	return `SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_DEFAULT
		FROM INFORMATION_SCHEMA.COLUMNS
		WHERE TABLE_CATALOG = @p1 AND TABLE_NAME = @p2
		ORDER BY ORDINAL_POSITION`, []any{databaseName, tableName}
}

func (d *MSSQLDialect) ScanSchemaRow(rows *sql.Rows) (Column, error) {
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

func (d *MSSQLDialect) Placeholder(n int) string { return fmt.Sprintf("@p%d", n) }

func (d *MSSQLDialect) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (d *MSSQLDialect) PreviewQuery(quotedTable string) string {
	return "SELECT TOP (@p1) * FROM " + quotedTable
}

func (d *MSSQLDialect) ForbiddenPatterns() []validation.Pattern {
	return validation.MSSQLPatterns
}
