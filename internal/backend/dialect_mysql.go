package backend

import (
	"database/sql"
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/shakram02/go-mcp-db-gateway/internal/config"
	"github.com/shakram02/go-mcp-db-gateway/internal/validation"
)

// MySQLDialect implements Dialect for MySQL databases.
type MySQLDialect struct {
	cfg      config.MySQLConfig
	readOnly bool
}

func (d *MySQLDialect) Name() string       { return config.BackendMySQL }
func (d *MySQLDialect) DriverName() string { return "mysql" }

// BuildDSN leaves multiStatements off so one call can only run one
// statement.
func (d *MySQLDialect) BuildDSN() (string, error) {
	c := d.cfg
	if c.Host == "" || c.Port == "" || c.Database == "" || c.User == "" {
		return "", fmt.Errorf("mysql host, port, database and user are required")
	}
	mc := mysql.NewConfig()
	mc.User = c.User
	mc.Passwd = c.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Host, c.Port)
	mc.DBName = c.Database
	mc.ParseTime = true
	if d.readOnly {
		// applied with SET on every new connection
		mc.Params = map[string]string{"transaction_read_only": "1"}
	}
	return mc.FormatDSN(), nil
}

func (d *MySQLDialect) DatabaseName(dsn string) string {
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return ""
	}
	return mc.DBName
}

func (d *MySQLDialect) ListTablesQuery(databaseName string) (string, []any) {
	return `SELECT table_name FROM information_schema.tables
		WHERE table_schema = ? AND table_type = 'BASE TABLE'
		ORDER BY table_name`, []any{databaseName}
}

func (d *MySQLDialect) ReadSchemaQuery(databaseName, tableName string) (string, []any) {
	return `SELECT column_name, data_type, is_nullable, column_key, column_default, extra
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position`, []any{databaseName, tableName}
}

func (d *MySQLDialect) ScanSchemaRow(rows *sql.Rows) (Column, error) {
	var colName, dataType, isNullable, colKey string
	var colDefault, extra sql.NullString

	if err := rows.Scan(&colName, &dataType, &isNullable, &colKey, &colDefault, &extra); err != nil {
		return Column{}, err
	}
	return Column{
		Name:     colName,
		DataType: dataType,
		Nullable: yesNo(isNullable),
		Default:  nullableString(colDefault),
		Key:      colKey,
		Extra:    extra.String,
	}, nil
}

func (d *MySQLDialect) Placeholder(int) string { return "?" }

func (d *MySQLDialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d *MySQLDialect) PreviewQuery(quotedTable string) string {
	return "SELECT * FROM " + quotedTable + " LIMIT ?"
}

func (d *MySQLDialect) ForbiddenPatterns() []validation.Pattern {
	return validation.MySQLPatterns
}
